package notifier

import "context"

// TextNotifier delivers a rendered message.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}
