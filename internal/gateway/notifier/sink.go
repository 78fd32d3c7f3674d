package notifier

import (
	"context"
	"sync"

	"quorum/internal/engine"
	"quorum/internal/logger"
)

// EventNotifier is an engine.Sink that formats events and delivers them on its own
// goroutine, so a slow chat API never holds up a tick.
type EventNotifier struct {
	out   TextNotifier
	kinds map[engine.EventKind]bool
	queue chan engine.Event

	mu      sync.Mutex
	dropped int
}

// NewEventNotifier forwards the listed kinds, or every kind when kinds is empty.
func NewEventNotifier(out TextNotifier, kinds []string, buffer int) *EventNotifier {
	if buffer <= 0 {
		buffer = 64
	}
	n := &EventNotifier{out: out, queue: make(chan engine.Event, buffer)}
	if len(kinds) > 0 {
		n.kinds = make(map[engine.EventKind]bool, len(kinds))
		for _, k := range kinds {
			n.kinds[engine.EventKind(k)] = true
		}
	}
	return n
}

func (n *EventNotifier) HandleEvents(_ context.Context, events []engine.Event) error {
	for _, ev := range events {
		if n.kinds != nil && !n.kinds[ev.Kind] {
			continue
		}
		select {
		case n.queue <- ev:
		default:
			n.mu.Lock()
			n.dropped++
			dropped := n.dropped
			n.mu.Unlock()
			logger.Warnf("notifier: queue full, dropped %s %s (total dropped=%d)", ev.Kind, ev.Symbol, dropped)
		}
	}
	return nil
}

// Run delivers queued events until ctx is done.
func (n *EventNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.queue:
			if err := n.out.SendText(ctx, FormatEvent(ev)); err != nil {
				logger.Warnf("notifier: send %s %s failed: %v", ev.Kind, ev.Symbol, err)
			}
		}
	}
}

func (n *EventNotifier) Dropped() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}
