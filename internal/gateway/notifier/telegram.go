package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Telegram posts Markdown messages through the Bot API.
type Telegram struct {
	chatID string
	client *resty.Client
}

type TelegramConfig struct {
	BotToken   string
	ChatID     string
	APIBaseURL string
	Timeout    time.Duration
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram: bot token and chat id are required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(base+"/bot"+cfg.BotToken).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(3*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &Telegram{chatID: cfg.ChatID, client: client}, nil
}

// SendText sends text with up to three attempts on transport errors, 429 and 5xx.
func (t *Telegram) SendText(ctx context.Context, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if resp.IsSuccess() && gjson.GetBytes(resp.Body(), "ok").Bool() {
		return nil
	}
	desc := gjson.GetBytes(resp.Body(), "description").String()
	if desc == "" {
		desc = strings.TrimSpace(resp.String())
	}
	return fmt.Errorf("telegram status=%d: %s", resp.StatusCode(), desc)
}
