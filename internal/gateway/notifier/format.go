package notifier

import (
	"fmt"
	"strings"

	"quorum/internal/engine"
)

// BuildMessage lays out one engine event.
func BuildMessage(ev engine.Event) StructuredMessage {
	msg := StructuredMessage{Timestamp: ev.At}
	pos := fmt.Sprintf("%s %s", ev.Side, ev.Symbol)
	switch ev.Kind {
	case engine.EventOpened:
		msg.Icon, msg.Title = "🟢", "Opened "+pos
		lines := []string{
			fmt.Sprintf("entry %s", price(ev.Entry)),
			fmt.Sprintf("stop %s / target %s", price(ev.StopLoss), price(ev.TakeProfit)),
		}
		if d := ev.Decision; d != nil {
			lines = append(lines, fmt.Sprintf("confidence %d%% (%d buy / %d sell)", d.Confidence, d.Buys, d.Sells))
			var names []string
			for _, r := range d.Contributing {
				names = append(names, r.Name)
			}
			if len(names) > 0 {
				lines = append(lines, "agreeing: "+strings.Join(names, ", "))
			}
		}
		msg.Sections = []MessageSection{{Lines: lines}}
	case engine.EventClosed:
		icon := "🔴"
		if ev.PnLPercent > 0 {
			icon = "✅"
		}
		msg.Icon, msg.Title = icon, fmt.Sprintf("Closed %s (%s)", pos, ev.Reason)
		msg.Sections = []MessageSection{{Lines: []string{
			fmt.Sprintf("entry %s -> exit %s", price(ev.Entry), price(ev.Price)),
			fmt.Sprintf("pnl %+.2f%%", ev.PnLPercent),
		}}}
	case engine.EventPartialHit:
		msg.Icon, msg.Title = "🎯", fmt.Sprintf("%s partial target %d reached", pos, ev.Level)
		msg.Sections = []MessageSection{{Lines: []string{
			fmt.Sprintf("price %s, pnl %+.2f%%", price(ev.Price), ev.PnLPercent),
			fmt.Sprintf("target %s", price(ev.TakeProfit)),
		}}}
	case engine.EventPriceAlert:
		msg.Icon, msg.Title = "📈", pos+" moved"
		if ev.Price < ev.AlertFrom {
			msg.Icon = "📉"
		}
		msg.Sections = []MessageSection{{Lines: []string{
			fmt.Sprintf("%s -> %s", price(ev.AlertFrom), price(ev.Price)),
			fmt.Sprintf("pnl %+.2f%%", ev.PnLPercent),
		}}}
	case engine.EventStopWarning:
		msg.Icon, msg.Title = "⚠️", pos+" close to stop"
		msg.Sections = []MessageSection{{Lines: []string{
			fmt.Sprintf("price %s, stop %s", price(ev.Price), price(ev.StopLoss)),
			fmt.Sprintf("pnl %+.2f%%", ev.PnLPercent),
		}}}
	default:
		msg.Title = fmt.Sprintf("%s %s", ev.Kind, ev.Symbol)
	}
	return msg
}

// FormatEvent renders ev as Telegram Markdown.
func FormatEvent(ev engine.Event) string {
	return BuildMessage(ev).RenderMarkdown()
}

func price(v float64) string {
	switch {
	case v >= 1000:
		return fmt.Sprintf("%.2f", v)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.8f", v)
	}
}
