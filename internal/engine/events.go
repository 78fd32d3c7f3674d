package engine

import (
	"context"
	"time"

	"quorum/internal/decision"
	"quorum/internal/position"
)

type EventKind string

const (
	EventOpened      EventKind = "OPENED"
	EventPartialHit  EventKind = "PARTIAL_HIT"
	EventClosed      EventKind = "CLOSED"
	EventPriceAlert  EventKind = "PRICE_ALERT"
	EventStopWarning EventKind = "STOP_WARNING"
)

// Event is one observable outcome of a tick or a manual close. Fields not relevant to Kind
// are left zero.
type Event struct {
	ID         string                   `json:"id"`
	Kind       EventKind                `json:"kind"`
	Symbol     string                   `json:"symbol"`
	At         time.Time                `json:"at"`
	Price      float64                  `json:"price"`
	Side       position.Side            `json:"side,omitempty"`
	Level      int                      `json:"level,omitempty"`
	Levels     []int                    `json:"levels,omitempty"`
	Reason     position.CloseReason     `json:"reason,omitempty"`
	PnLPercent float64                  `json:"pnl_percent"`
	Entry      float64                  `json:"entry,omitempty"`
	StopLoss   float64                  `json:"stop_loss,omitempty"`
	TakeProfit float64                  `json:"take_profit,omitempty"`
	AlertFrom  float64                  `json:"alert_from,omitempty"`
	Decision   *decision.SignalDecision `json:"decision,omitempty"`
	Position   *position.Position       `json:"position,omitempty"`
}

// Sink receives every batch of events the engine produces. Errors are logged by the engine
// and never fail a tick.
type Sink interface {
	HandleEvents(ctx context.Context, events []Event) error
}

type SinkFunc func(ctx context.Context, events []Event) error

func (f SinkFunc) HandleEvents(ctx context.Context, events []Event) error { return f(ctx, events) }

func (e *Engine) eventsForTick(res position.TickResult, now time.Time) []Event {
	pos := res.Position
	base := Event{
		Symbol:     res.Symbol,
		At:         now,
		Price:      res.Price,
		Side:       pos.Side,
		PnLPercent: res.PnLPercent,
		Entry:      pos.EntryPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Position:   &pos,
	}
	var out []Event
	add := func(kind EventKind, mutate func(*Event)) {
		ev := base
		ev.ID = e.newID()
		ev.Kind = kind
		if mutate != nil {
			mutate(&ev)
		}
		out = append(out, ev)
	}
	switch res.Action {
	case position.ActionClosed:
		add(EventClosed, func(ev *Event) {
			ev.Reason = res.Reason
			ev.PnLPercent = pos.PnLPercent
		})
		return out
	case position.ActionPartialHit:
		add(EventPartialHit, func(ev *Event) {
			ev.Level = res.Level
			ev.Levels = append([]int(nil), res.Levels...)
		})
	}
	if res.PriceAlert {
		add(EventPriceAlert, func(ev *Event) { ev.AlertFrom = res.AlertFrom })
	}
	if res.StopWarning {
		add(EventStopWarning, nil)
	}
	return out
}

func (e *Engine) openedEvent(pos position.Position) Event {
	d := pos.Decision
	return Event{
		ID:         e.newID(),
		Kind:       EventOpened,
		Symbol:     pos.Symbol,
		At:         pos.OpenedAt,
		Price:      pos.EntryPrice,
		Side:       pos.Side,
		Entry:      pos.EntryPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Decision:   &d,
		Position:   &pos,
	}
}

func (e *Engine) closedEvent(pos position.Position) Event {
	return Event{
		ID:         e.newID(),
		Kind:       EventClosed,
		Symbol:     pos.Symbol,
		At:         pos.ClosedAt,
		Price:      pos.ExitPrice,
		Side:       pos.Side,
		Reason:     pos.CloseReason,
		PnLPercent: pos.PnLPercent,
		Entry:      pos.EntryPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Position:   &pos,
	}
}
