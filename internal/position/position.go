package position

import (
	"errors"
	"fmt"
	"time"

	"quorum/internal/decision"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// SideFor maps a decision direction to a position side.
func SideFor(d decision.Direction) (Side, bool) {
	switch d {
	case decision.DirectionLong:
		return SideLong, true
	case decision.DirectionShort:
		return SideShort, true
	}
	return "", false
}

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

type CloseReason string

const (
	ReasonStopLoss   CloseReason = "STOP_LOSS"
	ReasonTakeProfit CloseReason = "TAKE_PROFIT"
	ReasonManual     CloseReason = "MANUAL"
)

// PartialTarget is an alert-only level between entry and take-profit. Hit never reverts.
type PartialTarget struct {
	Level    int       `json:"level"`
	Fraction float64   `json:"fraction"`
	Price    float64   `json:"price"`
	Hit      bool      `json:"hit"`
	HitAt    time.Time `json:"hit_at,omitempty"`
}

type Position struct {
	ID               string                  `json:"id"`
	Symbol           string                  `json:"symbol"`
	Side             Side                    `json:"side"`
	EntryPrice       float64                 `json:"entry_price"`
	StopLoss         float64                 `json:"stop_loss"`
	TakeProfit       float64                 `json:"take_profit"`
	ATR              float64                 `json:"atr"`
	PartialTargets   []PartialTarget         `json:"partial_targets"`
	SizeUnits        float64                 `json:"size_units"`
	OpenedAt         time.Time               `json:"opened_at"`
	LastAlertPrice   float64                 `json:"last_alert_price"`
	StopWarningsSent int                     `json:"stop_warnings_sent"`
	Status           Status                  `json:"status"`
	CloseReason      CloseReason             `json:"close_reason,omitempty"`
	PnLPercent       float64                 `json:"pnl_percent"`
	LastPrice        float64                 `json:"last_price"`
	ExitPrice        float64                 `json:"exit_price,omitempty"`
	ClosedAt         time.Time               `json:"closed_at,omitempty"`
	Decision         decision.SignalDecision `json:"decision"`
}

func (p Position) clone() Position {
	out := p
	out.PartialTargets = append([]PartialTarget(nil), p.PartialTargets...)
	return out
}

// IsWin reports a strictly positive result.
func (p Position) IsWin() bool { return p.PnLPercent > 0 }

// PositionExistsError is returned when opening a symbol that already has an OPEN position.
type PositionExistsError struct {
	Symbol string
}

func (e *PositionExistsError) Error() string {
	return fmt.Sprintf("position already open for %s", e.Symbol)
}

// CapacityError is returned by callers that consulted the risk gate and were refused.
type CapacityError struct {
	Reason string
	Detail string
}

func (e *CapacityError) Error() string {
	if e.Detail == "" {
		return "cannot open position: " + e.Reason
	}
	return fmt.Sprintf("cannot open position: %s (%s)", e.Reason, e.Detail)
}

var ErrInvalidOpen = errors.New("invalid open request")
