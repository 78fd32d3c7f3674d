package model

import (
	"gorm.io/datatypes"
)

// PositionModel is one row per position, OPEN or CLOSED. Upserted on every lifecycle event.
type PositionModel struct {
	ID               string         `gorm:"column:id;primaryKey"`
	Symbol           string         `gorm:"column:symbol;index"`
	Side             string         `gorm:"column:side"`
	Status           string         `gorm:"column:status;index"`
	EntryPrice       float64        `gorm:"column:entry_price"`
	StopLoss         float64        `gorm:"column:stop_loss"`
	TakeProfit       float64        `gorm:"column:take_profit"`
	ATR              float64        `gorm:"column:atr"`
	SizeUnits        float64        `gorm:"column:size_units"`
	PartialTargets   datatypes.JSON `gorm:"column:partial_targets;type:TEXT"`
	Decision         datatypes.JSON `gorm:"column:decision;type:TEXT"`
	LastAlertPrice   float64        `gorm:"column:last_alert_price"`
	StopWarningsSent int            `gorm:"column:stop_warnings_sent"`
	CloseReason      string         `gorm:"column:close_reason"`
	PnLPercent       float64        `gorm:"column:pnl_percent"`
	LastPrice        float64        `gorm:"column:last_price"`
	ExitPrice        float64        `gorm:"column:exit_price"`
	OpenedAtUnix     int64          `gorm:"column:opened_at;index"`
	ClosedAtUnix     int64          `gorm:"column:closed_at"`
	UpdatedAtUnix    int64          `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// TickEventModel is the append-only journal of engine events.
type TickEventModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EventID       string         `gorm:"column:event_uuid;uniqueIndex"`
	Kind          string         `gorm:"column:kind;index"`
	PositionID    string         `gorm:"column:position_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Price         float64        `gorm:"column:price"`
	PnLPercent    float64        `gorm:"column:pnl_percent"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (TickEventModel) TableName() string { return "tick_events" }
