package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quorum/internal/decision"
	"quorum/internal/engine"
	"quorum/internal/position"
	storemodel "quorum/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type positionModel = storemodel.PositionModel
type tickEventModel = storemodel.TickEventModel

var errNotInitialized = errors.New("gorm store not initialized")

// EventRecord is a journaled engine event as read back from the database.
type EventRecord struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	PositionID string          `json:"position_id,omitempty"`
	Symbol     string          `json:"symbol"`
	Price      float64         `json:"price"`
	PnLPercent float64         `json:"pnl_percent"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// GormStore persists positions and the event journal in SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ engine.Sink = (*GormStore)(nil)

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&positionModel{}, &tickEventModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------------- Positions ------------------------------

func (s *GormStore) SavePosition(ctx context.Context, pos position.Position) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	m, err := newPositionModel(pos, time.Now())
	if err != nil {
		return err
	}
	return upsertPosition(s.db.WithContext(ctx), &m)
}

func upsertPosition(tx *gorm.DB, m *positionModel) error {
	if m.ID == "" {
		return fmt.Errorf("position id is required")
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(m).Error
}

// LoadOpenPositions returns every OPEN position, oldest first.
func (s *GormStore) LoadOpenPositions(ctx context.Context) ([]position.Position, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var models []positionModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(position.StatusOpen)).
		Order("opened_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return positionsFromModels(models)
}

// ListClosedPositions returns the most recently closed positions, newest first. An empty
// symbol matches all symbols.
func (s *GormStore) ListClosedPositions(ctx context.Context, symbol string, limit int) ([]position.Position, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}
	query := s.db.WithContext(ctx).
		Where("status = ?", string(position.StatusClosed)).
		Order("closed_at DESC").
		Limit(limit)
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	var models []positionModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return positionsFromModels(models)
}

// ListClosedSince returns positions closed at or after since, oldest close first.
func (s *GormStore) ListClosedSince(ctx context.Context, since time.Time) ([]position.Position, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var models []positionModel
	err := s.db.WithContext(ctx).
		Where("status = ? AND closed_at >= ?", string(position.StatusClosed), timeToMillis(since)).
		Order("closed_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return positionsFromModels(models)
}

// --------------------------- Event journal ------------------------------

// HandleEvents journals each event and upserts the position snapshot it carries, in one
// transaction. Replayed event IDs are ignored.
func (s *GormStore) HandleEvents(ctx context.Context, events []engine.Event) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if len(events) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ev := range events {
			em, err := newTickEventModel(ev)
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&em).Error; err != nil {
				return fmt.Errorf("journal %s %s: %w", ev.Kind, ev.Symbol, err)
			}
			if ev.Position == nil {
				continue
			}
			pm, err := newPositionModel(*ev.Position, now)
			if err != nil {
				return err
			}
			if err := upsertPosition(tx, &pm); err != nil {
				return fmt.Errorf("save position %s: %w", ev.Symbol, err)
			}
		}
		return nil
	})
}

// LoadEvents returns journaled events created after since, oldest first.
func (s *GormStore) LoadEvents(ctx context.Context, since time.Time, limit int) ([]EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	if limit <= 0 {
		limit = 1000
	}
	query := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Limit(limit)
	if !since.IsZero() {
		query = query.Where("created_at > ?", since.UnixMilli())
	}
	var models []tickEventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]EventRecord, 0, len(models))
	for _, m := range models {
		out = append(out, EventRecord{
			ID:         m.EventID,
			Kind:       m.Kind,
			PositionID: m.PositionID,
			Symbol:     m.Symbol,
			Price:      m.Price,
			PnLPercent: m.PnLPercent,
			Payload:    json.RawMessage(m.Payload),
			CreatedAt:  millisToTime(m.CreatedAtUnix),
		})
	}
	return out, nil
}

// --------------------------- Model Helpers ------------------------------

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newPositionModel(p position.Position, now time.Time) (positionModel, error) {
	targets, err := json.Marshal(p.PartialTargets)
	if err != nil {
		return positionModel{}, fmt.Errorf("encode partial targets: %w", err)
	}
	dec, err := json.Marshal(p.Decision)
	if err != nil {
		return positionModel{}, fmt.Errorf("encode decision: %w", err)
	}
	return positionModel{
		ID:               p.ID,
		Symbol:           p.Symbol,
		Side:             string(p.Side),
		Status:           string(p.Status),
		EntryPrice:       p.EntryPrice,
		StopLoss:         p.StopLoss,
		TakeProfit:       p.TakeProfit,
		ATR:              p.ATR,
		SizeUnits:        p.SizeUnits,
		PartialTargets:   datatypes.JSON(targets),
		Decision:         datatypes.JSON(dec),
		LastAlertPrice:   p.LastAlertPrice,
		StopWarningsSent: p.StopWarningsSent,
		CloseReason:      string(p.CloseReason),
		PnLPercent:       p.PnLPercent,
		LastPrice:        p.LastPrice,
		ExitPrice:        p.ExitPrice,
		OpenedAtUnix:     timeToMillis(p.OpenedAt),
		ClosedAtUnix:     timeToMillis(p.ClosedAt),
		UpdatedAtUnix:    now.UnixMilli(),
	}, nil
}

func positionFromModel(m positionModel) (position.Position, error) {
	p := position.Position{
		ID:               m.ID,
		Symbol:           m.Symbol,
		Side:             position.Side(m.Side),
		Status:           position.Status(m.Status),
		EntryPrice:       m.EntryPrice,
		StopLoss:         m.StopLoss,
		TakeProfit:       m.TakeProfit,
		ATR:              m.ATR,
		SizeUnits:        m.SizeUnits,
		LastAlertPrice:   m.LastAlertPrice,
		StopWarningsSent: m.StopWarningsSent,
		CloseReason:      position.CloseReason(m.CloseReason),
		PnLPercent:       m.PnLPercent,
		LastPrice:        m.LastPrice,
		ExitPrice:        m.ExitPrice,
		OpenedAt:         millisToTime(m.OpenedAtUnix),
		ClosedAt:         millisToTime(m.ClosedAtUnix),
	}
	if len(m.PartialTargets) > 0 {
		if err := json.Unmarshal(m.PartialTargets, &p.PartialTargets); err != nil {
			return p, fmt.Errorf("decode partial targets of %s: %w", m.ID, err)
		}
	}
	if len(m.Decision) > 0 {
		var d decision.SignalDecision
		if err := json.Unmarshal(m.Decision, &d); err != nil {
			return p, fmt.Errorf("decode decision of %s: %w", m.ID, err)
		}
		p.Decision = d
	}
	return p, nil
}

func positionsFromModels(models []positionModel) ([]position.Position, error) {
	out := make([]position.Position, 0, len(models))
	for _, m := range models {
		p, err := positionFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newTickEventModel(ev engine.Event) (tickEventModel, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return tickEventModel{}, fmt.Errorf("encode event: %w", err)
	}
	m := tickEventModel{
		EventID:       ev.ID,
		Kind:          string(ev.Kind),
		Symbol:        ev.Symbol,
		Price:         ev.Price,
		PnLPercent:    ev.PnLPercent,
		Payload:       datatypes.JSON(payload),
		CreatedAtUnix: ev.At.UnixMilli(),
	}
	if ev.Position != nil {
		m.PositionID = ev.Position.ID
	}
	if m.EventID == "" {
		return m, fmt.Errorf("event id is required")
	}
	return m, nil
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
