package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/analysis/indicator"
	"quorum/internal/decision"
	"quorum/internal/engine"
	"quorum/internal/position"
)

var opened = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "nested", "quorum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openPosition(t *testing.T, mgr *position.Manager, symbol string, at time.Time) position.Position {
	t.Helper()
	d := decision.SignalDecision{
		Direction:  decision.DirectionLong,
		Strength:   3,
		Confidence: 75,
		Buys:       3,
		Accepted:   true,
		Contributing: []indicator.Reading{
			{Name: "rsi", Value: 28.5, Signal: indicator.SignalBuy, Weight: 1},
		},
	}
	pos, err := mgr.Open(symbol, d, 100, 2, at)
	require.NoError(t, err)
	return pos
}

func TestNewGormStoreRequiresPath(t *testing.T) {
	_, err := NewGormStore("  ")
	assert.Error(t, err)
}

func TestSavePositionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mgr, err := position.NewManager(position.DefaultConfig())
	require.NoError(t, err)

	pos := openPosition(t, mgr, "BTC/USDT", opened)
	require.NoError(t, s.SavePosition(ctx, pos))

	loaded, err := s.LoadOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Equal(t, pos.ID, got.ID)
	assert.Equal(t, position.SideLong, got.Side)
	assert.Equal(t, position.StatusOpen, got.Status)
	assert.InDelta(t, 96, got.StopLoss, 1e-9)
	assert.InDelta(t, 104, got.TakeProfit, 1e-9)
	assert.True(t, got.OpenedAt.Equal(opened))
	require.Len(t, got.PartialTargets, 2)
	assert.InDelta(t, 102, got.PartialTargets[0].Price, 1e-9)
	assert.Equal(t, decision.DirectionLong, got.Decision.Direction)
	require.Len(t, got.Decision.Contributing, 1)
	assert.Equal(t, "rsi", got.Decision.Contributing[0].Name)

	// the restored slice must be accepted by a fresh manager
	fresh, err := position.NewManager(position.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, fresh.Restore(loaded))
	assert.Equal(t, 1, fresh.Count())
}

func TestSavePositionUpsertsOnClose(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mgr, err := position.NewManager(position.DefaultConfig())
	require.NoError(t, err)

	pos := openPosition(t, mgr, "ETH/USDT", opened)
	require.NoError(t, s.SavePosition(ctx, pos))

	res := mgr.Close("ETH/USDT", position.ReasonManual, 101, opened.Add(time.Hour))
	require.Equal(t, position.CloseClosed, res.Status)
	require.NoError(t, s.SavePosition(ctx, res.Position))

	open, err := s.LoadOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, err := s.ListClosedPositions(ctx, "ETH/USDT", 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, pos.ID, closed[0].ID)
	assert.Equal(t, position.ReasonManual, closed[0].CloseReason)
	assert.InDelta(t, 1.0, closed[0].PnLPercent, 1e-9)

	other, err := s.ListClosedPositions(ctx, "BTC/USDT", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestListClosedSince(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mgr, err := position.NewManager(position.DefaultConfig())
	require.NoError(t, err)

	closeAt := map[string]time.Time{
		"AAA/USDT": opened.Add(-20 * time.Hour),
		"BBB/USDT": opened.Add(2 * time.Hour),
		"CCC/USDT": opened.Add(time.Hour),
	}
	for _, sym := range []string{"AAA/USDT", "BBB/USDT", "CCC/USDT"} {
		openPosition(t, mgr, sym, opened.Add(-24*time.Hour))
		res := mgr.Close(sym, position.ReasonStopLoss, 97, closeAt[sym])
		require.Equal(t, position.CloseClosed, res.Status)
		require.NoError(t, s.SavePosition(ctx, res.Position))
	}
	held := openPosition(t, mgr, "DDD/USDT", opened)
	require.NoError(t, s.SavePosition(ctx, held))

	since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	got, err := s.ListClosedSince(ctx, since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "CCC/USDT", got[0].Symbol)
	assert.Equal(t, "BBB/USDT", got[1].Symbol)
	assert.True(t, got[0].ClosedAt.Equal(closeAt["CCC/USDT"]))
}

func TestSavePositionRequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.SavePosition(context.Background(), position.Position{Symbol: "BTC/USDT"})
	assert.Error(t, err)
}

func TestHandleEventsJournalsAndUpserts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mgr, err := position.NewManager(position.DefaultConfig())
	require.NoError(t, err)

	pos := openPosition(t, mgr, "BTC/USDT", opened)
	openEv := engine.Event{
		ID: "ev-1", Kind: engine.EventOpened, Symbol: "BTC/USDT", At: opened,
		Price: 100, Side: pos.Side, Position: &pos,
	}
	require.NoError(t, s.HandleEvents(ctx, []engine.Event{openEv}))

	res := mgr.Close("BTC/USDT", position.ReasonStopLoss, 95.9, opened.Add(2*time.Hour))
	closedPos := res.Position
	closeEv := engine.Event{
		ID: "ev-2", Kind: engine.EventClosed, Symbol: "BTC/USDT", At: closedPos.ClosedAt,
		Price: 95.9, Reason: position.ReasonStopLoss, PnLPercent: closedPos.PnLPercent, Position: &closedPos,
	}
	// ev-1 is replayed and must not be duplicated
	require.NoError(t, s.HandleEvents(ctx, []engine.Event{openEv, closeEv}))

	events, err := s.LoadEvents(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "OPENED", events[0].Kind)
	assert.Equal(t, "CLOSED", events[1].Kind)
	assert.Equal(t, pos.ID, events[1].PositionID)
	assert.InDelta(t, -4.1, events[1].PnLPercent, 1e-9)
	assert.Contains(t, string(events[1].Payload), `"reason":"STOP_LOSS"`)

	later, err := s.LoadEvents(ctx, opened, 0)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "ev-2", later[0].ID)

	open, err := s.LoadOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestHandleEventsRejectsMissingID(t *testing.T) {
	s := newTestStore(t)
	err := s.HandleEvents(context.Background(), []engine.Event{{Kind: engine.EventPriceAlert, Symbol: "BTC/USDT", At: opened}})
	assert.Error(t, err)
	events, loadErr := s.LoadEvents(context.Background(), time.Time{}, 0)
	require.NoError(t, loadErr)
	assert.Empty(t, events)
}

func TestNilStore(t *testing.T) {
	var s *GormStore
	assert.NoError(t, s.Close())
	_, err := s.LoadOpenPositions(context.Background())
	assert.ErrorIs(t, err, errNotInitialized)
}
