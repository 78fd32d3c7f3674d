package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	qcfg "quorum/internal/config"
	"quorum/internal/engine"
	"quorum/internal/gateway/notifier"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/scheduler"
	"quorum/internal/store/gormstore"
	livehttp "quorum/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App owns the engine and every long-running component around it.
type App struct {
	cfg        *qcfg.Config
	configPath string

	engine   *engine.Engine
	source   market.Source
	store    *gormstore.GormStore
	notifier *notifier.EventNotifier
	liveHTTP *livehttp.Server
	ticker   *scheduler.IntervalScheduler
	daily    *scheduler.DailyJob

	Summary *StartupSummary
}

// NewApp builds the application from cfg without starting it.
func NewApp(cfg *qcfg.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg, opts)
}

// Run starts the tick loop, the daily reset, the notifier and the HTTP surface, and blocks
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)

	a.daily.Start()
	defer a.daily.Stop()
	logger.Infof("daily reset scheduled, next at %s", a.daily.Next().Format(time.RFC3339))

	if a.notifier != nil {
		group.Go(func() error { return a.notifier.Run(ctx) })
	}
	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}
	if a.configPath != "" {
		if err := qcfg.Watch(a.configPath, qcfg.ApplyRuntime); err != nil {
			logger.Warnf("config watch disabled: %v", err)
		}
	}

	group.Go(func() error {
		err := a.ticker.Run(ctx, a.tick)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return group.Wait()
}

func (a *App) tick(ctx context.Context, at time.Time) {
	events, err := a.engine.EvaluateTick(ctx, at)
	switch {
	case errors.Is(err, engine.ErrTickInProgress):
		logger.Warnf("tick at %s skipped: previous tick still running", at.Format(time.RFC3339))
	case err != nil:
		logger.Errorf("tick at %s failed: %v", at.Format(time.RFC3339), err)
	default:
		logger.Debugf("tick at %s done, %d events", at.Format(time.RFC3339), len(events))
	}
}

func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Close releases the store and exchange client. Safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("close store: %v", err)
		}
		a.store = nil
	}
	if c, ok := a.source.(interface{ Close() }); ok {
		c.Close()
	}
}
