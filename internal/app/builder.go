package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quorum/internal/analysis/indicator"
	qcfg "quorum/internal/config"
	"quorum/internal/engine"
	"quorum/internal/gateway/binance"
	"quorum/internal/gateway/gate"
	"quorum/internal/gateway/notifier"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/pkg/symbol"
	"quorum/internal/position"
	"quorum/internal/risk"
	"quorum/internal/scheduler"
	"quorum/internal/stats"
	"quorum/internal/store/gormstore"
	livehttp "quorum/internal/transport/http/live"
)

const (
	notifyQueueSize = 64
	hubBufferSize   = 64
)

// AppBuilder assembles an App from config. Each external dependency is built through a
// replaceable function so tests can swap them.
type AppBuilder struct {
	cfg        *qcfg.Config
	configPath string
	now        func() time.Time

	sourceFn   func(qcfg.MarketConfig) (market.Source, error)
	storeFn    func(qcfg.StoreConfig) (*gormstore.GormStore, error)
	notifierFn func(qcfg.NotifyConfig) (notifier.TextNotifier, error)
	liveHTTPFn func(qcfg.AppConfig, livehttp.LiveEngine, livehttp.History, *livehttp.Hub) (*livehttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSource replaces the exchange client.
func WithSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(qcfg.MarketConfig) (market.Source, error) { return src, nil }
	}
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func(qcfg.NotifyConfig) (notifier.TextNotifier, error) { return n, nil }
	}
}

// WithConfigPath enables hot reload of runtime settings from path.
func WithConfigPath(path string) AppBuilderOption {
	return func(b *AppBuilder) { b.configPath = strings.TrimSpace(path) }
}

func WithClock(now func() time.Time) AppBuilderOption {
	return func(b *AppBuilder) {
		if now != nil {
			b.now = now
		}
	}
}

func NewAppBuilder(cfg *qcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		now:        time.Now,
		sourceFn:   buildMarketSource,
		storeFn:    buildStore,
		notifierFn: buildTextNotifier,
		liveHTTPFn: buildLiveHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}
	panel, err := indicator.NewPanel(indicatorSpecs(cfg.Indicators))
	if err != nil {
		return nil, fmt.Errorf("indicator panel: %w", err)
	}
	positions, err := position.NewManager(positionConfig(cfg.Position))
	if err != nil {
		return nil, fmt.Errorf("position manager: %w", err)
	}
	riskCfg, err := riskConfig(cfg.Risk, loc)
	if err != nil {
		return nil, err
	}
	riskGate := risk.NewGate(riskCfg, b.now())

	src, err := b.sourceFn(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("market source: %w", err)
	}
	eng, err := engine.New(engine.Params{
		Config:    engineConfig(cfg.Engine),
		Source:    src,
		Panel:     panel,
		Positions: positions,
		Gate:      riskGate,
		Tracker:   stats.NewTracker(),
		Clock:     b.now,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ engine ready: %d symbols, panel=%v, timeframe=%s",
		len(eng.Symbols()), panel.Names(), cfg.Engine.Timeframe)

	a := &App{cfg: cfg, engine: eng, source: src, configPath: b.configPath}

	if a.store, err = b.storeFn(cfg.Store); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if a.store != nil {
		restored, err := a.store.LoadOpenPositions(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load open positions: %w", err)
		}
		if err := eng.Restore(restored); err != nil {
			a.Close()
			return nil, fmt.Errorf("restore positions: %w", err)
		}
		logger.Infof("✓ restored %d open positions from %s", len(restored), cfg.Store.Path)
		now := b.now().In(loc)
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		closed, err := a.store.ListClosedSince(ctx, dayStart)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load today's closes: %w", err)
		}
		if n := eng.ReplayCloses(closed); n > 0 {
			st := eng.Status().Risk
			logger.Infof("✓ replayed %d closes from today: daily pnl %.2f%% tripped=%v", n, st.DailyPnLPercent, st.Tripped)
		}
		eng.AddSink(a.store)
	}

	text, err := b.notifierFn(cfg.Notify)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("notifier: %w", err)
	}
	if text != nil {
		a.notifier = notifier.NewEventNotifier(text, cfg.Notify.Events, notifyQueueSize)
		eng.AddSink(a.notifier)
	}

	if strings.TrimSpace(cfg.App.HTTPAddr) != "" {
		hub := livehttp.NewHub(hubBufferSize)
		var history livehttp.History
		if a.store != nil {
			history = a.store
		}
		if a.liveHTTP, err = b.liveHTTPFn(cfg.App, eng, history, hub); err != nil {
			a.Close()
			return nil, err
		}
		eng.AddSink(hub)
	}

	a.ticker = scheduler.NewIntervalScheduler("engine", cfg.Engine.TickInterval(), 0)
	a.ticker.RunImmediately = cfg.Engine.RunImmediately
	a.daily, err = scheduler.NewDailyJob(loc, func(now time.Time) {
		if eng.RollDay(now) {
			logger.Infof("daily reset applied for %s", now.Format("2006-01-02"))
		}
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Summary = buildSummary(cfg, panel, a)
	return a, nil
}

func buildMarketSource(cfg qcfg.MarketConfig) (market.Source, error) {
	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	switch cfg.Name {
	case "", "binance":
		return binance.New(binance.Config{
			RESTBaseURL:       cfg.RESTBaseURL,
			HTTPTimeout:       timeout,
			ProxyURL:          cfg.ProxyURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		})
	case "gate":
		return gate.New(gate.Config{
			RESTBaseURL:       cfg.RESTBaseURL,
			HTTPTimeout:       timeout,
			ProxyURL:          cfg.ProxyURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		})
	default:
		return nil, fmt.Errorf("unsupported market %q", cfg.Name)
	}
}

func buildStore(cfg qcfg.StoreConfig) (*gormstore.GormStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return gormstore.NewGormStore(cfg.Path)
}

func buildTextNotifier(cfg qcfg.NotifyConfig) (notifier.TextNotifier, error) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}
	return notifier.NewTelegram(notifier.TelegramConfig{
		BotToken:   cfg.Telegram.BotToken,
		ChatID:     cfg.Telegram.ChatID,
		APIBaseURL: cfg.Telegram.APIBaseURL,
		Timeout:    time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second,
	})
}

func buildLiveHTTPServer(cfg qcfg.AppConfig, eng livehttp.LiveEngine, history livehttp.History, hub *livehttp.Hub) (*livehttp.Server, error) {
	server, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:           cfg.HTTPAddr,
		Engine:         eng,
		History:        history,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("init live http: %w", err)
	}
	logger.Infof("✓ live HTTP on %s", server.Addr())
	return server, nil
}

func indicatorSpecs(items []qcfg.IndicatorConfig) []indicator.Spec {
	if len(items) == 0 {
		return indicator.DefaultSpecs()
	}
	out := make([]indicator.Spec, 0, len(items))
	for _, it := range items {
		out = append(out, indicator.Spec{Name: it.Name, Weight: it.Weight, Params: it.Params})
	}
	return out
}

func positionConfig(c qcfg.PositionConfig) position.Config {
	return position.Config{
		ATRMultiplier:        c.ATRMultiplier,
		TakeProfitMultiplier: c.TakeProfitMultiplier,
		PartialFractions:     append([]float64(nil), c.PartialFractions...),
		StakeUSD:             c.StakeUSD,
		PriceAlertPercent:    c.PriceAlertPct,
		StopWarningFraction:  c.StopWarningFraction,
		MaxStopWarnings:      c.MaxStopWarnings,
		ArchiveLimit:         c.ArchiveLimit,
	}
}

func riskConfig(c qcfg.RiskConfig, loc *time.Location) (risk.Config, error) {
	hours, err := risk.ParseWindow(c.TradingHours.Start, c.TradingHours.End, c.TradingHours.Weekdays, loc)
	if err != nil {
		return risk.Config{}, fmt.Errorf("risk.trading_hours: %w", err)
	}
	return risk.Config{
		MaxConcurrentPositions: c.MaxConcurrentPositions,
		MaxDailyLossPercent:    c.MaxDailyLossPct,
		Location:               loc,
		Hours:                  hours,
		MinATRPercent:          c.MinATRPct,
		MaxATRPercent:          c.MaxATRPct,
		Throttle: risk.ThrottleConfig{
			Enabled:      c.Throttle.Enabled,
			WinRateFloor: c.Throttle.WinRateFloor,
			Probability:  c.Throttle.Probability,
			Seed:         c.Throttle.Seed,
		},
	}, nil
}

func engineConfig(c qcfg.EngineConfig) engine.Config {
	return engine.Config{
		Symbols:          symbol.NormalizeList(c.Symbols),
		Timeframe:        c.Timeframe,
		BarLimit:         c.BarLimit,
		ATRPeriod:        c.ATRPeriod,
		MinAgreement:     c.MinAgreement,
		MinConfidence:    c.MinConfidence,
		MaxParallel:      c.MaxParallel,
		FetchTimeout:     c.FetchTimeout(),
		BreakerThreshold: c.BreakerThreshold,
		BreakerCooldown:  time.Duration(c.BreakerCooldownSeconds) * time.Second,
	}
}
