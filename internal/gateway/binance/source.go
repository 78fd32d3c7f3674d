// Package binance adapts the USDⓈ-M futures REST API to market.Source.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"quorum/internal/logger"
	"quorum/internal/market"
	symbolpkg "quorum/internal/pkg/symbol"
	"quorum/internal/scheduler"
)

const maxHistoryLimit = 1500

type Source struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
	now     func() time.Time

	requests atomic.Int64
	failures atomic.Int64
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(final.RequestsPerSecond), final.Burst),
		now:     time.Now,
	}, nil
}

// FetchBars returns closed klines, oldest first. The in-progress kline is dropped.
func (s *Source) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	exch := symbolpkg.ToExchange(symbol)
	if exch == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	interval, ok := scheduler.ParseTimeframe(timeframe)
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	// one extra so dropping the open kline still leaves limit bars
	kls, err := s.client.NewKlinesService().Symbol(exch).Interval(timeframe).Limit(min(limit+1, maxHistoryLimit)).Do(ctx)
	if err != nil {
		s.failures.Add(1)
		return nil, fmt.Errorf("binance klines %s %s: %w", exch, timeframe, err)
	}
	out := make([]market.Bar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Bar{
			OpenTime: time.UnixMilli(kl.OpenTime).UTC(),
			Open:     parseFloat(kl.Open),
			High:     parseFloat(kl.High),
			Low:      parseFloat(kl.Low),
			Close:    parseFloat(kl.Close),
			Volume:   parseFloat(kl.Volume),
		})
	}
	out = scheduler.DropUnclosedBar(out, interval, s.now(), scheduler.DefaultBarGrace)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// FetchCurrentPrice returns the last traded price.
func (s *Source) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	exch := symbolpkg.ToExchange(symbol)
	if exch == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	prices, err := s.client.NewListPricesService().Symbol(exch).Do(ctx)
	if err != nil {
		s.failures.Add(1)
		return 0, fmt.Errorf("binance price %s: %w", exch, err)
	}
	for _, p := range prices {
		if p != nil && strings.EqualFold(p.Symbol, exch) {
			if v := parseFloat(p.Price); v > 0 {
				return v, nil
			}
		}
	}
	return 0, fmt.Errorf("binance price %s: not in response", exch)
}

func (s *Source) wait(ctx context.Context) error {
	s.requests.Add(1)
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// Stats reports request and failure counters since start.
func (s *Source) Stats() (requests, failures int64) {
	return s.requests.Load(), s.failures.Load()
}

func (s *Source) Close() {
	req, fail := s.Stats()
	logger.Infof("binance: source closed requests=%d failures=%d", req, fail)
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
