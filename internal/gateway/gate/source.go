package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"quorum/internal/logger"
	"quorum/internal/market"
	symbolpkg "quorum/internal/pkg/symbol"
	"quorum/internal/scheduler"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"
	"golang.org/x/time/rate"
)

const (
	gateSettle          = "usdt"
	gateMaxHistoryLimit = 2000
)

// Source reads USDT-settled perpetual candles and tickers from Gate.io.
type Source struct {
	cfg     Config
	rest    *gateapi.APIClient
	limiter *rate.Limiter
	now     func() time.Time

	requests atomic.Int64
	failures atomic.Int64
}

var _ market.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	restClient, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &Source{
		cfg:     final,
		rest:    restClient,
		limiter: rate.NewLimiter(rate.Limit(final.RequestsPerSecond), final.Burst),
		now:     time.Now,
	}, nil
}

func newRESTClient(cfg Config) (*gateapi.APIClient, error) {
	conf := gateapi.NewConfiguration()
	conf.BasePath = cfg.RESTBaseURL

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gate REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	conf.HTTPClient = httpClient
	return gateapi.NewAPIClient(conf), nil
}

// Contract maps any accepted symbol spelling to a Gate futures contract, e.g. BTC_USDT.
func Contract(symbol string) string {
	return symbolpkg.Parse(symbol).Join("_")
}

// FetchBars returns closed candles, oldest first.
func (s *Source) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	limit = min(limit, gateMaxHistoryLimit)
	contract := Contract(symbol)
	if contract == "" {
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

	opts := &gateapi.ListFuturesCandlesticksOpts{
		Limit:    optional.NewInt32(int32(min(limit+1, gateMaxHistoryLimit))),
		Interval: optional.NewString(timeframe),
	}
	kls, _, err := s.rest.FuturesApi.ListFuturesCandlesticks(ctx, gateSettle, contract, opts)
	if err != nil {
		s.failures.Add(1)
		logger.Errorf("[gate] fetch candles failed %s %s limit=%d: %v", contract, timeframe, limit, err)
		return nil, fmt.Errorf("gate candles %s %s: %w", contract, timeframe, err)
	}

	out := make([]market.Bar, 0, len(kls))
	for _, kl := range kls {
		out = append(out, market.Bar{
			OpenTime: time.Unix(int64(kl.T), 0).UTC(),
			Open:     parseFloat(kl.O),
			High:     parseFloat(kl.H),
			Low:      parseFloat(kl.L),
			Close:    parseFloat(kl.C),
			Volume:   parseFloat(kl.Sum),
		})
	}
	out = scheduler.DropUnclosedBar(out, interval, s.now(), scheduler.DefaultBarGrace)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// FetchCurrentPrice returns the contract's last traded price.
func (s *Source) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	contract := Contract(symbol)
	if contract == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	tickers, _, err := s.rest.FuturesApi.ListFuturesTickers(ctx, gateSettle, &gateapi.ListFuturesTickersOpts{
		Contract: optional.NewString(contract),
	})
	if err != nil {
		s.failures.Add(1)
		return 0, fmt.Errorf("gate ticker %s: %w", contract, err)
	}
	for _, t := range tickers {
		if strings.EqualFold(t.Contract, contract) {
			if v := parseFloat(t.Last); v > 0 {
				return v, nil
			}
		}
	}
	return 0, fmt.Errorf("gate ticker %s: not in response", contract)
}

func (s *Source) wait(ctx context.Context) error {
	s.requests.Add(1)
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (s *Source) Stats() (requests, failures int64) {
	return s.requests.Load(), s.failures.Load()
}

func (s *Source) Close() {
	req, fail := s.Stats()
	logger.Infof("gate: source closed requests=%d failures=%d", req, fail)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
