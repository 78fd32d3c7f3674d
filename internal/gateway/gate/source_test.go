package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	src, err := New(Config{RESTBaseURL: srv.URL, HTTPTimeout: 2 * time.Second, RequestsPerSecond: 100})
	require.NoError(t, err)
	return src
}

func candle(open time.Time, o, h, l, c float64) string {
	return fmt.Sprintf(`{"t":%d,"v":120,"o":"%g","h":"%g","l":"%g","c":"%g","sum":"7.25"}`,
		open.Unix(), o, h, l, c)
}

func TestContract(t *testing.T) {
	assert.Equal(t, "BTC_USDT", Contract("btcusdt"))
	assert.Equal(t, "ETH_USDT", Contract("ETH/USDT"))
	assert.Equal(t, "", Contract(""))
}

func TestFetchBarsDropsOpenCandle(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC)
	var gotQuery string
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/futures/usdt/candlesticks"), r.URL.Path)
		gotQuery = r.URL.RawQuery
		rows := []string{
			candle(now.Add(-3*time.Hour).Truncate(time.Hour), 1, 2, 0.5, 1.5),
			candle(now.Add(-2*time.Hour).Truncate(time.Hour), 1.5, 2.5, 1, 2),
			candle(now.Add(-time.Hour).Truncate(time.Hour), 2, 3, 1.5, 2.5),
			candle(now.Truncate(time.Hour), 2.5, 2.6, 2.4, 2.55),
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	})
	src.now = func() time.Time { return now }

	bars, err := src.FetchBars(context.Background(), "btc/usdt", "1h", 2)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "contract=BTC_USDT")
	assert.Contains(t, gotQuery, "limit=3")
	assert.Contains(t, gotQuery, "interval=1h")
	require.Len(t, bars, 2)
	assert.Equal(t, 2.0, bars[0].Close)
	assert.Equal(t, 2.5, bars[1].Close)
	assert.Equal(t, 3.0, bars[1].High)
	assert.Equal(t, 7.25, bars[1].Volume)
	assert.Equal(t, now.Add(-time.Hour).Truncate(time.Hour), bars[1].OpenTime)
}

func TestFetchBarsRejectsBadInput(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := src.FetchBars(context.Background(), "BTC/USDT", "hourly", 10)
	assert.Error(t, err)
	_, err = src.FetchBars(context.Background(), "", "1h", 10)
	assert.Error(t, err)
}

func TestFetchCurrentPrice(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/futures/usdt/tickers"), r.URL.Path)
		assert.Equal(t, "ETH_USDT", r.URL.Query().Get("contract"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"contract":"ETH_USDT","last":"3120.55","mark_price":"3120.1"}]`)
	})
	price, err := src.FetchCurrentPrice(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, 3120.55, price)
	req, fail := src.Stats()
	assert.Equal(t, int64(1), req)
	assert.Zero(t, fail)
}

func TestFetchCurrentPriceMissingContract(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	})
	_, err := src.FetchCurrentPrice(context.Background(), "SOL/USDT")
	assert.ErrorContains(t, err, "SOL_USDT")
}

func TestFetchCurrentPriceAPIError(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"label":"CONTRACT_NOT_FOUND","message":"contract not found"}`)
	})
	_, err := src.FetchCurrentPrice(context.Background(), "NOPE/USDT")
	assert.ErrorContains(t, err, "NOPE_USDT")
	_, fail := src.Stats()
	assert.Equal(t, int64(1), fail)
}
