package scheduler

import (
	"strconv"
	"strings"
	"time"

	"quorum/internal/market"
)

const DefaultBarGrace = 10 * time.Second

// ParseTimeframe converts 15m, 1h, 1d or 1w into a duration.
func ParseTimeframe(tf string) (time.Duration, bool) {
	tf = strings.ToLower(strings.TrimSpace(tf))
	if len(tf) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := map[byte]time.Duration{'m': time.Minute, 'h': time.Hour, 'd': 24 * time.Hour, 'w': 7 * 24 * time.Hour}
	d, ok := unit[tf[len(tf)-1]]
	if !ok {
		return 0, false
	}
	return time.Duration(n) * d, true
}

// DropUnclosedBar removes the last bar when it has not closed yet at now (plus grace).
// Exchanges return the in-progress candle as the last element.
func DropUnclosedBar(bars []market.Bar, interval time.Duration, now time.Time, grace time.Duration) []market.Bar {
	if len(bars) == 0 || interval <= 0 {
		return bars
	}
	if grace < 0 {
		grace = 0
	}
	last := bars[len(bars)-1]
	if last.OpenTime.IsZero() {
		return bars
	}
	if now.Before(last.OpenTime.Add(interval + grace)) {
		return bars[:len(bars)-1]
	}
	return bars
}
