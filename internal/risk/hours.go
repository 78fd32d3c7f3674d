package risk

import (
	"fmt"
	"strings"
	"time"
)

// Window is a daily trading window in a fixed zone. Start > End wraps past midnight.
type Window struct {
	start, end int
	days       map[time.Weekday]bool
	loc        *time.Location
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWindow builds a window from "HH:MM" bounds and optional weekday names ("mon".."sun").
// Empty bounds return a nil window, which always allows trading.
func ParseWindow(start, end string, weekdays []string, loc *time.Location) (*Window, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	s, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("trading_hours.start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("trading_hours.end: %w", err)
	}
	if s == e {
		return nil, fmt.Errorf("trading_hours: start and end are both %s", start)
	}
	w := &Window{start: s, end: e, loc: loc}
	for _, d := range weekdays {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("trading_hours: unknown weekday %q", d)
		}
		if w.days == nil {
			w.days = make(map[time.Weekday]bool)
		}
		w.days[wd] = true
	}
	return w, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the window. A nil window contains everything.
func (w *Window) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	local := t.In(w.loc)
	if len(w.days) > 0 && !w.days[local.Weekday()] {
		return false
	}
	m := local.Hour()*60 + local.Minute()
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	return m >= w.start || m < w.end
}

func (w *Window) String() string {
	if w == nil {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d %s", w.start/60, w.start%60, w.end/60, w.end%60, w.loc)
}
