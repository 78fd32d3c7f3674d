package scheduler

import (
	"context"
	"time"

	"quorum/internal/logger"
)

// IntervalScheduler runs a task on interval boundaries (plus Offset). The task runs on the
// scheduler goroutine, so runs never overlap; boundaries missed by a slow run are skipped.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func NewIntervalScheduler(name string, interval, offset time.Duration) *IntervalScheduler {
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
	}
}

// Run blocks until ctx is done.
func (s *IntervalScheduler) Run(ctx context.Context, task func(ctx context.Context, at time.Time)) error {
	if task == nil {
		logger.Warnf("scheduler %s: task is nil, exit", s.Name)
		return nil
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler %s: invalid interval=%s, exit", s.Name, s.Interval)
		return nil
	}
	if s.Offset < 0 || s.Offset >= s.Interval {
		logger.Warnf("scheduler %s: offset=%s outside [0,%s), clamp to 0", s.Name, s.Offset, s.Interval)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn()
	logger.Infof("scheduler %s: started interval=%s offset=%s run_immediately=%v",
		s.Name, s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		task(ctx, startAt)
	}
	for {
		now := s.nowFn()
		wakeAt, wait := s.nextTimes(now)
		logger.Debugf("scheduler %s: next run at %s (in %s) uptime=%s", s.Name,
			wakeAt.Format(time.RFC3339), wait.Truncate(time.Millisecond), now.Sub(startAt).Truncate(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("scheduler %s: ctx done, exit", s.Name)
			return ctx.Err()
		case <-timer.C:
		}
		began := s.nowFn()
		task(ctx, began)
		if took := s.nowFn().Sub(began); took > s.Interval {
			logger.Warnf("scheduler %s: run took %s, longer than interval %s", s.Name, took, s.Interval)
		}
	}
}

// nextTimes returns the next boundary-plus-offset strictly after now.
func (s *IntervalScheduler) nextTimes(now time.Time) (wakeAt time.Time, wait time.Duration) {
	base := now.Truncate(s.Interval)
	wakeAt = base.Add(s.Offset)
	if !wakeAt.After(now) {
		wakeAt = base.Add(s.Interval).Add(s.Offset)
	}
	return wakeAt, wakeAt.Sub(now)
}
