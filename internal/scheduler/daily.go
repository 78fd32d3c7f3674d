package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"quorum/internal/logger"
)

// DailyJob fires fn at midnight in loc. The cron itself runs in loc, so the expression carries
// no zone prefix.
type DailyJob struct {
	cron *cron.Cron
	expr string
	loc  *time.Location
}

func NewDailyJob(loc *time.Location, fn func(now time.Time)) (*DailyJob, error) {
	if loc == nil {
		loc = time.UTC
	}
	if fn == nil {
		return nil, fmt.Errorf("daily job: fn is nil")
	}
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))
	const spec = "0 0 0 * * *"
	if _, err := c.AddFunc(spec, func() {
		now := time.Now().In(loc)
		logger.Infof("scheduler: daily job fired at %s", now.Format(time.RFC3339))
		fn(now)
	}); err != nil {
		return nil, fmt.Errorf("register daily job %q: %w", spec, err)
	}
	return &DailyJob{cron: c, expr: spec, loc: loc}, nil
}

func (j *DailyJob) Spec() string { return j.expr }

// Next is the next scheduled fire time.
func (j *DailyJob) Next() time.Time {
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now().In(j.loc))
}

func (j *DailyJob) Start() {
	j.cron.Start()
	logger.Infof("scheduler: daily job started spec=%q", j.expr)
}

// Stop waits for a running invocation to finish.
func (j *DailyJob) Stop() {
	<-j.cron.Stop().Done()
}
