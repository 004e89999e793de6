package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled run. Its error is logged and the schedule continues.
type Job func(ctx context.Context) error

// Parse accepts a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 3 * * 1" for
// Mondays at 03:00.
func Parse(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule '%s': %w", spec, err)
	}
	return sched, nil
}

type runner struct {
	sched  cron.Schedule
	loc    *time.Location
	job    Job
	logger *zap.Logger
	now    func() time.Time
	after  func(d time.Duration) (<-chan time.Time, func())
}

// Start runs job at every activation of spec until ctx is done. Runs never
// overlap: the next activation is computed after the previous run returns.
func Start(ctx context.Context, spec string, loc *time.Location, job Job, logger *zap.Logger) error {
	sched, err := Parse(spec)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &runner{
		sched:  sched,
		loc:    loc,
		job:    job,
		logger: logger,
		now:    time.Now,
		after:  timerAfter,
	}
	logger.Info("categorization scheduled", zap.String("cron", strings.TrimSpace(spec)), zap.String("timezone", loc.String()))
	return r.loop(ctx)
}

func (r *runner) loop(ctx context.Context) error {
	for {
		now := r.now().In(r.loc)
		next := r.sched.Next(now)
		wait := next.Sub(now)
		r.logger.Info("next scheduled run",
			zap.Time("at", next),
			zap.Duration("in", wait.Round(time.Second)))

		fire, stop := r.after(wait)
		select {
		case <-ctx.Done():
			stop()
			return ctx.Err()
		case <-fire:
		}

		started := r.now()
		if err := r.job(ctx); err != nil {
			r.logger.Error("scheduled run failed", zap.Error(err))
		} else {
			r.logger.Info("scheduled run complete", zap.Duration("elapsed", r.now().Sub(started)))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func timerAfter(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
