// Package scheduler wraps robfig/cron/v3 for the node agent's
// calendar-based sweep (§4.10's 24h/03:00 retention pass), as opposed to
// the fixed-interval reconciler ticks (60s and 6h) that use a plain
// time.Ticker. robfig/cron
// is part of this corpus's stack for exactly this class of job (see
// go.mod's manifest entry contributed alongside nickheyer-discopanel);
// §11.3 records why the two cadences use two different primitives
// instead of a single one.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a small set of named cron jobs and logs every run.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), logger: logger}
}

// AddJob registers fn to run on spec (standard 5-field cron syntax, eg
// "0 3 * * *" for daily at 03:00 local time). ctx is passed to fn so a
// job started just before shutdown can observe cancellation.
func (s *Scheduler) AddJob(ctx context.Context, name, spec string, fn func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("scheduled job starting", "job", name)
		fn(ctx)
		s.logger.Info("scheduled job finished", "job", name)
	})
	return err
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for any in-flight job to finish, then stops the scheduler.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
