// Package scheduler fires the daily birthday scan at a fixed civil
// time-of-day, independent of the host timezone.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// Job is the scheduled work. It receives the context passed to Start.
type Job func(ctx context.Context)

// Scheduler runs Job on a standard five-field cron spec evaluated in a
// fixed location. Missed triggers are not caught up.
type Scheduler struct {
	spec     string
	loc      *time.Location
	schedule cron.Schedule
	job      Job
	cron     *cron.Cron
	ctx      context.Context
}

// New validates spec and prepares a stopped scheduler.
func New(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", config.ErrSchedule, spec, err)
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler().WithAttrs([]slog.Attr{
		slog.String(config.LogKeyComponent, config.CompScheduler),
	}), slog.LevelDebug))

	s := &Scheduler{
		spec:     spec,
		loc:      loc,
		schedule: schedule,
		job:      job,
		ctx:      context.Background(),
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

// Start begins firing. ctx is handed to every run of the job.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	slog.InfoContext(ctx, config.MsgSchedulerStart,
		config.LogKeyComponent, config.CompScheduler,
		config.LogKeySchedule, s.spec,
		config.LogKeyZone, s.loc.String(),
		config.LogKeyNext, s.Next(time.Now()).Format(time.RFC3339),
	)
}

// Stop prevents further runs and waits for a running job until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info(config.MsgSchedulerStop, config.LogKeyComponent, config.CompScheduler)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the first trigger strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

func (s *Scheduler) fire() {
	slog.InfoContext(s.ctx, config.MsgSchedulerFire,
		config.LogKeyComponent, config.CompScheduler,
		config.LogKeyNext, s.Next(time.Now()).Format(time.RFC3339),
	)
	s.job(s.ctx)
}
