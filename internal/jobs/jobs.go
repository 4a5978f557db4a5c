// Package jobs drives the periodic background work: the task poller, the
// reminder reconciliation sweep and the nightly cleanup.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/pathakanu/mealremind/internal/logging"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Poller runs due tasks and purges old ones.
type Poller interface {
	RunDue(ctx context.Context) (int, error)
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Sweeper repairs reminders and removes redundant tasks.
type Sweeper interface {
	RetryUnscheduled(ctx context.Context) (int, error)
	CleanupAll(ctx context.Context) (int, error)
}

// Config holds the schedules of the runner.
type Config struct {
	PollInterval    time.Duration
	SweepSchedule   string
	CleanupSchedule string
	Retention       time.Duration
	Location        *time.Location
	// JobTimeout bounds a single run of any job.
	JobTimeout time.Duration
}

// Runner owns the cron scheduler.
type Runner struct {
	cron    *cron.Cron
	poller  Poller
	sweeper Sweeper
	cfg     Config
	log     zerolog.Logger
}

// New registers every job. Jobs that are still running when their next tick
// arrives are skipped.
func New(cfg Config, poller Poller, sweeper Sweeper, log zerolog.Logger) (*Runner, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	cronLog := logging.CronLogger{Log: log}
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	r := &Runner{cron: c, poller: poller, sweeper: sweeper, cfg: cfg, log: log}

	jobs := []struct {
		name string
		spec string
		fn   func(context.Context)
	}{
		{name: "poll", spec: "@every " + cfg.PollInterval.String(), fn: r.poll},
		{name: "sweep", spec: cfg.SweepSchedule, fn: r.sweep},
		{name: "cleanup", spec: cfg.CleanupSchedule, fn: r.cleanup},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		fn := job.fn
		if _, err := c.AddFunc(job.spec, func() { r.run(fn) }); err != nil {
			return nil, fmt.Errorf("schedule %s job %q: %w", job.name, job.spec, err)
		}
	}
	return r, nil
}

// Start begins running jobs in the background.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop stops scheduling and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Runner) run(fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.JobTimeout)
	defer cancel()
	fn(ctx)
}

func (r *Runner) poll(ctx context.Context) {
	if _, err := r.poller.RunDue(ctx); err != nil {
		r.log.Error().Err(err).Msg("poll tasks")
	}
}

func (r *Runner) sweep(ctx context.Context) {
	n, err := r.sweeper.RetryUnscheduled(ctx)
	if err != nil {
		r.log.Warn().Err(err).Int("repaired", n).Msg("reminder sweep")
	}
}

func (r *Runner) cleanup(ctx context.Context) {
	removed, err := r.sweeper.CleanupAll(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("redundant task cleanup")
	}
	purged, err := r.poller.Purge(ctx, r.cfg.Retention)
	if err != nil {
		r.log.Warn().Err(err).Msg("purge tasks")
	}
	r.log.Info().Int("redundant_removed", removed).Int64("purged", purged).Msg("cleanup done")
}
