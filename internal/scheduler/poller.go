package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PollerConfig tunes a Poller.
type PollerConfig struct {
	// LockLifetime is how long a claimed task may run before another poller
	// is allowed to pick it up again.
	LockLifetime time.Duration
	// BatchSize caps the number of tasks fetched per poll.
	BatchSize int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Poller executes due tasks from a Store. Several pollers, in one process or
// many, may share a store; the conditional claim serializes each fire.
type Poller struct {
	store *Store
	cfg   PollerConfig
	log   zerolog.Logger
	now   func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewPoller returns a Poller without handlers.
func NewPoller(store *Store, cfg PollerConfig, log zerolog.Logger) *Poller {
	if cfg.LockLifetime <= 0 {
		cfg.LockLifetime = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		store:    store,
		cfg:      cfg,
		log:      log,
		now:      now,
		handlers: make(map[string]Handler),
	}
}

// Define registers the handler for a task name, replacing any previous one.
func (p *Poller) Define(name string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = h
}

func (p *Poller) handler(name string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[name]
	return h, ok
}

func (p *Poller) names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunDue performs one poll: it claims and runs every due task it can and
// returns how many ran. Tasks won by another poller are skipped.
func (p *Poller) RunDue(ctx context.Context) (int, error) {
	names := p.names()
	if len(names) == 0 {
		return 0, nil
	}

	now := p.now().UTC()
	lockBefore := now.Add(-p.cfg.LockLifetime)
	tasks, err := p.store.due(ctx, names, now, lockBefore, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		claimed, err := p.store.claim(ctx, task.ID, now, lockBefore)
		if err != nil {
			p.log.Error().Err(err).Str("task_id", task.ID).Msg("claim failed")
			continue
		}
		if !claimed {
			continue
		}

		start := time.Now()
		runErr := p.run(ctx, task)
		if runErr != nil {
			p.log.Warn().Err(runErr).Str("task", task.Name).Str("task_id", task.ID).Msg("task failed")
		} else {
			p.log.Debug().Str("task", task.Name).Str("task_id", task.ID).Dur("took", time.Since(start)).Msg("task done")
		}
		if err := p.store.finish(ctx, task.ID, p.now().UTC(), runErr); err != nil {
			p.log.Error().Err(err).Str("task_id", task.ID).Msg("record task result")
		}
		ran++
	}
	return ran, nil
}

func (p *Poller) run(ctx context.Context, task Task) (err error) {
	h, ok := p.handler(task.Name)
	if !ok {
		return fmt.Errorf("no handler defined for %q", task.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, task)
}

// Purge removes fired tasks older than retention.
func (p *Poller) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return p.store.Purge(ctx, p.now().Add(-retention))
}
