package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PrunerOptions configures periodic pruning of low-value memories.
type PrunerOptions struct {
	// Schedule is a cron expression ("0 3 * * *", "@daily") or a duration ("6h").
	Schedule        string
	MaxAge          time.Duration
	ImportanceBelow float64
}

// DefaultPrunerOptions prunes daily, removing items older than 30 days with
// importance below 0.5.
func DefaultPrunerOptions() PrunerOptions {
	return PrunerOptions{Schedule: "@daily", MaxAge: 30 * 24 * time.Hour, ImportanceBelow: 0.5}
}

// Pruner runs Store.Prune on a schedule.
type Pruner struct {
	store  *Store
	opts   PrunerOptions
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewPruner validates the schedule and prepares a pruner for store.
func NewPruner(store *Store, opts PrunerOptions, logger *slog.Logger) (*Pruner, error) {
	d := DefaultPrunerOptions()
	if opts.Schedule == "" {
		opts.Schedule = d.Schedule
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = d.MaxAge
	}
	if opts.ImportanceBelow <= 0 {
		opts.ImportanceBelow = d.ImportanceBelow
	}
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := parseSchedule(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("pruner: invalid schedule %q: %w", opts.Schedule, err)
	}

	p := &Pruner{store: store, opts: opts, cron: cron.New(), logger: logger}
	p.cron.Schedule(sched, cron.FuncJob(p.tick))
	return p, nil
}

func (p *Pruner) tick() {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := p.RunOnce(ctx)
	if err != nil {
		p.logger.Warn("memory prune failed", "error", err, "duration", time.Since(start))
		return
	}
	p.logger.Info("memory pruned", "removed", n, "duration", time.Since(start))
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	return p.store.Prune(ctx, p.opts.MaxAge, p.opts.ImportanceBelow)
}

// Start begins the schedule. Idempotent.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron.Start()
	p.started = true
	p.logger.Info("memory pruner started", "schedule", p.opts.Schedule)
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.ctx = nil
	p.started = false
	p.mu.Unlock()

	<-p.cron.Stop().Done()
}

// parseSchedule accepts a cron expression or descriptor first, then a
// positive duration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a cron expression or duration")
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}
	return every(d), nil
}

// every fires at a fixed interval, sub-second included.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }
