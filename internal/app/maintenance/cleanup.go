package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cooktodor/notifier/pkg/logger"
)

const (
	defaultRetentionDays     = 90
	defaultRetentionSchedule = "@daily"
	counterPurgeSchedule     = "@hourly"
)

// NotificationPruner hides read notifications created before a cutoff.
type NotificationPruner interface {
	SoftDeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CounterPurger removes rate counters whose window has ended.
type CounterPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner coordinates background maintenance tasks. Today that is enforcing
// the notification retention window, where records are only ever
// soft-deleted, and purging expired shared rate counters.
type Cleaner struct {
	notifications NotificationPruner
	counters      CounterPurger
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger
	retention     int

	retentionSchedule string

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetentionDays adjusts how long read notifications stay visible.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithRetentionSchedule overrides the cron specification for retention enforcement.
func WithRetentionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.retentionSchedule = spec
		}
	}
}

// WithCounterPurger enables the hourly purge of expired rate counters.
func WithCounterPurger(purger CounterPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.counters = purger
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil pruner disables the retention job.
func NewCleaner(notifications NotificationPruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		notifications:     notifications,
		now:               time.Now,
		retention:         defaultRetentionDays,
		retentionSchedule: defaultRetentionSchedule,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if c.notifications == nil && c.counters == nil {
		return nil
	}

	if c.notifications != nil {
		if _, err := c.cron.AddFunc(c.retentionSchedule, func() {
			if _, err := c.pruneNotifications(context.Background()); err != nil {
				c.log.Warn("notification retention failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.counters != nil {
		if _, err := c.cron.AddFunc(counterPurgeSchedule, func() {
			if err := c.purgeCounters(context.Background()); err != nil {
				c.log.Warn("rate counter purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.notifications != nil {
		if _, err := c.pruneNotifications(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if c.counters != nil {
		errs = multierr.Append(errs, c.purgeCounters(ctx))
	}
	return errs
}

// RetentionCutoff returns the creation time before which read notifications are hidden.
func (c *Cleaner) RetentionCutoff() time.Time {
	return c.now().UTC().AddDate(0, 0, -c.retention)
}

// Enabled reports whether the retention job is configured.
func (c *Cleaner) Enabled() bool {
	return c.notifications != nil
}

// Schedule returns the cron specification of the retention job.
func (c *Cleaner) Schedule() string {
	return c.retentionSchedule
}

// LastRun reports when retention last ran and the error it returned, if any.
func (c *Cleaner) LastRun() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, c.lastErr
}

func (c *Cleaner) pruneNotifications(ctx context.Context) (int64, error) {
	cutoff := c.RetentionCutoff()
	removed, err := c.notifications.SoftDeleteReadBefore(ctx, cutoff)

	c.mu.Lock()
	c.lastRun = c.now().UTC()
	c.lastErr = err
	c.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("read notifications pruned", zap.Int64("count", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

func (c *Cleaner) purgeCounters(ctx context.Context) error {
	removed, err := c.counters.PurgeExpired(ctx, c.now())
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Debug("expired rate counters purged", zap.Int64("count", removed))
	}
	return nil
}
