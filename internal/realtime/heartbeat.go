package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cooktodor/notifier/pkg/logger"
	"github.com/cooktodor/notifier/pkg/metrics"
)

// DefaultHeartbeatInterval is the period between heartbeat probes.
const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat periodically probes every registered stream and evicts the ones
// whose transport rejects the write.
type Heartbeat struct {
	registry *Registry
	cron     *cron.Cron
	interval time.Duration
	log      *zap.Logger
	lastRun  atomic.Int64
}

// HeartbeatOption customises the Heartbeat.
type HeartbeatOption func(*Heartbeat)

// WithHeartbeatInterval overrides the probe period.
func WithHeartbeatInterval(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithHeartbeatCron injects a preconfigured cron instance, primarily for testing.
func WithHeartbeatCron(c *cron.Cron) HeartbeatOption {
	return func(h *Heartbeat) {
		if c != nil {
			h.cron = c
		}
	}
}

// NewHeartbeat constructs a heartbeat scheduler for registry.
func NewHeartbeat(registry *Registry, opts ...HeartbeatOption) *Heartbeat {
	h := &Heartbeat{
		registry: registry,
		interval: DefaultHeartbeatInterval,
		log:      logger.WithModule("heartbeat"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cron == nil {
		h.cron = cron.New(
			cron.WithLogger(cron.DiscardLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
	}
	return h
}

// Start schedules the probe job and launches the scheduler.
func (h *Heartbeat) Start() error {
	if h.registry == nil {
		return errors.New("heartbeat: registry is required")
	}

	spec := fmt.Sprintf("@every %s", h.interval)
	if _, err := h.cron.AddFunc(spec, func() {
		if err := h.RunOnce(); err != nil {
			h.log.Debug("heartbeat evicted streams", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("heartbeat: schedule %q: %w", spec, err)
	}

	h.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done once a running probe finishes.
func (h *Heartbeat) Stop() context.Context {
	if h.cron == nil {
		return context.Background()
	}
	return h.cron.Stop()
}

// Interval reports the configured probe period.
func (h *Heartbeat) Interval() time.Duration {
	return h.interval
}

// LastRun reports when the most recent probe round started. The zero time
// means no round has run yet.
func (h *Heartbeat) LastRun() time.Time {
	nanos := h.lastRun.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// RunOnce probes every registered stream once. Streams are probed concurrently
// so one slow client does not delay the others. Each stream is re-checked
// against the registry right before the write; streams that were closed or
// replaced since the snapshot are skipped. Failed streams are evicted and their
// errors are returned combined.
func (h *Heartbeat) RunOnce() error {
	if h.registry == nil {
		return nil
	}
	h.lastRun.Store(time.Now().UnixNano())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)

	for _, stream := range h.registry.Snapshot() {
		wg.Add(1)
		go func(stream *Stream) {
			defer wg.Done()
			if err := h.probe(stream); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(stream)
	}

	wg.Wait()
	return errs
}

func (h *Heartbeat) probe(stream *Stream) error {
	if !h.registry.IsCurrent(stream) {
		metrics.Heartbeats.WithLabelValues("skipped").Inc()
		return nil
	}

	err := stream.Send(EventHeartbeat, heartbeatMessage)
	switch {
	case err == nil:
		metrics.Heartbeats.WithLabelValues("sent").Inc()
		return nil
	case errors.Is(err, ErrStreamClosed):
		metrics.Heartbeats.WithLabelValues("skipped").Inc()
		return nil
	}

	metrics.Heartbeats.WithLabelValues("failed").Inc()
	h.log.Debug("heartbeat failed, removing stream", zap.String("user_id", stream.UserID()), zap.Error(err))
	h.registry.Evict(stream, err)
	return fmt.Errorf("heartbeat: user %s: %w", stream.UserID(), err)
}
