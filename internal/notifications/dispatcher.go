package notifications

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cooktodor/notifier/internal/realtime"
	"github.com/cooktodor/notifier/pkg/logger"
	"github.com/cooktodor/notifier/pkg/metrics"
)

// Sender pushes named events to users' live streams.
type Sender interface {
	Dispatch(userID, event string, payload any) error
	DispatchToMany(userIDs []string, event string, payload any) error
}

// Dispatcher delivers events through the connection registry. Delivery is best
// effort: users without a stream are skipped and nothing is queued.
type Dispatcher struct {
	registry *realtime.Registry
	log      *zap.Logger
}

// NewDispatcher constructs a dispatcher bound to registry.
func NewDispatcher(registry *realtime.Registry) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("notifications: registry is required")
	}
	return &Dispatcher{
		registry: registry,
		log:      logger.WithModule("dispatcher"),
	}, nil
}

// Dispatch writes one event to the user's stream. A missing stream is not an
// error. A failed write evicts the stream and returns the wrapped cause.
func (d *Dispatcher) Dispatch(userID, event string, payload any) error {
	stream, ok := d.registry.Lookup(userID)
	if !ok {
		metrics.Dispatches.WithLabelValues(event, "dropped").Inc()
		d.log.Debug("no active stream, event dropped", zap.String("user_id", userID), zap.String("event", event))
		return nil
	}

	if err := stream.Send(event, payload); err != nil {
		if errors.Is(err, realtime.ErrStreamClosed) {
			metrics.Dispatches.WithLabelValues(event, "dropped").Inc()
			return nil
		}
		metrics.Dispatches.WithLabelValues(event, "failed").Inc()
		d.registry.Evict(stream, err)
		d.log.Warn("event dispatch failed, stream removed",
			zap.String("user_id", userID),
			zap.String("event", event),
			zap.Error(err),
		)
		return fmt.Errorf("dispatch %s to user %s: %w", event, userID, err)
	}

	metrics.Dispatches.WithLabelValues(event, "delivered").Inc()
	return nil
}

// DispatchToMany dispatches to each user independently and returns every failure combined.
func (d *Dispatcher) DispatchToMany(userIDs []string, event string, payload any) error {
	var errs error
	for _, userID := range userIDs {
		errs = multierr.Append(errs, d.Dispatch(userID, event, payload))
	}
	return errs
}

// Nop discards every event. It is used when realtime delivery is disabled.
type Nop struct{}

func (Nop) Dispatch(string, string, any) error { return nil }

func (Nop) DispatchToMany([]string, string, any) error { return nil }

var (
	_ Sender = (*Dispatcher)(nil)
	_ Sender = Nop{}
)
