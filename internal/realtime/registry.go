package realtime

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cooktodor/notifier/pkg/logger"
	"github.com/cooktodor/notifier/pkg/metrics"
)

// DefaultMaxLifetime caps how long a single stream may stay open.
const DefaultMaxLifetime = 30 * time.Minute

// ErrConnection is returned by Open when the initial handshake could not be written.
var ErrConnection = errors.New("realtime: connection handshake failed")

// Registry holds at most one live stream per user.
type Registry struct {
	mu       sync.RWMutex
	streams  map[string]*Stream
	lifetime time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// Option customises the Registry.
type Option func(*Registry)

// WithMaxLifetime overrides the maximum lifetime of each stream.
func WithMaxLifetime(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.lifetime = d
		}
	}
}

// WithClock overrides the clock used to stamp streams.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		streams:  make(map[string]*Stream),
		lifetime: DefaultMaxLifetime,
		now:      time.Now,
		log:      logger.WithModule("realtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open registers a new stream for userID over transport, terminating any
// previous stream for that user, and writes the "connected" handshake. When the
// handshake fails the stream is discarded and an error wrapping ErrConnection is
// returned.
func (r *Registry) Open(userID string, transport Transport) (*Stream, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("realtime: user id is required")
	}
	if transport == nil {
		return nil, errors.New("realtime: transport is required")
	}

	stream := newStream(userID, transport, r.now(), r.release)

	// Hold the write lock across registration so the handshake is always the first frame.
	stream.mu.Lock()

	r.mu.Lock()
	previous := r.streams[userID]
	r.streams[userID] = stream
	metrics.ActiveConnections.Set(float64(len(r.streams)))
	r.mu.Unlock()

	if previous != nil && previous.Complete() {
		metrics.ConnectionEvents.WithLabelValues("replaced").Inc()
		r.log.Info("stream replaced", zap.String("user_id", userID), zap.String("previous", previous.ID()))
	}

	stream.expireAfter(r.lifetime)

	err := stream.sendLocked(EventConnected, connectedMessage)
	stream.mu.Unlock()
	if err != nil {
		stream.fail(err)
		metrics.ConnectionEvents.WithLabelValues("failed").Inc()
		r.log.Error("failed to send initial stream message", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: user %s: %w", ErrConnection, userID, err)
	}

	metrics.ConnectionEvents.WithLabelValues("opened").Inc()
	r.log.Info("stream opened", zap.String("user_id", userID), zap.String("stream_id", stream.ID()))
	return stream, nil
}

// Close terminates and removes the stream for userID. It is a no-op when none exists.
func (r *Registry) Close(userID string) {
	r.mu.Lock()
	stream := r.streams[userID]
	if stream != nil {
		delete(r.streams, userID)
		metrics.ActiveConnections.Set(float64(len(r.streams)))
	}
	r.mu.Unlock()

	if stream != nil {
		stream.Complete()
	}
}

// Evict terminates stream as errored after a failed write. A stream that was
// already replaced or closed is left alone, so a stale failure never removes
// the user's newer stream.
func (r *Registry) Evict(stream *Stream, cause error) bool {
	if stream == nil {
		return false
	}
	return stream.fail(cause)
}

// Lookup returns the live stream for userID.
func (r *Registry) Lookup(userID string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stream, ok := r.streams[userID]
	return stream, ok
}

// IsConnected reports whether userID currently has a registered stream.
func (r *Registry) IsConnected(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// IsCurrent reports whether stream is still the registered stream for its user.
func (r *Registry) IsCurrent(stream *Stream) bool {
	if stream == nil {
		return false
	}
	current, ok := r.Lookup(stream.UserID())
	return ok && current == stream
}

// ActiveCount returns the number of registered streams.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Snapshot returns the currently registered streams.
func (r *Registry) Snapshot() []*Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Stream, 0, len(r.streams))
	for _, stream := range r.streams {
		out = append(out, stream)
	}
	return out
}

// CloseAll completes every registered stream, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[string]*Stream)
	metrics.ActiveConnections.Set(0)
	r.mu.Unlock()

	for _, stream := range streams {
		stream.Complete()
	}
}

// release runs on every terminal transition and drops the stream only if it is
// still the one registered for its user.
func (r *Registry) release(stream *Stream, state State) {
	r.mu.Lock()
	if current, ok := r.streams[stream.UserID()]; ok && current == stream {
		delete(r.streams, stream.UserID())
		metrics.ActiveConnections.Set(float64(len(r.streams)))
	}
	r.mu.Unlock()

	metrics.ConnectionEvents.WithLabelValues(state.String()).Inc()
	r.log.Info("stream closed",
		zap.String("user_id", stream.UserID()),
		zap.String("stream_id", stream.ID()),
		zap.String("state", state.String()),
		zap.Duration("lifetime", r.now().Sub(stream.OpenedAt())),
	)
}
