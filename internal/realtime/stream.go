package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State describes where a stream is in its lifecycle. Open is the only state
// that accepts writes; every other state is terminal.
type State int32

const (
	StateOpen State = iota
	StateCompleted
	StateTimedOut
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrStreamClosed is returned when sending on a stream that already left StateOpen.
var ErrStreamClosed = errors.New("realtime: stream closed")

// Stream is the single live push channel registered for a user.
type Stream struct {
	id        string
	userID    string
	transport Transport
	openedAt  time.Time

	// mu serialises writes so frames from concurrent producers never interleave.
	mu    sync.Mutex
	state atomic.Int32
	err   atomic.Value // error

	done    chan struct{}
	timer   *time.Timer
	timerMu sync.Mutex

	onFinish func(*Stream, State)
}

func newStream(userID string, transport Transport, openedAt time.Time, onFinish func(*Stream, State)) *Stream {
	return &Stream{
		id:        uuid.NewString(),
		userID:    userID,
		transport: transport,
		openedAt:  openedAt,
		done:      make(chan struct{}),
		onFinish:  onFinish,
	}
}

// ID uniquely identifies this stream instance.
func (s *Stream) ID() string { return s.id }

// UserID returns the owning user.
func (s *Stream) UserID() string { return s.userID }

// OpenedAt returns when the stream was registered.
func (s *Stream) OpenedAt() time.Time { return s.openedAt }

// State returns the current lifecycle state.
func (s *Stream) State() State { return State(s.state.Load()) }

// Done is closed once the stream leaves StateOpen.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the transport error that terminated the stream, if any.
func (s *Stream) Err() error {
	if err, ok := s.err.Load().(error); ok {
		return err
	}
	return nil
}

// Send writes one event. Writes are serialised per stream.
func (s *Stream) Send(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(event, data)
}

func (s *Stream) sendLocked(event string, data any) error {
	if s.State() != StateOpen {
		return ErrStreamClosed
	}
	return s.transport.Send(event, data)
}

// Complete ends the stream normally, e.g. when the client disconnects or a newer stream replaces it.
func (s *Stream) Complete() bool { return s.transition(StateCompleted, nil) }

func (s *Stream) timeOut() bool { return s.transition(StateTimedOut, nil) }

func (s *Stream) fail(err error) bool { return s.transition(StateErrored, err) }

// transition moves an open stream into a terminal state exactly once. The
// winning caller stops the lifetime timer, deregisters the stream, closes the
// transport and then wakes waiters. It must not be called with mu held.
func (s *Stream) transition(to State, cause error) bool {
	if !s.state.CompareAndSwap(int32(StateOpen), int32(to)) {
		return false
	}
	if cause != nil {
		s.err.Store(cause)
	}

	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerMu.Unlock()

	if s.onFinish != nil {
		s.onFinish(s, to)
	}

	// Wait for an in-flight write so nothing touches the transport once done is closed.
	s.mu.Lock()
	_ = s.transport.Close()
	s.mu.Unlock()
	close(s.done)
	return true
}

func (s *Stream) expireAfter(lifetime time.Duration) {
	if lifetime <= 0 {
		return
	}
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.State() != StateOpen {
		return
	}
	s.timer = time.AfterFunc(lifetime, func() {
		s.timeOut()
	})
}
