package testutil

import (
	"sync"
	"time"
)

// Frame is one event observed by a Transport.
type Frame struct {
	Event string
	Data  any
}

// Transport is an in-memory realtime transport that records frames and can be told to fail.
type Transport struct {
	mu      sync.Mutex
	frames  []Frame
	failErr error
	failOn  map[string]error
	closed  bool
	block   chan struct{}
	changed chan struct{}
}

// NewTransport returns a healthy recording transport.
func NewTransport() *Transport {
	return &Transport{
		failOn:  make(map[string]error),
		changed: make(chan struct{}, 1),
	}
}

// FailWith makes every subsequent Send return err.
func (t *Transport) FailWith(err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failErr = err
	return t
}

// FailOn makes Send return err for the named event only.
func (t *Transport) FailOn(event string, err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failOn[event] = err
	return t
}

// BlockUntil makes Send wait until release is closed before recording.
func (t *Transport) BlockUntil(release chan struct{}) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.block = release
	return t
}

// Send records the frame or returns the configured failure.
func (t *Transport) Send(event string, data any) error {
	t.mu.Lock()
	block := t.block
	t.mu.Unlock()
	if block != nil {
		<-block
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.failOn[event]; ok {
		return err
	}
	if t.failErr != nil {
		return t.failErr
	}
	t.frames = append(t.frames, Frame{Event: event, Data: data})
	select {
	case t.changed <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the transport closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Frames returns a copy of the recorded frames.
func (t *Transport) Frames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Frame, len(t.frames))
	copy(out, t.frames)
	return out
}

// Events returns the recorded event names in order.
func (t *Transport) Events() []string {
	frames := t.Frames()
	out := make([]string, len(frames))
	for i, frame := range frames {
		out[i] = frame.Event
	}
	return out
}

// Last returns the most recent frame for event.
func (t *Transport) Last(event string) (Frame, bool) {
	frames := t.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			return frames[i], true
		}
	}
	return Frame{}, false
}

// WaitForFrames blocks until at least n frames were recorded or timeout elapses.
func (t *Transport) WaitForFrames(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if len(t.Frames()) >= n {
			return true
		}
		select {
		case <-t.changed:
		case <-deadline:
			return len(t.Frames()) >= n
		}
	}
}
