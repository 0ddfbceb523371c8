package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cooktodor/notifier/internal/realtime/testutil"
)

func TestRegistryOpenSendsConnectedFirst(t *testing.T) {
	registry := NewRegistry()
	transport := testutil.NewTransport()

	stream, err := registry.Open("7", transport)
	require.NoError(t, err)
	require.NotNil(t, stream)
	require.Equal(t, "7", stream.UserID())
	require.Equal(t, StateOpen, stream.State())

	frames := transport.Frames()
	require.Len(t, frames, 1)
	require.Equal(t, EventConnected, frames[0].Event)
	require.Equal(t, "SSE connection established", frames[0].Data)

	require.True(t, registry.IsConnected("7"))
	require.Equal(t, 1, registry.ActiveCount())
}

func TestRegistryOpenValidatesInput(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Open("  ", testutil.NewTransport())
	require.Error(t, err)

	_, err = registry.Open("1", nil)
	require.Error(t, err)
	require.Zero(t, registry.ActiveCount())
}

func TestRegistryOpenReplacesPreviousStream(t *testing.T) {
	registry := NewRegistry()
	first := testutil.NewTransport()
	second := testutil.NewTransport()

	old, err := registry.Open("7", first)
	require.NoError(t, err)

	current, err := registry.Open("7", second)
	require.NoError(t, err)

	require.Equal(t, 1, registry.ActiveCount())
	require.Equal(t, StateCompleted, old.State())
	require.True(t, first.Closed())
	require.False(t, second.Closed())

	select {
	case <-old.Done():
	default:
		t.Fatal("replaced stream should be done")
	}

	got, ok := registry.Lookup("7")
	require.True(t, ok)
	require.Same(t, current, got)
	require.True(t, registry.IsCurrent(current))
	require.False(t, registry.IsCurrent(old))

	require.ErrorIs(t, old.Send(EventNotification, "late"), ErrStreamClosed)
}

func TestRegistryFailedHandshakeLeavesNothingRegistered(t *testing.T) {
	registry := NewRegistry()
	transport := testutil.NewTransport().FailWith(errors.New("broken pipe"))

	stream, err := registry.Open("9", transport)
	require.Nil(t, stream)
	require.ErrorIs(t, err, ErrConnection)
	require.False(t, registry.IsConnected("9"))
	require.Zero(t, registry.ActiveCount())
	require.True(t, transport.Closed())
}

func TestRegistryFailedHandshakeKeepsNewerStream(t *testing.T) {
	registry := NewRegistry()
	release := make(chan struct{})
	slow := testutil.NewTransport().BlockUntil(release)

	var (
		wg      sync.WaitGroup
		slowErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = registry.Open("3", slow)
	}()

	require.Eventually(t, func() bool { return registry.IsConnected("3") }, time.Second, 5*time.Millisecond)
	slow.FailWith(errors.New("reset by peer"))

	fast := testutil.NewTransport()
	done := make(chan struct{})
	var (
		fastStream *Stream
		fastErr    error
	)
	go func() {
		defer close(done)
		fastStream, fastErr = registry.Open("3", fast)
	}()

	close(release)
	wg.Wait()
	<-done

	require.ErrorIs(t, slowErr, ErrConnection)
	require.NoError(t, fastErr)
	require.True(t, registry.IsCurrent(fastStream))
	require.Equal(t, 1, registry.ActiveCount())
}

func TestRegistryCloseIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	transport := testutil.NewTransport()

	stream, err := registry.Open("5", transport)
	require.NoError(t, err)

	registry.Close("5")
	registry.Close("5")
	registry.Close("unknown")

	require.False(t, registry.IsConnected("5"))
	require.Equal(t, StateCompleted, stream.State())
	require.True(t, transport.Closed())
	require.False(t, stream.Complete())
}

func TestRegistryStreamExpiresAfterLifetime(t *testing.T) {
	registry := NewRegistry(WithMaxLifetime(30 * time.Millisecond))
	transport := testutil.NewTransport()

	stream, err := registry.Open("11", transport)
	require.NoError(t, err)

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not expire")
	}

	require.Equal(t, StateTimedOut, stream.State())
	require.False(t, registry.IsConnected("11"))
	require.True(t, transport.Closed())
}

func TestRegistryEvictIgnoresReplacedStream(t *testing.T) {
	registry := NewRegistry()

	old, err := registry.Open("2", testutil.NewTransport())
	require.NoError(t, err)
	current, err := registry.Open("2", testutil.NewTransport())
	require.NoError(t, err)

	require.False(t, registry.Evict(old, errors.New("stale write")))
	require.True(t, registry.IsCurrent(current))

	cause := errors.New("write failed")
	require.True(t, registry.Evict(current, cause))
	require.Equal(t, StateErrored, current.State())
	require.ErrorIs(t, current.Err(), cause)
	require.False(t, registry.IsConnected("2"))
}

func TestRegistryCloseAll(t *testing.T) {
	registry := NewRegistry()
	a := testutil.NewTransport()
	b := testutil.NewTransport()

	_, err := registry.Open("a", a)
	require.NoError(t, err)
	_, err = registry.Open("b", b)
	require.NoError(t, err)
	require.Len(t, registry.Snapshot(), 2)

	registry.CloseAll()

	require.Zero(t, registry.ActiveCount())
	require.True(t, a.Closed())
	require.True(t, b.Closed())
}

func TestStreamSendSerialisesWrites(t *testing.T) {
	registry := NewRegistry()
	transport := testutil.NewTransport()

	stream, err := registry.Open("u", transport)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, stream.Send(EventNotification, map[string]any{"n": 1}))
		}()
	}
	wg.Wait()

	events := transport.Events()
	require.Len(t, events, 21)
	require.Equal(t, EventConnected, events[0])
}

func TestStateString(t *testing.T) {
	require.Equal(t, "open", StateOpen.String())
	require.Equal(t, "completed", StateCompleted.String())
	require.Equal(t, "timed_out", StateTimedOut.String())
	require.Equal(t, "errored", StateErrored.String())
	require.Equal(t, "unknown", State(42).String())
}
