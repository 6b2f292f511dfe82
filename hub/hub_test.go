package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records written frames in memory.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.TextMessage {
		f.frames = append(f.frames, data)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegistrySendDeliversInOrder(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	fc := &fakeConn{}
	r.Register("sess-1", fc)

	require.True(t, r.Send("sess-1", []byte("one")))
	require.True(t, r.Send("sess-1", []byte("two")))

	require.Eventually(t, func() bool { return fc.frameCount() == 2 },
		time.Second, 5*time.Millisecond)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, "one", string(fc.frames[0]))
	assert.Equal(t, "two", string(fc.frames[1]))
}

func TestRegistrySendUnknownSession(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	assert.False(t, r.Send("nobody", []byte("x")))
}

func TestRegistryUnregisterClosesConnection(t *testing.T) {
	r := NewRegistry()
	fc := &fakeConn{}
	r.Register("sess-1", fc)
	require.True(t, r.Active("sess-1"))

	r.Unregister("sess-1")

	assert.False(t, r.Active("sess-1"))
	assert.True(t, fc.isClosed())
	assert.False(t, r.Send("sess-1", []byte("late")), "send after disconnect fails harmlessly")
}

func TestRegistryReplaceClosesPrevious(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	first := &fakeConn{}
	second := &fakeConn{}
	r.Register("sess-1", first)
	r.Register("sess-1", second)

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, 1, r.Len())

	require.True(t, r.Send("sess-1", []byte("hello")))
	require.Eventually(t, func() bool { return second.frameCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, first.frameCount())
}

// stallConn blocks every write until release is closed, so the send queue
// can be saturated deterministically.
type stallConn struct {
	fakeConn
	release chan struct{}
}

func (s *stallConn) WriteMessage(messageType int, data []byte) error {
	<-s.release
	return s.fakeConn.WriteMessage(messageType, data)
}

func TestRegistrySendOverflowDropsConnection(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.SendBuffer = 1 })
	defer r.Close()
	sc := &stallConn{release: make(chan struct{})}
	defer close(sc.release)
	r.Register("sess-1", sc)

	overflowed := false
	for i := 0; i < 4; i++ {
		if !r.Send("sess-1", []byte("x")) {
			overflowed = true
			break
		}
	}
	require.True(t, overflowed, "a stalled writer must overflow the queue")
	assert.False(t, r.Active("sess-1"))
	assert.True(t, sc.isClosed())
}

func TestRegistryDropStaleKeepsReplacement(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	stale := r.Register("sess-1", &fakeConn{})
	fresh := &fakeConn{}
	r.Register("sess-1", fresh)

	// Dropping the already-replaced connection must not evict its successor.
	r.Drop(stale)

	require.True(t, r.Active("sess-1"))
	assert.False(t, fresh.isClosed())
	require.True(t, r.Send("sess-1", []byte("still here")))
	require.Eventually(t, func() bool { return fresh.frameCount() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestRegistryBroadcast(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	a := &fakeConn{}
	b := &fakeConn{}
	r.Register("sess-a", a)
	r.Register("sess-b", b)

	r.Broadcast([]byte("ping all"))

	require.Eventually(t, func() bool {
		return a.frameCount() == 1 && b.frameCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRegistrySendJSON(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	fc := &fakeConn{}
	r.Register("sess-1", fc)

	require.True(t, r.SendJSON("sess-1", map[string]string{"type": "info"}))
	require.Eventually(t, func() bool { return fc.frameCount() == 1 },
		time.Second, 5*time.Millisecond)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.JSONEq(t, `{"type":"info"}`, string(fc.frames[0]))
}

func TestRegistryConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Register(id, &fakeConn{})
				r.Send(id, []byte("x"))
				r.Unregister(id)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	b := &fakeConn{}
	r.Register("sess-a", a)
	r.Register("sess-b", b)

	r.Close()

	assert.Zero(t, r.Len())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}
