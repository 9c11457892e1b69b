package websocket

import (
	"errors"
	"hedgedoc-server/rooms"
	"hedgedoc-server/stores/memory"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	event   string
	payload any
}

type mockConn struct {
	id      string
	emitErr error

	mu     sync.Mutex
	events []emitted
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Emit(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	m.events = append(m.events, emitted{event: event, payload: payload})
	return nil
}

// received returns the payloads of every event named event, in order.
func (m *mockConn) received(event string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.events {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (m *mockConn) all() []emitted {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]emitted(nil), m.events...)
}

type recordingHandler struct {
	mu          sync.Mutex
	events      []string
	disconnects map[string]int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{disconnects: make(map[string]int)}
}

func (h *recordingHandler) HandleEvent(connID, event string, args []any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, connID+":"+event)
	return nil
}

func (h *recordingHandler) HandleDisconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects[connID]++
}

func TestGateway_Broadcast(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(*rooms.Registry, *Gateway) map[string]*mockConn
		except        string
		wantDelivered int
		wantReceived  map[string]int
	}{
		{
			name: "excludes sender",
			setup: func(r *rooms.Registry, g *Gateway) map[string]*mockConn {
				conns := connectAll(g, "a", "b", "c")
				for id := range conns {
					r.Join(id, "demo")
				}
				return conns
			},
			except:        "a",
			wantDelivered: 2,
			wantReceived:  map[string]int{"a": 0, "b": 1, "c": 1},
		},
		{
			name: "no cross-room delivery",
			setup: func(r *rooms.Registry, g *Gateway) map[string]*mockConn {
				conns := connectAll(g, "a", "b")
				r.Join("a", "demo")
				r.Join("b", "other")
				return conns
			},
			except:        "a",
			wantDelivered: 0,
			wantReceived:  map[string]int{"a": 0, "b": 0},
		},
		{
			name: "failing member does not stop the rest",
			setup: func(r *rooms.Registry, g *Gateway) map[string]*mockConn {
				conns := connectAll(g, "a", "b", "c")
				conns["b"].emitErr = errors.New("broken pipe")
				for id := range conns {
					r.Join(id, "demo")
				}
				return conns
			},
			except:        "a",
			wantDelivered: 1,
			wantReceived:  map[string]int{"a": 0, "b": 0, "c": 1},
		},
		{
			name: "registered member without a live connection is skipped",
			setup: func(r *rooms.Registry, g *Gateway) map[string]*mockConn {
				conns := connectAll(g, "a", "b")
				r.Join("a", "demo")
				r.Join("b", "demo")
				r.Join("ghost", "demo")
				return conns
			},
			except:        "a",
			wantDelivered: 1,
			wantReceived:  map[string]int{"a": 0, "b": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := rooms.NewRegistry()
			g := NewGateway(registry)
			conns := tt.setup(registry, g)

			delivered := g.BroadcastToRoomExcept("demo", tt.except, "ping-all", "x")
			assert.Equal(t, tt.wantDelivered, delivered)

			for id, want := range tt.wantReceived {
				assert.Len(t, conns[id].received("ping-all"), want, "conn %s", id)
			}
		})
	}
}

func TestGateway_BroadcastToRoomIncludesEveryone(t *testing.T) {
	registry := rooms.NewRegistry()
	g := NewGateway(registry)
	conns := connectAll(g, "a", "b")
	registry.Join("a", "demo")
	registry.Join("b", "demo")

	assert.Equal(t, 2, g.BroadcastToRoom("demo", "hello", nil))
	assert.Len(t, conns["a"].received("hello"), 1)
	assert.Len(t, conns["b"].received("hello"), 1)
}

func TestGateway_SendTo(t *testing.T) {
	g := NewGateway(rooms.NewRegistry())
	conns := connectAll(g, "a", "b")

	require.NoError(t, g.SendTo("a", "direct", 1))
	assert.Equal(t, []any{1}, conns["a"].received("direct"))
	assert.Empty(t, conns["b"].received("direct"))

	assert.ErrorIs(t, g.SendTo("missing", "direct", 1), ErrUnknownConnection)
}

func TestGateway_DisconnectNotifiesOnce(t *testing.T) {
	g := NewGateway(rooms.NewRegistry())
	handler := newRecordingHandler()
	g.SetHandler(handler)
	connectAll(g, "a")

	require.NoError(t, g.Receive("a", EventPing, nil))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Disconnect("a")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, handler.disconnects["a"])
	assert.Equal(t, 0, g.ConnectionCount())

	assert.ErrorIs(t, g.Receive("a", EventPing, nil), ErrUnknownConnection)
	assert.Equal(t, []string{"a:ping"}, handler.events)
}

func TestGateway_ReceiveWithoutHandler(t *testing.T) {
	g := NewGateway(rooms.NewRegistry())
	connectAll(g, "a")

	assert.ErrorIs(t, g.Receive("a", EventPing, nil), ErrUnknownConnection)
}

// slowHandler takes longer on the first event it sees.
type slowHandler struct {
	*recordingHandler
	once sync.Once
}

func (h *slowHandler) HandleEvent(connID, event string, args []any) error {
	h.once.Do(func() { time.Sleep(100 * time.Millisecond) })
	return h.recordingHandler.HandleEvent(connID, event, args)
}

func TestGateway_SubmitKeepsOrder(t *testing.T) {
	g := NewGateway(rooms.NewRegistry())
	handler := &slowHandler{recordingHandler: newRecordingHandler()}
	g.SetHandler(handler)
	connectAll(g, "a")

	results := make(chan error, len(InboundEvents))
	for _, event := range InboundEvents {
		require.NoError(t, g.Submit("a", event, nil, func(err error) { results <- err }))
	}
	for range InboundEvents {
		select {
		case err := <-results:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("submitted events were not handled")
		}
	}

	want := make([]string, 0, len(InboundEvents))
	for _, event := range InboundEvents {
		want = append(want, "a:"+event)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, want, handler.events)
}

func TestGateway_SubmitAfterDisconnect(t *testing.T) {
	g := NewGateway(rooms.NewRegistry())
	g.SetHandler(newRecordingHandler())
	connectAll(g, "a")
	g.Disconnect("a")

	assert.ErrorIs(t, g.Submit("a", EventPing, nil, nil), ErrUnknownConnection)
	assert.ErrorIs(t, g.Submit("missing", EventPing, nil, nil), ErrUnknownConnection)
}

// gatedHandler holds join-room until release is closed.
type gatedHandler struct {
	Handler
	entered chan struct{}
	release chan struct{}
}

func (h *gatedHandler) HandleEvent(connID, event string, args []any) error {
	if event == EventJoinRoom {
		close(h.entered)
		<-h.release
	}
	return h.Handler.HandleEvent(connID, event, args)
}

func TestGateway_DisconnectWaitsForEventInProgress(t *testing.T) {
	registry := rooms.NewRegistry()
	g := NewGateway(registry)
	handler := &gatedHandler{
		Handler: NewRouter(registry, g, memory.NewDocumentStore()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	g.SetHandler(handler)
	connectAll(g, "a")

	joined := make(chan error, 1)
	go func() { joined <- g.Receive("a", EventJoinRoom, []any{"demo"}) }()
	<-handler.entered

	disconnected := make(chan struct{})
	go func() {
		g.Disconnect("a")
		close(disconnected)
	}()

	select {
	case <-disconnected:
		t.Fatal("disconnect finished while an event was still being handled")
	case <-time.After(50 * time.Millisecond):
	}

	close(handler.release)
	require.NoError(t, <-joined)
	<-disconnected

	assert.Zero(t, registry.MembershipCount("demo"))
	assert.False(t, registry.Exists("demo"))
	assert.Empty(t, registry.RoomsOf("a"))
}

func connectAll(g *Gateway, ids ...string) map[string]*mockConn {
	conns := make(map[string]*mockConn, len(ids))
	for _, id := range ids {
		c := &mockConn{id: id}
		g.Connect(c)
		conns[id] = c
	}
	return conns
}
