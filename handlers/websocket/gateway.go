package websocket

import (
	"errors"
	"hedgedoc-server/metrics"
	"hedgedoc-server/rooms"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Conn is a single connected client.
type Conn interface {
	ID() string
	Emit(event string, payload any) error
}

// Handler receives inbound events once the gateway has accepted them.
type Handler interface {
	HandleEvent(connID, event string, args []any) error
	HandleDisconnect(connID string)
}

// Gateway owns the set of live connections and delivers outbound events
// to them. Room fan-out resolves members through the registry.
type Gateway struct {
	registry *rooms.Registry

	mu       sync.RWMutex
	sessions map[string]*session
	handler  Handler
}

// session is the per-connection state. mu is held while an event or the
// disconnect is handled, so a connection is never handled concurrently.
type session struct {
	conn  Conn
	inbox inbox

	mu     sync.Mutex
	closed bool
}

func NewGateway(registry *rooms.Registry) *Gateway {
	return &Gateway{
		registry: registry,
		sessions: make(map[string]*session),
	}
}

// SetHandler installs the receiver of inbound events. It must be called
// before the first connection is accepted.
func (g *Gateway) SetHandler(h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

func (g *Gateway) Connect(conn Conn) {
	g.mu.Lock()
	g.sessions[conn.ID()] = &session{conn: conn}
	count := len(g.sessions)
	g.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"conn_id":     conn.ID(),
		"connections": count,
	}).Info("client connected")
}

func (g *Gateway) lookup(connID string) (*session, Handler) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[connID], g.handler
}

// Receive hands an inbound event to the handler and waits for it. Events
// from connections that are not registered, or already disconnected, are
// dropped.
func (g *Gateway) Receive(connID, event string, args []any) error {
	s, handler := g.lookup(connID)
	if s == nil || handler == nil {
		return ErrUnknownConnection
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnknownConnection
	}
	metrics.EventsTotal.WithLabelValues(event).Inc()
	return handler.HandleEvent(connID, event, args)
}

// Submit queues an inbound event behind every event previously submitted
// for the same connection and returns without waiting. done, if set, gets
// the handler's result.
func (g *Gateway) Submit(connID, event string, args []any, done func(error)) error {
	s, _ := g.lookup(connID)
	if s == nil {
		return ErrUnknownConnection
	}

	queued := s.inbox.push(func() {
		err := g.Receive(connID, event, args)
		if done != nil {
			done(err)
		}
	})
	if !queued {
		return ErrUnknownConnection
	}
	return nil
}

// Disconnect removes the connection and notifies the handler once any
// event in progress for it has finished. Repeated calls for the same
// connection notify at most once.
func (g *Gateway) Disconnect(connID string) {
	g.mu.Lock()
	s, ok := g.sessions[connID]
	delete(g.sessions, connID)
	count := len(g.sessions)
	handler := g.handler
	g.mu.Unlock()

	if !ok {
		return
	}
	s.inbox.close()

	metrics.ConnectionsActive.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"conn_id":     connID,
		"connections": count,
	}).Info("client disconnected")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if handler != nil {
		handler.HandleDisconnect(connID)
	}
}

func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

func (g *Gateway) conn(connID string) (Conn, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[connID]
	if !ok {
		return nil, false
	}
	return s.conn, true
}

func (g *Gateway) SendTo(connID, event string, payload any) error {
	c, ok := g.conn(connID)
	if !ok {
		return ErrUnknownConnection
	}
	return c.Emit(event, payload)
}

// BroadcastToRoom emits to every member of roomID and returns the number
// of successful deliveries.
func (g *Gateway) BroadcastToRoom(roomID, event string, payload any) int {
	return g.broadcast(roomID, "", event, payload)
}

// BroadcastToRoomExcept emits to every member of roomID other than senderID.
func (g *Gateway) BroadcastToRoomExcept(roomID, senderID, event string, payload any) int {
	return g.broadcast(roomID, senderID, event, payload)
}

func (g *Gateway) broadcast(roomID, exceptID, event string, payload any) int {
	delivered := 0
	for _, memberID := range g.registry.Members(roomID) {
		if memberID == exceptID {
			continue
		}
		c, ok := g.conn(memberID)
		if !ok {
			continue
		}
		if err := c.Emit(event, payload); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"conn_id": memberID,
				"room_id": roomID,
				"event":   event,
			}).Warn("failed to deliver event")
			continue
		}
		delivered++
	}
	return delivered
}
