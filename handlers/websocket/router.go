package websocket

import (
	"context"
	"errors"
	"fmt"
	"hedgedoc-server/core"
	"hedgedoc-server/metrics"
	"hedgedoc-server/rooms"
	"time"

	"github.com/sirupsen/logrus"
)

const saveFailedMessage = "Failed to save content"

// Emitter delivers outbound events. Gateway is the production implementation.
type Emitter interface {
	SendTo(connID, event string, payload any) error
	BroadcastToRoom(roomID, event string, payload any) int
	BroadcastToRoomExcept(roomID, senderID, event string, payload any) int
}

// Router dispatches inbound events: membership changes go to the registry,
// content changes are written through to the store before they are relayed,
// and cursor or typing signals are relayed without touching storage.
type Router struct {
	registry     *rooms.Registry
	emitter      Emitter
	store        core.DocumentStore
	activity     core.RoomActivityStore
	writeTimeout time.Duration
	now          func() time.Time
}

type RouterOption func(*Router)

// WithRoomActivity records a join timestamp for every room joined.
func WithRoomActivity(activity core.RoomActivityStore) RouterOption {
	return func(r *Router) { r.activity = activity }
}

// WithWriteTimeout bounds each content-change write. Zero disables the bound.
func WithWriteTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.writeTimeout = d }
}

func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

func NewRouter(registry *rooms.Registry, emitter Emitter, store core.DocumentStore, opts ...RouterOption) *Router {
	r := &Router{
		registry: registry,
		emitter:  emitter,
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) HandleEvent(connID, event string, args []any) error {
	var err error
	switch event {
	case EventJoinRoom:
		err = r.HandleJoin(connID, args)
	case EventLeaveRoom:
		err = r.HandleLeave(connID, args)
	case EventContentChange:
		return r.HandleContentChange(connID, args)
	case EventCursorPosition:
		err = r.HandleCursor(connID, args)
	case EventTypingStart:
		err = r.HandleTyping(connID, args, true)
	case EventTypingStop:
		err = r.HandleTyping(connID, args, false)
	case EventPing:
		return r.emitter.SendTo(connID, EventPong, nil)
	default:
		logrus.WithFields(logrus.Fields{"conn_id": connID, "event": event}).Debug("unhandled event")
		return nil
	}

	if err != nil {
		r.ignore(connID, event, err)
	}
	return err
}

func (r *Router) ignore(connID, event string, err error) {
	metrics.EventsIgnored.WithLabelValues(event).Inc()
	logrus.WithError(err).WithFields(logrus.Fields{
		"conn_id": connID,
		"event":   event,
	}).Warn("ignoring malformed event")
}

func (r *Router) HandleJoin(connID string, args []any) error {
	roomID, err := decodeRoomID(args)
	if err != nil {
		return err
	}

	count := r.registry.Join(connID, roomID)
	metrics.RoomsActive.Set(float64(r.registry.RoomCount()))
	logrus.WithFields(logrus.Fields{
		"conn_id": connID,
		"room_id": roomID,
		"users":   count,
	}).Info("joined room")

	if r.activity != nil {
		if err := r.activity.TouchRoom(context.Background(), roomID); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("failed to record room activity")
		}
	}

	r.emitter.BroadcastToRoomExcept(roomID, connID, EventUserJoined, UserPresence{
		UserID:     connID,
		Timestamp:  r.now(),
		TotalUsers: count,
	})
	r.broadcastCount(roomID)
	return nil
}

// HandleLeave removes the connection from the room. Leaving a room the
// connection never joined still notifies the room.
func (r *Router) HandleLeave(connID string, args []any) error {
	roomID, err := decodeRoomID(args)
	if err != nil {
		return err
	}

	remaining := r.registry.Leave(connID, roomID)
	metrics.RoomsActive.Set(float64(r.registry.RoomCount()))
	logrus.WithFields(logrus.Fields{
		"conn_id": connID,
		"room_id": roomID,
		"users":   remaining,
	}).Info("left room")

	r.announceLeave(connID, roomID, remaining)
	return nil
}

func (r *Router) announceLeave(connID, roomID string, remaining int) {
	r.emitter.BroadcastToRoomExcept(roomID, connID, EventUserLeft, UserPresence{
		UserID:     connID,
		Timestamp:  r.now(),
		TotalUsers: remaining,
	})
	r.broadcastCount(roomID)
}

// broadcastCount sends the room's membership as of send time.
func (r *Router) broadcastCount(roomID string) {
	count := r.registry.MembershipCount(roomID)
	if count == 0 {
		return
	}
	r.emitter.BroadcastToRoom(roomID, EventUsersCount, UsersCount{Count: count})
}

// HandleContentChange persists the change and only then relays it to the
// rest of the room. A failed write is reported to the sender alone.
func (r *Router) HandleContentChange(connID string, args []any) error {
	change, err := decodeContentChange(args)
	if err != nil {
		r.ignore(connID, EventContentChange, err)
		return err
	}

	ctx := context.Background()
	if r.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.writeTimeout)
		defer cancel()
	}

	start := time.Now()
	doc, err := r.store.Update(ctx, change.FileID, core.DocumentUpdate{
		Title:   change.Title,
		Content: change.Content,
	})
	metrics.DocumentWriteLatency.Observe(time.Since(start).Seconds())

	fields := logrus.Fields{
		"conn_id": connID,
		"room_id": change.RoomID,
		"file_id": change.FileID,
	}

	if err != nil {
		status := "error"
		if errors.Is(err, core.ErrDocumentNotFound) {
			status = "not_found"
		}
		metrics.DocumentWrites.WithLabelValues(status).Inc()
		logrus.WithError(err).WithFields(fields).Error("failed to save content")

		if sendErr := r.emitter.SendTo(connID, EventError, ErrorPayload{
			Message: saveFailedMessage,
			Error:   err.Error(),
		}); sendErr != nil {
			logrus.WithError(sendErr).WithFields(fields).Warn("failed to report save error")
		}
		return fmt.Errorf("save content: %w", err)
	}

	metrics.DocumentWrites.WithLabelValues("success").Inc()
	delivered := r.emitter.BroadcastToRoomExcept(change.RoomID, connID, EventContentUpdated, ContentUpdated{
		FileID:    change.FileID,
		Content:   doc.Content,
		Title:     doc.Title,
		UserID:    connID,
		Timestamp: r.now(),
	})
	logrus.WithFields(fields).WithField("recipients", delivered).Debug("content saved")
	return nil
}

func (r *Router) HandleCursor(connID string, args []any) error {
	cursor, err := decodeCursorPosition(args)
	if err != nil {
		return err
	}

	r.emitter.BroadcastToRoomExcept(cursor.RoomID, connID, EventCursorUpdated, CursorUpdated{
		Position:  cursor.Position,
		Selection: cursor.Selection,
		UserID:    connID,
		Timestamp: r.now(),
	})
	return nil
}

func (r *Router) HandleTyping(connID string, args []any, isTyping bool) error {
	roomID, err := decodeRoomID(args)
	if err != nil {
		return err
	}

	r.emitter.BroadcastToRoomExcept(roomID, connID, EventUserTyping, UserTyping{
		UserID:    connID,
		IsTyping:  isTyping,
		Timestamp: r.now(),
	})
	return nil
}

// HandleDisconnect leaves every room the connection had joined and
// notifies the remaining members of each.
func (r *Router) HandleDisconnect(connID string) {
	remaining := r.registry.LeaveAll(connID)
	metrics.RoomsActive.Set(float64(r.registry.RoomCount()))

	for roomID, count := range remaining {
		logrus.WithFields(logrus.Fields{
			"conn_id": connID,
			"room_id": roomID,
			"users":   count,
		}).Info("left room on disconnect")
		r.announceLeave(connID, roomID, count)
	}
}
