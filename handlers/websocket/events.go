package websocket

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Inbound events.
const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventContentChange  = "content-change"
	EventCursorPosition = "cursor-position"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventPing           = "ping"
)

// Outbound events.
const (
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventUsersCount     = "users-count"
	EventContentUpdated = "content-updated"
	EventCursorUpdated  = "cursor-updated"
	EventUserTyping     = "user-typing"
	EventError          = "error"
	EventPong           = "pong"
)

// InboundEvents lists every event a client may send.
var InboundEvents = []string{
	EventJoinRoom,
	EventLeaveRoom,
	EventContentChange,
	EventCursorPosition,
	EventTypingStart,
	EventTypingStop,
	EventPing,
}

var errMissingPayload = errors.New("missing payload")

type (
	ContentChange struct {
		FileID  string  `mapstructure:"fileId"`
		Content *string `mapstructure:"content"`
		RoomID  string  `mapstructure:"roomId"`
		Title   *string `mapstructure:"title"`
	}

	CursorPosition struct {
		RoomID    string `mapstructure:"roomId"`
		Position  any    `mapstructure:"position"`
		Selection any    `mapstructure:"selection"`
	}

	roomRef struct {
		RoomID string `mapstructure:"roomId"`
	}
)

type (
	UserPresence struct {
		UserID     string    `json:"userId"`
		Timestamp  time.Time `json:"timestamp"`
		TotalUsers int       `json:"totalUsers"`
	}

	UsersCount struct {
		Count int `json:"count"`
	}

	ContentUpdated struct {
		FileID    string    `json:"fileId"`
		Content   string    `json:"content"`
		Title     string    `json:"title"`
		UserID    string    `json:"userId"`
		Timestamp time.Time `json:"timestamp"`
	}

	CursorUpdated struct {
		Position  any       `json:"position"`
		Selection any       `json:"selection"`
		UserID    string    `json:"userId"`
		Timestamp time.Time `json:"timestamp"`
	}

	UserTyping struct {
		UserID    string    `json:"userId"`
		IsTyping  bool      `json:"isTyping"`
		Timestamp time.Time `json:"timestamp"`
	}

	ErrorPayload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
)

func decodePayload(args []any, out any) error {
	if len(args) == 0 || args[0] == nil {
		return errMissingPayload
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args[0]); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

// decodeRoomID accepts a bare room id string or an object with a roomId field.
func decodeRoomID(args []any) (string, error) {
	if len(args) == 0 {
		return "", errMissingPayload
	}

	if roomID, ok := args[0].(string); ok {
		if roomID == "" {
			return "", errors.New("room id is required")
		}
		return roomID, nil
	}

	var ref roomRef
	if err := decodePayload(args, &ref); err != nil {
		return "", err
	}
	if ref.RoomID == "" {
		return "", errors.New("room id is required")
	}
	return ref.RoomID, nil
}

func decodeContentChange(args []any) (ContentChange, error) {
	var change ContentChange
	if err := decodePayload(args, &change); err != nil {
		return change, err
	}
	if change.FileID == "" {
		return change, errors.New("fileId is required")
	}
	if change.RoomID == "" {
		return change, errors.New("roomId is required")
	}
	return change, nil
}

func decodeCursorPosition(args []any) (CursorPosition, error) {
	var cursor CursorPosition
	if err := decodePayload(args, &cursor); err != nil {
		return cursor, err
	}
	if cursor.RoomID == "" {
		return cursor, errors.New("roomId is required")
	}
	return cursor, nil
}
