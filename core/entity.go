package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTitle  = "Untitled Document"
	DefaultRoomID = "default"
)

// ErrDocumentNotFound is wrapped by every store when the requested document does not exist.
var ErrDocumentNotFound = errors.New("document not found")

type (
	Document struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		RoomID    string    `json:"room_id"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// DocumentUpdate carries the fields of a partial write. Nil fields are left untouched.
	DocumentUpdate struct {
		Title   *string
		Content *string
	}

	DocumentStore interface {
		FindID(ctx context.Context, id string) (*Document, error)
		ListByRoom(ctx context.Context, roomID string) ([]*Document, error)
		Create(ctx context.Context, document *Document) (*Document, error)
		// Update overwrites the given fields unconditionally and refreshes UpdatedAt.
		Update(ctx context.Context, id string, update DocumentUpdate) (*Document, error)
		Delete(ctx context.Context, id string) error
		Close() error
	}

	Room struct {
		ID         string
		LastActive int64
	}

	// RoomActivityStore persists the last time each room saw a join.
	RoomActivityStore interface {
		ListRooms(ctx context.Context) ([]Room, error)
		TouchRoom(ctx context.Context, roomID string) error
	}
)

// NotFound builds the error returned for a missing document.
func NotFound(id string) error {
	return fmt.Errorf("document with id %s not found: %w", id, ErrDocumentNotFound)
}

// ApplyDefaults fills the fields a new document may omit.
func (d *Document) ApplyDefaults() {
	if d.Title == "" {
		d.Title = DefaultTitle
	}
	if d.RoomID == "" {
		d.RoomID = DefaultRoomID
	}
}

// Apply writes the non-nil fields of u into d and stamps the update time,
// never moving UpdatedAt backwards.
func (u DocumentUpdate) Apply(d *Document, now time.Time) {
	if u.Title != nil {
		d.Title = *u.Title
	}
	if u.Content != nil {
		d.Content = *u.Content
	}
	if now.After(d.UpdatedAt) {
		d.UpdatedAt = now
	}
}

func StringPtr(s string) *string {
	return &s
}
