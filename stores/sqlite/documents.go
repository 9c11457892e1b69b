package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hedgedoc-server/core"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type documentStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentStore(dataSourceName string) (*documentStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	// Create documents table
	documentsTable := `CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT 'Untitled Document',
		content TEXT NOT NULL DEFAULT '',
		room_id TEXT NOT NULL DEFAULT 'default',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err = db.Exec(documentsTable); err != nil {
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_room_id ON documents(room_id);`); err != nil {
		return nil, fmt.Errorf("failed to create room index: %w", err)
	}

	// Create rooms table
	roomsTable := `CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		last_active INTEGER NOT NULL
	);`
	if _, err = db.Exec(roomsTable); err != nil {
		return nil, fmt.Errorf("failed to create rooms table: %w", err)
	}

	return &documentStore{db: db, now: time.Now}, nil
}

const documentColumns = "id, title, content, room_id, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.Document, error) {
	var doc core.Document
	var createdAt, updatedAt int64
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.RoomID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.CreatedAt = time.UnixMicro(createdAt).UTC()
	doc.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &doc, nil
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.Debug("Retrieving document by ID")

	doc, err := scanDocument(s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, core.NotFound(id)
		}
		log.WithField("error", err).Error("Failed to retrieve document")
		return nil, err
	}
	log.Debug("Document retrieved successfully")
	return doc, nil
}

func (s *documentStore) ListByRoom(ctx context.Context, roomID string) ([]*core.Document, error) {
	log := logrus.WithField("room_id", roomID)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE room_id = ? ORDER BY updated_at DESC, id DESC", roomID)
	if err != nil {
		log.WithField("error", err).Error("Failed to list documents")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close document rows")
		}
	}()

	docs := make([]*core.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			log.WithField("error", err).Error("Failed to scan document")
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *documentStore) Create(ctx context.Context, document *core.Document) (*core.Document, error) {
	doc := *document
	doc.ApplyDefaults()
	doc.ID = ulid.Make().String()
	now := s.now().UTC().Truncate(time.Microsecond)
	doc.CreatedAt = now
	doc.UpdatedAt = now

	log := logrus.WithFields(logrus.Fields{
		"document_id":    doc.ID,
		"room_id":        doc.RoomID,
		"content_length": len(doc.Content),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (id, title, content, room_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		doc.ID, doc.Title, doc.Content, doc.RoomID, now.UnixMicro(), now.UnixMicro())
	if err != nil {
		log.WithField("error", err).Error("Failed to create document")
		return nil, err
	}
	log.Info("Document created successfully")
	return &doc, nil
}

func (s *documentStore) Update(ctx context.Context, id string, update core.DocumentUpdate) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	now := s.now().UTC().Truncate(time.Microsecond)

	// MAX keeps updated_at monotonic if the wall clock steps back.
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`UPDATE documents
		SET title = COALESCE(?, title),
			content = COALESCE(?, content),
			updated_at = MAX(updated_at, ?)
		WHERE id = ?
		RETURNING `+documentColumns,
		update.Title, update.Content, now.UnixMicro(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, core.NotFound(id)
		}
		log.WithField("error", err).Error("Failed to update document")
		return nil, err
	}

	log.WithField("content_length", len(doc.Content)).Debug("Document updated successfully")
	return doc, nil
}

func (s *documentStore) Delete(ctx context.Context, id string) error {
	log := logrus.WithField("document_id", id)

	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		log.WithField("error", err).Error("Failed to delete document")
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.NotFound(id)
	}

	log.Info("Document deleted successfully")
	return nil
}

func (s *documentStore) Close() error {
	return s.db.Close()
}

func (s *documentStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, last_active) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active",
		roomID, s.now().UnixMilli())
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "error": err}).Error("Failed to touch room")
	}
	return err
}

func (s *documentStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, last_active FROM rooms ORDER BY last_active DESC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]core.Room, 0)
	for rows.Next() {
		var room core.Room
		if err := rows.Scan(&room.ID, &room.LastActive); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
