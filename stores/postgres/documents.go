package postgres

import (
	"context"
	"errors"
	"fmt"
	"hedgedoc-server/core"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	title VARCHAR(255) NOT NULL DEFAULT 'Untitled Document',
	content TEXT NOT NULL DEFAULT '',
	room_id VARCHAR(100) NOT NULL DEFAULT 'default',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_files_room_id ON files(room_id);
CREATE INDEX IF NOT EXISTS idx_files_updated_at ON files(updated_at DESC);
CREATE TABLE IF NOT EXISTS rooms (
	id VARCHAR(100) PRIMARY KEY,
	last_active BIGINT NOT NULL
);`

const fileColumns = "id, title, content, room_id, created_at, updated_at"

type documentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore connects to databaseURL and applies the schema.
func NewDocumentStore(ctx context.Context, databaseURL string) (*documentStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &documentStore{pool: pool}, nil
}

func scanFile(row pgx.Row) (*core.Document, error) {
	var doc core.Document
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.RoomID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	doc, err := scanFile(s.pool.QueryRow(ctx, "SELECT "+fileColumns+" FROM files WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, core.NotFound(id)
		}
		log.WithError(err).Error("Failed to retrieve document")
		return nil, err
	}
	return doc, nil
}

func (s *documentStore) ListByRoom(ctx context.Context, roomID string) ([]*core.Document, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+fileColumns+" FROM files WHERE room_id = $1 ORDER BY updated_at DESC, id DESC", roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to list documents")
		return nil, err
	}
	defer rows.Close()

	docs := make([]*core.Document, 0)
	for rows.Next() {
		doc, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *documentStore) Create(ctx context.Context, document *core.Document) (*core.Document, error) {
	doc := *document
	doc.ApplyDefaults()
	id := ulid.Make().String()

	created, err := scanFile(s.pool.QueryRow(ctx,
		`INSERT INTO files (id, title, content, room_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+fileColumns,
		id, doc.Title, doc.Content, doc.RoomID))
	if err != nil {
		logrus.WithField("document_id", id).WithError(err).Error("Failed to create document")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"document_id": created.ID,
		"room_id":     created.RoomID,
	}).Info("Document created successfully")
	return created, nil
}

func (s *documentStore) Update(ctx context.Context, id string, update core.DocumentUpdate) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	doc, err := scanFile(s.pool.QueryRow(ctx,
		`UPDATE files
		SET title = COALESCE($1, title),
			content = COALESCE($2, content),
			updated_at = GREATEST(updated_at, NOW())
		WHERE id = $3
		RETURNING `+fileColumns,
		update.Title, update.Content, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
			return nil, core.NotFound(id)
		}
		log.WithError(err).Error("Failed to update document")
		return nil, err
	}

	log.WithField("content_length", len(doc.Content)).Debug("Document updated successfully")
	return doc, nil
}

func (s *documentStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		logrus.WithField("document_id", id).WithError(err).Error("Failed to delete document")
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound(id)
	}
	return nil
}

func (s *documentStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *documentStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (id, last_active) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_active = EXCLUDED.last_active`,
		roomID, time.Now().UnixMilli())
	return err
}

func (s *documentStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, last_active FROM rooms ORDER BY last_active DESC, id ASC")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Room, error) {
		var room core.Room
		err := row.Scan(&room.ID, &room.LastActive)
		return room, err
	})
}
