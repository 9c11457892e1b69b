package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hedgedoc-server/core"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const fileExt = ".json"

type documentStore struct {
	basePath string
	// serialises read-modify-write cycles on document files
	mu  sync.Mutex
	now func() time.Time
}

// NewDocumentStore stores each document as a JSON file under basePath.
func NewDocumentStore(basePath string) (*documentStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &documentStore{basePath: basePath, now: time.Now}, nil
}

func (s *documentStore) documentPath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid document id %q", id)
	}
	return filepath.Join(s.basePath, id+fileExt), nil
}

func (s *documentStore) read(id string) (*core.Document, error) {
	filePath, err := s.documentPath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.NotFound(id)
		}
		return nil, err
	}

	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *documentStore) write(doc *core.Document) error {
	filePath, err := s.documentPath(doc.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	// write to a temp file first so readers never observe a torn document
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	doc, err := s.read(id)
	if err != nil {
		if errors.Is(err, core.ErrDocumentNotFound) {
			log.WithField("error", "document not found").Warn("Document with specified ID not found")
		} else {
			log.WithError(err).Error("Failed to retrieve document")
		}
		return nil, err
	}

	log.Debug("Document retrieved successfully")
	return doc, nil
}

func (s *documentStore) ListByRoom(ctx context.Context, roomID string) ([]*core.Document, error) {
	log := logrus.WithFields(logrus.Fields{"room_id": roomID, "path": s.basePath})

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		log.WithError(err).Error("Failed to read storage directory")
		return nil, err
	}

	docs := make([]*core.Document, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		doc, err := s.read(strings.TrimSuffix(entry.Name(), fileExt))
		if err != nil {
			log.WithError(err).Warnf("Failed to read document file %s, skipping", entry.Name())
			continue
		}
		if doc.RoomID == roomID {
			docs = append(docs, doc)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

func (s *documentStore) Create(ctx context.Context, document *core.Document) (*core.Document, error) {
	doc := *document
	doc.ApplyDefaults()
	doc.ID = ulid.Make().String()
	now := s.now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	log := logrus.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"room_id":     doc.RoomID,
	})

	s.mu.Lock()
	err := s.write(&doc)
	s.mu.Unlock()
	if err != nil {
		log.WithError(err).Error("Failed to create document")
		return nil, err
	}

	log.Info("Document created successfully")
	return &doc, nil
}

func (s *documentStore) Update(ctx context.Context, id string, update core.DocumentUpdate) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(id)
	if err != nil {
		log.WithError(err).Warn("Failed to load document for update")
		return nil, err
	}

	update.Apply(doc, s.now().UTC())
	if err := s.write(doc); err != nil {
		log.WithError(err).Error("Failed to write document")
		return nil, err
	}

	log.Debug("Document updated successfully")
	return doc, nil
}

func (s *documentStore) Delete(ctx context.Context, id string) error {
	filePath, err := s.documentPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.NotFound(id)
		}
		logrus.WithField("document_id", id).WithError(err).Error("Failed to delete document file")
		return err
	}

	logrus.WithField("document_id", id).Info("Document deleted successfully")
	return nil
}

func (s *documentStore) Close() error {
	return nil
}
