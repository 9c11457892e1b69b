package memory

import (
	"context"
	"fmt"
	"hedgedoc-server/core"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type documentStore struct {
	mu        sync.RWMutex
	documents map[string]core.Document
	rooms     map[string]int64
	now       func() time.Time
}

func NewDocumentStore() *documentStore {
	return &documentStore{
		documents: make(map[string]core.Document),
		rooms:     make(map[string]int64),
		now:       time.Now,
	}
}

func (s *documentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	s.mu.RLock()
	doc, ok := s.documents[id]
	s.mu.RUnlock()

	if ok {
		log.Debug("Document retrieved successfully")
		return &doc, nil
	}

	log.WithField("error", "document not found").Warn("Document with specified ID not found")
	return nil, core.NotFound(id)
}

func (s *documentStore) ListByRoom(ctx context.Context, roomID string) ([]*core.Document, error) {
	s.mu.RLock()
	docs := make([]*core.Document, 0)
	for _, doc := range s.documents {
		if doc.RoomID == roomID {
			d := doc
			docs = append(docs, &d)
		}
	}
	s.mu.RUnlock()

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
	now := s.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	s.mu.Lock()
	s.documents[doc.ID] = doc
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"document_id":    doc.ID,
		"room_id":        doc.RoomID,
		"content_length": len(doc.Content),
	}).Info("Document created successfully")

	return &doc, nil
}

func (s *documentStore) Update(ctx context.Context, id string, update core.DocumentUpdate) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	s.mu.Lock()
	doc, ok := s.documents[id]
	if !ok {
		s.mu.Unlock()
		log.WithField("error", "document not found").Warn("Document with specified ID not found")
		return nil, core.NotFound(id)
	}
	update.Apply(&doc, s.now())
	s.documents[id] = doc
	s.mu.Unlock()

	log.WithField("content_length", len(doc.Content)).Debug("Document updated successfully")
	return &doc, nil
}

func (s *documentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return core.NotFound(id)
	}
	delete(s.documents, id)
	logrus.WithField("document_id", id).Info("Document deleted successfully")
	return nil
}

func (s *documentStore) Close() error {
	return nil
}

func (s *documentStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	s.rooms[roomID] = s.now().UnixMilli()
	s.mu.Unlock()

	return nil
}

func (s *documentStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for id, last := range s.rooms {
		rooms = append(rooms, core.Room{ID: id, LastActive: last})
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})

	return rooms, nil
}
