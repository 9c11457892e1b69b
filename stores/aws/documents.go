package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hedgedoc-server/core"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "documents/"

// objectAPI is the subset of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type s3Store struct {
	client objectAPI
	bucket string
	// S3 has no conditional update here; writes from this process are serialised.
	mu  sync.Mutex
	now func() time.Time
}

// NewDocumentStore creates an S3-backed store using the default AWS credential chain.
func NewDocumentStore(ctx context.Context, bucketName string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newStore(s3.NewFromConfig(cfg), bucketName), nil
}

func newStore(client objectAPI, bucket string) *s3Store {
	return &s3Store{client: client, bucket: bucket, now: time.Now}
}

func documentKey(id string) (string, error) {
	if id == "" || path.Base(id) != id || id == "." || id == ".." {
		return "", fmt.Errorf("invalid document id %q", id)
	}
	return keyPrefix + id + ".json", nil
}

func (s *s3Store) get(ctx context.Context, id string) (*core.Document, error) {
	key, err := documentKey(id)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.NotFound(id)
		}
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document data: %w", err)
	}

	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *s3Store) put(ctx context.Context, doc *core.Document) error {
	key, err := documentKey(doc.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *s3Store) FindID(ctx context.Context, id string) (*core.Document, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		logrus.WithField("document_id", id).WithError(err).Warn("Failed to retrieve document")
		return nil, err
	}
	return doc, nil
}

func (s *s3Store) ListByRoom(ctx context.Context, roomID string) ([]*core.Document, error) {
	docs := make([]*core.Document, 0)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		for _, object := range page.Contents {
			id := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(object.Key), keyPrefix), ".json")
			doc, err := s.get(ctx, id)
			if err != nil {
				logrus.WithField("key", aws.ToString(object.Key)).WithError(err).Warn("Failed to read document object, skipping")
				continue
			}
			if doc.RoomID == roomID {
				docs = append(docs, doc)
			}
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

func (s *s3Store) Create(ctx context.Context, document *core.Document) (*core.Document, error) {
	doc := *document
	doc.ApplyDefaults()
	doc.ID = ulid.Make().String()
	now := s.now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := s.put(ctx, &doc); err != nil {
		logrus.WithField("document_id", doc.ID).WithError(err).Error("Failed to create document")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"document_id": doc.ID, "room_id": doc.RoomID}).Info("Document created successfully")
	return &doc, nil
}

func (s *s3Store) Update(ctx context.Context, id string, update core.DocumentUpdate) (*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	update.Apply(doc, s.now().UTC())
	if err := s.put(ctx, doc); err != nil {
		logrus.WithField("document_id", id).WithError(err).Error("Failed to update document")
		return nil, err
	}
	return doc, nil
}

func (s *s3Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// DeleteObject succeeds for missing keys, so check existence first.
	if _, err := s.get(ctx, id); err != nil {
		return err
	}

	key, _ := documentKey(id)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func (s *s3Store) Close() error {
	return nil
}
