package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hedgedoc-server/core"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Mock document store for testing
type mockDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*core.Document
	createErr error
	listErr   error
	findErr   error
}

func newMockStore() *mockDocumentStore {
	return &mockDocumentStore{
		documents: make(map[string]*core.Document),
	}
}

func (m *mockDocumentStore) Create(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *doc
	stored.ApplyDefaults()
	stored.ID = fmt.Sprintf("mock-id-%d", len(m.documents))
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.documents[stored.ID] = &stored
	return &stored, nil
}

func (m *mockDocumentStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, exists := m.documents[id]
	if !exists {
		return nil, core.NotFound(id)
	}
	return doc, nil
}

func (m *mockDocumentStore) ListByRoom(ctx context.Context, roomID string) ([]*core.Document, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []*core.Document
	for _, doc := range m.documents {
		if doc.RoomID == roomID {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (m *mockDocumentStore) Update(ctx context.Context, id string, update core.DocumentUpdate) (*core.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, exists := m.documents[id]
	if !exists {
		return nil, core.NotFound(id)
	}
	update.Apply(doc, time.Now())
	return doc, nil
}

func (m *mockDocumentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[id]; !exists {
		return core.NotFound(id)
	}
	delete(m.documents, id)
	return nil
}

func (m *mockDocumentStore) Close() error { return nil }

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var response Response
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func TestHandleCreate_Success(t *testing.T) {
	store := newMockStore()
	handler := HandleCreate(store)

	body := `{"title":"Notes","content":"# hi","roomId":"demo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}

	response := decodeResponse(t, rec)
	if !response.Success || response.File == nil {
		t.Fatalf("Expected success with a file, got %+v", response)
	}
	if response.File.ID == "" {
		t.Error("Response file ID is empty")
	}
	if response.File.RoomID != "demo" || response.File.Content != "# hi" {
		t.Errorf("Unexpected file: %+v", response.File)
	}

	if len(store.documents) != 1 {
		t.Errorf("Expected 1 document in store, got %d", len(store.documents))
	}
}

func TestHandleCreate_Defaults(t *testing.T) {
	store := newMockStore()
	handler := HandleCreate(store)

	req := httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	handler(rec, req)

	response := decodeResponse(t, rec)
	if response.File == nil {
		t.Fatal("Expected a file in the response")
	}
	if response.File.Title != core.DefaultTitle {
		t.Errorf("Title mismatch: got %q, want %q", response.File.Title, core.DefaultTitle)
	}
	if response.File.RoomID != core.DefaultRoomID {
		t.Errorf("Room mismatch: got %q, want %q", response.File.RoomID, core.DefaultRoomID)
	}
	if response.File.Content != "" {
		t.Errorf("Expected empty content, got %q", response.File.Content)
	}
}

func TestHandleCreate_InvalidBody(t *testing.T) {
	store := newMockStore()
	handler := HandleCreate(store)

	req := httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if response := decodeResponse(t, rec); response.Success || response.Error == "" {
		t.Errorf("Expected an error response, got %+v", response)
	}
}

func TestHandleCreate_StoreError(t *testing.T) {
	store := newMockStore()
	store.createErr = errors.New("database error")
	handler := HandleCreate(store)

	req := httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if response := decodeResponse(t, rec); response.Error != "Failed to create file" {
		t.Errorf("Error mismatch: got %q", response.Error)
	}
}

func TestHandleList(t *testing.T) {
	store := newMockStore()
	for _, room := range []string{"default", "default", "demo"} {
		if _, err := store.Create(context.Background(), &core.Document{RoomID: room}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		url   string
		count int
	}{
		{"default room", "/api/files", 2},
		{"explicit room", "/api/files?room=demo", 1},
		{"empty room", "/api/files?room=nobody", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()

			HandleList(store)(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
			}

			var response ListResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if !response.Success {
				t.Error("Expected success")
			}
			if response.Files == nil {
				t.Error("Expected a files array, got null")
			}
			if len(response.Files) != tt.count {
				t.Errorf("File count mismatch: got %d, want %d", len(response.Files), tt.count)
			}
		})
	}
}

func TestHandleList_StoreError(t *testing.T) {
	store := newMockStore()
	store.listErr = errors.New("connection refused")

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rec := httptest.NewRecorder()

	HandleList(store)(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandleGet(t *testing.T) {
	store := newMockStore()
	doc, _ := store.Create(context.Background(), &core.Document{Title: "Saved", Content: "body"})

	tests := []struct {
		name       string
		id         string
		findErr    error
		wantStatus int
	}{
		{"existing", doc.ID, nil, http.StatusOK},
		{"missing", "nope", nil, http.StatusNotFound},
		{"store error", doc.ID, errors.New("timeout"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.findErr = tt.findErr
			req := withID(httptest.NewRequest(http.MethodGet, "/api/files/"+tt.id, nil), tt.id)
			rec := httptest.NewRecorder()

			HandleGet(store)(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tt.wantStatus)
			}
			response := decodeResponse(t, rec)
			if tt.wantStatus == http.StatusOK && (response.File == nil || response.File.Content != "body") {
				t.Errorf("Unexpected response: %+v", response)
			}
			if tt.wantStatus == http.StatusNotFound && response.Error != "File not found" {
				t.Errorf("Error mismatch: got %q", response.Error)
			}
		})
	}
}

func TestHandleUpdate_Partial(t *testing.T) {
	store := newMockStore()
	doc, _ := store.Create(context.Background(), &core.Document{Title: "Old", Content: "keep me"})

	req := withID(httptest.NewRequest(http.MethodPut, "/api/files/"+doc.ID, strings.NewReader(`{"title":"New"}`)), doc.ID)
	rec := httptest.NewRecorder()

	HandleUpdate(store)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	response := decodeResponse(t, rec)
	if response.File.Title != "New" {
		t.Errorf("Title mismatch: got %q, want %q", response.File.Title, "New")
	}
	if response.File.Content != "keep me" {
		t.Errorf("Content should be untouched, got %q", response.File.Content)
	}
}

func TestHandleUpdate_Errors(t *testing.T) {
	store := newMockStore()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing document", `{"content":"x"}`, http.StatusNotFound},
		{"invalid body", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withID(httptest.NewRequest(http.MethodPut, "/api/files/nope", strings.NewReader(tt.body)), "nope")
			rec := httptest.NewRecorder()

			HandleUpdate(store)(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleDelete(t *testing.T) {
	store := newMockStore()
	doc, _ := store.Create(context.Background(), &core.Document{})

	req := withID(httptest.NewRequest(http.MethodDelete, "/api/files/"+doc.ID, nil), doc.ID)
	rec := httptest.NewRecorder()
	HandleDelete(store)(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if response := decodeResponse(t, rec); response.Message != "File deleted successfully" {
		t.Errorf("Message mismatch: got %q", response.Message)
	}

	req = withID(httptest.NewRequest(http.MethodDelete, "/api/files/"+doc.ID, nil), doc.ID)
	rec = httptest.NewRecorder()
	HandleDelete(store)(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Second delete should be not found, got %d", rec.Code)
	}
}

func TestRoutes(t *testing.T) {
	store := newMockStore()
	srv := httptest.NewServer(Routes(store))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(`{"title":"routed"}`))
	if err != nil {
		t.Fatal(err)
	}
	var created Response
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/" + created.File.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status code mismatch: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
