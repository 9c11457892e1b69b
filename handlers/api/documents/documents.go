package documents

import (
	"encoding/json"
	"errors"
	"hedgedoc-server/core"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	CreateRequest struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		RoomID  string `json:"roomId"`
	}

	// UpdateRequest leaves absent fields untouched.
	UpdateRequest struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}

	Response struct {
		Success bool           `json:"success"`
		File    *core.Document `json:"file,omitempty"`
		Message string         `json:"message,omitempty"`
		Error   string         `json:"error,omitempty"`
	}

	ListResponse struct {
		Success bool             `json:"success"`
		Files   []*core.Document `json:"files"`
	}
)

func Routes(store core.DocumentStore) chi.Router {
	r := chi.NewRouter()
	r.Get("/", HandleList(store))
	r.Post("/", HandleCreate(store))
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", HandleGet(store))
		r.Put("/", HandleUpdate(store))
		r.Delete("/", HandleDelete(store))
	})
	return r
}

func respond(w http.ResponseWriter, r *http.Request, status int, resp any) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	respond(w, r, status, Response{Success: false, Error: message})
}

// HandleList lists the documents of a room, most recently updated first.
func HandleList(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			roomID = core.DefaultRoomID
		}

		files, err := store.ListByRoom(r.Context(), roomID)
		if err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Error("Failed to list documents")
			fail(w, r, http.StatusInternalServerError, "Failed to fetch files")
			return
		}
		if files == nil {
			files = []*core.Document{}
		}

		respond(w, r, http.StatusOK, ListResponse{Success: true, Files: files})
	}
}

func HandleCreate(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Failed to decode create request")
			fail(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		doc, err := store.Create(r.Context(), &core.Document{
			Title:   req.Title,
			Content: req.Content,
			RoomID:  req.RoomID,
		})
		if err != nil {
			logrus.WithError(err).Error("Failed to create document")
			fail(w, r, http.StatusInternalServerError, "Failed to create file")
			return
		}

		logrus.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"room_id":     doc.RoomID,
		}).Info("Created document")
		respond(w, r, http.StatusOK, Response{Success: true, File: doc})
	}
}

func HandleGet(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := store.FindID(r.Context(), id)
		if errors.Is(err, core.ErrDocumentNotFound) {
			fail(w, r, http.StatusNotFound, "File not found")
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("document_id", id).Error("Failed to get document")
			fail(w, r, http.StatusInternalServerError, "Failed to fetch file")
			return
		}

		respond(w, r, http.StatusOK, Response{Success: true, File: doc})
	}
}

func HandleUpdate(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Failed to decode update request")
			fail(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		doc, err := store.Update(r.Context(), id, core.DocumentUpdate{
			Title:   req.Title,
			Content: req.Content,
		})
		if errors.Is(err, core.ErrDocumentNotFound) {
			fail(w, r, http.StatusNotFound, "File not found")
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("document_id", id).Error("Failed to update document")
			fail(w, r, http.StatusInternalServerError, "Failed to update file")
			return
		}

		respond(w, r, http.StatusOK, Response{Success: true, File: doc})
	}
}

func HandleDelete(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := store.Delete(r.Context(), id)
		if errors.Is(err, core.ErrDocumentNotFound) {
			fail(w, r, http.StatusNotFound, "File not found")
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("document_id", id).Error("Failed to delete document")
			fail(w, r, http.StatusInternalServerError, "Failed to delete file")
			return
		}

		respond(w, r, http.StatusOK, Response{Success: true, Message: "File deleted successfully"})
	}
}
