// Package web serves the documents API: document CRUD, the lightweight
// modifiedAt probe, persisted history stacks, a websocket watch stream, and
// the metrics endpoint.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/internal/store"
	"github.com/haasonsaas/easel/pkg/models"
)

// Handler serves the documents API over a store.
type Handler struct {
	store    store.Store
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a handler over the given store.
func NewHandler(st store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    st,
		hub:      NewHub(),
		logger:   logger.With("component", "web"),
		upgrader: newUpgrader(),
	}
}

// Hub returns the watch-event hub.
func (h *Handler) Hub() *Hub { return h.hub }

// Router builds the API routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/documents", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/documents", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/documents/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}", h.handlePut).Methods(http.MethodPut)
	r.HandleFunc("/documents/{id}", h.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/documents/{id}/modifiedAt", h.handleModifiedAt).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}/history", h.handleGetHistory).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}/history", h.handlePutHistory).Methods(http.MethodPut)

	r.HandleFunc("/watch", h.handleWatch).Methods(http.MethodGet)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.List(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var doc models.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.jsonError(w, "invalid document payload", http.StatusBadRequest)
		return
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if err := h.store.Create(r.Context(), &doc); err != nil {
		h.storeError(w, err)
		return
	}
	h.hub.Broadcast(Event{Type: "created", DocumentID: doc.ID, ModifiedAt: doc.ModifiedAt})
	h.writeJSON(w, http.StatusCreated, &doc)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var doc models.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.jsonError(w, "invalid document payload", http.StatusBadRequest)
		return
	}
	// The path identifies the document; a mismatched body id is rejected
	// rather than silently rewritten.
	if doc.ID == "" {
		doc.ID = id
	} else if doc.ID != id {
		h.jsonError(w, "document id does not match path", http.StatusBadRequest)
		return
	}
	modifiedAt, err := h.store.Put(r.Context(), &doc)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.hub.Broadcast(Event{Type: "modified", DocumentID: id, ModifiedAt: modifiedAt})
	h.writeJSON(w, http.StatusOK, map[string]time.Time{"modifiedAt": modifiedAt})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, err)
		return
	}
	h.hub.Broadcast(Event{Type: "deleted", DocumentID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleModifiedAt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	modifiedAt, err := h.store.ModifiedAt(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]time.Time{"modifiedAt": modifiedAt})
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	stack, err := h.store.GetHistory(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stack)
}

func (h *Handler) handlePutHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	raw, err := readBody(r)
	if err != nil {
		h.jsonError(w, "invalid history payload", http.StatusBadRequest)
		return
	}
	stack, err := history.DecodeStack(raw)
	if err != nil {
		h.jsonError(w, "invalid history payload", http.StatusBadRequest)
		return
	}
	if err := h.store.PutHistory(r.Context(), id, stack); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrAlreadyExists):
		h.jsonError(w, "already exists", http.StatusConflict)
	case errors.Is(err, store.ErrCorruptHistory):
		h.logger.Warn("stored history corrupt", "error", err)
		h.jsonError(w, "stored history corrupt", http.StatusUnprocessableEntity)
	default:
		h.logger.Error("store error", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
