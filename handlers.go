package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Handler handles HTTP requests for the parse and collection endpoints.
type Handler struct {
	store    *CollectionStore
	provider Provider // nil when no credentials are configured
	logger   *log.Logger
	redis    bool
}

// NewHandler creates a Handler with dependencies. provider may be nil; the
// parse endpoint then reports the missing provider per request.
func NewHandler(store *CollectionStore, provider Provider, logger *log.Logger, redis bool) *Handler {
	return &Handler{store: store, provider: provider, logger: logger, redis: redis}
}

// handleIndex serves service metadata on GET /.
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}
	endpoints := []string{"/api/parse"}
	for _, name := range collections {
		endpoints = append(endpoints, "/api/"+name)
	}
	writeJSON(w, http.StatusOK, ServiceInfo{
		Name:      serviceName,
		Version:   serviceVersion,
		Endpoints: endpoints,
		Redis:     h.redis,
	})
}

// handleParse processes POST /api/parse: builds the mode prompt, relays the
// text to the resolved provider, and returns the model's JSON object verbatim.
func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}
	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	if h.provider == nil {
		writeError(w, http.StatusInternalServerError, ErrNoProvider.Error())
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = "alarm"
	}
	out, err := h.provider.Complete(r.Context(), buildPrompt(mode, req.Text))
	if err != nil {
		h.logger.Printf("parse via %s failed: %v", h.provider.Name(), err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The provider's adherence to the mode schema is assumed, not enforced:
	// the object is decoded only to prove it is JSON, then returned as-is.
	var result json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(out)), &result); err != nil {
		h.logger.Printf("parse via %s returned malformed JSON: %v", h.provider.Name(), err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// collectionHandler routes requests without an id: GET for list, POST for
// create. One generic handler serves every collection, parameterized by name.
func (h *Handler) collectionHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleListItems(w, r, name)
		case http.MethodPost:
			h.handleCreateItem(w, r, name)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		}
	}
}

// collectionItemHandler routes requests with an id: GET and DELETE.
func (h *Handler) collectionItemHandler(name string) http.HandlerFunc {
	prefix := "/api/" + name + "/"
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, prefix)
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGetItem(w, r, name, id)
		case http.MethodDelete:
			h.handleDeleteItem(w, r, name, id)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		}
	}
}

// handleListItems processes GET /api/{collection}.
func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request, name string) {
	items, err := h.store.List(r.Context(), name)
	if err != nil {
		h.logger.Printf("error listing %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateItem processes POST /api/{collection}: keeps a caller-supplied
// id or assigns a fresh one, stamps createdAt, appends, returns 201 with the
// stored item.
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request, name string) {
	fields := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if id, ok := fields["id"].(string); !ok || id == "" {
		fields["id"] = uuid.NewString()
	}
	fields["createdAt"] = time.Now().UTC().Format(time.RFC3339)

	item, err := json.Marshal(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	stored, err := h.store.Append(r.Context(), name, item)
	if err != nil {
		h.logger.Printf("error creating item in %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	w.Header().Set("Location", "/api/"+name+"/"+gjson.GetBytes(stored, "id").String())
	writeJSON(w, http.StatusCreated, stored)
}

// handleGetItem processes GET /api/{collection}/{id}.
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request, name, id string) {
	item, err := h.store.FindByID(r.Context(), name, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
		} else {
			h.logger.Printf("error getting item %s/%s: %v", name, id, err)
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteItem processes DELETE /api/{collection}/{id}. Deleting an
// unknown id acknowledges the same way as deleting an existing one.
func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request, name, id string) {
	if err := h.store.RemoveByID(r.Context(), name, id); err != nil {
		h.logger.Printf("error deleting item %s/%s: %v", name, id, err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the fixed {"error": msg} body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
