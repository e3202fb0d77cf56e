package history

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promptlab/promptlab/pkg/logging"
)

// Handler exposes raw history records for inspection and cleanup. Deletion is
// destructive; the router is expected to wrap these routes in admin auth.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("history: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{entityID}", h.QueryByEntity)
	r.Delete("/{entityID}/{state}", h.Delete)
	return r
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) QueryByEntity(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.QueryByEntity(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		h.logger.Error("failed to query history", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	state := State(chi.URLParam(r, "state"))
	switch state {
	case StateCurrent, StateLast, StateReset:
	default:
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	err := h.store.Delete(r.Context(), entityID, state)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		h.logger.Error("failed to delete history record", "entity_id", entityID, "state", state, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		h.logger.Info("history record deleted", "entity_id", entityID, "state", state)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
