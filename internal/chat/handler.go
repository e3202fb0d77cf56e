package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/pkg/logging"
)

// Handler exposes the chat feature. Like the split-test handler it owns the
// active-session slot; the service stays stateless.
type Handler struct {
	service *Service
	logger  *logging.Logger

	mu      sync.RWMutex
	current *Session
}

// NewHandler creates the chat handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("chat: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the chat endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Start)
	r.Get("/current", h.GetCurrent)
	r.Post("/current/messages", h.SendMessage)
	r.Post("/current/reset", h.Reset)
	r.Post("/current/restore", h.Restore)
	return r
}

// StartRequest is the request body for starting a chat.
type StartRequest struct {
	RecipeID    string  `json:"recipe_id"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.service.Start(r.Context(), req.RecipeID, req.Model, req.Temperature)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.setCurrent(session)
	h.logger.Info("chat started", "session_id", session.ID, "recipe", session.Recipe.Title)
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	session := h.getCurrent()
	if session == nil {
		http.Error(w, "no active chat", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// SendMessageRequest is the request body for one chat exchange.
type SendMessageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	session := h.getCurrent()
	if session == nil {
		http.Error(w, "no active chat", http.StatusNotFound)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	next, err := h.service.SendMessage(r.Context(), session, req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.setCurrent(next)
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	session := h.getCurrent()
	if session == nil {
		http.Error(w, "no active chat", http.StatusNotFound)
		return
	}

	next, err := h.service.Reset(r.Context(), session)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.setCurrent(next)
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	session := h.getCurrent()
	if session == nil {
		http.Error(w, "no active chat", http.StatusNotFound)
		return
	}

	next, err := h.service.Restore(r.Context(), session)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.setCurrent(next)
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) getCurrent() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *Handler) setCurrent(s *Session) {
	h.mu.Lock()
	h.current = s
	h.mu.Unlock()
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var providerErr *llm.ProviderError
	switch {
	case errors.Is(err, catalog.ErrRecipeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNothingToRestore):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidRecipe):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &providerErr):
		http.Error(w, providerErr.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("chat request failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
