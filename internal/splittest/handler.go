package splittest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/pkg/logging"
)

// Handler exposes the split-test lifecycle over HTTP. The handler owns the
// persistence checkpoints: after every turn, on feedback, on finalize and on
// reset the active session is reconciled into the history store.
type Handler struct {
	engine   *Engine
	sessions *SessionRegistry
	repo     catalog.Repository
	store    history.Store
	logger   *logging.Logger
}

// NewHandler creates the split-test handler.
func NewHandler(engine *Engine, sessions *SessionRegistry, repo catalog.Repository, store history.Store, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("splittest: engine cannot be nil")
	}
	if sessions == nil {
		panic("splittest: session registry cannot be nil")
	}
	if repo == nil {
		panic("splittest: catalog repository cannot be nil")
	}
	if store == nil {
		panic("splittest: history store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, sessions: sessions, repo: repo, store: store, logger: logger}
}

// Routes mounts the split-test endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.StartSession)
	r.Get("/current", h.GetCurrent)
	r.Post("/current/turns", h.SubmitTurn)
	r.Post("/current/messages/{messageID}/feedback", h.RecordFeedback)
	r.Post("/current/finalize", h.Finalize)
	r.Post("/current/reset", h.Reset)
	return r
}

// StartSessionRequest is the request body for starting a split test.
type StartSessionRequest struct {
	RecipeAID   string  `json:"recipe_a_id"`
	RecipeBID   string  `json:"recipe_b_id"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	recipeA, err := h.repo.GetRecipe(r.Context(), req.RecipeAID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	recipeB, err := h.repo.GetRecipe(r.Context(), req.RecipeBID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	session, err := h.engine.NewSession(*recipeA, *recipeB, req.Model, req.Temperature)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Replacing the slot discards unsaved state from the previous session;
	// callers that want retention reset or finalize first.
	h.sessions.Replace(session)
	h.persist(r.Context(), session)

	h.logger.Info("split test started",
		"session_id", session.ID, "recipe_a", recipeA.Title, "recipe_b", recipeB.Title, "model", session.Model)
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Current()
	if session == nil {
		http.Error(w, "no active split test", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// SubmitTurnRequest is the request body for submitting a turn.
type SubmitTurnRequest struct {
	UserText string `json:"user_text"`
}

func (h *Handler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Current()
	if session == nil {
		http.Error(w, "no active split test", http.StatusNotFound)
		return
	}

	var req SubmitTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	next, err := h.engine.SubmitTurn(r.Context(), session, req.UserText)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sessions.Replace(next)
	h.persist(r.Context(), next)
	writeJSON(w, http.StatusOK, next)
}

// FeedbackRequest is the request body for recording feedback on a turn.
type FeedbackRequest struct {
	SelectedOption Option   `json:"selected_option"`
	Reaction       Reaction `json:"reaction"`
	Comment        string   `json:"comment"`
	Deleted        bool     `json:"deleted"`
}

func (h *Handler) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Current()
	if session == nil {
		http.Error(w, "no active split test", http.StatusNotFound)
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	next, err := h.engine.RecordFeedback(session, chi.URLParam(r, "messageID"), Feedback{
		SelectedOption: req.SelectedOption,
		Reaction:       req.Reaction,
		Comment:        req.Comment,
		Deleted:        req.Deleted,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sessions.Replace(next)
	h.persist(r.Context(), next)
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Current()
	if session == nil {
		http.Error(w, "no active split test", http.StatusNotFound)
		return
	}

	next, err := h.engine.FinalizeSession(r.Context(), session)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.sessions.Replace(next)
	h.persist(r.Context(), next)
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Current()
	if session == nil {
		http.Error(w, "no active split test", http.StatusNotFound)
		return
	}

	next, err := h.engine.ResetSession(session)
	if err != nil {
		h.respondError(w, err)
		return
	}

	outgoing, err := sessionRecord(session)
	if err == nil {
		outgoing.WasReset = true
		incoming, incErr := sessionRecord(next)
		if incErr != nil {
			err = incErr
		} else {
			err = h.store.SupersedeAndInsert(r.Context(), outgoing, incoming)
		}
	}
	if err != nil {
		h.logger.Error("failed to reconcile reset", "session_id", session.ID, "error", err)
		http.Error(w, "failed to persist reset", http.StatusInternalServerError)
		return
	}

	h.sessions.Replace(next)
	writeJSON(w, http.StatusOK, next)
}

// persist reconciles the session into the history store. A failed autosave
// is logged, not surfaced: the in-memory session remains authoritative.
func (h *Handler) persist(ctx context.Context, session *Session) {
	record, err := sessionRecord(session)
	if err == nil {
		err = h.store.Upsert(ctx, record)
	}
	if err != nil {
		h.logger.Error("failed to autosave split test", "session_id", session.ID, "error", err)
	}
}

// sessionRecord wraps a session as the current history record of its recipe
// pair. The pair, not the session id, is the reconciliation entity so that
// resets supersede rather than accumulate.
func sessionRecord(session *Session) (*history.Record, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	return &history.Record{
		ID:        session.ID,
		EntityID:  session.RecipeA.ID + ":" + session.RecipeB.ID,
		Kind:      history.KindSplitTest,
		State:     history.StateCurrent,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var analysisErr *AnalysisError
	var providerErr *llm.ProviderError
	switch {
	case errors.Is(err, catalog.ErrRecipeNotFound), errors.Is(err, ErrMessageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrEmptyUserText), errors.Is(err, ErrNilSession):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInvalidRecipe), errors.Is(err, ErrNotReadyForAnalysis):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrTurnInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &analysisErr):
		// Ship the raw text so the operator can inspect what failed to parse
		// and retry.
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": analysisErr.Error(),
			"raw":   analysisErr.Raw,
		})
	case errors.As(err, &providerErr):
		http.Error(w, providerErr.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("split test request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
