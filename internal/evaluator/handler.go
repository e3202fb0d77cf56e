package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/pkg/logging"
)

// Handler exposes recipe evaluation over HTTP. Every completed evaluation is
// reconciled into the history store so the timeline can report pass rates.
type Handler struct {
	evaluator *Evaluator
	store     history.Store
	logger    *logging.Logger
}

func NewHandler(evaluator *Evaluator, store history.Store, logger *logging.Logger) *Handler {
	if evaluator == nil {
		panic("evaluator: evaluator cannot be nil")
	}
	if store == nil {
		panic("evaluator: history store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{evaluator: evaluator, store: store, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Evaluate)
	return r
}

// EvaluateRequest is the request body for running an evaluation.
type EvaluateRequest struct {
	RecipeID string `json:"recipe_id"`
	Message  string `json:"message"`
}

// EvaluationRecord is the persisted shape of one evaluation run.
type EvaluationRecord struct {
	RecipeID string `json:"recipe_id"`
	Message  string `json:"message"`
	Result   Result `json:"result"`
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RecipeID == "" || req.Message == "" {
		http.Error(w, "recipe_id and message are required", http.StatusBadRequest)
		return
	}

	result, err := h.evaluator.Evaluate(r.Context(), req.RecipeID, req.Message)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.persist(r.Context(), req, result)

	h.logger.Info("evaluation completed",
		"recipe_id", req.RecipeID, "score", result.Verdict.Score, "passed", result.Verdict.Passed)
	writeJSON(w, http.StatusOK, result)
}

// persist stores the evaluation as the recipe's current evaluation record.
// Autosave failures are logged, the response already carries the result.
func (h *Handler) persist(ctx context.Context, req EvaluateRequest, result *Result) {
	payload, err := json.Marshal(EvaluationRecord{
		RecipeID: req.RecipeID,
		Message:  req.Message,
		Result:   *result,
	})
	if err == nil {
		err = h.store.Upsert(ctx, &history.Record{
			ID:        uuid.NewString(),
			EntityID:  req.RecipeID,
			Kind:      history.KindEvaluation,
			State:     history.StateCurrent,
			CreatedAt: time.Now().UTC(),
			Payload:   payload,
		})
	}
	if err != nil {
		h.logger.Error("failed to persist evaluation", "recipe_id", req.RecipeID, "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var providerErr *llm.ProviderError
	switch {
	case errors.Is(err, catalog.ErrRecipeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidRecipe):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &providerErr):
		http.Error(w, providerErr.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("evaluation request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
