package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promptlab/promptlab/pkg/logging"
)

// Handler handles HTTP requests for the prompt/recipe catalog.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new catalog handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("catalog: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Routes mounts the catalog CRUD endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/prompts", func(r chi.Router) {
		r.Get("/", h.ListPrompts)
		r.Post("/", h.CreatePrompt)
		r.Get("/{id}", h.GetPrompt)
		r.Put("/{id}", h.UpdatePrompt)
		r.Delete("/{id}", h.DeletePrompt)
	})
	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", h.ListRecipes)
		r.Post("/", h.CreateRecipe)
		r.Get("/{id}", h.GetRecipe)
		r.Put("/{id}", h.UpdateRecipe)
		r.Delete("/{id}", h.DeleteRecipe)
	})
	return r
}

func (h *Handler) CreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req CreatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	prompt, err := h.repo.CreatePrompt(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to create prompt", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("prompt created", "id", prompt.ID, "title", prompt.Title)
	writeJSON(w, http.StatusCreated, prompt)
}

func (h *Handler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.repo.GetPrompt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (h *Handler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.repo.ListPrompts(r.Context())
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	if prompts == nil {
		prompts = []*Prompt{}
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (h *Handler) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req CreatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	prompt, err := h.repo.UpdatePrompt(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (h *Handler) DeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeletePrompt(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req CreateRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	recipe, err := h.repo.CreateRecipe(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to create recipe", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("recipe created", "id", recipe.ID, "title", recipe.Title)
	writeJSON(w, http.StatusCreated, recipe)
}

func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.repo.GetRecipe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *Handler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.repo.ListRecipes(r.Context())
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	if recipes == nil {
		recipes = []*Recipe{}
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *Handler) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	var req CreateRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	recipe, err := h.repo.UpdateRecipe(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *Handler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteRecipe(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPromptNotFound), errors.Is(err, ErrRecipeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrMissingTitle), errors.Is(err, ErrMissingContent), errors.Is(err, ErrNoPromptRefs):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("catalog request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
