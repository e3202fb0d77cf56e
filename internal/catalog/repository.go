package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for prompt and recipe storage.
type Repository interface {
	CreatePrompt(ctx context.Context, req *CreatePromptRequest) (*Prompt, error)
	GetPrompt(ctx context.Context, id string) (*Prompt, error)
	ListPrompts(ctx context.Context) ([]*Prompt, error)
	UpdatePrompt(ctx context.Context, id string, req *CreatePromptRequest) (*Prompt, error)
	DeletePrompt(ctx context.Context, id string) error

	CreateRecipe(ctx context.Context, req *CreateRecipeRequest) (*Recipe, error)
	GetRecipe(ctx context.Context, id string) (*Recipe, error)
	ListRecipes(ctx context.Context) ([]*Recipe, error)
	UpdateRecipe(ctx context.Context, id string, req *CreateRecipeRequest) (*Recipe, error)
	DeleteRecipe(ctx context.Context, id string) error
}

// InMemoryRepository is a Repository backed by in-memory maps. Used for
// development and tests.
type InMemoryRepository struct {
	mu          sync.RWMutex
	prompts     map[string]*Prompt
	recipes     map[string]*Recipe
	promptOrder []string
	recipeOrder []string
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		prompts: make(map[string]*Prompt),
		recipes: make(map[string]*Recipe),
	}
}

var _ Repository = (*InMemoryRepository)(nil)

func (r *InMemoryRepository) CreatePrompt(ctx context.Context, req *CreatePromptRequest) (*Prompt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	prompt := &Prompt{
		ID:              uuid.New().String(),
		Title:           req.Title,
		Content:         req.Content,
		ExampleMessages: req.ExampleMessages,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	r.mu.Lock()
	r.prompts[prompt.ID] = prompt
	r.promptOrder = append(r.promptOrder, prompt.ID)
	r.mu.Unlock()

	return copyPrompt(prompt), nil
}

func (r *InMemoryRepository) GetPrompt(ctx context.Context, id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prompt, ok := r.prompts[id]
	if !ok {
		return nil, ErrPromptNotFound
	}
	return copyPrompt(prompt), nil
}

func (r *InMemoryRepository) ListPrompts(ctx context.Context) ([]*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Prompt, 0, len(r.promptOrder))
	for _, id := range r.promptOrder {
		if p, ok := r.prompts[id]; ok {
			out = append(out, copyPrompt(p))
		}
	}
	return out, nil
}

func (r *InMemoryRepository) UpdatePrompt(ctx context.Context, id string, req *CreatePromptRequest) (*Prompt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prompt, ok := r.prompts[id]
	if !ok {
		return nil, ErrPromptNotFound
	}
	updated := *prompt
	updated.Title = req.Title
	updated.Content = req.Content
	updated.ExampleMessages = req.ExampleMessages
	updated.UpdatedAt = time.Now().UTC()
	r.prompts[id] = &updated
	return copyPrompt(&updated), nil
}

func (r *InMemoryRepository) DeletePrompt(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.prompts[id]; !ok {
		return ErrPromptNotFound
	}
	delete(r.prompts, id)
	return nil
}

func (r *InMemoryRepository) CreateRecipe(ctx context.Context, req *CreateRecipeRequest) (*Recipe, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	recipe := &Recipe{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		PromptIDs:   append([]string(nil), req.PromptIDs...),
		Params:      req.Params,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.recipes[recipe.ID] = recipe
	r.recipeOrder = append(r.recipeOrder, recipe.ID)
	r.mu.Unlock()

	return copyRecipe(recipe), nil
}

func (r *InMemoryRepository) GetRecipe(ctx context.Context, id string) (*Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipe, ok := r.recipes[id]
	if !ok {
		return nil, ErrRecipeNotFound
	}
	return copyRecipe(recipe), nil
}

func (r *InMemoryRepository) ListRecipes(ctx context.Context) ([]*Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Recipe, 0, len(r.recipeOrder))
	for _, id := range r.recipeOrder {
		if rec, ok := r.recipes[id]; ok {
			out = append(out, copyRecipe(rec))
		}
	}
	return out, nil
}

func (r *InMemoryRepository) UpdateRecipe(ctx context.Context, id string, req *CreateRecipeRequest) (*Recipe, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	recipe, ok := r.recipes[id]
	if !ok {
		return nil, ErrRecipeNotFound
	}
	updated := *recipe
	updated.Title = req.Title
	updated.Description = req.Description
	updated.PromptIDs = append([]string(nil), req.PromptIDs...)
	updated.Params = req.Params
	updated.UpdatedAt = time.Now().UTC()
	r.recipes[id] = &updated
	return copyRecipe(&updated), nil
}

func (r *InMemoryRepository) DeleteRecipe(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.recipes[id]; !ok {
		return ErrRecipeNotFound
	}
	delete(r.recipes, id)
	return nil
}

func copyPrompt(p *Prompt) *Prompt {
	out := *p
	out.ExampleMessages = append([]ExampleMessage(nil), p.ExampleMessages...)
	return &out
}

func copyRecipe(rec *Recipe) *Recipe {
	out := *rec
	out.PromptIDs = append([]string(nil), rec.PromptIDs...)
	out.Params.StopSequences = append([]string(nil), rec.Params.StopSequences...)
	return &out
}
