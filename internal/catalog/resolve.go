package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ResolvedRecipe is a recipe joined with the prompts it could resolve.
// Dangling lists the prompt ids that no longer exist; resolution proceeds
// with whatever resolved, and the caller decides whether an empty result is
// fatal.
type ResolvedRecipe struct {
	Recipe   *Recipe
	Prompts  []*Prompt
	Dangling []string
}

// Resolve looks up each of the recipe's prompt references in order. Missing
// prompts are collected into Dangling rather than failing the whole
// resolution; any other repository error aborts.
func Resolve(ctx context.Context, repo Repository, recipe *Recipe) (*ResolvedRecipe, error) {
	if recipe == nil {
		return nil, ErrRecipeNotFound
	}

	resolved := &ResolvedRecipe{Recipe: recipe}
	for _, id := range recipe.PromptIDs {
		prompt, err := repo.GetPrompt(ctx, id)
		if err != nil {
			if errors.Is(err, ErrPromptNotFound) {
				resolved.Dangling = append(resolved.Dangling, id)
				continue
			}
			return nil, fmt.Errorf("catalog: resolving prompt %s for recipe %s: %w", id, recipe.ID, err)
		}
		resolved.Prompts = append(resolved.Prompts, prompt)
	}
	return resolved, nil
}

// SystemPrompt renders the effective system prompt: each resolved prompt as
// "Title:\nContent", in recipe order, joined by blank lines. Empty when no
// prompt resolved.
func (r *ResolvedRecipe) SystemPrompt() string {
	parts := make([]string, 0, len(r.Prompts))
	for _, p := range r.Prompts {
		parts = append(parts, fmt.Sprintf("%s:\n%s", p.Title, p.Content))
	}
	return strings.Join(parts, "\n\n")
}
