package catalog

import (
	"context"
	"testing"
)

func TestResolveBuildsSystemPrompt(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	tone, err := repo.CreatePrompt(ctx, &CreatePromptRequest{Title: "Tone", Content: "Be warm and direct."})
	if err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}
	scope, err := repo.CreatePrompt(ctx, &CreatePromptRequest{Title: "Scope", Content: "Stay on topic."})
	if err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}

	recipe, err := repo.CreateRecipe(ctx, &CreateRecipeRequest{
		Title:     "Default",
		PromptIDs: []string{tone.ID, scope.ID},
	})
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	resolved, err := Resolve(ctx, repo, recipe)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved.Dangling) != 0 {
		t.Errorf("Dangling = %v, want empty", resolved.Dangling)
	}

	want := "Tone:\nBe warm and direct.\n\nScope:\nStay on topic."
	if got := resolved.SystemPrompt(); got != want {
		t.Errorf("SystemPrompt = %q, want %q", got, want)
	}
}

func TestResolveCollectsDanglingReferences(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	tone, err := repo.CreatePrompt(ctx, &CreatePromptRequest{Title: "Tone", Content: "Be warm."})
	if err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}

	recipe, err := repo.CreateRecipe(ctx, &CreateRecipeRequest{
		Title:     "Partial",
		PromptIDs: []string{"gone-1", tone.ID, "gone-2"},
	})
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	resolved, err := Resolve(ctx, repo, recipe)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved.Prompts) != 1 || resolved.Prompts[0].ID != tone.ID {
		t.Errorf("Prompts = %+v", resolved.Prompts)
	}
	if len(resolved.Dangling) != 2 || resolved.Dangling[0] != "gone-1" || resolved.Dangling[1] != "gone-2" {
		t.Errorf("Dangling = %v", resolved.Dangling)
	}
	if resolved.SystemPrompt() != "Tone:\nBe warm." {
		t.Errorf("SystemPrompt = %q", resolved.SystemPrompt())
	}
}

func TestResolveAllDangling(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	recipe, err := repo.CreateRecipe(ctx, &CreateRecipeRequest{
		Title:     "Broken",
		PromptIDs: []string{"gone"},
	})
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	resolved, err := Resolve(ctx, repo, recipe)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved.Prompts) != 0 {
		t.Errorf("Prompts = %+v, want empty", resolved.Prompts)
	}
	if resolved.SystemPrompt() != "" {
		t.Errorf("SystemPrompt = %q, want empty", resolved.SystemPrompt())
	}
}
