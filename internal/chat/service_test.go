package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/llm"
)

type echoClient struct {
	mu       sync.Mutex
	requests []llm.Request
}

func (c *echoClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	last := req.Messages[len(req.Messages)-1].Content
	return llm.Response{Text: "echo: " + last}, nil
}

func newService(t *testing.T) (*Service, *catalog.InMemoryRepository, *history.MemoryStore, *echoClient, string) {
	t.Helper()
	ctx := context.Background()
	repo := catalog.NewInMemoryRepository()

	prompt, err := repo.CreatePrompt(ctx, &catalog.CreatePromptRequest{Title: "Tone", Content: "Be kind."})
	if err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}
	recipe, err := repo.CreateRecipe(ctx, &catalog.CreateRecipeRequest{Title: "Kind", PromptIDs: []string{prompt.ID}})
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	client := &echoClient{}
	registry := llm.NewRegistry()
	registry.Register(llm.ProviderOpenAI, client)

	store := history.NewMemoryStore()
	return NewService(repo, registry, store, nil), repo, store, client, recipe.ID
}

func TestStartAndSendMessage(t *testing.T) {
	svc, _, store, client, recipeID := newService(t)
	ctx := context.Background()

	session, err := svc.Start(ctx, recipeID, "gpt-4o", 0.7)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	session, err = svc.SendMessage(ctx, session, "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("messages = %d, want user+assistant pair", len(session.Messages))
	}
	if session.Messages[1].Content != "echo: hello" {
		t.Errorf("assistant reply = %q", session.Messages[1].Content)
	}

	client.mu.Lock()
	req := client.requests[len(client.requests)-1]
	client.mu.Unlock()
	if !strings.Contains(strings.Join(req.System, "\n\n"), "Tone:\nBe kind.") {
		t.Errorf("system prompt = %q", req.System)
	}

	records, err := store.QueryByEntity(ctx, recipeID)
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	if len(records) != 1 || records[0].State != history.StateCurrent {
		t.Fatalf("records = %+v, want a single current record", records)
	}
}

func TestSendMessageCarriesThread(t *testing.T) {
	svc, _, _, client, recipeID := newService(t)
	ctx := context.Background()

	session, err := svc.Start(ctx, recipeID, "gpt-4o", 0.7)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	session, err = svc.SendMessage(ctx, session, "first")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := svc.SendMessage(ctx, session, "second"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	client.mu.Lock()
	req := client.requests[len(client.requests)-1]
	client.mu.Unlock()
	if len(req.Messages) != 3 {
		t.Fatalf("context messages = %d, want prior pair plus new text", len(req.Messages))
	}
	if req.Messages[1].Role != llm.ChatRoleAssistant || req.Messages[1].Content != "echo: first" {
		t.Errorf("thread context = %+v", req.Messages)
	}
}

func TestResetSupersedes(t *testing.T) {
	svc, _, store, _, recipeID := newService(t)
	ctx := context.Background()

	session, err := svc.Start(ctx, recipeID, "gpt-4o", 0.7)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	session, err = svc.SendMessage(ctx, session, "remember me")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	fresh, err := svc.Reset(ctx, session)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(fresh.Messages) != 0 {
		t.Error("reset session should be empty")
	}

	records, err := store.QueryByEntity(ctx, recipeID)
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	var currents, lasts int
	for _, r := range records {
		switch r.State {
		case history.StateCurrent:
			currents++
		case history.StateLast:
			lasts++
			if !r.WasReset {
				t.Error("superseded record should carry WasReset")
			}
		}
	}
	if currents != 1 || lasts != 1 {
		t.Errorf("currents = %d, lasts = %d, want 1 and 1", currents, lasts)
	}
}

func TestRestoreSwapsSessions(t *testing.T) {
	svc, _, store, _, recipeID := newService(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, recipeID, "gpt-4o", 0.7)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	first, err = svc.SendMessage(ctx, first, "old thread")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	second, err := svc.Reset(ctx, first)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	restored, err := svc.Restore(ctx, second)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.ID != first.ID {
		t.Errorf("restored session = %s, want %s", restored.ID, first.ID)
	}
	if len(restored.Messages) != 2 {
		t.Errorf("restored messages = %d, want the old thread", len(restored.Messages))
	}

	records, err := store.QueryByEntity(ctx, recipeID)
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	for _, r := range records {
		if r.State == history.StateCurrent && !r.WasRestored {
			t.Error("current record should carry WasRestored after restore")
		}
		if r.State == history.StateCurrent && r.ID != first.ID {
			t.Errorf("current record = %s, want the restored session", r.ID)
		}
	}
}

func TestRestoreWithoutHistory(t *testing.T) {
	svc, _, _, _, recipeID := newService(t)
	ctx := context.Background()

	session, err := svc.Start(ctx, recipeID, "gpt-4o", 0.7)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Restore(ctx, session); !errors.Is(err, ErrNothingToRestore) {
		t.Errorf("Restore = %v, want ErrNothingToRestore", err)
	}
}

func TestStartRejectsEmptyRecipe(t *testing.T) {
	svc, repo, _, _, _ := newService(t)
	ctx := context.Background()

	broken, err := repo.CreateRecipe(ctx, &catalog.CreateRecipeRequest{Title: "Broken", PromptIDs: []string{"gone"}})
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}
	if _, err := svc.Start(ctx, broken.ID, "gpt-4o", 0.7); !errors.Is(err, ErrInvalidRecipe) {
		t.Errorf("Start = %v, want ErrInvalidRecipe", err)
	}
}
