package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

func TestPostgresCreatePrompt(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO prompts").
		WithArgs(pgxmock.AnyArg(), "Tone", "Be warm.", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	prompt, err := repo.CreatePrompt(context.Background(), &CreatePromptRequest{Title: "Tone", Content: "Be warm."})
	if err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}
	if prompt.Title != "Tone" || !prompt.CreatedAt.Equal(now) {
		t.Errorf("prompt = %+v", prompt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresGetPromptNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, title, content").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetPrompt(context.Background(), "missing"); !errors.Is(err, ErrPromptNotFound) {
		t.Errorf("GetPrompt = %v, want ErrPromptNotFound", err)
	}
}

func TestPostgresGetRecipe(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "title", "description", "prompt_ids", "temperature",
		"frequency_penalty", "presence_penalty", "top_p", "max_tokens",
		"stop_sequences", "created_at", "updated_at",
	}).AddRow(
		"r1", "Default", "baseline", []byte(`["p1","p2"]`), float32(0.7),
		float32(0), float32(0), float32(0), int32(0),
		[]byte(`null`), now, now,
	)
	mock.ExpectQuery("SELECT id, title, description").
		WithArgs("r1").
		WillReturnRows(rows)

	recipe, err := repo.GetRecipe(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRecipe: %v", err)
	}
	if len(recipe.PromptIDs) != 2 || recipe.PromptIDs[0] != "p1" {
		t.Errorf("PromptIDs = %v", recipe.PromptIDs)
	}
	if recipe.Params.Temperature != 0.7 {
		t.Errorf("Temperature = %v", recipe.Params.Temperature)
	}
}

func TestPostgresDeleteRecipeNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM recipes").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.DeleteRecipe(context.Background(), "missing"); !errors.Is(err, ErrRecipeNotFound) {
		t.Errorf("DeleteRecipe = %v, want ErrRecipeNotFound", err)
	}
}

func TestPostgresDeletePrompt(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM prompts").
		WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := repo.DeletePrompt(context.Background(), "p1"); err != nil {
		t.Fatalf("DeletePrompt: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
