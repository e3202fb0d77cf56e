package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxDB is the subset of pgxpool.Pool the repository needs. Satisfied by
// pgxmock in tests.
type pgxDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores prompts and recipes in the relational database.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) CreatePrompt(ctx context.Context, req *CreatePromptRequest) (*Prompt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	examples, err := json.Marshal(req.ExampleMessages)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode example messages: %w", err)
	}

	query := `
		INSERT INTO prompts (id, title, content, example_messages)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := r.db.QueryRow(ctx, query, id, req.Title, req.Content, examples).Scan(&createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("catalog: insert prompt failed: %w", err)
	}

	return &Prompt{
		ID:              id,
		Title:           req.Title,
		Content:         req.Content,
		ExampleMessages: req.ExampleMessages,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func (r *PostgresRepository) GetPrompt(ctx context.Context, id string) (*Prompt, error) {
	query := `
		SELECT id, title, content, example_messages, created_at, updated_at
		FROM prompts
		WHERE id = $1
	`
	return scanPrompt(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) ListPrompts(ctx context.Context) ([]*Prompt, error) {
	query := `
		SELECT id, title, content, example_messages, created_at, updated_at
		FROM prompts
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list prompts failed: %w", err)
	}
	defer rows.Close()

	var out []*Prompt
	for rows.Next() {
		prompt, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prompt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list prompts failed: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdatePrompt(ctx context.Context, id string, req *CreatePromptRequest) (*Prompt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	examples, err := json.Marshal(req.ExampleMessages)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode example messages: %w", err)
	}

	query := `
		UPDATE prompts
		SET title = $2, content = $3, example_messages = $4, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := r.db.QueryRow(ctx, query, id, req.Title, req.Content, examples).Scan(&createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("catalog: update prompt failed: %w", err)
	}

	return &Prompt{
		ID:              id,
		Title:           req.Title,
		Content:         req.Content,
		ExampleMessages: req.ExampleMessages,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func (r *PostgresRepository) DeletePrompt(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM prompts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete prompt failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromptNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateRecipe(ctx context.Context, req *CreateRecipeRequest) (*Recipe, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	promptIDs, err := json.Marshal(req.PromptIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode prompt ids: %w", err)
	}
	stops, err := json.Marshal(req.Params.StopSequences)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode stop sequences: %w", err)
	}

	query := `
		INSERT INTO recipes (id, title, description, prompt_ids, temperature,
			frequency_penalty, presence_penalty, top_p, max_tokens, stop_sequences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.Title,
		req.Description,
		promptIDs,
		req.Params.Temperature,
		req.Params.FrequencyPenalty,
		req.Params.PresencePenalty,
		req.Params.TopP,
		req.Params.MaxTokens,
		stops,
	).Scan(&createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("catalog: insert recipe failed: %w", err)
	}

	return &Recipe{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		PromptIDs:   req.PromptIDs,
		Params:      req.Params,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func (r *PostgresRepository) GetRecipe(ctx context.Context, id string) (*Recipe, error) {
	query := `
		SELECT id, title, description, prompt_ids, temperature,
			frequency_penalty, presence_penalty, top_p, max_tokens,
			stop_sequences, created_at, updated_at
		FROM recipes
		WHERE id = $1
	`
	return scanRecipe(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) ListRecipes(ctx context.Context) ([]*Recipe, error) {
	query := `
		SELECT id, title, description, prompt_ids, temperature,
			frequency_penalty, presence_penalty, top_p, max_tokens,
			stop_sequences, created_at, updated_at
		FROM recipes
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list recipes failed: %w", err)
	}
	defer rows.Close()

	var out []*Recipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list recipes failed: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdateRecipe(ctx context.Context, id string, req *CreateRecipeRequest) (*Recipe, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	promptIDs, err := json.Marshal(req.PromptIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode prompt ids: %w", err)
	}
	stops, err := json.Marshal(req.Params.StopSequences)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode stop sequences: %w", err)
	}

	query := `
		UPDATE recipes
		SET title = $2, description = $3, prompt_ids = $4, temperature = $5,
			frequency_penalty = $6, presence_penalty = $7, top_p = $8,
			max_tokens = $9, stop_sequences = $10, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.Title,
		req.Description,
		promptIDs,
		req.Params.Temperature,
		req.Params.FrequencyPenalty,
		req.Params.PresencePenalty,
		req.Params.TopP,
		req.Params.MaxTokens,
		stops,
	).Scan(&createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipeNotFound
		}
		return nil, fmt.Errorf("catalog: update recipe failed: %w", err)
	}

	return &Recipe{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		PromptIDs:   req.PromptIDs,
		Params:      req.Params,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func (r *PostgresRepository) DeleteRecipe(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete recipe failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

func scanPrompt(row pgx.Row) (*Prompt, error) {
	var (
		prompt   Prompt
		examples []byte
	)
	if err := row.Scan(
		&prompt.ID,
		&prompt.Title,
		&prompt.Content,
		&examples,
		&prompt.CreatedAt,
		&prompt.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("catalog: select prompt failed: %w", err)
	}
	if len(examples) > 0 {
		if err := json.Unmarshal(examples, &prompt.ExampleMessages); err != nil {
			return nil, fmt.Errorf("catalog: decode example messages: %w", err)
		}
	}
	return &prompt, nil
}

func scanRecipe(row pgx.Row) (*Recipe, error) {
	var (
		recipe    Recipe
		promptIDs []byte
		stops     []byte
	)
	if err := row.Scan(
		&recipe.ID,
		&recipe.Title,
		&recipe.Description,
		&promptIDs,
		&recipe.Params.Temperature,
		&recipe.Params.FrequencyPenalty,
		&recipe.Params.PresencePenalty,
		&recipe.Params.TopP,
		&recipe.Params.MaxTokens,
		&stops,
		&recipe.CreatedAt,
		&recipe.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipeNotFound
		}
		return nil, fmt.Errorf("catalog: select recipe failed: %w", err)
	}
	if len(promptIDs) > 0 {
		if err := json.Unmarshal(promptIDs, &recipe.PromptIDs); err != nil {
			return nil, fmt.Errorf("catalog: decode prompt ids: %w", err)
		}
	}
	if len(stops) > 0 {
		if err := json.Unmarshal(stops, &recipe.Params.StopSequences); err != nil {
			return nil, fmt.Errorf("catalog: decode stop sequences: %w", err)
		}
	}
	return &recipe, nil
}
