package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/observability/metrics"
	"github.com/promptlab/promptlab/pkg/logging"
)

const defaultRubric = `EVALUATION INSTRUCTIONS:
1. Check that the response follows every instruction in the recipe
2. Judge the coherence and relevance of the response
3. Make sure no stated restriction is violated`

const rubricSuffix = `

Respond in JSON with exactly this structure:
{
  "score": <number from 0 to 10>,
  "passed": <boolean>,
  "reason": "<detailed explanation of the evaluation>"
}`

// ErrInvalidRecipe is returned when the recipe under evaluation resolves
// to zero prompts.
var ErrInvalidRecipe = errors.New("evaluator: recipe has no resolvable prompts")

// Verdict is the scored judgment of one generated response.
type Verdict struct {
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
	Reason string  `json:"reason"`
}

// Result pairs the generated response with its verdict.
type Result struct {
	Response    string    `json:"response"`
	Verdict     Verdict   `json:"verdict"`
	Model       string    `json:"model"`
	RecipeTitle string    `json:"recipe_title"`
	CreatedAt   time.Time `json:"created_at"`
}

// Evaluator runs a recipe against a test message: one call generates the
// response under the recipe's instructions, a second call scores it against
// the rubric. A malformed verdict degrades to a zero-score failure rather
// than erroring, so batch evaluations never stall on one bad parse.
type Evaluator struct {
	repo        catalog.Repository
	registry    *llm.Registry
	model       string
	rubric      string
	temperature float32
	metrics     *metrics.EngineMetrics
	logger      *logging.Logger
}

// New builds an evaluator. An empty rubric falls back to the default.
func New(repo catalog.Repository, registry *llm.Registry, model, rubric string, temperature float32, m *metrics.EngineMetrics, logger *logging.Logger) *Evaluator {
	if repo == nil {
		panic("evaluator: catalog repository cannot be nil")
	}
	if registry == nil {
		panic("evaluator: llm registry cannot be nil")
	}
	if model == "" {
		panic("evaluator: model cannot be empty")
	}
	if strings.TrimSpace(rubric) == "" {
		rubric = defaultRubric
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{
		repo:        repo,
		registry:    registry,
		model:       model,
		rubric:      rubric,
		temperature: temperature,
		metrics:     m,
		logger:      logger,
	}
}

// Evaluate generates and scores a response for the recipe and message.
func (e *Evaluator) Evaluate(ctx context.Context, recipeID, message string) (*Result, error) {
	recipe, err := e.repo.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	resolved, err := catalog.Resolve(ctx, e.repo, recipe)
	if err != nil {
		return nil, err
	}
	if len(resolved.Prompts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecipe, recipe.Title)
	}
	instructions := resolved.SystemPrompt()

	client, _, err := e.registry.ClientFor(e.model)
	if err != nil {
		return nil, err
	}

	generated, err := client.Complete(ctx, llm.Request{
		Model:       e.model,
		Temperature: e.temperature,
		System: []string{
			"You must strictly follow these instructions when answering the user's message:\n" + instructions,
		},
		Messages:         []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: message}},
		TopP:             recipe.Params.TopP,
		FrequencyPenalty: recipe.Params.FrequencyPenalty,
		PresencePenalty:  recipe.Params.PresencePenalty,
		MaxTokens:        recipe.Params.MaxTokens,
		Stop:             recipe.Params.StopSequences,
	})
	if err != nil {
		e.metrics.ObserveEvaluation("generation_failed")
		return nil, err
	}

	scored, err := client.Complete(ctx, llm.Request{
		Model:       e.model,
		Temperature: 0.3,
		System:      []string{e.rubric + rubricSuffix},
		Messages: []llm.ChatMessage{{
			Role: llm.ChatRoleUser,
			Content: fmt.Sprintf("RECIPE INSTRUCTIONS:\n%s\n\nUSER MESSAGE:\n%s\n\nAI RESPONSE:\n%s",
				instructions, message, generated.Text),
		}},
	})
	if err != nil {
		e.metrics.ObserveEvaluation("scoring_failed")
		return nil, err
	}

	verdict, parseErr := parseVerdict(scored.Text)
	if parseErr != nil {
		e.logger.Warn("evaluation verdict unparseable", "recipe_id", recipeID, "error", parseErr)
		e.metrics.ObserveEvaluation("unparseable")
		verdict = Verdict{Score: 0, Passed: false, Reason: "evaluation failed: malformed verdict from model"}
	} else {
		e.metrics.ObserveEvaluation("ok")
	}

	return &Result{
		Response:    generated.Text,
		Verdict:     verdict,
		Model:       e.model,
		RecipeTitle: recipe.Title,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// parseVerdict decodes the scoring reply, stripping code fences and clamping
// the score to [0, 10].
func parseVerdict(raw string) (Verdict, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")

	var verdict Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("evaluator: malformed verdict JSON: %w", err)
	}
	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 10 {
		verdict.Score = 10
	}
	return verdict, nil
}
