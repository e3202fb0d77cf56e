package splittest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/observability/metrics"
	"github.com/promptlab/promptlab/pkg/logging"
)

// contextWindowTurns caps how many prior turns each side sees.
const defaultContextWindowTurns = 15

// Engine drives paired-recipe comparison conversations. It holds no session
// state of its own: every operation takes an explicit *Session and returns a
// new one, leaving the input untouched on failure.
type Engine struct {
	repo          catalog.Repository
	registry      *llm.Registry
	extractor     *MemoryExtractor
	analyzer      *Analyzer
	metrics       *metrics.EngineMetrics
	logger        *logging.Logger
	tracer        trace.Tracer
	contextWindow int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Repository catalog.Repository
	Registry   *llm.Registry
	Extractor  *MemoryExtractor
	Analyzer   *Analyzer
	Metrics    *metrics.EngineMetrics
	Logger     *logging.Logger
	Tracer     trace.Tracer
	// ContextWindowTurns overrides the default of 15 when positive.
	ContextWindowTurns int
}

// NewEngine builds the session engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Repository == nil {
		panic("splittest: catalog repository cannot be nil")
	}
	if cfg.Registry == nil {
		panic("splittest: llm registry cannot be nil")
	}
	if cfg.Extractor == nil {
		panic("splittest: memory extractor cannot be nil")
	}
	if cfg.Analyzer == nil {
		panic("splittest: analyzer cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("promptlab.internal.splittest")
	}
	window := cfg.ContextWindowTurns
	if window <= 0 {
		window = defaultContextWindowTurns
	}
	return &Engine{
		repo:          cfg.Repository,
		registry:      cfg.Registry,
		extractor:     cfg.Extractor,
		analyzer:      cfg.Analyzer,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		tracer:        cfg.Tracer,
		contextWindow: window,
		inFlight:      make(map[string]struct{}),
	}
}

// NewSession creates a fresh session for the given recipe pair. The two
// recipes may be identical; self-comparison is a supported pattern.
func (e *Engine) NewSession(recipeA, recipeB catalog.Recipe, model string, temperature float32) (*Session, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("splittest: model is required")
	}
	if _, ok := llm.LookupModel(model); !ok {
		return nil, fmt.Errorf("splittest: unknown model %q", model)
	}
	return &Session{
		ID:          uuid.New().String(),
		RecipeA:     cloneRecipe(recipeA),
		RecipeB:     cloneRecipe(recipeB),
		CreatedAt:   time.Now().UTC(),
		Model:       model,
		Temperature: temperature,
		NextSeq:     1,
	}, nil
}

// SubmitTurn runs one turn: memory extraction, prompt resolution, two
// concurrent completion calls, then a single append. The turn either fully
// succeeds or leaves the session unchanged; the caller keeps the user text
// for retry on failure.
func (e *Engine) SubmitTurn(ctx context.Context, session *Session, userText string) (*Session, error) {
	if session == nil {
		return nil, ErrNilSession
	}
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyUserText
	}
	if err := e.acquireTurn(session.ID); err != nil {
		return nil, err
	}
	defer e.releaseTurn(session.ID)

	ctx, span := e.tracer.Start(ctx, "splittest.submit_turn")
	defer span.End()

	next := session.Clone()
	now := time.Now().UTC()

	// Memory extraction degrades silently: a failed or irrelevant analysis
	// just means the turn proceeds without a new entry.
	if analysis, err := e.extractor.Extract(ctx, userText); err != nil {
		e.logger.Warn("memory extraction failed", "session_id", session.ID, "error", err)
		e.metrics.ObserveExtraction("failed")
	} else if analysis.IsRelevant {
		next.Memory.Entries = append(next.Memory.Entries, newMemoryEntry(analysis, now))
		next.Memory.LastAnalyzedAt = now
		e.metrics.ObserveExtraction("relevant")
	} else {
		next.Memory.LastAnalyzedAt = now
		e.metrics.ObserveExtraction("irrelevant")
	}

	systemA, err := e.effectiveSystemPrompt(ctx, &next.RecipeA)
	if err != nil {
		e.metrics.ObserveTurn("invalid_recipe")
		return nil, err
	}
	systemB, err := e.effectiveSystemPrompt(ctx, &next.RecipeB)
	if err != nil {
		e.metrics.ObserveTurn("invalid_recipe")
		return nil, err
	}

	client, info, err := e.registry.ClientFor(next.Model)
	if err != nil {
		e.metrics.ObserveTurn("no_provider")
		return nil, err
	}

	preamble := renderPreamble(next.Memory.Entries)

	var textA, textB string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		textA, err = e.complete(gctx, client, info, next, next.RecipeA, systemA, preamble, sideA, userText)
		return err
	})
	g.Go(func() error {
		var err error
		textB, err = e.complete(gctx, client, info, next, next.RecipeB, systemB, preamble, sideB, userText)
		return err
	})
	if err := g.Wait(); err != nil {
		e.metrics.ObserveTurn("provider_failed")
		return nil, err
	}

	next.Messages = append(next.Messages, Message{
		ID:          uuid.New().String(),
		Seq:         next.NextSeq,
		UserText:    userText,
		ResponseA:   Response{Recipe: cloneRecipe(next.RecipeA), Text: textA},
		ResponseB:   Response{Recipe: cloneRecipe(next.RecipeB), Text: textB},
		CreatedAt:   now,
		Model:       next.Model,
		Temperature: next.Temperature,
	})
	next.NextSeq++

	e.metrics.ObserveTurn("ok")
	return next, nil
}

// RecordFeedback sets or replaces the feedback on one turn. Submitting a
// feedback with Deleted=true is the designated way to clear an existing one
// for re-entry.
func (e *Engine) RecordFeedback(session *Session, messageID string, feedback Feedback) (*Session, error) {
	if session == nil {
		return nil, ErrNilSession
	}

	next := session.Clone()
	for i := range next.Messages {
		if next.Messages[i].ID != messageID {
			continue
		}
		fb := feedback
		fb.UpdatedAt = time.Now().UTC()
		next.Messages[i].Feedback = &fb
		return next, nil
	}
	return nil, ErrMessageNotFound
}

// FinalizeSession packages the transcript, recipes and memory into one
// analysis call and attaches the structured result as the session summary.
// On any failure the input session is returned to its caller unchanged.
func (e *Engine) FinalizeSession(ctx context.Context, session *Session) (*Session, error) {
	if session == nil {
		return nil, ErrNilSession
	}
	if !session.HasActionableFeedback() {
		return nil, ErrNotReadyForAnalysis
	}

	ctx, span := e.tracer.Start(ctx, "splittest.finalize_session")
	defer span.End()

	next := session.Clone()
	input := AnalysisInput{
		RecipeATitle:       next.RecipeA.Title,
		RecipeADescription: next.RecipeA.Description,
		RecipeBTitle:       next.RecipeB.Title,
		RecipeBDescription: next.RecipeB.Description,
		Messages:           next.Messages,
		Memory:             next.Memory.Entries,
	}

	resolvedA, err := catalog.Resolve(ctx, e.repo, &next.RecipeA)
	if err != nil {
		e.metrics.ObserveAnalysis("failed")
		return nil, &AnalysisError{Err: err}
	}
	resolvedB, err := catalog.Resolve(ctx, e.repo, &next.RecipeB)
	if err != nil {
		e.metrics.ObserveAnalysis("failed")
		return nil, &AnalysisError{Err: err}
	}
	for _, p := range resolvedA.Prompts {
		input.RecipeAPrompts = append(input.RecipeAPrompts, fmt.Sprintf("%s:\n%s", p.Title, p.Content))
	}
	for _, p := range resolvedB.Prompts {
		input.RecipeBPrompts = append(input.RecipeBPrompts, fmt.Sprintf("%s:\n%s", p.Title, p.Content))
	}

	result, err := e.analyzer.Analyze(ctx, input)
	if err != nil {
		e.metrics.ObserveAnalysis("failed")
		return nil, err
	}

	next.Summary = &Summary{Analysis: *result, CreatedAt: time.Now().UTC()}
	e.metrics.ObserveAnalysis("ok")
	return next, nil
}

// ResetSession produces a brand-new empty session with the same recipe pair
// and model selection. Persisting the old session first is the caller's job.
func (e *Engine) ResetSession(session *Session) (*Session, error) {
	if session == nil {
		return nil, ErrNilSession
	}
	return e.NewSession(session.RecipeA, session.RecipeB, session.Model, session.Temperature)
}

type side int

const (
	sideA side = iota
	sideB
)

// complete issues one side's provider call, with the memory preamble ahead
// of the side's system prompt and only that side's own prior responses in
// context.
func (e *Engine) complete(ctx context.Context, client llm.Client, info llm.ModelInfo, s *Session, recipe catalog.Recipe, system, preamble string, which side, userText string) (string, error) {
	system = strings.TrimSpace(system)
	var blocks []string
	if preamble != "" {
		blocks = append(blocks, preamble)
	}
	blocks = append(blocks, system)

	messages := e.priorContext(s, which)
	messages = append(messages, llm.ChatMessage{Role: llm.ChatRoleUser, Content: userText})

	start := time.Now()
	resp, err := client.Complete(ctx, llm.Request{
		Model:            s.Model,
		System:           blocks,
		Messages:         messages,
		Temperature:      s.Temperature,
		TopP:             recipe.Params.TopP,
		FrequencyPenalty: recipe.Params.FrequencyPenalty,
		PresencePenalty:  recipe.Params.PresencePenalty,
		MaxTokens:        recipe.Params.MaxTokens,
		Stop:             recipe.Params.StopSequences,
	})
	e.metrics.ObserveProviderLatency(string(info.Provider), s.Model, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// priorContext expands the last N turns into (user, assistant) pairs using
// the given side's own historical responses. The two sides never see each
// other's replies.
func (e *Engine) priorContext(s *Session, which side) []llm.ChatMessage {
	turns := s.Messages
	if len(turns) > e.contextWindow {
		turns = turns[len(turns)-e.contextWindow:]
	}

	out := make([]llm.ChatMessage, 0, 2*len(turns)+1)
	for i := range turns {
		reply := turns[i].ResponseA.Text
		if which == sideB {
			reply = turns[i].ResponseB.Text
		}
		out = append(out,
			llm.ChatMessage{Role: llm.ChatRoleUser, Content: turns[i].UserText},
			llm.ChatMessage{Role: llm.ChatRoleAssistant, Content: reply},
		)
	}
	return out
}

// effectiveSystemPrompt resolves the recipe and renders its system prompt.
// Dangling prompt references are logged as warnings; zero resolvable prompts
// is fatal.
func (e *Engine) effectiveSystemPrompt(ctx context.Context, recipe *catalog.Recipe) (string, error) {
	resolved, err := catalog.Resolve(ctx, e.repo, recipe)
	if err != nil {
		return "", fmt.Errorf("splittest: recipe %s: %w", recipe.ID, err)
	}
	if len(resolved.Dangling) > 0 {
		e.logger.Warn("recipe references missing prompts",
			"recipe_id", recipe.ID, "recipe_title", recipe.Title, "missing", resolved.Dangling)
	}
	if len(resolved.Prompts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidRecipe, recipe.Title)
	}
	return resolved.SystemPrompt(), nil
}

func (e *Engine) acquireTurn(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[sessionID]; busy {
		return ErrTurnInFlight
	}
	e.inFlight[sessionID] = struct{}{}
	return nil
}

func (e *Engine) releaseTurn(sessionID string) {
	e.mu.Lock()
	delete(e.inFlight, sessionID)
	e.mu.Unlock()
}
