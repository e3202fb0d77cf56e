package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/pkg/logging"
)

const contextWindowMessages = 30

var (
	// ErrInvalidRecipe is returned when a recipe resolves to zero prompts.
	ErrInvalidRecipe = errors.New("chat: recipe has no resolvable prompts")

	// ErrNilSession is returned when an operation receives no session.
	ErrNilSession = errors.New("chat: session is required")

	// ErrNothingToRestore is returned when a recipe has no superseded
	// session to bring back.
	ErrNothingToRestore = errors.New("chat: no previous session to restore")
)

// Message is one side of a chat exchange.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a single-recipe conversation. Unlike a split test it has one
// response stream and no feedback machinery.
type Session struct {
	ID          string         `json:"id"`
	Recipe      catalog.Recipe `json:"recipe"`
	Messages    []Message      `json:"messages"`
	CreatedAt   time.Time      `json:"created_at"`
	Model       string         `json:"model"`
	Temperature float32        `json:"temperature"`
}

// Service drives single-recipe chats and keeps their history reconciled:
// autosave after every exchange, supersede on reset, swap on restore.
type Service struct {
	repo     catalog.Repository
	registry *llm.Registry
	store    history.Store
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewService builds the chat service.
func NewService(repo catalog.Repository, registry *llm.Registry, store history.Store, logger *logging.Logger) *Service {
	if repo == nil {
		panic("chat: catalog repository cannot be nil")
	}
	if registry == nil {
		panic("chat: llm registry cannot be nil")
	}
	if store == nil {
		panic("chat: history store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		registry: registry,
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer("promptlab.internal.chat"),
	}
}

// Start opens a fresh session for the recipe and reconciles it as the
// recipe's current chat.
func (s *Service) Start(ctx context.Context, recipeID, model string, temperature float32) (*Session, error) {
	recipe, err := s.repo.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if _, ok := llm.LookupModel(model); !ok {
		return nil, fmt.Errorf("chat: unknown model %q", model)
	}
	if _, err := s.systemPrompt(ctx, recipe); err != nil {
		return nil, err
	}

	session := &Session{
		ID:          uuid.New().String(),
		Recipe:      *recipe,
		CreatedAt:   time.Now().UTC(),
		Model:       model,
		Temperature: temperature,
	}
	if err := s.store.Upsert(ctx, record(session, history.StateCurrent)); err != nil {
		return nil, fmt.Errorf("chat: failed to persist session: %w", err)
	}
	return session, nil
}

// SendMessage answers one user message under the session's recipe and
// autosaves the grown transcript.
func (s *Service) SendMessage(ctx context.Context, session *Session, text string) (*Session, error) {
	if session == nil {
		return nil, ErrNilSession
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("chat: message text is required")
	}

	ctx, span := s.tracer.Start(ctx, "chat.send_message")
	defer span.End()

	system, err := s.systemPrompt(ctx, &session.Recipe)
	if err != nil {
		return nil, err
	}

	client, _, err := s.registry.ClientFor(session.Model)
	if err != nil {
		return nil, err
	}

	window := session.Messages
	if len(window) > contextWindowMessages {
		window = window[len(window)-contextWindowMessages:]
	}
	messages := make([]llm.ChatMessage, 0, len(window)+1)
	for _, m := range window {
		messages = append(messages, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: llm.ChatRoleUser, Content: text})

	resp, err := client.Complete(ctx, llm.Request{
		Model:            session.Model,
		System:           []string{system},
		Messages:         messages,
		Temperature:      session.Temperature,
		TopP:             session.Recipe.Params.TopP,
		FrequencyPenalty: session.Recipe.Params.FrequencyPenalty,
		PresencePenalty:  session.Recipe.Params.PresencePenalty,
		MaxTokens:        session.Recipe.Params.MaxTokens,
		Stop:             session.Recipe.Params.StopSequences,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := *session
	next.Messages = append(append([]Message(nil), session.Messages...),
		Message{ID: uuid.New().String(), Role: llm.ChatRoleUser, Content: text, CreatedAt: now},
		Message{ID: uuid.New().String(), Role: llm.ChatRoleAssistant, Content: resp.Text, CreatedAt: now},
	)

	if err := s.store.Upsert(ctx, record(&next, history.StateCurrent)); err != nil {
		// Autosave failures degrade: the in-memory session stays
		// authoritative and the next exchange retries the write.
		s.logger.Error("chat autosave failed", "session_id", next.ID, "error", err)
	}
	return &next, nil
}

// Reset supersedes the session with a fresh one for the same recipe. The old
// transcript survives as the recipe's last chat.
func (s *Service) Reset(ctx context.Context, session *Session) (*Session, error) {
	if session == nil {
		return nil, ErrNilSession
	}

	fresh := &Session{
		ID:          uuid.New().String(),
		Recipe:      session.Recipe,
		CreatedAt:   time.Now().UTC(),
		Model:       session.Model,
		Temperature: session.Temperature,
	}

	outgoing := record(session, history.StateLast)
	outgoing.WasReset = true
	if err := s.store.SupersedeAndInsert(ctx, outgoing, record(fresh, history.StateCurrent)); err != nil {
		return nil, fmt.Errorf("chat: failed to reconcile reset: %w", err)
	}
	return fresh, nil
}

// Restore swaps the recipe's last session back in as current; the session
// being displaced takes its place as last.
func (s *Service) Restore(ctx context.Context, session *Session) (*Session, error) {
	if session == nil {
		return nil, ErrNilSession
	}

	records, err := s.store.QueryByEntity(ctx, session.Recipe.ID)
	if err != nil {
		return nil, fmt.Errorf("chat: failed to load history: %w", err)
	}

	var restored *Session
	for _, r := range records {
		if r.State != history.StateLast {
			continue
		}
		var old Session
		if err := json.Unmarshal(r.Payload, &old); err != nil {
			return nil, fmt.Errorf("chat: corrupt history payload: %w", err)
		}
		restored = &old
		break
	}
	if restored == nil {
		return nil, ErrNothingToRestore
	}

	incoming := record(restored, history.StateCurrent)
	incoming.WasRestored = true
	if err := s.store.SupersedeAndInsert(ctx, record(session, history.StateLast), incoming); err != nil {
		return nil, fmt.Errorf("chat: failed to reconcile restore: %w", err)
	}
	return restored, nil
}

func (s *Service) systemPrompt(ctx context.Context, recipe *catalog.Recipe) (string, error) {
	resolved, err := catalog.Resolve(ctx, s.repo, recipe)
	if err != nil {
		return "", err
	}
	if len(resolved.Dangling) > 0 {
		s.logger.Warn("recipe references missing prompts",
			"recipe_id", recipe.ID, "missing", resolved.Dangling)
	}
	if len(resolved.Prompts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidRecipe, recipe.Title)
	}
	return resolved.SystemPrompt(), nil
}

func record(session *Session, state history.State) *history.Record {
	payload, err := json.Marshal(session)
	if err != nil {
		// Session is a plain data struct; this cannot fail with valid input.
		payload = nil
	}
	return &history.Record{
		ID:        session.ID,
		EntityID:  session.Recipe.ID,
		Kind:      history.KindChat,
		State:     state,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}
