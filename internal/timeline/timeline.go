package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/promptlab/promptlab/internal/chat"
	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/splittest"
	"github.com/promptlab/promptlab/pkg/logging"
)

// Event is one entry of the unified activity timeline. Kind selects which
// payload pointer is set; the other two are nil.
type Event struct {
	ID        string        `json:"id"`
	Kind      history.Kind  `json:"kind"`
	State     history.State `json:"state"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	WasReset  bool          `json:"was_reset,omitempty"`

	Chat       *chat.Session               `json:"chat,omitempty"`
	SplitTest  *splittest.Session          `json:"split_test,omitempty"`
	Evaluation *evaluator.EvaluationRecord `json:"evaluation,omitempty"`
}

// Service assembles timeline views over the history store.
type Service struct {
	store  history.Store
	logger *logging.Logger
	tracer trace.Tracer
}

func NewService(store history.Store, logger *logging.Logger, tracer trace.Tracer) *Service {
	if store == nil {
		panic("timeline: history store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, tracer: tracer}
}

// Filter narrows the event list. Zero values match everything.
type Filter struct {
	Kind   history.Kind
	State  history.State
	Model  string
	Status string // "passed" or "failed", evaluations only
}

func (f Filter) matches(ev *Event) bool {
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	if f.State != "" && ev.State != f.State {
		return false
	}
	if f.Model != "" && eventModel(ev) != f.Model {
		return false
	}
	if f.Status != "" && ev.Evaluation != nil {
		passed := ev.Evaluation.Result.Verdict.Passed
		if f.Status == "passed" && !passed {
			return false
		}
		if f.Status == "failed" && passed {
			return false
		}
	}
	return true
}

func eventModel(ev *Event) string {
	switch {
	case ev.Chat != nil:
		return ev.Chat.Model
	case ev.SplitTest != nil:
		return ev.SplitTest.Model
	case ev.Evaluation != nil:
		return ev.Evaluation.Result.Model
	}
	return ""
}

// Events lists every history record as a decoded event, newest first.
// Records whose payload no longer decodes are skipped with a warning rather
// than failing the whole timeline.
func (s *Service) Events(ctx context.Context, filter Filter) ([]*Event, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "timeline.Events")
		defer span.End()
	}

	records, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("timeline: listing history: %w", err)
	}

	events := make([]*Event, 0, len(records))
	for _, rec := range records {
		ev, err := decodeEvent(rec)
		if err != nil {
			s.logger.Warn("skipping undecodable history record",
				"record_id", rec.ID, "kind", rec.Kind, "error", err)
			continue
		}
		if filter.matches(ev) {
			events = append(events, ev)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func decodeEvent(rec *history.Record) (*Event, error) {
	ev := &Event{
		ID:        rec.ID,
		Kind:      rec.Kind,
		State:     rec.State,
		CreatedAt: rec.CreatedAt,
		WasReset:  rec.WasReset,
	}
	switch rec.Kind {
	case history.KindChat:
		var session chat.Session
		if err := json.Unmarshal(rec.Payload, &session); err != nil {
			return nil, err
		}
		ev.Chat = &session
		ev.Title = session.Recipe.Title
	case history.KindSplitTest:
		var session splittest.Session
		if err := json.Unmarshal(rec.Payload, &session); err != nil {
			return nil, err
		}
		ev.SplitTest = &session
		ev.Title = session.RecipeA.Title + " vs " + session.RecipeB.Title
	case history.KindEvaluation:
		var entry evaluator.EvaluationRecord
		if err := json.Unmarshal(rec.Payload, &entry); err != nil {
			return nil, err
		}
		ev.Evaluation = &entry
		ev.Title = entry.Result.RecipeTitle
	default:
		return nil, fmt.Errorf("timeline: unknown record kind %q", rec.Kind)
	}
	return ev, nil
}
