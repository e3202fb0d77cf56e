package timeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/chat"
	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/splittest"
	"github.com/promptlab/promptlab/pkg/logging"
)

func mustRecord(t *testing.T, id, entity string, kind history.Kind, state history.State, createdAt time.Time, payload any) *history.Record {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &history.Record{
		ID:        id,
		EntityID:  entity,
		Kind:      kind,
		State:     state,
		CreatedAt: createdAt,
		Payload:   raw,
	}
}

func seedStore(t *testing.T) *history.MemoryStore {
	t.Helper()
	store := history.NewMemoryStore()
	ctx := t.Context()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	chatSession := chat.Session{
		ID:     "chat-1",
		Recipe: catalog.Recipe{ID: "r1", Title: "Support Tone"},
		Messages: []chat.Message{
			{ID: "m1", Role: "user", Content: "hi"},
			{ID: "m2", Role: "assistant", Content: "hello"},
			{ID: "m3", Role: "user", Content: "thanks"},
			{ID: "m4", Role: "assistant", Content: "welcome"},
		},
		Model: "gpt-4o",
	}
	if err := store.Upsert(ctx, mustRecord(t, "rec-chat", "r1", history.KindChat, history.StateCurrent, base, chatSession)); err != nil {
		t.Fatal(err)
	}

	splitSession := splittest.Session{
		ID:      "st-1",
		RecipeA: catalog.Recipe{ID: "ra", Title: "Concise"},
		RecipeB: catalog.Recipe{ID: "rb", Title: "Verbose"},
		Messages: []splittest.Message{
			{ID: "s1", Feedback: &splittest.Feedback{SelectedOption: splittest.OptionA}},
			{ID: "s2", Feedback: &splittest.Feedback{SelectedOption: splittest.OptionB, Deleted: true}},
			{ID: "s3", Feedback: &splittest.Feedback{SelectedOption: splittest.OptionA}},
			{ID: "s4"},
		},
		Model: "gpt-4o",
	}
	if err := store.Upsert(ctx, mustRecord(t, "rec-st", "ra:rb", history.KindSplitTest, history.StateCurrent, base.Add(time.Hour), splitSession)); err != nil {
		t.Fatal(err)
	}

	evalPassed := evaluator.EvaluationRecord{
		RecipeID: "r1",
		Message:  "hi",
		Result: evaluator.Result{
			Verdict:     evaluator.Verdict{Score: 8, Passed: true, Reason: "good"},
			Model:       "gpt-4o-mini",
			RecipeTitle: "Support Tone",
		},
	}
	if err := store.Upsert(ctx, mustRecord(t, "rec-eval-1", "r1", history.KindEvaluation, history.StateCurrent, base.Add(2*time.Hour), evalPassed)); err != nil {
		t.Fatal(err)
	}

	evalFailed := evaluator.EvaluationRecord{
		RecipeID: "r2",
		Message:  "hi",
		Result: evaluator.Result{
			Verdict:     evaluator.Verdict{Score: 2, Passed: false, Reason: "off topic"},
			Model:       "gpt-4o-mini",
			RecipeTitle: "Strict Scope",
		},
	}
	if err := store.Upsert(ctx, mustRecord(t, "rec-eval-2", "r2", history.KindEvaluation, history.StateCurrent, base.Add(3*time.Hour), evalFailed)); err != nil {
		t.Fatal(err)
	}

	return store
}

func TestEventsMergedNewestFirst(t *testing.T) {
	svc := NewService(seedStore(t), logging.Default(), nil)

	events, err := svc.Events(t.Context(), Filter{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].CreatedAt.After(events[i-1].CreatedAt) {
			t.Errorf("events out of order at %d: %v after %v", i, events[i].CreatedAt, events[i-1].CreatedAt)
		}
	}

	if events[3].Kind != history.KindChat || events[3].Title != "Support Tone" {
		t.Errorf("oldest event = %s %q, want chat Support Tone", events[3].Kind, events[3].Title)
	}
	if events[2].Kind != history.KindSplitTest || events[2].Title != "Concise vs Verbose" {
		t.Errorf("split-test title = %q", events[2].Title)
	}
}

func TestEventsPayloadUnionIsExclusive(t *testing.T) {
	svc := NewService(seedStore(t), logging.Default(), nil)

	events, err := svc.Events(t.Context(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range events {
		set := 0
		if ev.Chat != nil {
			set++
		}
		if ev.SplitTest != nil {
			set++
		}
		if ev.Evaluation != nil {
			set++
		}
		if set != 1 {
			t.Errorf("event %s has %d payloads set, want exactly 1", ev.ID, set)
		}
	}
}

func TestEventsFilters(t *testing.T) {
	svc := NewService(seedStore(t), logging.Default(), nil)
	ctx := t.Context()

	byKind, err := svc.Events(ctx, Filter{Kind: history.KindEvaluation})
	if err != nil {
		t.Fatal(err)
	}
	if len(byKind) != 2 {
		t.Errorf("kind filter returned %d events, want 2", len(byKind))
	}

	failedOnly, err := svc.Events(ctx, Filter{Status: "failed"})
	if err != nil {
		t.Fatal(err)
	}
	// Non-evaluation events pass the status filter untouched.
	for _, ev := range failedOnly {
		if ev.Evaluation != nil && ev.Evaluation.Result.Verdict.Passed {
			t.Errorf("passed evaluation leaked through failed filter: %s", ev.ID)
		}
	}

	byModel, err := svc.Events(ctx, Filter{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byModel) != 2 {
		t.Errorf("model filter returned %d events, want 2", len(byModel))
	}
}

func TestEventsSkipsUndecodableRecords(t *testing.T) {
	store := seedStore(t)
	bad := &history.Record{
		ID:        "rec-bad",
		EntityID:  "broken",
		Kind:      history.KindChat,
		State:     history.StateCurrent,
		CreatedAt: time.Now().UTC(),
		Payload:   json.RawMessage(`{"messages": "not an array"}`),
	}
	if err := store.Upsert(t.Context(), bad); err != nil {
		t.Fatal(err)
	}

	svc := NewService(store, logging.Default(), nil)
	events, err := svc.Events(t.Context(), Filter{})
	if err != nil {
		t.Fatalf("Events should not fail on one bad record: %v", err)
	}
	for _, ev := range events {
		if ev.ID == "rec-bad" {
			t.Error("undecodable record was not skipped")
		}
	}
}

func TestAnalytics(t *testing.T) {
	svc := NewService(seedStore(t), logging.Default(), nil)

	got, err := svc.Analytics(t.Context())
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}

	if got.Chats.Total != 1 || got.Chats.AverageMessagesPerChat != 4 {
		t.Errorf("chat stats = %+v", got.Chats)
	}
	if got.Chats.ByModel["gpt-4o"] != 1 {
		t.Errorf("by-model = %v", got.Chats.ByModel)
	}

	if got.Evaluations.Total != 2 || got.Evaluations.PassRate != 50 || got.Evaluations.AverageScore != 5 {
		t.Errorf("evaluation stats = %+v", got.Evaluations)
	}

	// Deleted feedback must not vote: two active A picks, the B pick is deleted.
	if got.SplitTests.Total != 1 {
		t.Errorf("split-test total = %d", got.SplitTests.Total)
	}
	if got.SplitTests.PreferenceDistribution.A != 2 || got.SplitTests.PreferenceDistribution.B != 0 {
		t.Errorf("preference distribution = %+v", got.SplitTests.PreferenceDistribution)
	}

	perf := got.ModelPerformance["gpt-4o-mini"]
	if perf.Total != 2 || perf.Passed != 1 || perf.AverageScore != 5 {
		t.Errorf("model performance = %+v", perf)
	}
}

func TestHandlerRoutes(t *testing.T) {
	svc := NewService(seedStore(t), logging.Default(), nil)
	handler := NewHandler(svc, logging.Default())

	srv := httptest.NewServer(handler.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?kind=splitTest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var events []*Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Kind != history.KindSplitTest {
		t.Fatalf("unexpected events: %+v", events)
	}

	resp2, err := http.Get(srv.URL + "/analytics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("analytics status = %d", resp2.StatusCode)
	}
	var analytics Analytics
	if err := json.NewDecoder(resp2.Body).Decode(&analytics); err != nil {
		t.Fatal(err)
	}
	if analytics.Evaluations.Total != 2 {
		t.Errorf("analytics evaluations total = %d", analytics.Evaluations.Total)
	}
}
