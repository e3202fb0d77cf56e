package splittest

import (
	"time"

	"github.com/promptlab/promptlab/internal/catalog"
)

// Option identifies which side of a paired comparison a feedback selects.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
)

// Reaction is the coarse preference attached to a feedback.
type Reaction string

const (
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// MemoryEntry is a durable fact extracted from user input. Entries are
// append-only within a session; consumption order is by descending
// importance, insertion order on ties.
type MemoryEntry struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Importance int       `json:"importance"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// Memory accumulates the extracted entries for one session.
type Memory struct {
	Entries        []MemoryEntry `json:"entries"`
	LastAnalyzedAt time.Time     `json:"last_analyzed_at,omitzero"`
}

// Response is one side's reply for a turn. The recipe is frozen as it was at
// call time so later edits do not retroactively alter history.
type Response struct {
	Recipe catalog.Recipe `json:"recipe"`
	Text   string         `json:"text"`
}

// Feedback is the operator's judgment on one turn. A feedback is logically
// removed by setting Deleted, not by physical deletion, so edit-in-place
// never loses turn linkage.
type Feedback struct {
	SelectedOption Option    `json:"selected_option"`
	Reaction       Reaction  `json:"reaction"`
	Comment        string    `json:"comment"`
	Deleted        bool      `json:"deleted,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Active reports whether the feedback counts as present. A deleted feedback
// is treated identically to no feedback at all.
func (f *Feedback) Active() bool {
	return f != nil && !f.Deleted
}

// Message is one conversational turn: the user's text answered by both sides.
type Message struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	UserText    string    `json:"user_text"`
	ResponseA   Response  `json:"response_a"`
	ResponseB   Response  `json:"response_b"`
	Feedback    *Feedback `json:"feedback,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Model       string    `json:"model"`
	Temperature float32   `json:"temperature"`
}

// Summary is the terminal analysis attached to a finished session.
type Summary struct {
	Analysis  AnalysisResult `json:"analysis"`
	CreatedAt time.Time      `json:"created_at"`
}

// Session is one paired-recipe comparison conversation. Messages are
// append-only and ordered by Seq, a per-session monotonic counter.
type Session struct {
	ID          string         `json:"id"`
	RecipeA     catalog.Recipe `json:"recipe_a"`
	RecipeB     catalog.Recipe `json:"recipe_b"`
	Messages    []Message      `json:"messages"`
	Memory      Memory         `json:"memory"`
	Summary     *Summary       `json:"summary,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Model       string         `json:"model"`
	Temperature float32        `json:"temperature"`
	NextSeq     int64          `json:"next_seq"`
}

// HasActionableFeedback reports whether any turn carries non-deleted
// feedback, the precondition for finalizing.
func (s *Session) HasActionableFeedback() bool {
	for i := range s.Messages {
		if s.Messages[i].Feedback.Active() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Engine operations mutate a clone and hand it
// back only on success, so a failed operation leaves the input untouched.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.RecipeA = cloneRecipe(s.RecipeA)
	out.RecipeB = cloneRecipe(s.RecipeB)
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i := range s.Messages {
			out.Messages[i] = cloneMessage(s.Messages[i])
		}
	}
	out.Memory.Entries = append([]MemoryEntry(nil), s.Memory.Entries...)
	if s.Summary != nil {
		summary := *s.Summary
		out.Summary = &summary
	}
	return &out
}

func cloneMessage(m Message) Message {
	out := m
	out.ResponseA.Recipe = cloneRecipe(m.ResponseA.Recipe)
	out.ResponseB.Recipe = cloneRecipe(m.ResponseB.Recipe)
	if m.Feedback != nil {
		fb := *m.Feedback
		out.Feedback = &fb
	}
	return out
}

func cloneRecipe(r catalog.Recipe) catalog.Recipe {
	out := r
	out.PromptIDs = append([]string(nil), r.PromptIDs...)
	out.Params.StopSequences = append([]string(nil), r.Params.StopSequences...)
	return out
}
