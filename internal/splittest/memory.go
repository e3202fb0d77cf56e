package splittest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/pkg/logging"
)

const memoryAnalysisPrompt = `Analyze the following user message and decide whether it contains relevant information about a personal, emotional or critical issue that could matter for a therapy or psychological-analysis context.
Consider:
1. Complex emotional situations or internal conflicts.
2. Personal difficulties that need follow-up or future reflection.
3. Significant experiences or traumatic events.
4. Deep goals or desires related to emotional well-being.
5. Topics that help understand the user's needs in therapy.

Ignore:
1. Trivial or low-emotional-impact details (such as preferences about food or places).
2. Information unrelated to emotional or mental well-being.

Respond in JSON with this structure:
{
  "isRelevant": boolean,
  "importance": number (1-10),
  "reason": "why it is or is not relevant",
  "content": "the specific content to remember (if relevant)"
}`

// MemoryAnalysis is the extractor's verdict on one user utterance.
type MemoryAnalysis struct {
	IsRelevant bool   `json:"isRelevant"`
	Importance int    `json:"importance"`
	Reason     string `json:"reason"`
	Content    string `json:"content"`
}

// MemoryExtractor classifies user utterances through a single completion
// call. Failures are reported to the caller but are always non-fatal to the
// turn that triggered them.
type MemoryExtractor struct {
	registry    *llm.Registry
	model       string
	temperature float32
	logger      *logging.Logger
}

// NewMemoryExtractor builds an extractor over the provider registry.
func NewMemoryExtractor(registry *llm.Registry, model string, temperature float32, logger *logging.Logger) *MemoryExtractor {
	if registry == nil {
		panic("splittest: llm registry cannot be nil")
	}
	if model == "" {
		panic("splittest: memory model cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryExtractor{
		registry:    registry,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// Extract runs the classification call and parses its strict JSON result.
// Out-of-range importance is a parse failure, same as malformed JSON.
func (e *MemoryExtractor) Extract(ctx context.Context, userText string) (*MemoryAnalysis, error) {
	client, _, err := e.registry.ClientFor(e.model)
	if err != nil {
		return nil, fmt.Errorf("splittest: memory extraction unavailable: %w", err)
	}

	resp, err := client.Complete(ctx, llm.Request{
		Model:       e.model,
		Temperature: e.temperature,
		Messages: []llm.ChatMessage{{
			Role:    llm.ChatRoleUser,
			Content: fmt.Sprintf("%s\n\nUser message: %q", memoryAnalysisPrompt, userText),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("splittest: memory extraction call failed: %w", err)
	}

	var analysis MemoryAnalysis
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Text)), &analysis); err != nil {
		return nil, fmt.Errorf("splittest: memory extraction returned malformed JSON: %w", err)
	}
	if analysis.IsRelevant && (analysis.Importance < 1 || analysis.Importance > 10) {
		return nil, fmt.Errorf("splittest: memory extraction importance %d out of range", analysis.Importance)
	}
	return &analysis, nil
}

// newMemoryEntry materializes a relevant analysis as a session entry.
func newMemoryEntry(analysis *MemoryAnalysis, now time.Time) MemoryEntry {
	return MemoryEntry{
		ID:         uuid.New().String(),
		Content:    analysis.Content,
		Importance: analysis.Importance,
		Reason:     analysis.Reason,
		CreatedAt:  now,
	}
}

// renderPreamble renders the memory entries as one fact line each, highest
// importance first, insertion order preserved on ties. Empty when the session
// has no memory.
func renderPreamble(entries []MemoryEntry) string {
	if len(entries) == 0 {
		return ""
	}
	sorted := append([]MemoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})

	lines := make([]string, 0, len(sorted))
	for _, entry := range sorted {
		lines = append(lines, "Relevant user information: "+entry.Content)
	}
	return strings.Join(lines, "\n")
}

// stripCodeFences removes Markdown code fences around a JSON payload.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
