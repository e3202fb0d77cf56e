package timeline

import (
	"context"

	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/splittest"
)

// ChatStats aggregates the chat side of the timeline.
type ChatStats struct {
	Total                  int            `json:"total"`
	ByModel                map[string]int `json:"by_model"`
	AverageMessagesPerChat float64        `json:"average_messages_per_chat"`
}

// EvaluationStats aggregates evaluation outcomes. PassRate is a percentage.
type EvaluationStats struct {
	Total        int     `json:"total"`
	PassRate     float64 `json:"pass_rate"`
	AverageScore float64 `json:"average_score"`
}

// PreferenceDistribution counts which side won the turns that carry active
// feedback. Deleted feedback does not vote.
type PreferenceDistribution struct {
	A int `json:"a"`
	B int `json:"b"`
}

// SplitTestStats aggregates split-test sessions.
type SplitTestStats struct {
	Total                  int                    `json:"total"`
	PreferenceDistribution PreferenceDistribution `json:"preference_distribution"`
}

// ModelPerformance is per-model evaluation quality.
type ModelPerformance struct {
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	AverageScore float64 `json:"average_score"`
}

// Analytics is the aggregate view over all history records.
type Analytics struct {
	Chats            ChatStats                   `json:"chats"`
	Evaluations      EvaluationStats             `json:"evaluations"`
	SplitTests       SplitTestStats              `json:"split_tests"`
	ModelPerformance map[string]ModelPerformance `json:"model_performance"`
}

// Analytics computes aggregate statistics over every decodable history
// record, current and superseded alike.
func (s *Service) Analytics(ctx context.Context) (*Analytics, error) {
	events, err := s.Events(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	out := &Analytics{
		Chats:            ChatStats{ByModel: map[string]int{}},
		ModelPerformance: map[string]ModelPerformance{},
	}

	var chatMessages int
	var scoreSum float64
	var passed int

	for _, ev := range events {
		switch ev.Kind {
		case history.KindChat:
			out.Chats.Total++
			model := ev.Chat.Model
			if model == "" {
				model = "unknown"
			}
			out.Chats.ByModel[model]++
			chatMessages += len(ev.Chat.Messages)
		case history.KindEvaluation:
			out.Evaluations.Total++
			verdict := ev.Evaluation.Result.Verdict
			scoreSum += verdict.Score
			if verdict.Passed {
				passed++
			}
			perf := out.ModelPerformance[ev.Evaluation.Result.Model]
			perf.Total++
			if verdict.Passed {
				perf.Passed++
			}
			perf.AverageScore += verdict.Score
			out.ModelPerformance[ev.Evaluation.Result.Model] = perf
		case history.KindSplitTest:
			out.SplitTests.Total++
			a, b := countPreferences(ev.SplitTest.Messages)
			out.SplitTests.PreferenceDistribution.A += a
			out.SplitTests.PreferenceDistribution.B += b
		}
	}

	if out.Chats.Total > 0 {
		out.Chats.AverageMessagesPerChat = float64(chatMessages) / float64(out.Chats.Total)
	}
	if out.Evaluations.Total > 0 {
		out.Evaluations.PassRate = float64(passed) / float64(out.Evaluations.Total) * 100
		out.Evaluations.AverageScore = scoreSum / float64(out.Evaluations.Total)
	}
	for model, perf := range out.ModelPerformance {
		perf.AverageScore /= float64(perf.Total)
		out.ModelPerformance[model] = perf
	}
	return out, nil
}

func countPreferences(messages []splittest.Message) (a, b int) {
	for _, msg := range messages {
		if !msg.Feedback.Active() {
			continue
		}
		switch msg.Feedback.SelectedOption {
		case splittest.OptionA:
			a++
		case splittest.OptionB:
			b++
		}
	}
	return a, b
}
