package splittest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/pkg/logging"
)

const analysisPrompt = `You are an expert in prompt engineering for therapeutic chatbots. Your task is to analyze the results of an A/B test between two recipes (sets of prompts) and recommend improvements to the SYSTEM INSTRUCTIONS that define the bot's behavior.

IMPORTANT: do NOT suggest specific responses or chatbot messages. Suggest changes to the RULES and GUIDELINES the bot must follow instead.

For example:
- DO NOT suggest: "The bot should say: 'How are you feeling today?'"
- DO suggest: "Add rule: open sessions with an open question about the user's current emotional state"

Analyze:
1. Which sections of the system instructions are effective and which need improvement
2. Which rules or guidelines are missing and should be added
3. Which behavior patterns should change
4. Which aspects of the bot's personality need adjustment

For every section that needs changes you MUST copy the exact current content, provide the full new content in the same structure and format, and list each specific change with the exact text before and after plus the reason it improves the bot.

Provide your analysis as JSON with this structure:
{
  "analysis": {
    "summary": "overall summary of the recipe analysis",
    "patternsFavoredResponses": "patterns identified in the preferred responses and how they relate to the system instructions",
    "recipeAAnalysis": "analysis of the instructions in Recipe A",
    "recipeBAnalysis": "analysis of the instructions in Recipe B"
  },
  "promptChanges": {
    "recipeA": [
      {
        "promptTitle": "exact section title",
        "action": "KEEP | MODIFY | REMOVE",
        "currentContent": "the complete, exact current content of the section",
        "suggestedContent": "the complete new content keeping the same structure and format",
        "changes": [
          {
            "type": "ADD | MODIFY | REMOVE",
            "before": "exact text of the original rule (if any)",
            "after": "exact text of the new rule (if any)",
            "explanation": "why this change improves the bot's behavior"
          }
        ],
        "explanation": "how these changes improve the bot overall"
      }
    ],
    "recipeB": []
  },
  "newPrompts": {
    "suggested": [
      {
        "title": "title of the new section",
        "content": "complete formatted content of the new section",
        "purpose": "which aspect of the bot's behavior it improves",
        "implementation": "A | B | BOTH"
      }
    ]
  }
}`

// SpecificChange is one rule-level edit inside a prompt change.
type SpecificChange struct {
	Type        string  `json:"type"`
	Before      *string `json:"before"`
	After       *string `json:"after"`
	Explanation string  `json:"explanation"`
}

// PromptChange is the suggested rework of one prompt section.
type PromptChange struct {
	PromptTitle      string           `json:"promptTitle"`
	Action           string           `json:"action"`
	CurrentContent   *string          `json:"currentContent"`
	SuggestedContent *string          `json:"suggestedContent"`
	Changes          []SpecificChange `json:"changes"`
	Explanation      string           `json:"explanation"`
}

// NewPromptSuggestion proposes a brand-new prompt section.
type NewPromptSuggestion struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	Purpose        string `json:"purpose"`
	Implementation string `json:"implementation"`
}

// AnalysisResult is the structured output of a finalize-time analysis.
type AnalysisResult struct {
	Analysis struct {
		Summary                  string `json:"summary"`
		PatternsFavoredResponses string `json:"patternsFavoredResponses"`
		RecipeAAnalysis          string `json:"recipeAAnalysis"`
		RecipeBAnalysis          string `json:"recipeBAnalysis"`
	} `json:"analysis"`
	PromptChanges struct {
		RecipeA []PromptChange `json:"recipeA"`
		RecipeB []PromptChange `json:"recipeB"`
	} `json:"promptChanges"`
	NewPrompts struct {
		Suggested []NewPromptSuggestion `json:"suggested"`
	} `json:"newPrompts"`
}

// recipeDigest is the analyzer-facing view of one side's recipe.
type recipeDigest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Prompts     []string `json:"prompts"`
}

// analysisTurn is one transcript row. Turns with deleted feedback are
// packaged with null feedback fields, same as never-judged turns.
type analysisTurn struct {
	User           string  `json:"user"`
	ResponseA      string  `json:"responseA"`
	ResponseB      string  `json:"responseB"`
	SelectedOption *Option `json:"selectedOption"`
	Reaction       *string `json:"reaction"`
	Feedback       *string `json:"feedback"`
}

type analysisContext struct {
	Recipes struct {
		A recipeDigest `json:"A"`
		B recipeDigest `json:"B"`
	} `json:"recipes"`
	Conversation []analysisTurn `json:"conversation"`
	Memory       []MemoryEntry  `json:"memory"`
}

// AnalysisInput carries everything the analyzer packages into its single
// completion call.
type AnalysisInput struct {
	RecipeATitle       string
	RecipeADescription string
	RecipeAPrompts     []string
	RecipeBTitle       string
	RecipeBDescription string
	RecipeBPrompts     []string
	Messages           []Message
	Memory             []MemoryEntry
}

// Analyzer turns a finished session into structured improvement suggestions.
type Analyzer struct {
	registry    *llm.Registry
	model       string
	temperature float32
	logger      *logging.Logger
}

// NewAnalyzer builds an analyzer over the provider registry.
func NewAnalyzer(registry *llm.Registry, model string, temperature float32, logger *logging.Logger) *Analyzer {
	if registry == nil {
		panic("splittest: llm registry cannot be nil")
	}
	if model == "" {
		panic("splittest: analysis model cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Analyzer{
		registry:    registry,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// Analyze issues the analysis call and parses its JSON result. A parse
// failure returns an AnalysisError carrying the raw text; it is never
// silently swallowed.
func (a *Analyzer) Analyze(ctx context.Context, input AnalysisInput) (*AnalysisResult, error) {
	client, _, err := a.registry.ClientFor(a.model)
	if err != nil {
		return nil, &AnalysisError{Err: err}
	}

	payload, err := json.MarshalIndent(buildAnalysisContext(input), "", "  ")
	if err != nil {
		return nil, &AnalysisError{Err: fmt.Errorf("encode analysis context: %w", err)}
	}

	resp, err := client.Complete(ctx, llm.Request{
		Model:       a.model,
		Temperature: a.temperature,
		System:      []string{analysisPrompt},
		Messages: []llm.ChatMessage{{
			Role:    llm.ChatRoleUser,
			Content: string(payload),
		}},
	})
	if err != nil {
		return nil, &AnalysisError{Err: err}
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Text)), &result); err != nil {
		return nil, &AnalysisError{Raw: resp.Text, Err: fmt.Errorf("malformed analysis JSON: %w", err)}
	}
	return &result, nil
}

func buildAnalysisContext(input AnalysisInput) analysisContext {
	var c analysisContext
	c.Recipes.A = recipeDigest{Title: input.RecipeATitle, Description: input.RecipeADescription, Prompts: input.RecipeAPrompts}
	c.Recipes.B = recipeDigest{Title: input.RecipeBTitle, Description: input.RecipeBDescription, Prompts: input.RecipeBPrompts}
	c.Memory = input.Memory
	if c.Memory == nil {
		c.Memory = []MemoryEntry{}
	}

	c.Conversation = make([]analysisTurn, 0, len(input.Messages))
	for i := range input.Messages {
		msg := &input.Messages[i]
		turn := analysisTurn{
			User:      msg.UserText,
			ResponseA: msg.ResponseA.Text,
			ResponseB: msg.ResponseB.Text,
		}
		if msg.Feedback.Active() {
			option := msg.Feedback.SelectedOption
			reaction := string(msg.Feedback.Reaction)
			comment := msg.Feedback.Comment
			turn.SelectedOption = &option
			turn.Reaction = &reaction
			turn.Feedback = &comment
		}
		c.Conversation = append(c.Conversation, turn)
	}
	return c
}
