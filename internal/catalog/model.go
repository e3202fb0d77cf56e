package catalog

import (
	"strings"
	"time"
)

// ExampleMessage is a sample exchange attached to a prompt for documentation
// in the authoring UI. It is never sent to a provider.
type ExampleMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a titled block of instruction text, the building block of a recipe.
type Prompt struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	ExampleMessages []ExampleMessage `json:"example_messages,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Parameters are the generation parameters a recipe carries.
type Parameters struct {
	Temperature      float32  `json:"temperature"`
	FrequencyPenalty float32  `json:"frequency_penalty"`
	PresencePenalty  float32  `json:"presence_penalty"`
	TopP             float32  `json:"top_p,omitempty"`
	MaxTokens        int32    `json:"max_tokens,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
}

// Recipe is an ordered bundle of prompt references plus generation
// parameters. Its effective system prompt is derived at resolution time, not
// stored.
type Recipe struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	PromptIDs   []string   `json:"prompt_ids"`
	Params      Parameters `json:"params"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreatePromptRequest is the request body for creating a prompt.
type CreatePromptRequest struct {
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	ExampleMessages []ExampleMessage `json:"example_messages,omitempty"`
}

// Validate validates the create prompt request.
func (r *CreatePromptRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingTitle
	}
	if strings.TrimSpace(r.Content) == "" {
		return ErrMissingContent
	}
	return nil
}

// CreateRecipeRequest is the request body for creating a recipe.
type CreateRecipeRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	PromptIDs   []string   `json:"prompt_ids"`
	Params      Parameters `json:"params"`
}

// Validate validates the create recipe request.
func (r *CreateRecipeRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingTitle
	}
	if len(r.PromptIDs) == 0 {
		return ErrNoPromptRefs
	}
	for _, id := range r.PromptIDs {
		if strings.TrimSpace(id) == "" {
			return ErrNoPromptRefs
		}
	}
	return nil
}
