package catalog

import "errors"

var (
	// ErrMissingTitle is returned when a prompt or recipe has no title.
	ErrMissingTitle = errors.New("catalog: title is required")

	// ErrMissingContent is returned when a prompt has no content.
	ErrMissingContent = errors.New("catalog: content is required")

	// ErrNoPromptRefs is returned when a recipe references no prompts.
	ErrNoPromptRefs = errors.New("catalog: recipe needs at least one prompt reference")

	// ErrPromptNotFound is returned when a prompt id does not exist.
	ErrPromptNotFound = errors.New("catalog: prompt not found")

	// ErrRecipeNotFound is returned when a recipe id does not exist.
	ErrRecipeNotFound = errors.New("catalog: recipe not found")
)
