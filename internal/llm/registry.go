package llm

import (
	"fmt"
	"strings"
)

// Provider identifies a concrete completion backend.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderDeepseek Provider = "deepseek"
	ProviderClaude   Provider = "claude"
	ProviderGemini   Provider = "gemini"
)

// ModelInfo describes one selectable model.
type ModelInfo struct {
	Value    string
	Label    string
	Provider Provider
}

// Models is the static model catalog. Provider resolution for a turn is a
// lookup here, never an inference from the model string.
var Models = []ModelInfo{
	{Value: "gpt-3.5-turbo", Label: "GPT-3.5 Turbo", Provider: ProviderOpenAI},
	{Value: "gpt-4o", Label: "GPT-4o", Provider: ProviderOpenAI},
	{Value: "gpt-4o-mini", Label: "GPT-4o Mini", Provider: ProviderOpenAI},
	{Value: "deepseek-chat", Label: "Deepseek Chat", Provider: ProviderDeepseek},
	{Value: "claude-3-5-sonnet-20241022", Label: "Claude 3.5 Sonnet", Provider: ProviderClaude},
	{Value: "gemini-2.0-flash", Label: "Gemini 2.0 Flash", Provider: ProviderGemini},
}

// LookupModel returns the catalog entry for a model id.
func LookupModel(model string) (ModelInfo, bool) {
	model = strings.TrimSpace(model)
	for _, m := range Models {
		if m.Value == model {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// Registry maps providers to configured clients and resolves models to the
// client that serves them.
type Registry struct {
	clients map[Provider]Client
}

// NewRegistry builds a registry. Nil clients are allowed; resolving a model
// whose provider has no client fails at call time, not construction time.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[Provider]Client)}
}

// Register installs a client for a provider, replacing any previous one.
func (r *Registry) Register(p Provider, c Client) {
	if c == nil {
		return
	}
	r.clients[p] = c
}

// ClientFor resolves a model id to the client that serves it.
func (r *Registry) ClientFor(model string) (Client, ModelInfo, error) {
	info, ok := LookupModel(model)
	if !ok {
		return nil, ModelInfo{}, fmt.Errorf("llm: unknown model %q", model)
	}
	client, ok := r.clients[info.Provider]
	if !ok {
		return nil, info, fmt.Errorf("llm: no client configured for provider %s", info.Provider)
	}
	return client, info, nil
}

// Providers returns the providers with a configured client.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	return out
}
