package llm

import (
	"context"
	"testing"
)

type staticClient struct {
	text string
}

func (c *staticClient) Complete(ctx context.Context, req Request) (Response, error) {
	return Response{Text: c.text}, nil
}

func TestLookupModel(t *testing.T) {
	tests := []struct {
		model        string
		wantProvider Provider
		wantFound    bool
	}{
		{"gpt-4o", ProviderOpenAI, true},
		{"gpt-3.5-turbo", ProviderOpenAI, true},
		{"deepseek-chat", ProviderDeepseek, true},
		{"claude-3-5-sonnet-20241022", ProviderClaude, true},
		{"gemini-2.0-flash", ProviderGemini, true},
		{"  gpt-4o  ", ProviderOpenAI, true},
		{"gpt-7", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			info, ok := LookupModel(tt.model)
			if ok != tt.wantFound {
				t.Fatalf("LookupModel(%q) found = %v, want %v", tt.model, ok, tt.wantFound)
			}
			if ok && info.Provider != tt.wantProvider {
				t.Errorf("provider = %s, want %s", info.Provider, tt.wantProvider)
			}
		})
	}
}

func TestRegistryClientFor(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ProviderOpenAI, &staticClient{text: "hi"})

	client, info, err := reg.ClientFor("gpt-4o")
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if info.Provider != ProviderOpenAI {
		t.Errorf("provider = %s, want openai", info.Provider)
	}
	resp, err := client.Complete(context.Background(), Request{Model: "gpt-4o"})
	if err != nil || resp.Text != "hi" {
		t.Errorf("Complete = (%q, %v), want (hi, nil)", resp.Text, err)
	}
}

func TestRegistryUnknownModel(t *testing.T) {
	reg := NewRegistry()
	if _, _, err := reg.ClientFor("not-a-model"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestRegistryUnconfiguredProvider(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ProviderOpenAI, &staticClient{})
	if _, _, err := reg.ClientFor("deepseek-chat"); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}

func TestRegisterNilClientIgnored(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ProviderOpenAI, nil)
	if len(reg.Providers()) != 0 {
		t.Fatalf("Providers() = %v, want empty", reg.Providers())
	}
}
