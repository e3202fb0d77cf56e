package main

import (
	"testing"

	"github.com/promptlab/promptlab/internal/catalog"
	appconfig "github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/pkg/logging"
)

func TestBuildCatalogRepositoryDefaultsToMemory(t *testing.T) {
	logger := logging.New("error")
	repo := buildCatalogRepository(t.Context(), &appconfig.Config{}, logger)
	if _, ok := repo.(*catalog.InMemoryRepository); !ok {
		t.Fatalf("expected in-memory repository without DATABASE_URL, got %T", repo)
	}
}

func TestBuildHistoryStoreDefaultsToMemory(t *testing.T) {
	logger := logging.New("error")
	store := buildHistoryStore(t.Context(), &appconfig.Config{HistoryBackend: "memory"}, logger)
	if _, ok := store.(*history.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestBuildProviderRegistryWithoutCredentials(t *testing.T) {
	logger := logging.New("error")
	registry := buildProviderRegistry(t.Context(), &appconfig.Config{}, logger)
	if got := len(registry.Providers()); got != 0 {
		t.Fatalf("expected no providers without credentials, got %d", got)
	}
}
