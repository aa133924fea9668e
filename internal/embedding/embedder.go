// Package embedding turns text into vectors through an external embedding capability.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// ProviderConfig selects and configures an embedding provider.
type ProviderConfig struct {
	Provider   string
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
}

// New builds the embedder for cfg.Provider.
func New(ctx context.Context, cfg ProviderConfig) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case ProviderGemini:
		return NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case ProviderMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func single(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}
