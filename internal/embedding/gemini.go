package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "text-embedding-004"

// GeminiEmbedder calls the Gemini batch embedding API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      *genai.EmbeddingModel
	dimensions int
}

// NewGeminiEmbedder connects to the Gemini API with apiKey.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*GeminiEmbedder, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	em := client.EmbeddingModel(model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	return &GeminiEmbedder{client: client, model: em, dimensions: dimensions}, nil
}

// Embed embeds a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return single(ctx, e, text)
}

// EmbedBatch embeds texts in one BatchEmbedContents call.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batch := e.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	resp, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings, expected %d", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions returns the configured output size.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the client connection.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
