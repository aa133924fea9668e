package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/blueprint/internal/errs"
	"github.com/hyperjump/blueprint/internal/retry"
)

// DefaultBatchSize is the number of texts sent per provider call.
const DefaultBatchSize = 64

// Gateway wraps a provider with batching, retries, rate limiting, a query cache,
// and a dimension check on every returned vector. It implements Embedder.
type Gateway struct {
	embedder   Embedder
	dimensions int
	batchSize  int
	policy     retry.Policy
	cache      *QueryCache
	logger     *zap.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithBatchSize sets the maximum texts per provider call.
func WithBatchSize(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithRetryPolicy sets the retry policy for provider calls.
func WithRetryPolicy(p retry.Policy) GatewayOption {
	return func(g *Gateway) {
		g.policy = p
	}
}

// WithCache enables an LRU cache for single-text embeddings.
func WithCache(size int) GatewayOption {
	return func(g *Gateway) {
		if size > 0 {
			g.cache = NewQueryCache(size)
		}
	}
}

// WithDimensions sets the expected vector length. Defaults to the provider's Dimensions.
func WithDimensions(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.dimensions = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway wraps embedder.
func NewGateway(embedder Embedder, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		embedder:   embedder,
		dimensions: embedder.Dimensions(),
		batchSize:  DefaultBatchSize,
		policy:     retry.DefaultPolicy(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.policy.Name == "" {
		g.policy.Name = "embedding"
	}
	if g.policy.Logger == nil {
		g.policy.Logger = g.logger
	}
	return g
}

// Embed embeds one text, consulting the cache first.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.cache != nil {
		if v, ok := g.cache.Get(text); ok {
			return v, nil
		}
	}
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Set(text, vecs[0])
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider batches, preserving order and length.
// Returns errs.ErrEmbeddingUnavailable when a batch fails after retries and
// errs.ErrDimensionMismatch when any vector has the wrong length.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		batch := texts[start:end]

		var vecs [][]float32
		err := g.policy.Do(ctx, func(ctx context.Context) error {
			var err error
			vecs, err = g.embedder.EmbedBatch(ctx, batch)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("provider returned %d embeddings for %d texts", len(vecs), len(batch))
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil, err
			}
			return nil, errs.Wrap(errs.ErrEmbeddingUnavailable, err)
		}
		for _, v := range vecs {
			if len(v) != g.dimensions {
				return nil, errs.DimensionMismatch(g.dimensions, len(v))
			}
		}
		g.logger.Debug("embedded batch", zap.Int("offset", start), zap.Int("size", len(batch)))
		out = append(out, vecs...)
	}
	return out, nil
}

// Dimensions returns the expected vector length.
func (g *Gateway) Dimensions() int {
	return g.dimensions
}

// Close closes the underlying provider.
func (g *Gateway) Close() error {
	if g.cache != nil {
		st := g.cache.Stats()
		g.logger.Debug("query cache",
			zap.Int("entries", st.Entries),
			zap.Uint64("hits", st.Hits),
			zap.Uint64("misses", st.Misses))
	}
	return g.embedder.Close()
}
