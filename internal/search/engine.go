// Package search retrieves the passages most similar to a question within one namespace.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/blueprint/internal/embedding"
	"github.com/hyperjump/blueprint/internal/errs"
	"github.com/hyperjump/blueprint/internal/fileid"
	"github.com/hyperjump/blueprint/internal/keyword"
	"github.com/hyperjump/blueprint/internal/models"
	"github.com/hyperjump/blueprint/internal/retry"
	"github.com/hyperjump/blueprint/internal/vector"
	"go.uber.org/zap"
)

const (
	DefaultTopK = 6
	MaxTopK     = 50

	// minCandidates is how many chunks each side contributes before fusion.
	minCandidates = 20
)

// Engine embeds a question and queries the vector index, optionally fused with keyword search.
type Engine struct {
	embedder      embedding.Embedder
	vectors       vector.Index
	keywords      keyword.KeywordIndex
	keywordWeight float64
	keywordOpts   *keyword.SearchOptions
	policy        retry.Policy
	defaultTopK   int
	maxTopK       int
	logger        *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithKeywordIndex fuses keyword results into the ranking with the given weight in [0,1].
// A weight of 0 disables keyword search.
func WithKeywordIndex(k keyword.KeywordIndex, weight float64, opts *keyword.SearchOptions) EngineOption {
	return func(e *Engine) {
		e.keywords = k
		e.keywordWeight = min(max(weight, 0), 1)
		e.keywordOpts = opts
	}
}

// WithTopK sets the default and maximum number of hits.
func WithTopK(defaultK, maxK int) EngineOption {
	return func(e *Engine) {
		if defaultK > 0 {
			e.defaultTopK = defaultK
		}
		if maxK > 0 {
			e.maxTopK = maxK
		}
	}
}

// WithRetryPolicy sets the policy for vector queries.
func WithRetryPolicy(p retry.Policy) EngineOption {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a retriever. embedder must produce vectors in the same space used at ingestion.
func NewEngine(embedder embedding.Embedder, vectors vector.Index, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:    embedder,
		vectors:     vectors,
		policy:      retry.DefaultPolicy(),
		defaultTopK: DefaultTopK,
		maxTopK:     MaxTopK,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy.Name == "" {
		e.policy.Name = "vector query"
	}
	e.policy.Logger = e.logger
	return e
}

// Search returns at most topK hits from namespace ordered by non-increasing score.
// A namespace with nothing indexed yields an empty slice and no error.
// Vector index failures after retries are reported as errs.ErrRetrievalUnavailable;
// embedding failures keep their own kind.
func (e *Engine) Search(ctx context.Context, query, namespace string, topK int) ([]models.RetrievalHit, error) {
	ns, err := fileid.Namespace(namespace)
	if err != nil {
		return nil, err
	}
	q, err := ProcessQuery(query)
	if err != nil {
		return nil, err
	}
	k := resolveTopK(topK, e.defaultTopK, e.maxTopK)
	hybrid := e.keywords != nil && e.keywordWeight > 0
	candidates := k
	if hybrid {
		candidates = max(k*2, minCandidates)
	}

	var (
		matches        []vector.Match
		keywordResults []*keyword.KeywordResult
		semanticErr    error
		wg             sync.WaitGroup
	)

	if hybrid {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.keywords.Search(ctx, ns, q, candidates, e.keywordOpts)
			if err != nil {
				// Keyword search only refines the ranking; fall back to vectors alone.
				e.logger.Warn("keyword search failed", zap.String("namespace", ns), zap.Error(err))
				return
			}
			keywordResults = results
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		matches, semanticErr = e.semantic(ctx, q, ns, candidates)
	}()
	wg.Wait()

	if semanticErr != nil {
		return nil, semanticErr
	}

	fused := Fuse(matches, keywordResults, e.keywordWeight)
	if len(fused) > k {
		fused = fused[:k]
	}
	hits := make([]models.RetrievalHit, len(fused))
	for i, fr := range fused {
		hits[i] = fr.Hit
	}
	e.logger.Debug("search finished",
		zap.String("namespace", ns),
		zap.Int("top_k", k),
		zap.Int("hits", len(hits)),
		zap.Bool("hybrid", hybrid))
	return hits, nil
}

func (e *Engine) semantic(ctx context.Context, query, ns string, k int) ([]vector.Match, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	var matches []vector.Match
	err = e.policy.Do(ctx, func(ctx context.Context) error {
		var qerr error
		matches, qerr = e.vectors.Query(ctx, ns, vec, k)
		if errors.Is(qerr, errs.ErrDimensionMismatch) {
			return retry.Permanent(qerr)
		}
		return qerr
	})
	if err != nil {
		if errors.Is(err, errs.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrRetrievalUnavailable, fmt.Errorf("failed to query vectors: %w", err))
	}
	return matches, nil
}
