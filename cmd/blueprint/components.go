package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/blueprint/internal/config"
	"github.com/hyperjump/blueprint/internal/embedding"
	"github.com/hyperjump/blueprint/internal/extract"
	"github.com/hyperjump/blueprint/internal/indexer"
	"github.com/hyperjump/blueprint/internal/keyword"
	"github.com/hyperjump/blueprint/internal/llm"
	"github.com/hyperjump/blueprint/internal/retry"
	"github.com/hyperjump/blueprint/internal/search"
	"github.com/hyperjump/blueprint/internal/storage"
	"github.com/hyperjump/blueprint/internal/synth"
	"github.com/hyperjump/blueprint/internal/vector"
)

// Components holds the wired services for one process.
type Components struct {
	Ledger      *storage.SQLiteStorage
	Keywords    *keyword.BleveIndex
	Vectors     vector.Index
	Embedder    *embedding.Gateway
	Generator   llm.Generator
	Pipeline    *indexer.Pipeline
	Engine      *search.Engine
	Synthesizer *synth.Synthesizer
}

// Close releases every component that was created, in reverse order of construction.
func (c *Components) Close() {
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
}

// policyFor builds the retry policy for one kind of external call.
func policyFor(rc config.RetryConfig, timeout time.Duration, rps float64, name string, logger *zap.Logger) retry.Policy {
	p := retry.Policy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   rc.BaseDelay,
		MaxDelay:    rc.MaxDelay,
		Jitter:      rc.Jitter,
		Timeout:     timeout,
		Logger:      logger,
		Name:        name,
	}
	if rps > 0 {
		p.Limiter = retry.NewLimiter(rps, max(1, int(rps)))
	}
	return p
}

func ensureParent(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// initializeComponents wires storage, indices, and providers from cfg.
// The generator is only created when withGeneration is set so ingestion commands work without a chat key.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withGeneration bool) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Ledger, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err = ensureParent(cfg.Storage.KeywordIndexPath); err != nil {
		return nil, fmt.Errorf("failed to create keyword index directory: %w", err)
	}
	c.Keywords, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	if err = ensureParent(cfg.Vector.Path); err != nil {
		return nil, fmt.Errorf("failed to create vector index directory: %w", err)
	}
	c.Vectors, err = vector.NewIndex(vector.Config{
		Type:       cfg.Vector.Type,
		Dimensions: cfg.Embedding.Dimensions,
		Path:       cfg.Vector.Path,
		Weaviate: vector.WeaviateConfig{
			Host:   cfg.Vector.Weaviate.Host,
			Scheme: cfg.Vector.Weaviate.Scheme,
			APIKey: cfg.Vector.Weaviate.APIKey,
			Class:  cfg.Vector.Weaviate.Class,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.String("type", cfg.Vector.Type),
		zap.Int("dimensions", cfg.Embedding.Dimensions))

	provider, err := embedding.New(ctx, embedding.ProviderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedding.NewGateway(provider,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithCache(cfg.Embedding.CacheSize),
		embedding.WithDimensions(cfg.Embedding.Dimensions),
		embedding.WithRetryPolicy(policyFor(cfg.Retry, cfg.Embedding.Timeout, cfg.Embedding.RequestsPerSecond, "embedding", logger)),
		embedding.WithLogger(logger))

	parserOpts := []extract.Option{extract.WithMinPageChars(cfg.OCR.MinPageChars), extract.WithLogger(logger)}
	if cfg.OCR.Enabled {
		ocr := extract.NewCommandOCR(cfg.OCR.PdftoppmPath, cfg.OCR.TesseractPath, cfg.OCR.DPI)
		if oerr := ocr.Available(); oerr != nil {
			logger.Warn("OCR disabled", zap.Error(oerr))
		} else {
			parserOpts = append(parserOpts, extract.WithOCR(ocr))
		}
	}
	chunker, err := indexer.NewChunker(cfg.Chunking.MinChunkChars, cfg.Chunking.MaxChunkChars, cfg.Chunking.OverlapChars)
	if err != nil {
		return nil, err
	}

	vectorPolicy := policyFor(cfg.Retry, cfg.Vector.Timeout, 0, "vector index", logger)
	c.Pipeline = indexer.NewPipeline(extract.NewParser(parserOpts...), chunker, c.Embedder, c.Vectors,
		indexer.WithKeywordIndex(c.Keywords),
		indexer.WithLedger(c.Ledger),
		indexer.WithConcurrency(cfg.Ingest.Concurrency),
		indexer.WithExtensions(cfg.Ingest.Extensions),
		indexer.WithRetryPolicy(vectorPolicy),
		indexer.WithLogger(logger))

	c.Engine = search.NewEngine(c.Embedder, c.Vectors,
		search.WithKeywordIndex(c.Keywords, cfg.Search.KeywordWeight, &keyword.SearchOptions{
			DrawingBoost: cfg.Search.DrawingBoost,
			FuzzyEnabled: cfg.Search.Fuzzy,
			Fuzziness:    1,
		}),
		search.WithTopK(cfg.Search.DefaultTopK, cfg.Search.MaxTopK),
		search.WithRetryPolicy(vectorPolicy),
		search.WithLogger(logger))

	if !withGeneration {
		return c, nil
	}
	c.Generator, err = llm.New(ctx, llm.ProviderConfig{
		Provider: cfg.Generation.Provider,
		Model:    cfg.Generation.Model,
		APIKey:   cfg.Generation.APIKey,
		BaseURL:  cfg.Generation.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	c.Synthesizer = synth.NewSynthesizer(c.Generator,
		synth.WithRetryPolicy(policyFor(cfg.Retry, cfg.Generation.Timeout, cfg.Generation.RequestsPerSecond, "generation", logger)),
		synth.WithTemperature(cfg.Generation.Temperature),
		synth.WithMaxSources(cfg.Synth.MaxSources),
		synth.WithScoreThresholds(cfg.Synth.LowScoreThreshold, cfg.Synth.HighScoreThreshold),
		synth.WithMeasurementGuardrail(cfg.Synth.GuardrailOrDefault()),
		synth.WithLogger(logger))
	return c, nil
}
