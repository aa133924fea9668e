package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 2 * time.Minute
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/blueprint.db"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "./data/indices/keyword"
	}

	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "chromem"
	}
	if cfg.Vector.Path == "" && cfg.Vector.Type != "weaviate" {
		cfg.Vector.Path = "./data/indices/vectors"
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = 15 * time.Second
	}
	if cfg.Vector.Weaviate.Scheme == "" {
		cfg.Vector.Weaviate.Scheme = "http"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "gemini":
			cfg.Embedding.Model = "text-embedding-004"
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-large"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "gemini":
			cfg.Embedding.Dimensions = 768
		case "mock":
			cfg.Embedding.Dimensions = 256
		default:
			cfg.Embedding.Dimensions = 3072
		}
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.Model == "" {
		switch cfg.Generation.Provider {
		case "gemini":
			cfg.Generation.Model = "gemini-1.5-flash"
		case "openai":
			cfg.Generation.Model = "gpt-4o-mini"
		}
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.1
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 60 * time.Second
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 4
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 200 * time.Millisecond
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 5 * time.Second
	}
	if cfg.Retry.Jitter == 0 {
		cfg.Retry.Jitter = 0.2
	}

	if cfg.Chunking.MinChunkChars == 0 {
		cfg.Chunking.MinChunkChars = 300
	}
	if cfg.Chunking.MaxChunkChars == 0 {
		cfg.Chunking.MaxChunkChars = 1200
	}
	if cfg.Chunking.OverlapChars == 0 {
		cfg.Chunking.OverlapChars = 150
	}

	if cfg.Ingest.DefaultNamespace == "" {
		cfg.Ingest.DefaultNamespace = "default"
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.DataDir == "" {
		cfg.Ingest.DataDir = "./data/raw"
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".pdf", ".txt", ".md"}
	}

	if cfg.OCR.DPI == 0 {
		cfg.OCR.DPI = 300
	}
	if cfg.OCR.MinPageChars == 0 {
		cfg.OCR.MinPageChars = 40
	}
	if cfg.OCR.PdftoppmPath == "" {
		cfg.OCR.PdftoppmPath = "pdftoppm"
	}
	if cfg.OCR.TesseractPath == "" {
		cfg.OCR.TesseractPath = "tesseract"
	}

	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 6
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 50
	}
	if cfg.Search.DrawingBoost == 0 {
		cfg.Search.DrawingBoost = 3.0
	}

	if cfg.Synth.MaxSources == 0 {
		cfg.Synth.MaxSources = 3
	}
	if cfg.Synth.HistoryTurns == 0 {
		cfg.Synth.HistoryTurns = 10
	}
	if cfg.Synth.LowScoreThreshold == 0 {
		cfg.Synth.LowScoreThreshold = 0.25
	}
	if cfg.Synth.HighScoreThreshold == 0 {
		cfg.Synth.HighScoreThreshold = 0.5
	}

	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
