// Package errs defines the error kinds shared by ingestion and query paths.
// Callers match kinds with errors.Is; wrapped causes stay available through errors.Unwrap.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrParseFailure means a document has no extractable content or could not be opened.
	ErrParseFailure = errors.New("parse failure")
	// ErrUnsupportedFormat means the media type is not PDF or plain text.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmbeddingUnavailable means the embedding capability failed after retries.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrRetrievalUnavailable means the vector index failed after retries.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable means the generation capability failed after retries.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrDimensionMismatch means a vector's length differs from the configured index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidNamespace means a namespace is empty or contains unsupported characters.
	ErrInvalidNamespace = errors.New("invalid namespace")
	// ErrInvalidInput means a request is malformed.
	ErrInvalidInput = errors.New("invalid input")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrDimensionMismatch, "dimension_mismatch"},
	{ErrParseFailure, "parse_failure"},
	{ErrUnsupportedFormat, "unsupported_format"},
	{ErrEmbeddingUnavailable, "embedding_unavailable"},
	{ErrRetrievalUnavailable, "retrieval_unavailable"},
	{ErrGenerationUnavailable, "generation_unavailable"},
	{ErrInvalidNamespace, "invalid_namespace"},
	{ErrInvalidInput, "invalid_input"},
}

// Kind returns a stable snake_case name for the first known kind in err's chain, or "internal".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// Unavailable reports whether err is one of the external-capability outage kinds.
func Unavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrRetrievalUnavailable) ||
		errors.Is(err, ErrGenerationUnavailable)
}

// Wrap returns an error that matches kind with errors.Is and keeps cause in its chain.
func Wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// DimensionMismatch builds an ErrDimensionMismatch with the offending sizes.
func DimensionMismatch(want, got int) error {
	return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, want, got)
}
