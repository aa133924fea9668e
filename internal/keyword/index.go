// Package keyword provides a BM25 side index over chunk text for hybrid retrieval.
package keyword

import (
	"context"

	"github.com/hyperjump/blueprint/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// DrawingBoost multiplies the score contribution from matches in the drawing name.
	// Values > 1 make sheet-name matches (e.g. "A-101") rank higher. Use 1.0 for no boost.
	DrawingBoost float64
	// FuzzyEnabled enables fuzzy matching for OCR noise and typos.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
}

// KeywordIndex defines keyword search operations over chunks. Every search is scoped to one namespace.
type KeywordIndex interface {
	Index(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, namespace, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids []string) error
	DeleteNamespace(ctx context.Context, namespace string) (int, error)
	Count(ctx context.Context, namespace string) (int, error)
	Close() error
}

// KeywordResult is a single keyword search hit with the stored chunk fields.
type KeywordResult struct {
	ID          string
	Score       float64
	DocumentID  string
	DrawingName string
	Page        int
	Text        string
}
