// Package vector stores chunk embeddings in isolated namespaces and answers similarity queries.
package vector

import (
	"context"
	"strconv"
)

// Index is a namespaced vector store. Every call is scoped to exactly one namespace;
// records written to one namespace are never returned by queries on another.
type Index interface {
	// EnsureNamespace creates backing storage for ns if the backend needs it.
	EnsureNamespace(ctx context.Context, ns string) error
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, ns string, records []Record) error
	// Query returns up to k matches ordered by non-increasing cosine similarity.
	// An unknown or empty namespace yields no matches and no error.
	Query(ctx context.Context, ns string, vector []float32, k int) ([]Match, error)
	Delete(ctx context.Context, ns string, ids []string) error
	DeleteNamespace(ctx context.Context, ns string) error
	Count(ctx context.Context, ns string) (int, error)
	Dimensions() int
	Close() error
}

// Record is a vector with the chunk metadata needed to build a citation.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Metadata is stored alongside each vector.
type Metadata struct {
	DocumentID  string `json:"document_id"`
	DrawingName string `json:"drawing_name"`
	Page        int    `json:"page"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Text        string `json:"text"`
}

// Match is a single similarity hit.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// toMap flattens metadata for backends that only store strings.
func (m Metadata) toMap() map[string]string {
	return map[string]string{
		"document_id":  m.DocumentID,
		"drawing_name": m.DrawingName,
		"page":         strconv.Itoa(m.Page),
		"start":        strconv.Itoa(m.Start),
		"end":          strconv.Itoa(m.End),
	}
}

func metadataFromMap(md map[string]string, text string) Metadata {
	page, _ := strconv.Atoi(md["page"])
	start, _ := strconv.Atoi(md["start"])
	end, _ := strconv.Atoi(md["end"])
	return Metadata{
		DocumentID:  md["document_id"],
		DrawingName: md["drawing_name"],
		Page:        page,
		Start:       start,
		End:         end,
		Text:        text,
	}
}
