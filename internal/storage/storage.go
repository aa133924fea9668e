// Package storage keeps the ingestion ledger: which documents each namespace holds and
// which chunk IDs they produced. Vectors themselves live in the vector index.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/blueprint/internal/models"
)

// ErrNotFound is returned when a document is not in the ledger.
var ErrNotFound = errors.New("not found")

// Storage defines ledger operations.
type Storage interface {
	// PutDocument records doc and replaces its chunk IDs atomically.
	PutDocument(ctx context.Context, doc *models.DocumentRecord, chunkIDs []string) error
	GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error)
	ListDocuments(ctx context.Context, namespace string) ([]*models.DocumentRecord, error)
	ChunkIDs(ctx context.Context, documentID string) ([]string, error)
	DeleteDocument(ctx context.Context, id string) error
	// DeleteNamespace removes every document of namespace and returns how many were removed.
	DeleteNamespace(ctx context.Context, namespace string) (int64, error)

	CountDocuments(ctx context.Context, namespace string) (int64, error)
	CountChunks(ctx context.Context, namespace string) (int64, error)
	Namespaces(ctx context.Context) ([]string, error)

	Close() error
}
