package vector

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hyperjump/blueprint/internal/errs"
)

const chromemCollectionPrefix = "ns_"

var errNoEmbedFunc = errors.New("chromem collection received text without a precomputed embedding")

// noEmbed makes chromem reject any call that would embed text itself; vectors always come from the gateway.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedFunc
}

// ChromemIndex stores each namespace in its own chromem-go collection.
// With a path, collections are persisted to disk as they are written.
type ChromemIndex struct {
	db         *chromem.DB
	dimensions int
}

// NewChromemIndex opens a chromem-go database. An empty path keeps everything in memory.
func NewChromemIndex(dimensions int, path string) (*ChromemIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}
	return &ChromemIndex{db: db, dimensions: dimensions}, nil
}

func collectionName(ns string) string {
	return chromemCollectionPrefix + ns
}

// EnsureNamespace creates the namespace collection if it does not exist.
func (c *ChromemIndex) EnsureNamespace(ctx context.Context, ns string) error {
	_, err := c.collection(ns, true)
	return err
}

func (c *ChromemIndex) collection(ns string, create bool) (*chromem.Collection, error) {
	if !create {
		return c.db.GetCollection(collectionName(ns), noEmbed), nil
	}
	col, err := c.db.GetOrCreateCollection(collectionName(ns), map[string]string{"namespace": ns}, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection for namespace %s: %w", ns, err)
	}
	return col, nil
}

// Upsert adds documents with precomputed embeddings; existing IDs are overwritten.
func (c *ChromemIndex) Upsert(ctx context.Context, ns string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkDims(c.dimensions, records); err != nil {
		return err
	}
	col, err := c.collection(ns, true)
	if err != nil {
		return err
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Metadata:  r.Metadata.toMap(),
			Embedding: normalized(r.Vector),
			Content:   r.Metadata.Text,
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query runs a nearest-neighbour search in the namespace collection.
func (c *ChromemIndex) Query(ctx context.Context, ns string, vector []float32, k int) ([]Match, error) {
	if len(vector) != c.dimensions {
		return nil, errs.DimensionMismatch(c.dimensions, len(vector))
	}
	col, _ := c.collection(ns, false)
	if col == nil || k <= 0 {
		return nil, nil
	}
	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	results, err := col.QueryEmbedding(ctx, normalized(vector), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: metadataFromMap(r.Metadata, r.Content),
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// Delete removes ids from the namespace collection.
func (c *ChromemIndex) Delete(ctx context.Context, ns string, ids []string) error {
	col, _ := c.collection(ns, false)
	if col == nil || len(ids) == 0 {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// DeleteNamespace drops the namespace collection.
func (c *ChromemIndex) DeleteNamespace(ctx context.Context, ns string) error {
	if col, _ := c.collection(ns, false); col == nil {
		return nil
	}
	if err := c.db.DeleteCollection(collectionName(ns)); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Count returns the number of documents in the namespace collection.
func (c *ChromemIndex) Count(ctx context.Context, ns string) (int, error) {
	col, _ := c.collection(ns, false)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Namespaces returns the names of existing namespaces, sorted.
func (c *ChromemIndex) Namespaces() []string {
	var out []string
	for name := range c.db.ListCollections() {
		if len(name) > len(chromemCollectionPrefix) && name[:len(chromemCollectionPrefix)] == chromemCollectionPrefix {
			out = append(out, name[len(chromemCollectionPrefix):])
		}
	}
	sort.Strings(out)
	return out
}

// Dimensions returns the vector length.
func (c *ChromemIndex) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; persistent collections are written on every change.
func (c *ChromemIndex) Close() error {
	return nil
}
