package vector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/hyperjump/blueprint/internal/errs"
)

// DefaultWeaviateClass holds every chunk; namespaces are a filtered property.
const DefaultWeaviateClass = "DrawingChunk"

const weaviateBatchSize = 200

// uuidNamespace seeds deterministic object IDs so re-ingestion overwrites.
var uuidNamespace = uuid.MustParse("7d7f5f0e-4b8a-4a57-9a3e-5c1f3e2a9b10")

// WeaviateConfig configures the remote index.
type WeaviateConfig struct {
	Host   string
	Scheme string
	APIKey string
	Class  string
}

// WeaviateIndex stores chunks as objects of one class with vectorizer "none"
// and a namespace property used to scope every query.
type WeaviateIndex struct {
	client     *weaviate.Client
	class      string
	dimensions int

	schemaMu    sync.Mutex
	schemaReady bool
}

// NewWeaviateIndex builds a client for cfg. The class is created lazily on first use.
func NewWeaviateIndex(dimensions int, cfg WeaviateConfig) (*WeaviateIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	scheme, host := cfg.Scheme, cfg.Host
	if strings.HasPrefix(host, "https://") {
		scheme, host = "https", strings.TrimPrefix(host, "https://")
	} else if strings.HasPrefix(host, "http://") {
		scheme, host = "http", strings.TrimPrefix(host, "http://")
	}
	if scheme == "" {
		scheme = "http"
	}
	wcfg := weaviate.Config{Host: host, Scheme: scheme}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
		wcfg.Headers = map[string]string{
			"X-Weaviate-Api-Key":     cfg.APIKey,
			"X-Weaviate-Cluster-Url": fmt.Sprintf("%s://%s", scheme, host),
		}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	class := cfg.Class
	if class == "" {
		class = DefaultWeaviateClass
	}
	return &WeaviateIndex{client: client, class: class, dimensions: dimensions}, nil
}

func (w *WeaviateIndex) classObject() *models.Class {
	return &models.Class{
		Class:           w.class,
		Description:     "Chunks of architectural drawing text",
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: "namespace", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "chunkId", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "documentId", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "drawingName", DataType: []string{"text"}},
			{Name: "page", DataType: []string{"int"}},
			{Name: "start", DataType: []string{"int"}},
			{Name: "end", DataType: []string{"int"}},
			{Name: "content", DataType: []string{"text"}},
		},
	}
}

// ensureSchema creates the class if it does not exist. Only success is remembered,
// so a failed check or create is attempted again on the next call.
func (w *WeaviateIndex) ensureSchema(ctx context.Context) error {
	w.schemaMu.Lock()
	defer w.schemaMu.Unlock()
	if w.schemaReady {
		return nil
	}
	exists, err := w.client.Schema().ClassExistenceChecker().WithClassName(w.class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check weaviate class: %w", err)
	}
	if !exists {
		if err := w.client.Schema().ClassCreator().WithClass(w.classObject()).Do(ctx); err != nil {
			return fmt.Errorf("failed to create weaviate class: %w", err)
		}
	}
	w.schemaReady = true
	return nil
}

func objectID(ns, chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuidNamespace, []byte(ns+"\x00"+chunkID)).String())
}

func namespaceFilter(ns string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"namespace"}).
		WithOperator(filters.Equal).
		WithValueText(ns)
}

// EnsureNamespace ensures the shared class exists.
func (w *WeaviateIndex) EnsureNamespace(ctx context.Context, ns string) error {
	return w.ensureSchema(ctx)
}

// Upsert writes records in batches. Object IDs derive from namespace and chunk ID.
func (w *WeaviateIndex) Upsert(ctx context.Context, ns string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkDims(w.dimensions, records); err != nil {
		return err
	}
	if err := w.ensureSchema(ctx); err != nil {
		return err
	}
	for i := 0; i < len(records); i += weaviateBatchSize {
		end := min(i+weaviateBatchSize, len(records))
		batcher := w.client.Batch().ObjectsBatcher()
		for _, r := range records[i:end] {
			batcher = batcher.WithObjects(&models.Object{
				Class:  w.class,
				ID:     objectID(ns, r.ID),
				Vector: r.Vector,
				Properties: map[string]interface{}{
					"namespace":   ns,
					"chunkId":     r.ID,
					"documentId":  r.Metadata.DocumentID,
					"drawingName": r.Metadata.DrawingName,
					"page":        r.Metadata.Page,
					"start":       r.Metadata.Start,
					"end":         r.Metadata.End,
					"content":     r.Metadata.Text,
				},
			})
		}
		resp, err := batcher.Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %w", i, end, err)
		}
		if err := batchError(resp); err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func batchError(resp []models.ObjectsGetResponse) error {
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil {
			continue
		}
		for _, e := range obj.Result.Errors.Error {
			if e != nil && e.Message != "" {
				return fmt.Errorf("object %s: %s", obj.ID, e.Message)
			}
		}
	}
	return nil
}

var queryFields = []graphql.Field{
	{Name: "chunkId"},
	{Name: "documentId"},
	{Name: "drawingName"},
	{Name: "page"},
	{Name: "start"},
	{Name: "end"},
	{Name: "content"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}, {Name: "id"}}},
}

// Query runs a nearVector search filtered to ns. Scores are 1 - cosine distance.
func (w *WeaviateIndex) Query(ctx context.Context, ns string, vector []float32, k int) ([]Match, error) {
	if len(vector) != w.dimensions {
		return nil, errs.DimensionMismatch(w.dimensions, len(vector))
	}
	if k <= 0 {
		return nil, nil
	}
	if err := w.ensureSchema(ctx); err != nil {
		return nil, err
	}
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	result, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(queryFields...).
		WithNearVector(nearVector).
		WithWhere(namespaceFilter(ns)).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query: %s", result.Errors[0].Message)
	}
	return parseGetResult(result.Data, w.class), nil
}

func parseGetResult(data map[string]models.JSONObject, class string) []Match {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[class].([]interface{})
	if !ok {
		return nil
	}
	matches := make([]Match, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		m := Match{
			ID: stringField(obj, "chunkId"),
			Metadata: Metadata{
				DocumentID:  stringField(obj, "documentId"),
				DrawingName: stringField(obj, "drawingName"),
				Page:        intField(obj, "page"),
				Start:       intField(obj, "start"),
				End:         intField(obj, "end"),
				Text:        stringField(obj, "content"),
			},
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				m.Score = 1 - d
			}
		}
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}

func intField(obj map[string]interface{}, key string) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Delete removes the objects for ids in ns.
func (w *WeaviateIndex) Delete(ctx context.Context, ns string, ids []string) error {
	for _, id := range ids {
		err := w.client.Data().Deleter().
			WithClassName(w.class).
			WithID(objectID(ns, id).String()).
			Do(ctx)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete object %s: %w", id, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var clientErr *fault.WeaviateClientError
	return errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound
}

// DeleteNamespace removes every object whose namespace property equals ns.
func (w *WeaviateIndex) DeleteNamespace(ctx context.Context, ns string) error {
	if err := w.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(w.class).
		WithWhere(namespaceFilter(ns)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", ns, err)
	}
	return nil
}

// Count aggregates the number of objects in ns.
func (w *WeaviateIndex) Count(ctx context.Context, ns string) (int, error) {
	if err := w.ensureSchema(ctx); err != nil {
		return 0, err
	}
	result, err := w.client.GraphQL().Aggregate().
		WithClassName(w.class).
		WithWhere(namespaceFilter(ns)).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("weaviate aggregate: %s", result.Errors[0].Message)
	}
	return parseAggregateCount(result.Data, w.class), nil
}

func parseAggregateCount(data map[string]models.JSONObject, class string) int {
	agg, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	items, ok := agg[class].([]interface{})
	if !ok || len(items) == 0 {
		return 0
	}
	first, ok := items[0].(map[string]interface{})
	if !ok {
		return 0
	}
	meta, ok := first["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	return intField(meta, "count")
}

// Dimensions returns the vector length.
func (w *WeaviateIndex) Dimensions() int {
	return w.dimensions
}

// Close is a no-op; the client holds no persistent connection.
func (w *WeaviateIndex) Close() error {
	return nil
}
