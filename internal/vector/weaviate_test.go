package vector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestObjectID_deterministicPerNamespace(t *testing.T) {
	assert.Equal(t, objectID("p1", "chunk:1"), objectID("p1", "chunk:1"))
	assert.NotEqual(t, objectID("p1", "chunk:1"), objectID("p2", "chunk:1"))
}

func TestParseGetResult(t *testing.T) {
	var data map[string]models.JSONObject
	raw := `{"Get":{"DrawingChunk":[
		{"chunkId":"c2","documentId":"d","drawingName":"A-102.pdf","page":2,"start":0,"end":10,"content":"far","_additional":{"distance":0.6,"id":"x"}},
		{"chunkId":"c1","documentId":"d","drawingName":"A-101.pdf","page":1,"start":0,"end":10,"content":"near","_additional":{"distance":0.1,"id":"y"}}
	]}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	matches := parseGetResult(data, "DrawingChunk")
	require.Len(t, matches, 2)
	assert.Equal(t, "c1", matches[0].ID)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-9)
	assert.Equal(t, "A-101.pdf", matches[0].Metadata.DrawingName)
	assert.Equal(t, 1, matches[0].Metadata.Page)
	assert.Equal(t, "near", matches[0].Metadata.Text)

	assert.Empty(t, parseGetResult(map[string]models.JSONObject{}, "DrawingChunk"))
}

func TestParseAggregateCount(t *testing.T) {
	var data map[string]models.JSONObject
	require.NoError(t, json.Unmarshal([]byte(`{"Aggregate":{"DrawingChunk":[{"meta":{"count":42}}]}}`), &data))
	assert.Equal(t, 42, parseAggregateCount(data, "DrawingChunk"))
	assert.Equal(t, 0, parseAggregateCount(map[string]models.JSONObject{}, "DrawingChunk"))
}

// fakeWeaviate answers the REST and GraphQL calls the index makes.
type fakeWeaviate struct {
	mu      sync.Mutex
	created bool
	batches []string
	graphql []string

	// createFailures is how many class creations answer 503 before one succeeds.
	createFailures int
	createCalls    int
}

func (f *fakeWeaviate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/meta":
		_, _ = w.Write([]byte(`{"version":"1.27.0"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/v1/schema":
		if !f.created {
			_, _ = w.Write([]byte(`{"classes":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"classes":[{"class":"DrawingChunk"}]}`))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/schema/"):
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"class":"DrawingChunk"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
		f.createCalls++
		if f.createFailures > 0 {
			f.createFailures--
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":[{"message":"unavailable"}]}`))
			return
		}
		f.created = true
		_, _ = w.Write(body)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/batch/objects":
		f.batches = append(f.batches, string(body))
		_, _ = w.Write([]byte(`[]`))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/graphql":
		f.graphql = append(f.graphql, string(body))
		_, _ = w.Write([]byte(`{"data":{"Get":{"DrawingChunk":[
			{"chunkId":"c1","documentId":"d","drawingName":"A-101.pdf","page":1,"start":0,"end":4,"content":"door","_additional":{"distance":0.2,"id":"u"}}
		]}}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestWeaviateIndex_UpsertAndQuery(t *testing.T) {
	fake := &fakeWeaviate{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	idx, err := NewWeaviateIndex(3, WeaviateConfig{Host: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "tower-b", []Record{rec("a", 1, 0, 0)}))
	require.Len(t, fake.batches, 1)
	assert.True(t, fake.created, "class should be created on first write")
	assert.Contains(t, fake.batches[0], `"namespace":"tower-b"`)
	assert.Contains(t, fake.batches[0], string(objectID("tower-b", "a")))

	matches, err := idx.Query(ctx, "tower-b", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ID)
	assert.InDelta(t, 0.8, matches[0].Score, 1e-9)
	require.Len(t, fake.graphql, 1)
	assert.Contains(t, fake.graphql[0], "nearVector")
	assert.Contains(t, fake.graphql[0], "tower-b")
}

func TestWeaviateIndex_schemaCreationRetriedAfterFailure(t *testing.T) {
	fake := &fakeWeaviate{createFailures: 1}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	idx, err := NewWeaviateIndex(3, WeaviateConfig{Host: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	err = idx.Upsert(ctx, "tower-b", []Record{rec("a", 1, 0, 0)})
	require.Error(t, err)
	assert.Empty(t, fake.batches)

	require.NoError(t, idx.Upsert(ctx, "tower-b", []Record{rec("a", 1, 0, 0)}))
	assert.Equal(t, 2, fake.createCalls)
	assert.True(t, fake.created)
	require.Len(t, fake.batches, 1)

	// Once the class exists it is not checked or created again.
	require.NoError(t, idx.EnsureNamespace(ctx, "tower-c"))
	assert.Equal(t, 2, fake.createCalls)
}
