package search

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/blueprint/internal/embedding"
	"github.com/hyperjump/blueprint/internal/errs"
	"github.com/hyperjump/blueprint/internal/indexer"
	"github.com/hyperjump/blueprint/internal/keyword"
	"github.com/hyperjump/blueprint/internal/models"
	"github.com/hyperjump/blueprint/internal/retry"
	"github.com/hyperjump/blueprint/internal/vector"
)

const testDims = 256

var drawings = []models.FileInput{
	{Filename: "A-101.txt", Content: []byte("Ground floor plan. Lobby, corridor and stair core. Scale 1:100.")},
	{Filename: "A-501.txt", Content: []byte("Door schedule. Fire door D01 rated 60 minutes. Door D02 timber.")},
	{Filename: "S-201.txt", Content: []byte("Foundation plan. Pad footing F1 1800 x 1800 x 600 deep.")},
	{Filename: "M-301.txt", Content: []byte("Mechanical ductwork layout for level 3 plant room.")},
	{Filename: "E-401.txt", Content: []byte("Lighting layout. Emergency lighting to every stair.")},
}

type fixture struct {
	gateway  *embedding.Gateway
	vectors  *vector.MemoryIndex
	keywords *keyword.BleveIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	gw := embedding.NewGateway(embedding.NewMockEmbedder(testDims), embedding.WithRetryPolicy(retry.Policy{MaxAttempts: 1}))
	vecIndex, err := vector.NewMemoryIndex(testDims, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vecIndex.Close() })
	kwIndex, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIndex.Close() })

	p := indexer.NewPipeline(nil, nil, gw, vecIndex, indexer.WithKeywordIndex(kwIndex))
	sum, err := p.Ingest(ctx, drawings, "tower")
	if err != nil {
		t.Fatal(err)
	}
	if sum.FilesIngested != len(drawings) {
		t.Fatalf("fixture ingestion failed: %+v", sum)
	}
	return &fixture{gateway: gw, vectors: vecIndex, keywords: kwIndex}
}

func assertOrdered(t *testing.T, hits []models.RetrievalHit, k int) {
	t.Helper()
	if len(hits) > k {
		t.Errorf("got %d hits, want at most %d", len(hits), k)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("scores increase at %d: %f > %f", i, hits[i].Score, hits[i-1].Score)
		}
	}
}

func TestEngine_Search(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.gateway, f.vectors)

	hits, err := engine.Search(context.Background(), "fire door rating", "tower", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	assertOrdered(t, hits, 3)
	if hits[0].DrawingName != "A-501.txt" {
		t.Errorf("top hit = %q, want the door schedule", hits[0].DrawingName)
	}
	if hits[0].Page != 1 || hits[0].Text == "" || hits[0].DocumentID == "" || hits[0].ChunkID == "" {
		t.Errorf("hit metadata incomplete: %+v", hits[0])
	}
}

func TestEngine_Search_topKDefaultsAndCap(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.gateway, f.vectors, WithTopK(2, 4))
	ctx := context.Background()

	hits, err := engine.Search(ctx, "plan", "tower", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("default top_k: got %d hits, want 2", len(hits))
	}
	hits, err = engine.Search(ctx, "plan", "tower", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 4 {
		t.Errorf("capped top_k: got %d hits, want 4", len(hits))
	}
	assertOrdered(t, hits, 4)
}

func TestEngine_Search_emptyNamespace(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.gateway, f.vectors)
	hits, err := engine.Search(context.Background(), "fire door", "annex", 5)
	if err != nil {
		t.Fatalf("empty namespace should not error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestEngine_Search_invalidInput(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.gateway, f.vectors)
	if _, err := engine.Search(context.Background(), "  ", "tower", 5); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("empty query: got %v", err)
	}
	if _, err := engine.Search(context.Background(), "door", "bad/ns", 5); !errors.Is(err, errs.ErrInvalidNamespace) {
		t.Errorf("bad namespace: got %v", err)
	}
}

func TestEngine_Search_hybrid(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.gateway, f.vectors, WithKeywordIndex(f.keywords, 0.5, nil))
	hits, err := engine.Search(context.Background(), "footing F1", "tower", 3)
	if err != nil {
		t.Fatal(err)
	}
	assertOrdered(t, hits, 3)
	if len(hits) == 0 || hits[0].DrawingName != "S-201.txt" {
		t.Fatalf("expected the foundation plan first, got %+v", hits)
	}
	if hits[0].Score <= 0 || hits[0].Score > 1 {
		t.Errorf("fused score out of range: %f", hits[0].Score)
	}
}

type brokenIndex struct {
	vector.Index
	calls int
}

func (b *brokenIndex) Query(context.Context, string, []float32, int) ([]vector.Match, error) {
	b.calls++
	return nil, errors.New("connection refused")
}

func TestEngine_Search_retrievalUnavailable(t *testing.T) {
	f := newFixture(t)
	broken := &brokenIndex{Index: f.vectors}
	engine := NewEngine(f.gateway, broken, WithRetryPolicy(retry.Policy{MaxAttempts: 3}))
	_, err := engine.Search(context.Background(), "door", "tower", 3)
	if !errors.Is(err, errs.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if broken.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", broken.calls)
	}
}

func TestEngine_Search_dimensionMismatch(t *testing.T) {
	f := newFixture(t)
	small := embedding.NewGateway(embedding.NewMockEmbedder(16), embedding.WithRetryPolicy(retry.Policy{MaxAttempts: 1}))
	engine := NewEngine(small, f.vectors, WithRetryPolicy(retry.Policy{MaxAttempts: 3}))
	_, err := engine.Search(context.Background(), "door", "tower", 3)
	if !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if errors.Is(err, errs.ErrRetrievalUnavailable) {
		t.Error("dimension mismatch must not be reported as unavailable")
	}
}
