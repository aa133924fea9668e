package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/blueprint/internal/embedding"
	"github.com/hyperjump/blueprint/internal/errs"
	"github.com/hyperjump/blueprint/internal/extract"
	"github.com/hyperjump/blueprint/internal/extract/extracttest"
	"github.com/hyperjump/blueprint/internal/fileid"
	"github.com/hyperjump/blueprint/internal/keyword"
	"github.com/hyperjump/blueprint/internal/models"
	"github.com/hyperjump/blueprint/internal/retry"
	"github.com/hyperjump/blueprint/internal/storage"
	"github.com/hyperjump/blueprint/internal/vector"
)

const testDims = 32

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".pdf", []string{".pdf", ".md"}, true},
		{".PDF", []string{".pdf"}, true},
		{".md", []string{"pdf", "md"}, true},
		{".docx", []string{".pdf"}, false},
		{"", []string{".pdf"}, false},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

type testEnv struct {
	pipeline *Pipeline
	vectors  *vector.MemoryIndex
	keywords *keyword.BleveIndex
	ledger   *storage.SQLiteStorage
}

func newTestEnv(t *testing.T, embedder embedding.Embedder) *testEnv {
	t.Helper()
	if embedder == nil {
		embedder = embedding.NewGateway(embedding.NewMockEmbedder(testDims),
			embedding.WithRetryPolicy(retry.Policy{MaxAttempts: 1}))
	}
	vectors, err := vector.NewMemoryIndex(testDims, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vectors.Close() })
	keywords, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = keywords.Close() })
	ledger, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	chunker, err := NewChunker(50, 200, 20)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(extract.NewParser(), chunker, embedder, vectors,
		WithKeywordIndex(keywords),
		WithLedger(ledger),
		WithConcurrency(2),
		WithRetryPolicy(retry.Policy{MaxAttempts: 1}),
	)
	return &testEnv{pipeline: p, vectors: vectors, keywords: keywords, ledger: ledger}
}

func longText(words int, word string) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = word
	}
	return strings.Join(parts, " ")
}

func TestIngest_pdfAndText(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pdf := extracttest.BuildPDF(
		"GENERAL NOTES\nAll dimensions in millimetres.\nScale 1:100 at A1.",
		"DOOR SCHEDULE\nD01 fire door 60 min rated.\nD02 timber door.",
	)
	files := []models.FileInput{
		{Filename: "A-101.pdf", Content: pdf},
		{Filename: "notes.txt", Content: []byte(longText(80, "corridor"))},
	}
	sum, err := env.pipeline.Ingest(ctx, files, "tower")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if sum.Namespace != "tower" || sum.FilesIngested != 2 || len(sum.Failures) != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.DocumentsLoaded != 3 {
		t.Errorf("DocumentsLoaded = %d, want 3 pages", sum.DocumentsLoaded)
	}
	n, _ := env.vectors.Count(ctx, "tower")
	if n != sum.ChunksIndexed {
		t.Errorf("vector count %d != chunks indexed %d", n, sum.ChunksIndexed)
	}
	kw, _ := env.keywords.Count(ctx, "tower")
	if kw != sum.ChunksIndexed {
		t.Errorf("keyword count %d != chunks indexed %d", kw, sum.ChunksIndexed)
	}

	doc, err := env.ledger.GetDocument(ctx, fileid.DocumentID("tower", "A-101.pdf"))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if doc.Pages != 2 || doc.ContentHash != fileid.ContentHash(pdf) {
		t.Errorf("unexpected ledger record %+v", doc)
	}
}

func TestIngest_idempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	files := []models.FileInput{{Filename: "notes.txt", Content: []byte(longText(120, "slab"))}}

	first, err := env.pipeline.Ingest(ctx, files, "tower")
	if err != nil {
		t.Fatal(err)
	}
	before, _ := env.vectors.Count(ctx, "tower")
	second, err := env.pipeline.Ingest(ctx, files, "tower")
	if err != nil {
		t.Fatal(err)
	}
	after, _ := env.vectors.Count(ctx, "tower")
	if first.ChunksIndexed != second.ChunksIndexed {
		t.Errorf("chunk counts differ: %d vs %d", first.ChunksIndexed, second.ChunksIndexed)
	}
	if before != after || after != first.ChunksIndexed {
		t.Errorf("re-ingestion duplicated vectors: before=%d after=%d", before, after)
	}
}

func TestIngest_reingestRemovesStaleChunks(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	long := []models.FileInput{{Filename: "plan.txt", Content: []byte(longText(200, "beam"))}}
	if _, err := env.pipeline.Ingest(ctx, long, "tower"); err != nil {
		t.Fatal(err)
	}
	short := []models.FileInput{{Filename: "plan.txt", Content: []byte("Beam B1 300x600 at grid C.")}}
	sum, err := env.pipeline.Ingest(ctx, short, "tower")
	if err != nil {
		t.Fatal(err)
	}
	if sum.ChunksIndexed != 1 {
		t.Fatalf("expected one chunk for the short version, got %d", sum.ChunksIndexed)
	}
	if n, _ := env.vectors.Count(ctx, "tower"); n != 1 {
		t.Errorf("stale vectors left behind: %d", n)
	}
	if n, _ := env.keywords.Count(ctx, "tower"); n != 1 {
		t.Errorf("stale keyword entries left behind: %d", n)
	}
}

func TestIngest_partialFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	files := []models.FileInput{
		{Filename: "good.txt", Content: []byte("Stair S1 width 1200 mm, riser 175 mm.")},
		{Filename: "specs.docx", Content: []byte("PK\x03\x04 not a drawing")},
		{Filename: "blank.pdf", Content: extracttest.BuildPDF("")},
	}
	sum, err := env.pipeline.Ingest(ctx, files, "tower")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if sum.FilesIngested != 1 || sum.ChunksIndexed != 1 {
		t.Errorf("only the good file should count: %+v", sum)
	}
	if len(sum.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", sum.Failures)
	}
	kinds := map[string]string{}
	for _, f := range sum.Failures {
		kinds[f.Filename] = f.Kind
	}
	if kinds["specs.docx"] != "unsupported_format" {
		t.Errorf("docx kind = %q", kinds["specs.docx"])
	}
	if kinds["blank.pdf"] != "parse_failure" {
		t.Errorf("blank pdf kind = %q", kinds["blank.pdf"])
	}
}

type failingEmbedder struct{ dims int }

func (f failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("unreachable")
}

func (f failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("unreachable")
}

func (f failingEmbedder) Dimensions() int { return f.dims }
func (f failingEmbedder) Close() error { return nil }

func TestIngest_embeddingFailureIsPerFile(t *testing.T) {
	gw := embedding.NewGateway(failingEmbedder{dims: testDims}, embedding.WithRetryPolicy(retry.Policy{MaxAttempts: 2}))
	env := newTestEnv(t, gw)
	sum, err := env.pipeline.Ingest(context.Background(),
		[]models.FileInput{{Filename: "a.txt", Content: []byte("Column C3 400x400.")}}, "tower")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if sum.FilesIngested != 0 || len(sum.Failures) != 1 || sum.Failures[0].Kind != "embedding_unavailable" {
		t.Errorf("unexpected summary %+v", sum)
	}
	if n, _ := env.vectors.Count(context.Background(), "tower"); n != 0 {
		t.Errorf("nothing should be indexed, got %d", n)
	}
}

func TestIngest_dimensionMismatchAborts(t *testing.T) {
	gw := embedding.NewGateway(embedding.NewMockEmbedder(8),
		embedding.WithDimensions(testDims),
		embedding.WithRetryPolicy(retry.Policy{MaxAttempts: 1}))
	env := newTestEnv(t, gw)
	_, err := env.pipeline.Ingest(context.Background(),
		[]models.FileInput{{Filename: "a.txt", Content: []byte("Wall type W2.")}}, "tower")
	if !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestIngest_invalidNamespace(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.pipeline.Ingest(context.Background(),
		[]models.FileInput{{Filename: "a.txt", Content: []byte("x")}}, "  ")
	if !errors.Is(err, errs.ErrInvalidNamespace) {
		t.Fatalf("expected ErrInvalidNamespace, got %v", err)
	}
}

func TestIngest_namespacesAreIsolated(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	files := []models.FileInput{{Filename: "a.txt", Content: []byte("Roof plan with parapet detail.")}}
	if _, err := env.pipeline.Ingest(ctx, files, "tower"); err != nil {
		t.Fatal(err)
	}
	if n, _ := env.vectors.Count(ctx, "annex"); n != 0 {
		t.Errorf("annex should be empty, got %d", n)
	}
	st, err := env.pipeline.Status(ctx, "tower")
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 1 || st.Chunks != 1 || st.Vectors != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestDeleteDocumentAndNamespace(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	files := []models.FileInput{
		{Filename: "a.txt", Content: []byte("Section A-A through lobby.")},
		{Filename: "b.txt", Content: []byte("Elevation north facade.")},
	}
	if _, err := env.pipeline.Ingest(ctx, files, "tower"); err != nil {
		t.Fatal(err)
	}

	if err := env.pipeline.DeleteDocument(ctx, "tower", "a.txt"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	st, _ := env.pipeline.Status(ctx, "tower")
	if st.Documents != 1 || st.Vectors != 1 {
		t.Errorf("after document delete: %+v", st)
	}

	if err := env.pipeline.DeleteNamespace(ctx, "tower"); err != nil {
		t.Fatalf("DeleteNamespace: %v", err)
	}
	st, _ = env.pipeline.Status(ctx, "tower")
	if st.Documents != 0 || st.Chunks != 0 || st.Vectors != 0 {
		t.Errorf("after namespace delete: %+v", st)
	}
	if n, _ := env.keywords.Count(ctx, "tower"); n != 0 {
		t.Errorf("keyword entries left: %d", n)
	}
}

func TestIngestDirectory(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	write := func(name string, content []byte) {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0600); err != nil {
			t.Fatal(err)
		}
	}
	write("A-101.pdf", extracttest.BuildPDF("Ground floor plan. Scale 1:50."))
	write("sub/readme.md", []byte("Drawing register for the tower project."))
	write("photo.jpg", []byte{0xff, 0xd8, 0xff})

	sum, err := env.pipeline.IngestDirectory(context.Background(), dir, "tower")
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if sum.FilesIngested != 2 || len(sum.Failures) != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}

	if _, err := env.pipeline.IngestDirectory(context.Background(), filepath.Join(dir, "A-101.pdf"), "tower"); err == nil {
		t.Error("expected error for non-directory")
	}
}

func TestIngest_duplicateDrawingNamesInOneCall(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	files := []models.FileInput{
		{Filename: "north/A-101.txt", Content: []byte(longText(80, "north"))},
		{Filename: "south/A-101.txt", Content: []byte(longText(40, "south"))},
		{Filename: "S-201.txt", Content: []byte("Foundation plan.")},
	}

	sum, err := env.pipeline.Ingest(ctx, files, "tower")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if sum.FilesIngested != 2 {
		t.Errorf("FilesIngested = %d, want 2", sum.FilesIngested)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].Filename != "south/A-101.txt" || sum.Failures[0].Kind != "invalid_input" {
		t.Fatalf("unexpected failures %+v", sum.Failures)
	}

	st, err := env.pipeline.Status(ctx, "tower")
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 2 || st.Chunks != sum.ChunksIndexed || st.Vectors != sum.ChunksIndexed {
		t.Errorf("summary %+v disagrees with stored %+v", sum, st)
	}
}

func TestIngestDirectory_duplicateBaseNames(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := t.TempDir()
	for _, sub := range []string{"north", "south"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, sub, "A-101.txt"), []byte(longText(60, sub)), 0600); err != nil {
			t.Fatal(err)
		}
	}

	sum, err := env.pipeline.IngestDirectory(context.Background(), dir, "tower")
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if sum.FilesIngested != 1 || len(sum.Failures) != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if want := filepath.Join("south", "A-101.txt"); sum.Failures[0].Filename != want {
		t.Errorf("failure names %q, want %q", sum.Failures[0].Filename, want)
	}
	st, _ := env.pipeline.Status(context.Background(), "tower")
	if st.Documents != 1 || st.Vectors != sum.ChunksIndexed {
		t.Errorf("summary %+v disagrees with stored %+v", sum, st)
	}
}

func TestDocuments(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	files := []models.FileInput{
		{Filename: "b.txt", Content: []byte("Elevation north facade.")},
		{Filename: "a.txt", Content: []byte("Section A-A through lobby.")},
	}
	if _, err := env.pipeline.Ingest(ctx, files, "tower"); err != nil {
		t.Fatal(err)
	}

	docs, err := env.pipeline.Documents(ctx, "tower")
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 2 || docs[0].Filename != "a.txt" || docs[1].Filename != "b.txt" {
		t.Fatalf("documents = %+v", docs)
	}
	if docs[0].Pages != 1 || docs[0].ChunkCount != 1 {
		t.Errorf("a.txt = %+v", docs[0])
	}

	if docs, err := env.pipeline.Documents(ctx, "other"); err != nil || docs == nil || len(docs) != 0 {
		t.Errorf("empty namespace: %v, %v", docs, err)
	}
	if _, err := env.pipeline.Documents(ctx, "bad name"); !errors.Is(err, errs.ErrInvalidNamespace) {
		t.Errorf("invalid namespace: err = %v", err)
	}

	noLedger := NewPipeline(nil, nil, embedding.NewMockEmbedder(testDims), env.vectors)
	if docs, err := noLedger.Documents(ctx, "tower"); err != nil || docs == nil || len(docs) != 0 {
		t.Errorf("without ledger: %v, %v", docs, err)
	}
}
