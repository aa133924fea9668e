package vector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/blueprint/internal/errs"
)

func rec(id string, v ...float32) Record {
	return Record{ID: id, Vector: v, Metadata: Metadata{
		DocumentID:  "doc:" + id,
		DrawingName: "A-" + id + ".pdf",
		Page:        len(id),
		Start:       10,
		End:         20,
		Text:        "text of " + id,
	}}
}

// runIndexContract exercises behavior every backend must share.
func runIndexContract(t *testing.T, newIndex func(t *testing.T) Index) {
	ctx := context.Background()

	t.Run("query orders by similarity and honors k", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, "p1", []Record{
			rec("a", 1, 0, 0),
			rec("b", 0.9, 0.1, 0),
			rec("c", 0, 1, 0),
		}))
		matches, err := idx.Query(ctx, "p1", []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "b", matches[1].ID)
		assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
		assert.Equal(t, "A-a.pdf", matches[0].Metadata.DrawingName)
		assert.Equal(t, "text of a", matches[0].Metadata.Text)
		assert.Equal(t, 1, matches[0].Metadata.Page)
	})

	t.Run("k larger than namespace", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, "p1", []Record{rec("a", 1, 0, 0)}))
		matches, err := idx.Query(ctx, "p1", []float32{1, 0, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, "p1", []Record{rec("a", 1, 0, 0)}))
		require.NoError(t, idx.Upsert(ctx, "p2", []Record{rec("z", 1, 0, 0)}))
		matches, err := idx.Query(ctx, "p2", []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "z", matches[0].ID)
	})

	t.Run("empty namespace returns nothing", func(t *testing.T) {
		idx := newIndex(t)
		matches, err := idx.Query(ctx, "never-written", []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
		n, err := idx.Count(ctx, "never-written")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("upsert overwrites by id", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, "p1", []Record{rec("a", 1, 0, 0)}))
		require.NoError(t, idx.Upsert(ctx, "p1", []Record{rec("a", 0, 1, 0)}))
		n, err := idx.Count(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		matches, err := idx.Query(ctx, "p1", []float32{0, 1, 0}, 1)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
	})

	t.Run("delete ids and namespace", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, "p1", []Record{rec("a", 1, 0, 0), rec("b", 0, 1, 0)}))
		require.NoError(t, idx.Upsert(ctx, "p2", []Record{rec("c", 0, 0, 1)}))
		require.NoError(t, idx.Delete(ctx, "p1", []string{"a"}))
		n, _ := idx.Count(ctx, "p1")
		assert.Equal(t, 1, n)

		require.NoError(t, idx.DeleteNamespace(ctx, "p1"))
		n, _ = idx.Count(ctx, "p1")
		assert.Zero(t, n)
		n, _ = idx.Count(ctx, "p2")
		assert.Equal(t, 1, n, "other namespaces survive")
		require.NoError(t, idx.DeleteNamespace(ctx, "missing"))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		idx := newIndex(t)
		err := idx.Upsert(ctx, "p1", []Record{rec("a", 1, 0)})
		assert.True(t, errors.Is(err, errs.ErrDimensionMismatch), "got %v", err)
		_, err = idx.Query(ctx, "p1", []float32{1, 0, 0, 0}, 1)
		assert.True(t, errors.Is(err, errs.ErrDimensionMismatch), "got %v", err)
	})
}

func TestMemoryIndex_Contract(t *testing.T) {
	runIndexContract(t, func(t *testing.T) Index {
		idx, err := NewMemoryIndex(3, "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		return idx
	})
}

func TestChromemIndex_Contract(t *testing.T) {
	runIndexContract(t, func(t *testing.T) Index {
		idx, err := NewChromemIndex(3, "")
		require.NoError(t, err)
		return idx
	})
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors", "index.bin")
	idx, err := NewMemoryIndex(3, path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "p1", []Record{rec("a", 1, 0, 0), rec("b", 0, 1, 0)}))
	require.NoError(t, idx.Upsert(ctx, "p2", []Record{rec("c", 0, 0, 1)}))
	require.NoError(t, idx.Close())

	reopened, err := NewMemoryIndex(3, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, reopened.Namespaces())
	matches, err := reopened.Query(ctx, "p1", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
	assert.Equal(t, "A-b.pdf", matches[0].Metadata.DrawingName)

	_, err = NewMemoryIndex(4, path)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestWriteAtomic_failureLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")
	boom := errors.New("disk full")

	err := writeAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".tmp")

	// A directory standing in for the target makes the final rename fail.
	require.NoError(t, os.Mkdir(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), nil, 0600))
	err = writeAtomic(path, func(w io.Writer) error { return nil })
	require.Error(t, err)
	assert.NoFileExists(t, path+".tmp")
}

func TestMemoryIndex_LoadMissingFile(t *testing.T) {
	idx, err := NewMemoryIndex(3, filepath.Join(t.TempDir(), "absent.bin"))
	require.NoError(t, err)
	assert.Empty(t, idx.Namespaces())
}

func TestChromemIndex_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chromem")
	idx, err := NewChromemIndex(3, dir)
	require.NoError(t, err)
	require.NoError(t, idx.EnsureNamespace(ctx, "tower"))
	var records []Record
	for i := 0; i < 5; i++ {
		records = append(records, rec(fmt.Sprintf("r%d", i), float32(i+1), 1, 0))
	}
	require.NoError(t, idx.Upsert(ctx, "tower", records))

	reopened, err := NewChromemIndex(3, dir)
	require.NoError(t, err)
	n, err := reopened.Count(ctx, "tower")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"tower"}, reopened.Namespaces())
}

func TestNewIndex(t *testing.T) {
	idx, err := NewIndex(Config{Dimensions: 3})
	require.NoError(t, err)
	assert.IsType(t, &MemoryIndex{}, idx)

	idx, err = NewIndex(Config{Type: "chromem", Dimensions: 3})
	require.NoError(t, err)
	assert.IsType(t, &ChromemIndex{}, idx)

	idx, err = NewIndex(Config{Type: "weaviate", Dimensions: 3, Weaviate: WeaviateConfig{Host: "http://localhost:8080"}})
	require.NoError(t, err)
	assert.IsType(t, &WeaviateIndex{}, idx)

	_, err = NewIndex(Config{Type: "faiss", Dimensions: 3})
	assert.Error(t, err)

	_, err = NewIndex(Config{Dimensions: 0})
	assert.Error(t, err)
}
