package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/blueprint/internal/errs"
)

const memoryFormatVersion uint32 = 2

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// Suitable for tests and small corpora. When a path is set, Close writes a snapshot
// and NewMemoryIndex reloads it.
type MemoryIndex struct {
	dimensions int
	path       string
	namespaces map[string]map[string]memoryEntry
	mu         sync.RWMutex
}

type memoryEntry struct {
	vector   []float32
	metadata Metadata
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
// A non-empty path is loaded if it exists and written on Close.
func NewMemoryIndex(dimensions int, path string) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	m := &MemoryIndex{
		dimensions: dimensions,
		path:       path,
		namespaces: make(map[string]map[string]memoryEntry),
	}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// EnsureNamespace is a no-op; namespaces are created on first write.
func (m *MemoryIndex) EnsureNamespace(ctx context.Context, ns string) error {
	return nil
}

// Upsert stores unit-length copies of the record vectors.
func (m *MemoryIndex) Upsert(ctx context.Context, ns string, records []Record) error {
	if err := checkDims(m.dimensions, records); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.namespaces[ns]
	if !ok {
		entries = make(map[string]memoryEntry)
		m.namespaces[ns] = entries
	}
	for _, r := range records {
		entries[r.ID] = memoryEntry{vector: normalized(r.Vector), metadata: r.Metadata}
	}
	return nil
}

// Query returns the top-k entries of ns by cosine similarity. Ties break by ID.
func (m *MemoryIndex) Query(ctx context.Context, ns string, vector []float32, k int) ([]Match, error) {
	if len(vector) != m.dimensions {
		return nil, errs.DimensionMismatch(m.dimensions, len(vector))
	}
	q := normalized(vector)
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.namespaces[ns]
	if k <= 0 || len(entries) == 0 {
		return nil, nil
	}
	matches := make([]Match, 0, len(entries))
	for id, e := range entries {
		matches = append(matches, Match{ID: id, Score: InnerProduct(q, e.vector), Metadata: e.metadata})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// Delete removes ids from ns. Unknown ids are ignored.
func (m *MemoryIndex) Delete(ctx context.Context, ns string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.namespaces[ns]
	for _, id := range ids {
		delete(entries, id)
	}
	return nil
}

// DeleteNamespace drops every entry of ns.
func (m *MemoryIndex) DeleteNamespace(ctx context.Context, ns string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, ns)
	return nil
}

// Count returns the number of vectors in ns.
func (m *MemoryIndex) Count(ctx context.Context, ns string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[ns]), nil
}

// Namespaces returns the names of non-empty namespaces, sorted.
func (m *MemoryIndex) Namespaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.namespaces))
	for ns, entries := range m.namespaces {
		if len(entries) > 0 {
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out
}

// Dimensions returns the vector length.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Close writes a snapshot when a path is configured.
func (m *MemoryIndex) Close() error {
	return m.Save(m.path)
}

// Save persists the index to path. Directory is created if needed. Format: version (4), dimension (4),
// namespace count (4), then per namespace: nameLen (4), name, n (4), and per entry:
// idLen (4), id, metaLen (4), JSON metadata, vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	return writeAtomic(path, m.writeTo)
}

// writeAtomic writes through a temporary file renamed over path on success.
// The temporary file is removed when any step fails.
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

func (m *MemoryIndex) writeTo(w io.Writer) error {
	for _, v := range []uint32{memoryFormatVersion, uint32(m.dimensions), uint32(len(m.namespaces))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for ns, entries := range m.namespaces {
		if err := writeBytes(w, []byte(ns)); err != nil {
			return fmt.Errorf("write namespace: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		for id, e := range entries {
			meta, err := json.Marshal(e.metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			if err := writeBytes(w, []byte(id)); err != nil {
				return fmt.Errorf("write id: %w", err)
			}
			if err := writeBytes(w, meta); err != nil {
				return fmt.Errorf("write metadata: %w", err)
			}
			if _, err := w.Write(float32SliceToBytes(e.vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var version, dim, nsCount uint32
	for _, v := range []*uint32{&version, &dim, &nsCount} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read header: %w", err)
		}
	}
	if version != memoryFormatVersion {
		return fmt.Errorf("unsupported index format version %d", version)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("load index: %w", errs.DimensionMismatch(m.dimensions, int(dim)))
	}

	namespaces := make(map[string]map[string]memoryEntry, nsCount)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < nsCount; i++ {
		ns, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("read namespace: %w", err)
		}
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return fmt.Errorf("read count: %w", err)
		}
		entries := make(map[string]memoryEntry, n)
		for j := uint32(0); j < n; j++ {
			id, err := readBytes(r)
			if err != nil {
				return fmt.Errorf("read id: %w", err)
			}
			meta, err := readBytes(r)
			if err != nil {
				return fmt.Errorf("read metadata: %w", err)
			}
			var md Metadata
			if err := json.Unmarshal(meta, &md); err != nil {
				return fmt.Errorf("decode metadata: %w", err)
			}
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			entries[string(id)] = memoryEntry{vector: bytesToFloat32Slice(buf), metadata: md}
		}
		namespaces[string(ns)] = entries
	}

	m.mu.Lock()
	m.namespaces = namespaces
	m.mu.Unlock()
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
