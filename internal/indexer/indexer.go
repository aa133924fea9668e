// Package indexer turns uploaded drawings into chunks and writes them into the vector, keyword, and ledger stores.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hyperjump/blueprint/internal/embedding"
	"github.com/hyperjump/blueprint/internal/errs"
	"github.com/hyperjump/blueprint/internal/extract"
	"github.com/hyperjump/blueprint/internal/fileid"
	"github.com/hyperjump/blueprint/internal/keyword"
	"github.com/hyperjump/blueprint/internal/models"
	"github.com/hyperjump/blueprint/internal/retry"
	"github.com/hyperjump/blueprint/internal/storage"
	"github.com/hyperjump/blueprint/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of files ingested in parallel.
const DefaultConcurrency = 4

// DefaultExtensions are the file types picked up by IngestDirectory.
var DefaultExtensions = []string{".pdf", ".txt", ".md"}

// upsertBatchSize bounds a single vector write.
const upsertBatchSize = 100

// Pipeline parses, chunks, embeds, and upserts files into one namespace at a time.
type Pipeline struct {
	parser      *extract.Parser
	chunker     *Chunker
	embedder    embedding.Embedder
	vectors     vector.Index
	keywords    keyword.KeywordIndex // optional
	ledger      storage.Storage      // optional; required for stale chunk cleanup and DeleteDocument
	policy      retry.Policy
	concurrency int
	extensions  []string
	logger      *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithKeywordIndex also writes chunks to a keyword index for hybrid retrieval.
func WithKeywordIndex(k keyword.KeywordIndex) PipelineOption {
	return func(p *Pipeline) { p.keywords = k }
}

// WithLedger records ingested documents and their chunk IDs.
func WithLedger(s storage.Storage) PipelineOption {
	return func(p *Pipeline) { p.ledger = s }
}

// WithConcurrency sets how many files are processed at once.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRetryPolicy sets the policy for vector index writes.
func WithRetryPolicy(policy retry.Policy) PipelineOption {
	return func(p *Pipeline) { p.policy = policy }
}

// WithExtensions sets the extensions accepted by IngestDirectory.
func WithExtensions(exts []string) PipelineOption {
	return func(p *Pipeline) {
		if len(exts) > 0 {
			p.extensions = exts
		}
	}
}

// WithLogger sets a logger for debug output (file ingested, stale chunks removed, etc.).
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates an ingestion pipeline. embedder should be an embedding.Gateway so
// batches are retried and vector lengths are checked.
func NewPipeline(parser *extract.Parser, chunker *Chunker, embedder embedding.Embedder, vectors vector.Index, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		parser:      parser,
		chunker:     chunker,
		embedder:    embedder,
		vectors:     vectors,
		policy:      retry.DefaultPolicy(),
		concurrency: DefaultConcurrency,
		extensions:  DefaultExtensions,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.parser == nil {
		p.parser = extract.NewParser()
	}
	if p.chunker == nil {
		p.chunker = NewDefaultChunker()
	}
	if p.policy.Name == "" {
		p.policy.Name = "vector upsert"
	}
	p.policy.Logger = p.logger
	return p
}

type fileResult struct {
	pages   int
	chunks  int
	failure *models.FileFailure
}

// Ingest processes files into namespace. A file that fails to parse or embed is reported in
// the summary's Failures and excluded from the counts; the remaining files continue.
// A dimension mismatch aborts the whole call.
func (p *Pipeline) Ingest(ctx context.Context, files []models.FileInput, namespace string) (*models.IngestSummary, error) {
	ns, err := fileid.Namespace(namespace)
	if err != nil {
		return nil, err
	}
	if err := p.policy.Do(ctx, func(ctx context.Context) error {
		return p.vectors.EnsureNamespace(ctx, ns)
	}); err != nil {
		return nil, errs.Wrap(errs.ErrRetrievalUnavailable, fmt.Errorf("failed to prepare namespace %s: %w", ns, err))
	}

	results := make([]fileResult, len(files))
	markDuplicates(files, ns, results)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, f := range files {
		if results[i].failure != nil {
			continue
		}
		g.Go(func() error {
			pages, chunks, err := p.ingestFile(gctx, f, ns)
			if err != nil {
				if errors.Is(err, errs.ErrDimensionMismatch) || gctx.Err() != nil {
					return err
				}
				p.logger.Warn("file ingestion failed", zap.String("file", f.Filename), zap.Error(err))
				results[i].failure = &models.FileFailure{Filename: f.Filename, Kind: errs.Kind(err), Error: err.Error()}
				return nil
			}
			results[i].pages = pages
			results[i].chunks = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &models.IngestSummary{Namespace: ns}
	for _, r := range results {
		if r.failure != nil {
			summary.Failures = append(summary.Failures, *r.failure)
			continue
		}
		summary.FilesIngested++
		summary.DocumentsLoaded += r.pages
		summary.ChunksIndexed += r.chunks
	}
	p.logger.Info("ingestion finished",
		zap.String("namespace", ns),
		zap.Int("files", summary.FilesIngested),
		zap.Int("chunks", summary.ChunksIndexed),
		zap.Int("failures", len(summary.Failures)))
	return summary, nil
}

// markDuplicates records a failure for every file whose document ID was already taken
// by an earlier file in the same call, so each stored document is counted once.
func markDuplicates(files []models.FileInput, ns string, results []fileResult) {
	first := make(map[string]string, len(files))
	for i, f := range files {
		id := fileid.DocumentID(ns, filepath.Base(f.Filename))
		if prev, ok := first[id]; ok {
			err := fmt.Errorf("%w: %s has the same drawing name as %s", errs.ErrInvalidInput, f.Filename, prev)
			results[i].failure = &models.FileFailure{Filename: f.Filename, Kind: errs.Kind(err), Error: err.Error()}
			continue
		}
		first[id] = f.Filename
	}
}

// ingestFile returns the number of pages loaded and chunks upserted.
func (p *Pipeline) ingestFile(ctx context.Context, f models.FileInput, ns string) (int, int, error) {
	name := filepath.Base(f.Filename)
	pages, err := p.parser.Parse(ctx, f.Content, extract.MediaTypeFor(name, f.Content))
	if err != nil {
		return 0, 0, err
	}
	doc := &models.Document{
		ID:        fileid.DocumentID(ns, name),
		Filename:  name,
		Namespace: ns,
		Pages:     pages,
	}
	chunks := slices.Collect(p.chunker.ChunkDocument(doc))
	if len(chunks) == 0 {
		return 0, 0, fmt.Errorf("%w: %s produced no chunks", errs.ErrParseFailure, name)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to embed %s: %w", name, err)
	}
	if len(vecs) != len(chunks) {
		return 0, 0, errs.Wrap(errs.ErrEmbeddingUnavailable, fmt.Errorf("got %d embeddings for %d chunks", len(vecs), len(chunks)))
	}

	records := make([]vector.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
		ids[i] = chunks[i].ID
		records[i] = vector.Record{
			ID:     chunks[i].ID,
			Vector: vecs[i],
			Metadata: vector.Metadata{
				DocumentID:  doc.ID,
				DrawingName: name,
				Page:        chunks[i].Page,
				Start:       chunks[i].Start,
				End:         chunks[i].End,
				Text:        chunks[i].Text,
			},
		}
	}
	if err := p.upsert(ctx, ns, records); err != nil {
		return 0, 0, err
	}
	if p.keywords != nil {
		if err := p.keywords.Index(ctx, chunks); err != nil {
			p.logger.Warn("keyword indexing failed", zap.String("file", name), zap.Error(err))
		}
	}
	if err := p.record(ctx, doc, f.Content, ids); err != nil {
		return 0, 0, err
	}
	p.logger.Debug("file ingested",
		zap.String("file", name),
		zap.String("doc_id", doc.ID),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)))
	return len(pages), len(chunks), nil
}

func (p *Pipeline) upsert(ctx context.Context, ns string, records []vector.Record) error {
	for start := 0; start < len(records); start += upsertBatchSize {
		batch := records[start:min(start+upsertBatchSize, len(records))]
		err := p.policy.Do(ctx, func(ctx context.Context) error {
			err := p.vectors.Upsert(ctx, ns, batch)
			if errors.Is(err, errs.ErrDimensionMismatch) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			if errors.Is(err, errs.ErrDimensionMismatch) {
				return err
			}
			return errs.Wrap(errs.ErrRetrievalUnavailable, fmt.Errorf("failed to upsert vectors: %w", err))
		}
	}
	return nil
}

// record stores the document in the ledger and removes chunks a previous version left behind.
func (p *Pipeline) record(ctx context.Context, doc *models.Document, content []byte, ids []string) error {
	if p.ledger == nil {
		return nil
	}
	previous, err := p.ledger.ChunkIDs(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to read previous chunks: %w", err)
	}
	rec := &models.DocumentRecord{
		ID:          doc.ID,
		Namespace:   doc.Namespace,
		Filename:    doc.Filename,
		ContentHash: fileid.ContentHash(content),
		Pages:       len(doc.Pages),
	}
	if err := p.ledger.PutDocument(ctx, rec, ids); err != nil {
		return fmt.Errorf("failed to record document: %w", err)
	}

	current := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		current[id] = struct{}{}
	}
	var stale []string
	for _, id := range previous {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := p.removeChunks(ctx, doc.Namespace, stale); err != nil {
		return err
	}
	p.logger.Debug("removed stale chunks", zap.String("doc_id", doc.ID), zap.Int("count", len(stale)))
	return nil
}

func (p *Pipeline) removeChunks(ctx context.Context, ns string, ids []string) error {
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		return p.vectors.Delete(ctx, ns, ids)
	})
	if err != nil {
		return errs.Wrap(errs.ErrRetrievalUnavailable, fmt.Errorf("failed to delete vectors: %w", err))
	}
	if p.keywords != nil {
		if err := p.keywords.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	return nil
}

// IngestDirectory walks dir recursively and ingests every regular file with an accepted extension.
// Documents are named by base name; a later file whose base name repeats one already seen
// is reported as a failure naming its path relative to dir.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir, namespace string) (*models.IngestSummary, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var files []models.FileInput
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !p.Accepts(path) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}
		rel, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		files = append(files, models.FileInput{Filename: rel, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Ingest(ctx, files, namespace)
}

// Accepts reports whether path has one of the pipeline's extensions.
func (p *Pipeline) Accepts(path string) bool {
	return extensionAllowed(filepath.Ext(path), p.extensions)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes one drawing's chunks from every store. It needs a ledger to know the chunk IDs.
func (p *Pipeline) DeleteDocument(ctx context.Context, namespace, filename string) error {
	ns, err := fileid.Namespace(namespace)
	if err != nil {
		return err
	}
	if p.ledger == nil {
		return errors.New("document deletion requires a ledger")
	}
	id := fileid.DocumentID(ns, filename)
	p.logger.Debug("deleting document", zap.String("id", id), zap.String("file", filename))
	ids, err := p.ledger.ChunkIDs(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if len(ids) > 0 {
		if err := p.removeChunks(ctx, ns, ids); err != nil {
			return err
		}
	}
	if err := p.ledger.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Documents lists the ledger records of namespace ordered by filename.
func (p *Pipeline) Documents(ctx context.Context, namespace string) ([]*models.DocumentRecord, error) {
	ns, err := fileid.Namespace(namespace)
	if err != nil {
		return nil, err
	}
	if p.ledger == nil {
		return []*models.DocumentRecord{}, nil
	}
	docs, err := p.ledger.ListDocuments(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if docs == nil {
		docs = []*models.DocumentRecord{}
	}
	return docs, nil
}

// DeleteNamespace drops everything stored under namespace.
func (p *Pipeline) DeleteNamespace(ctx context.Context, namespace string) error {
	ns, err := fileid.Namespace(namespace)
	if err != nil {
		return err
	}
	err = p.policy.Do(ctx, func(ctx context.Context) error {
		return p.vectors.DeleteNamespace(ctx, ns)
	})
	if err != nil {
		return errs.Wrap(errs.ErrRetrievalUnavailable, fmt.Errorf("failed to delete namespace vectors: %w", err))
	}
	if p.keywords != nil {
		if _, err := p.keywords.DeleteNamespace(ctx, ns); err != nil {
			return fmt.Errorf("failed to delete namespace from keyword index: %w", err)
		}
	}
	if p.ledger != nil {
		n, err := p.ledger.DeleteNamespace(ctx, ns)
		if err != nil {
			return fmt.Errorf("failed to delete namespace documents: %w", err)
		}
		p.logger.Info("namespace deleted", zap.String("namespace", ns), zap.Int64("documents", n))
	}
	return nil
}

// Status reports document, chunk, and vector counts for namespace.
func (p *Pipeline) Status(ctx context.Context, namespace string) (*models.NamespaceStatus, error) {
	ns, err := fileid.Namespace(namespace)
	if err != nil {
		return nil, err
	}
	st := &models.NamespaceStatus{Namespace: ns}
	n, err := p.vectors.Count(ctx, ns)
	if err != nil {
		return nil, errs.Wrap(errs.ErrRetrievalUnavailable, fmt.Errorf("failed to count vectors: %w", err))
	}
	st.Vectors = n
	if p.ledger != nil {
		docs, err := p.ledger.CountDocuments(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("failed to count documents: %w", err)
		}
		chunks, err := p.ledger.CountChunks(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("failed to count chunks: %w", err)
		}
		st.Documents = int(docs)
		st.Chunks = int(chunks)
	}
	return st, nil
}

