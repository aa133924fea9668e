package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/blueprint/internal/models"
)

const (
	fieldNamespace  = "namespace"
	fieldDocumentID = "document_id"
	fieldDrawing    = "drawing"
	fieldFilename   = "filename"
	fieldPage       = "page"
	fieldContent    = "content"

	deletePageSize = 500
)

// chunkDoc is the stored shape of a chunk. Field names come from the json tags.
type chunkDoc struct {
	Namespace  string  `json:"namespace"`
	DocumentID string  `json:"document_id"`
	Drawing    string  `json:"drawing"`
	Filename   string  `json:"filename"`
	Page       float64 `json:"page"`
	Content    string  `json:"content"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so sheet numbers and
	// abbreviations such as "N.T.S." or "A-101" are not mangled by a stemmer.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldContent, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldDrawing, textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt(fieldNamespace, keywordFieldMapping)
	docMapping.AddFieldMappingsAt(fieldDocumentID, keywordFieldMapping)
	docMapping.AddFieldMappingsAt(fieldFilename, keywordFieldMapping)
	docMapping.AddFieldMappingsAt(fieldPage, bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index in memory.
// If you change the index mapping in code, remove the index directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces chunks by ID in one batch.
func (b *BleveIndex) Index(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		doc := chunkDoc{
			Namespace:  ch.Namespace,
			DocumentID: ch.DocumentID,
			Drawing:    drawingTerms(ch.Filename),
			Filename:   ch.Filename,
			Page:       float64(ch.Page),
			Content:    ch.Text,
		}
		if err := batch.Index(ch.ID, doc); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", ch.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return nil
}

// drawingTerms makes filenames like "A-101_floor_plan.pdf" searchable as separate words.
// The standard analyzer splits neither on underscore nor on "plan.pdf".
func drawingTerms(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.ReplaceAll(base, "_", " ")
}

func namespaceQuery(namespace string) blevequery.Query {
	q := bleve.NewTermQuery(namespace)
	q.SetField(fieldNamespace)
	return q
}

// Search runs a match query over content and drawing name within namespace and returns up to limit results.
// Multi-term queries are re-scored with a squared term coverage factor so chunks containing every
// query term outrank chunks that contain only some of them.
func (b *BleveIndex) Search(ctx context.Context, namespace, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	drawingBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 1
	if opts != nil {
		if opts.DrawingBoost > 0 {
			drawingBoost = opts.DrawingBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	content := b.termsQuery(terms, fieldContent, fuzzyEnabled, fuzziness, 1)
	drawing := b.termsQuery(terms, fieldDrawing, fuzzyEnabled, fuzziness, drawingBoost)
	q := bleve.NewConjunctionQuery(namespaceQuery(namespace), bleve.NewDisjunctionQuery(content, drawing))

	req := bleve.NewSearchRequest(q)
	req.Size = reqSize
	req.Fields = []string{fieldDocumentID, fieldFilename, fieldPage, fieldContent}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	coverage := map[string]int{}
	if len(terms) > 1 {
		coverage = b.termCoverage(ctx, namespace, terms, reqSize, fuzzyEnabled, fuzziness)
	}

	out := make([]*KeywordResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		score := hit.Score
		if len(terms) > 1 {
			matched := coverage[hit.ID]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			score *= c * c
		}
		r := &KeywordResult{ID: hit.ID, Score: score}
		if v, ok := hit.Fields[fieldDocumentID].(string); ok {
			r.DocumentID = v
		}
		if v, ok := hit.Fields[fieldFilename].(string); ok {
			r.DrawingName = v
		}
		if v, ok := hit.Fields[fieldPage].(float64); ok {
			r.Page = int(v)
		}
		if v, ok := hit.Fields[fieldContent].(string); ok {
			r.Text = v
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "?!,;:\"'()")
		if w != "" {
			terms = append(terms, w)
		}
	}
	return terms
}

// termsQuery returns an OR over terms restricted to field.
func (b *BleveIndex) termsQuery(terms []string, field string, fuzzy bool, fuzziness int, boost float64) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		queries = append(queries, termQuery(term, field, fuzzy, fuzziness))
	}
	q := bleve.NewDisjunctionQuery(queries...)
	if boost != 1 {
		q.SetBoost(boost)
	}
	return q
}

func termQuery(term, field string, fuzzy bool, fuzziness int) blevequery.Query {
	if fuzzy {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		return fq
	}
	mq := bleve.NewMatchQuery(term)
	mq.SetField(field)
	return mq
}

// termCoverage counts how many unique query terms each chunk matches within namespace.
func (b *BleveIndex) termCoverage(ctx context.Context, namespace string, terms []string, reqSize int, fuzzy bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		q := bleve.NewConjunctionQuery(
			namespaceQuery(namespace),
			bleve.NewDisjunctionQuery(termQuery(term, fieldContent, fuzzy, fuzziness), termQuery(term, fieldDrawing, fuzzy, fuzziness)),
		)
		req := bleve.NewSearchRequest(q)
		req.Size = reqSize
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			continue
		}
		for _, hit := range res.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// Delete removes chunks by ID. Unknown IDs are ignored.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// DeleteNamespace removes every chunk of namespace and returns how many were removed.
func (b *BleveIndex) DeleteNamespace(ctx context.Context, namespace string) (int, error) {
	removed := 0
	for {
		req := bleve.NewSearchRequest(namespaceQuery(namespace))
		req.Size = deletePageSize
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return removed, fmt.Errorf("failed to list namespace chunks: %w", err)
		}
		if len(res.Hits) == 0 {
			return removed, nil
		}
		ids := make([]string, len(res.Hits))
		for i, hit := range res.Hits {
			ids[i] = hit.ID
		}
		if err := b.Delete(ctx, ids); err != nil {
			return removed, err
		}
		removed += len(ids)
	}
}

// Count returns the number of chunks stored for namespace.
func (b *BleveIndex) Count(ctx context.Context, namespace string) (int, error) {
	req := bleve.NewSearchRequest(namespaceQuery(namespace))
	req.Size = 0
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to count namespace chunks: %w", err)
	}
	return int(res.Total), nil
}

// DocCount returns the total number of chunks across namespaces.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
