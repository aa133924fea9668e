// Package indexer chunks parsed drawings and writes their embeddings into a namespace.
package indexer

import (
	"fmt"
	"iter"
	"strings"

	"github.com/hyperjump/blueprint/internal/fileid"
	"github.com/hyperjump/blueprint/internal/models"
)

// Chunking defaults, in characters.
const (
	DefaultMinChars     = 300
	DefaultMaxChars     = 1200
	DefaultOverlapChars = 150
)

// separators are tried in order; the first one found inside the cut window wins.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("."),
	[]rune(" "),
}

// Chunker splits page text into overlapping character windows that prefer natural boundaries.
// Every chunk of a page is between minChars and maxChars long, except that a page shorter than
// minChars becomes a single chunk. Consecutive chunks share exactly overlap characters.
type Chunker struct {
	minChars int
	maxChars int
	overlap  int
}

// NewChunker returns a chunker. It requires 0 < minChars <= maxChars, 0 <= overlap < minChars,
// and maxChars >= 2*minChars-overlap so the last chunk of a page can always reach minChars.
func NewChunker(minChars, maxChars, overlap int) (*Chunker, error) {
	switch {
	case minChars <= 0 || maxChars < minChars:
		return nil, fmt.Errorf("invalid chunk bounds: min %d, max %d", minChars, maxChars)
	case overlap < 0 || overlap >= minChars:
		return nil, fmt.Errorf("invalid chunk overlap %d: must be in [0, %d)", overlap, minChars)
	case maxChars < 2*minChars-overlap:
		return nil, fmt.Errorf("max chunk size %d must be at least %d", maxChars, 2*minChars-overlap)
	}
	return &Chunker{minChars: minChars, maxChars: maxChars, overlap: overlap}, nil
}

// NewDefaultChunker returns a chunker with the default bounds.
func NewDefaultChunker() *Chunker {
	return &Chunker{minChars: DefaultMinChars, maxChars: DefaultMaxChars, overlap: DefaultOverlapChars}
}

// Chunks yields the chunks of one page. The sequence is lazy and can be ranged over again.
// Offsets are rune offsets into page.Text and chunk text is the exact substring.
func (c *Chunker) Chunks(doc *models.Document, page models.Page) iter.Seq[models.Chunk] {
	return func(yield func(models.Chunk) bool) {
		if strings.TrimSpace(page.Text) == "" {
			return
		}
		text := []rune(page.Text)
		n := len(text)
		start := 0
		for {
			end := n
			if n-start > c.maxChars {
				end = c.cut(text, start)
			}
			chunk := models.Chunk{
				ID:         fileid.ChunkID(doc.ID, page.Number, start),
				DocumentID: doc.ID,
				Filename:   doc.Filename,
				Namespace:  doc.Namespace,
				Page:       page.Number,
				Text:       string(text[start:end]),
				Start:      start,
				End:        end,
			}
			if !yield(chunk) || end == n {
				return
			}
			start = end - c.overlap
		}
	}
}

// ChunkDocument yields the chunks of every page in order.
func (c *Chunker) ChunkDocument(doc *models.Document) iter.Seq[models.Chunk] {
	return func(yield func(models.Chunk) bool) {
		for _, page := range doc.Pages {
			for chunk := range c.Chunks(doc, page) {
				if !yield(chunk) {
					return
				}
			}
		}
	}
}

// cut picks the end of the chunk starting at start when the remainder exceeds maxChars.
// The end is capped so the following chunk still has at least minChars.
func (c *Chunker) cut(text []rune, start int) int {
	n := len(text)
	lower := start + c.minChars
	upper := min(start+c.maxChars, n+c.overlap-c.minChars)
	for _, sep := range separators {
		if end, ok := lastBoundary(text, sep, lower, upper); ok {
			return end
		}
	}
	return upper
}

// lastBoundary returns the largest position p in [lower, upper] such that text[p-len(sep):p] == sep.
func lastBoundary(text, sep []rune, lower, upper int) (int, bool) {
	for p := upper; p >= lower; p-- {
		i := p - len(sep)
		if i < 0 {
			break
		}
		if runesEqual(text[i:p], sep) {
			return p, true
		}
	}
	return 0, false
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
