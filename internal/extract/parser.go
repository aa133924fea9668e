// Package extract turns uploaded drawing files into per-page text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/blueprint/internal/errs"
	"github.com/hyperjump/blueprint/internal/models"
)

// Supported media types.
const (
	MediaTypePDF      = "application/pdf"
	MediaTypeText     = "text/plain"
	MediaTypeMarkdown = "text/markdown"
)

// DefaultMinPageChars is the embedded-text length below which a PDF page is sent to OCR.
const DefaultMinPageChars = 40

// Parser extracts page text from PDF and plain-text content.
type Parser struct {
	ocr          OCR
	minPageChars int
	logger       *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithOCR enables OCR fallback for PDF pages with too little embedded text.
func WithOCR(ocr OCR) Option {
	return func(p *Parser) {
		p.ocr = ocr
	}
}

// WithMinPageChars sets the OCR trigger threshold.
func WithMinPageChars(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.minPageChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParser returns a Parser. Without WithOCR, scanned pages yield no text.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		minPageChars: DefaultMinPageChars,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MediaTypeFor infers the media type from the filename extension, falling back to content sniffing.
func MediaTypeFor(filename string, content []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MediaTypePDF
	case ".txt", ".text":
		return MediaTypeText
	case ".md", ".markdown":
		return MediaTypeMarkdown
	}
	if bytes.HasPrefix(content, []byte("%PDF-")) {
		return MediaTypePDF
	}
	detected := http.DetectContentType(content)
	if strings.HasPrefix(detected, MediaTypeText) {
		return MediaTypeText
	}
	return detected
}

// Parse returns the pages of content. Page numbers are 1-based.
// Returns errs.ErrUnsupportedFormat for media types other than PDF and text,
// and errs.ErrParseFailure when the content cannot be opened or no page has text.
func (p *Parser) Parse(ctx context.Context, content []byte, mediaType string) ([]models.Page, error) {
	var (
		pages []models.Page
		err   error
	)
	switch normalizeMediaType(mediaType) {
	case MediaTypePDF:
		pages, err = p.parsePDF(ctx, content)
	case MediaTypeText, MediaTypeMarkdown:
		pages = parsePlain(content)
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedFormat, mediaType)
	}
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if page.Text != "" {
			return pages, nil
		}
	}
	return nil, fmt.Errorf("%w: no extractable text", errs.ErrParseFailure)
}

func normalizeMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

func (p *Parser) parsePDF(ctx context.Context, content []byte) ([]models.Page, error) {
	raw, err := readPDFPages(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrParseFailure, err)
	}
	pages := make([]models.Page, 0, len(raw))
	for i, text := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := models.Page{Number: i + 1, Text: Normalize(text)}
		if p.ocr != nil && len([]rune(page.Text)) < p.minPageChars {
			ocrText, err := p.ocr.RecognizePage(ctx, content, page.Number)
			if err != nil {
				p.logger.Warn("ocr failed", zap.Int("page", page.Number), zap.Error(err))
			} else if ocrText = Normalize(ocrText); len([]rune(ocrText)) > len([]rune(page.Text)) {
				page.Text = ocrText
				page.OCR = true
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// parsePlain splits on form feeds so paginated text exports keep their page numbers.
func parsePlain(content []byte) []models.Page {
	text := toValidUTF8(content)
	parts := strings.Split(text, "\f")
	pages := make([]models.Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, models.Page{Number: i + 1, Text: Normalize(part)})
	}
	return pages
}
