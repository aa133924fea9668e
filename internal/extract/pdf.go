package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// readPDFPages returns the embedded text of every page, in order.
// Pages whose text layer cannot be decoded come back empty so OCR can take over.
func readPDFPages(content []byte) (pages []string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("open PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("open PDF: no pages")
	}
	pages = make([]string, numPages)
	for i := 0; i < numPages; i++ {
		pages[i] = pageText(r.Page(i + 1))
	}
	return pages, nil
}

func pageText(page pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}
