// Package extracttest builds small PDF fixtures for tests.
package extracttest

import (
	"bytes"
	"fmt"
	"strings"
)

// BuildPDF returns a valid single-font PDF with one page per element of pages.
// Each newline in a page string becomes a separate text line; extracted text joins lines with
// a space. An empty string yields a page without a text layer, like a scanned sheet.
func BuildPDF(pages ...string) []byte {
	const (
		catalogObj = 1
		pagesObj   = 2
		fontObj    = 3
	)
	var objects []string
	kids := make([]string, len(pages))
	objects = append(objects,
		fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj),
		"", // pages tree, filled in once kid numbers are known
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		pageNum := len(objects) + 1
		contentNum := pageNum + 1
		kids[i] = fmt.Sprintf("%d 0 R", pageNum)
		stream := contentStream(text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
				pagesObj, fontObj, contentNum),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	objects[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, catalogObj, xref)
	return buf.Bytes()
}

func contentStream(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	y := 740
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(&b, "BT /F1 10 Tf 40 %d Td (%s ) Tj ET\n", y, escape(line))
		y -= 14
	}
	return strings.TrimRight(b.String(), "\n")
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
