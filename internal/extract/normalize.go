package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize collapses horizontal whitespace runs to one space, trims each line,
// and limits blank-line runs to one so paragraph boundaries survive for chunking.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	newlines := 0
	pendingSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			newlines++
			pendingSpace = false
		case r == '\r':
		case unicode.IsSpace(r):
			pendingSpace = true
		default:
			if b.Len() > 0 {
				switch {
				case newlines >= 2:
					b.WriteString("\n\n")
				case newlines == 1:
					b.WriteByte('\n')
				case pendingSpace:
					b.WriteByte(' ')
				}
			}
			newlines = 0
			pendingSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toValidUTF8(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "\ufffd")
}
