// Package cli formats answers, ingestion summaries, and namespace status for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/blueprint/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer with its confidence, citations, and sources.
func WriteAnswer(w io.Writer, res *models.AnswerResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "\n%s\n\n", res.Answer)
	fmt.Fprintf(w, "Confidence: %s\n", res.Confidence)
	if len(res.DrawingsReferenced) > 0 {
		fmt.Fprintf(w, "Drawings: %s\n", strings.Join(res.DrawingsReferenced, ", "))
	}
	if len(res.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for _, s := range res.Sources {
			fmt.Fprintf(w, "  - %s, page %d (score %.3f)\n", s.DrawingName, s.Page, s.Score)
		}
		if res.MoreSources > 0 {
			fmt.Fprintf(w, "  + %d more\n", res.MoreSources)
		}
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	return nil
}

// WriteHits writes the retrieved passages, one block per hit.
func WriteHits(w io.Writer, hits []models.RetrievalHit, format OutputFormat) error {
	if format == OutputJSON {
		if hits == nil {
			hits = []models.RetrievalHit{}
		}
		return writeJSON(w, hits)
	}
	fmt.Fprintf(w, "\n%d passages\n", len(hits))
	for i, h := range hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] %s | page %d | score %.4f\n", i+1, h.DrawingName, h.Page, h.Score)
		fmt.Fprintf(w, "%s\n", TruncateWords(h.Text, 60))
	}
	return nil
}

// WriteIngestSummary writes the outcome of an ingestion run.
func WriteIngestSummary(w io.Writer, sum *models.IngestSummary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, sum)
	}
	fmt.Fprintf(w, "Namespace %s: %d files ingested, %d pages loaded, %d chunks indexed\n",
		sum.Namespace, sum.FilesIngested, sum.DocumentsLoaded, sum.ChunksIndexed)
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  failed %s [%s]: %s\n", f.Filename, f.Kind, Truncate(f.Error, 200))
	}
	return nil
}

// WriteStatus writes namespace counts and, when given, on-disk sizes by store name.
func WriteStatus(w io.Writer, st *models.NamespaceStatus, disk map[string]int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			*models.NamespaceStatus
			DiskUsageBytes map[string]int64 `json:"disk_usage_bytes,omitempty"`
		}{st, disk})
	}
	fmt.Fprintf(w, "Namespace: %s\n", st.Namespace)
	fmt.Fprintf(w, "Documents: %d\n", st.Documents)
	fmt.Fprintf(w, "Chunks:    %d\n", st.Chunks)
	fmt.Fprintf(w, "Vectors:   %d\n", st.Vectors)
	if len(disk) > 0 {
		fmt.Fprintln(w, "Disk usage:")
		for _, name := range sortedKeys(disk) {
			fmt.Fprintf(w, "  %-8s %s\n", name, FormatBytes(disk[name]))
		}
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatBytes renders n using binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
