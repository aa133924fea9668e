// Package fileid derives deterministic identifiers for drawings, chunks, and content.
// Re-ingesting the same file under the same namespace always yields the same IDs,
// so vector upserts overwrite instead of duplicating.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hyperjump/blueprint/internal/errs"
)

const (
	docPrefix   = "doc:"
	chunkPrefix = "chunk:"

	// MaxNamespaceLen bounds namespace names so they fit collection and property limits of every backend.
	MaxNamespaceLen = 64
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// DocumentID returns a stable document ID for filename within namespace.
// Only the base name is used, so the same drawing uploaded from different client paths maps to one ID.
func DocumentID(namespace, filename string) string {
	base := filepath.Base(filepath.Clean(filename))
	hash := sha256.Sum256([]byte(namespace + "\x00" + base))
	return docPrefix + hex.EncodeToString(hash[:16])
}

// ChunkID returns a stable chunk ID from the document ID, page number, and start offset.
func ChunkID(documentID string, page, start int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%d", documentID, page, start)))
	return chunkPrefix + hex.EncodeToString(hash[:16])
}

// ContentHash returns the hex sha256 of content.
func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Namespace trims and validates a namespace name.
func Namespace(ns string) (string, error) {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return "", fmt.Errorf("%w: empty", errs.ErrInvalidNamespace)
	}
	if len(ns) > MaxNamespaceLen {
		return "", fmt.Errorf("%w: longer than %d characters", errs.ErrInvalidNamespace, MaxNamespaceLen)
	}
	if !namespacePattern.MatchString(ns) {
		return "", fmt.Errorf("%w: %q may only contain letters, digits, '_', '.', '-'", errs.ErrInvalidNamespace, ns)
	}
	return ns, nil
}
