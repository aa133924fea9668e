package fileid

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/blueprint/internal/errs"
)

func TestDocumentID(t *testing.T) {
	id1 := DocumentID("projectA", "A-101.pdf")
	id2 := DocumentID("projectA", "A-101.pdf")
	if id1 != id2 {
		t.Errorf("same input should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, docPrefix) {
		t.Errorf("ID should have prefix %q: got %q", docPrefix, id1)
	}
}

func TestDocumentID_namespaceScoped(t *testing.T) {
	if DocumentID("a", "A-101.pdf") == DocumentID("b", "A-101.pdf") {
		t.Error("same filename in different namespaces should differ")
	}
}

func TestDocumentID_baseNameOnly(t *testing.T) {
	id1 := DocumentID("ns", "/tmp/upload/A-101.pdf")
	id2 := DocumentID("ns", "A-101.pdf")
	if id1 != id2 {
		t.Errorf("directory should not affect ID: %q vs %q", id1, id2)
	}
}

func TestChunkID(t *testing.T) {
	doc := DocumentID("ns", "A-101.pdf")
	if ChunkID(doc, 1, 0) != ChunkID(doc, 1, 0) {
		t.Error("chunk ID should be deterministic")
	}
	seen := map[string]bool{}
	for _, c := range []struct{ page, start int }{{1, 0}, {1, 1050}, {2, 0}, {10, 0}} {
		id := ChunkID(doc, c.page, c.start)
		if seen[id] {
			t.Errorf("collision for page %d start %d", c.page, c.start)
		}
		seen[id] = true
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash([]byte("x")) != ContentHash([]byte("x")) {
		t.Error("hash should be deterministic")
	}
	if ContentHash([]byte("x")) == ContentHash([]byte("y")) {
		t.Error("different content should hash differently")
	}
}

func TestNamespace(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"default", "default", false},
		{"  tower-b_2025.v1 ", "tower-b_2025.v1", false},
		{"", "", true},
		{"   ", "", true},
		{"has space", "", true},
		{"slash/ns", "", true},
		{strings.Repeat("x", MaxNamespaceLen+1), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Namespace(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Namespace(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errs.ErrInvalidNamespace) {
				t.Errorf("expected ErrInvalidNamespace, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Namespace(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
