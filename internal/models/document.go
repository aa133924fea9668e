// Package models defines core data structures for drawings, chunks, retrieval hits, and answers.
package models

import "time"

// Document is a parsed drawing set (one uploaded file) before chunking.
type Document struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Namespace string `json:"namespace"`
	Pages     []Page `json:"pages"`
}

// Page is the extracted text of a single 1-based page.
// OCR is true when the text came from optical recognition instead of the embedded text layer.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	OCR    bool   `json:"ocr,omitempty"`
}

// Chunk is a bounded slice of a page's text. Start and End are rune offsets into the page text.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Namespace  string    `json:"namespace"`
	Page       int       `json:"page"`
	Text       string    `json:"text"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Embedding  []float32 `json:"-"`
}

// FileInput is one file handed to ingestion.
type FileInput struct {
	Filename string
	Content  []byte
}

// DocumentRecord is the ledger entry for an ingested document.
type DocumentRecord struct {
	ID          string    `json:"id"`
	Namespace   string    `json:"namespace"`
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash"`
	Pages       int       `json:"pages"`
	ChunkCount  int       `json:"chunk_count"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// FileFailure reports a file that could not be ingested.
type FileFailure struct {
	Filename string `json:"filename"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// IngestSummary is the outcome of one ingestion call.
// Counts only include files whose chunks were all stored.
type IngestSummary struct {
	Namespace       string        `json:"namespace"`
	FilesIngested   int           `json:"files_ingested"`
	DocumentsLoaded int           `json:"documents_loaded"`
	ChunksIndexed   int           `json:"chunks_indexed"`
	Failures        []FileFailure `json:"failures,omitempty"`
}

// NamespaceStatus summarizes what is stored under a namespace.
type NamespaceStatus struct {
	Namespace string `json:"namespace"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Vectors   int    `json:"vectors"`
}
