package vector

import "fmt"

// IndexType names a vector backend.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search with an optional snapshot file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeChromem uses an embedded chromem-go database, one collection per namespace.
	IndexTypeChromem IndexType = "chromem"
	// IndexTypeWeaviate uses a remote Weaviate class filtered by a namespace property.
	IndexTypeWeaviate IndexType = "weaviate"
)

// Config selects and configures a backend.
type Config struct {
	Type       string
	Dimensions int
	// Path is the snapshot file for memory and the database directory for chromem.
	Path     string
	Weaviate WeaviateConfig
}

// NewIndex creates a vector index of the configured type. Supported types: "memory" (default), "chromem", "weaviate".
func NewIndex(cfg Config) (Index, error) {
	switch IndexType(cfg.Type) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(cfg.Dimensions, cfg.Path)
	case IndexTypeChromem:
		return NewChromemIndex(cfg.Dimensions, cfg.Path)
	case IndexTypeWeaviate:
		return NewWeaviateIndex(cfg.Dimensions, cfg.Weaviate)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, chromem, weaviate)", cfg.Type)
	}
}
