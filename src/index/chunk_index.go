package index

import (
	"context"
)

// Chunk is one embedded span of a material's text.
type Chunk struct {
	Ordinal int               // position within the source document
	Text    string            // the chunk's words
	Vector  []float32         // embedding
	Meta    map[string]string // page, subject, etc.
}

// Snippet is a retrieval hit, ordered by similarity.
type Snippet struct {
	Text  string
	Score float64
	Meta  map[string]string
}

// ChunkIndex stores chunk vectors namespaced by material ID. A namespace is
// written and dropped as a unit; searching never crosses namespaces, and
// searching or dropping an unknown namespace is a benign no-op.
type ChunkIndex interface {
	// Put atomically replaces the namespace's contents.
	Put(ctx context.Context, materialID string, chunks []Chunk) error
	// Search returns up to topK snippets by similarity descending.
	// An unknown materialID yields an empty result, not an error.
	Search(ctx context.Context, materialID string, query []float32, topK int) ([]Snippet, error)
	// Drop removes the whole namespace. Idempotent.
	Drop(ctx context.Context, materialID string) error
	// Count reports how many chunks the namespace holds.
	Count(ctx context.Context, materialID string) (int, error)
}

// SchemaInitializer is implemented by indexes that need one-time schema or
// collection bootstrap.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context) error
}
