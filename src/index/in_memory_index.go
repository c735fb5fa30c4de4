package index

import (
	"context"
	"sort"
	"sync"
)

// InMemoryIndex implements ChunkIndex for tests and single-process runs.
type InMemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string][]Chunk
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{namespaces: make(map[string][]Chunk)}
}

func (ix *InMemoryIndex) Put(_ context.Context, materialID string, chunks []Chunk) error {
	copied := make([]Chunk, len(chunks))
	for i, ch := range chunks {
		copied[i] = ch
		copied[i].Vector = append([]float32(nil), ch.Vector...)
		copied[i].Meta = cloneMeta(ch.Meta)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.namespaces[materialID] = copied
	return nil
}

func (ix *InMemoryIndex) Search(_ context.Context, materialID string, query []float32, topK int) ([]Snippet, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	chunks, ok := ix.namespaces[materialID]
	if !ok || topK <= 0 {
		return nil, nil
	}

	scored := make([]Snippet, 0, len(chunks))
	for _, ch := range chunks {
		scored = append(scored, Snippet{
			Text:  ch.Text,
			Score: CosineSimilarity(query, ch.Vector),
			Meta:  cloneMeta(ch.Meta),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (ix *InMemoryIndex) Drop(_ context.Context, materialID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.namespaces, materialID)
	return nil
}

func (ix *InMemoryIndex) Count(_ context.Context, materialID string) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.namespaces[materialID]), nil
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
