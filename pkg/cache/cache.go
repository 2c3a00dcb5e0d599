package cache

import "context"

// EmbeddingCache stores computed embedding vectors keyed by incident filename
// and attribute dimension, so repeated builds and the pairwise scan never
// embed the same text twice.
type EmbeddingCache interface {
	// Get returns the cached vector for (filename, dimension). The second
	// return reports whether an entry exists.
	Get(ctx context.Context, filename string, dimension string) ([]float32, bool, error)

	// Put stores the vector for (filename, dimension), replacing any
	// previous entry.
	Put(ctx context.Context, filename string, dimension string, vector []float32) error
}
