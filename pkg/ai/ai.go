package ai

import (
	"context"
)

// ModelMetrics contains performance metrics from embedding operations.
type ModelMetrics struct {
	InputTokens int   `json:"input_tokens"`
	TotalTokens int   `json:"total_tokens"`
	DurationMs  int64 `json:"duration_ms"`
	Requests    int   `json:"requests"`
}

// EmbeddingClient defines the interface for the embedding service used when
// scoring incident similarity. Implementations map a text to a fixed-length
// vector; the same text must always map to the same vector within one run.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
