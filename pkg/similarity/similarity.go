// Package similarity scores incident pairs by comparing per-dimension
// embedding vectors. Scores are cosine similarities in [-1, 1]; the
// weighted sum over the profile's scored dimensions forms the overall
// score of a pair.
package similarity

import (
	"context"
	"fmt"
	"math"

	"github.com/reslab/lergraph/pkg/ai"
	"github.com/reslab/lergraph/pkg/cache"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/logger"
	"github.com/reslab/lergraph/pkg/schema"
)

// Link is the scored comparison of one incident pair. File1 always sorts
// lexicographically before File2, which fixes the direction of the edges
// materialized from the link.
type Link struct {
	File1 string
	File2 string

	// Scores holds the per-dimension similarity for every scored dimension
	// of the profile. A dimension empty on either side scores exactly 0.
	Scores map[schema.Dimension]float64

	// Overall is the weighted sum of the per-dimension scores.
	Overall float64

	// Qualified lists the dimensions whose score met the profile threshold
	// and that carry a per-dimension similarity relationship.
	Qualified []schema.Dimension

	// OverallQualified reports whether Overall met the threshold.
	OverallQualified bool

	// Unavailable lists dimensions whose embedding could not be computed.
	// They contribute nothing to Overall.
	Unavailable []schema.Dimension
}

// HasEdges reports whether the link produces at least one graph edge.
func (l *Link) HasEdges() bool {
	return l.OverallQualified || len(l.Qualified) > 0
}

// Engine computes pair links for one schema profile. Embeddings are read
// through the cache; Precompute fills it so the pairwise scan never calls
// the model.
type Engine struct {
	client  ai.EmbeddingClient
	cache   cache.EmbeddingCache
	profile *schema.Profile
}

// NewEngine creates a similarity engine over the given embedding client,
// cache and profile.
func NewEngine(client ai.EmbeddingClient, store cache.EmbeddingCache, profile *schema.Profile) *Engine {
	return &Engine{
		client:  client,
		cache:   store,
		profile: profile,
	}
}

// Precompute embeds every non-empty scored dimension of the record into the
// cache. Failed dimensions are logged and left absent; Compare treats them
// as unavailable.
func (e *Engine) Precompute(ctx context.Context, rec *ler.Record) error {
	for _, dim := range e.profile.ScoredDimensions() {
		if rec.DimensionText(string(dim)) == "" {
			continue
		}
		if _, err := e.embed(ctx, rec, dim); err != nil {
			logger.Warn("[Similarity] Failed to embed dimension",
				"file", rec.Filename, "dimension", dim, "err", err)
		}
	}
	return ctx.Err()
}

// Compare scores a record pair across the profile's scored dimensions.
func (e *Engine) Compare(ctx context.Context, a *ler.Record, b *ler.Record) (*Link, error) {
	if b.Filename < a.Filename {
		a, b = b, a
	}

	link := &Link{
		File1:  a.Filename,
		File2:  b.Filename,
		Scores: make(map[schema.Dimension]float64),
	}

	for _, dim := range e.profile.ScoredDimensions() {
		if a.DimensionText(string(dim)) == "" || b.DimensionText(string(dim)) == "" {
			link.Scores[dim] = 0
			continue
		}

		vecA, errA := e.embed(ctx, a, dim)
		vecB, errB := e.embed(ctx, b, dim)
		if errA != nil || errB != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			link.Unavailable = append(link.Unavailable, dim)
			continue
		}

		score := Cosine(vecA, vecB)
		link.Scores[dim] = score

		if e.profile.Specs[dim].SimilarityRel != "" && score >= e.profile.Threshold {
			link.Qualified = append(link.Qualified, dim)
		}
		link.Overall += e.profile.Weights[dim] * score
	}

	link.OverallQualified = link.Overall >= e.profile.Threshold

	return link, nil
}

// embed returns the vector for one record dimension, reading through the
// cache. The dimension text must be non-empty for a meaningful vector, but
// empty text is still embeddable; callers gate on DimensionText first.
func (e *Engine) embed(ctx context.Context, rec *ler.Record, dim schema.Dimension) ([]float32, error) {
	vec, ok, err := e.cache.Get(ctx, rec.Filename, string(dim))
	if err != nil {
		return nil, fmt.Errorf("cache read for %s/%s: %w", rec.Filename, dim, err)
	}
	if ok {
		return vec, nil
	}

	text := rec.DimensionText(string(dim))
	vec, err = e.client.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("embedding for %s/%s: %w", rec.Filename, dim, err)
	}

	if err := e.cache.Put(ctx, rec.Filename, string(dim), vec); err != nil {
		return nil, fmt.Errorf("cache write for %s/%s: %w", rec.Filename, dim, err)
	}
	return vec, nil
}

// Cosine computes the cosine similarity of two vectors. Mismatched lengths
// and zero-magnitude vectors score 0.
func Cosine(a []float32, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
