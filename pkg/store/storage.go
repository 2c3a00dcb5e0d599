package store

import (
	"context"

	"github.com/reslab/lergraph/pkg/cfr"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/similarity"
)

// Counts is the node and relationship total of the stored graph, used to
// verify build idempotency.
type Counts struct {
	Nodes         int64
	Relationships int64
}

// GraphStorage defines the interface for persisting the incident graph.
// All write operations are idempotent upserts: re-running a build against
// the same inputs leaves the graph unchanged.
type GraphStorage interface {
	// Reset removes the entire graph.
	Reset(ctx context.Context) error

	// SaveRegulatoryCodes upserts the full regulatory code reference set.
	SaveRegulatoryCodes(ctx context.Context, codes []cfr.Code) error

	// SaveIncident upserts one incident with its attribute values,
	// per-dimension edges, facility and resolved regulatory codes, in a
	// single transaction. The codes are the incident's clause entries
	// already resolved against the reference index.
	SaveIncident(ctx context.Context, rec *ler.Record, codes []cfr.Code) error

	// SaveSimilarityLinks materializes the qualifying edges of the given
	// links. Scores are set on edge creation only; existing edges keep
	// their original scores.
	SaveSimilarityLinks(ctx context.Context, links []*similarity.Link) error

	// RestructureRelationships applies the profile's derived rules,
	// creating one edge per distinct co-occurring value pair.
	RestructureRelationships(ctx context.Context) error

	// Counts returns the current graph totals.
	Counts(ctx context.Context) (Counts, error)

	Close(ctx context.Context) error
}
