package graph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reslab/lergraph/internal/util"
	"github.com/reslab/lergraph/pkg/cfr"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/logger"
	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
	"github.com/reslab/lergraph/pkg/store"
)

// linkBatchSize bounds the number of pair links written per store call.
const linkBatchSize = 500

// BuildGraphParams carries the inputs of one build run.
type BuildGraphParams struct {
	Records []ler.Record
	Index   *cfr.Index
	Profile *schema.Profile
	Engine  *similarity.Engine
	Store   store.GraphStorage

	// Reset wipes the graph before building.
	Reset bool
}

// BuildResult summarizes a completed build.
type BuildResult struct {
	Incidents       int
	FailedIncidents []string
	Pairs           int
	LinkedPairs     int

	// Links holds every pair that produced at least one edge, in scan
	// order; this is the export row set.
	Links []*similarity.Link

	Counts store.Counts
}

// BuildGraph runs the full pipeline: upsert phase (regulatory codes, then
// incidents in parallel), embedding precompute, the pairwise similarity
// scan, and finally the derived-relationship restructuring. The
// restructuring only starts after every upsert and link write finished.
func (g *GraphClient) BuildGraph(ctx context.Context, params BuildGraphParams) (*BuildResult, error) {
	if params.Profile == nil || params.Engine == nil || params.Store == nil {
		return nil, fmt.Errorf("graph: profile, engine and store are required")
	}

	result := &BuildResult{Incidents: len(params.Records)}

	if params.Reset {
		logger.Info("[Graph] Resetting graph")
		if err := params.Store.Reset(ctx); err != nil {
			return nil, err
		}
	}

	if params.Index != nil {
		logger.Info("[Graph] Upserting regulatory codes", "codes", params.Index.Len())
		if err := params.Store.SaveRegulatoryCodes(ctx, params.Index.Codes()); err != nil {
			return nil, err
		}
	}

	if err := g.upsertIncidents(ctx, params, result); err != nil {
		return nil, err
	}

	if err := g.precomputeEmbeddings(ctx, params); err != nil {
		return nil, err
	}

	if err := g.linkSimilarIncidents(ctx, params, result); err != nil {
		return nil, err
	}

	logger.Info("[Graph] Restructuring derived relationships")
	if err := params.Store.RestructureRelationships(ctx); err != nil {
		return nil, err
	}

	counts, err := params.Store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	result.Counts = counts

	logger.Info("[Graph] Build finished",
		"incidents", result.Incidents,
		"failed", len(result.FailedIncidents),
		"pairs", result.Pairs,
		"linked", result.LinkedPairs,
		"nodes", counts.Nodes,
		"relationships", counts.Relationships)

	return result, nil
}

// upsertIncidents writes every incident in its own transaction. A failed
// incident is retried; if it still fails it is recorded on the result and
// the build continues without it.
func (g *GraphClient) upsertIncidents(ctx context.Context, params BuildGraphParams, result *BuildResult) error {
	logger.Info("[Graph] Upserting incidents", "total", len(params.Records))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelIncidents)
	mutex := sync.Mutex{}

	for i := range params.Records {
		rec := &params.Records[i]
		eg.Go(func() error {
			codes := resolveCodes(rec, params.Index)

			err := util.RetryErrWithContext(gCtx, g.maxRetries, func(ctx context.Context) error {
				return params.Store.SaveIncident(ctx, rec, codes)
			})
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				logger.Error("[Graph] Failed to upsert incident", "file", rec.Filename, "err", err)
				mutex.Lock()
				result.FailedIncidents = append(result.FailedIncidents, rec.Filename)
				mutex.Unlock()
			}
			return nil
		})
	}

	return eg.Wait()
}

func (g *GraphClient) precomputeEmbeddings(ctx context.Context, params BuildGraphParams) error {
	logger.Info("[Graph] Precomputing embeddings", "records", len(params.Records))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelEmbeddings)

	for i := range params.Records {
		rec := &params.Records[i]
		eg.Go(func() error {
			return params.Engine.Precompute(gCtx, rec)
		})
	}

	return eg.Wait()
}

// linkSimilarIncidents scans every pair (i, j) with i < j in input order.
// All vectors come from the cache, so the scan itself performs no model
// calls. Qualifying links are flushed in batches.
func (g *GraphClient) linkSimilarIncidents(ctx context.Context, params BuildGraphParams, result *BuildResult) error {
	n := len(params.Records)
	logger.Info("[Graph] Scanning incident pairs", "records", n, "pairs", n*(n-1)/2)

	batch := make([]*similarity.Link, 0, linkBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := params.Store.SaveSimilarityLinks(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			link, err := params.Engine.Compare(ctx, &params.Records[i], &params.Records[j])
			if err != nil {
				return err
			}
			result.Pairs++

			if !link.HasEdges() {
				continue
			}
			result.LinkedPairs++
			result.Links = append(result.Links, link)

			batch = append(batch, link)
			if len(batch) >= linkBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}

	return flush()
}

// resolveCodes splits the incident's clause and resolves each code against
// the reference index. Unknown codes are skipped with a warning.
func resolveCodes(rec *ler.Record, index *cfr.Index) []cfr.Code {
	if index == nil {
		return nil
	}
	clauses := cfr.SplitClause(rec.Metadata.Clause)
	codes := make([]cfr.Code, 0, len(clauses))
	for _, clause := range clauses {
		code, ok := index.Lookup(clause)
		if !ok {
			logger.Warn("[Graph] Unknown regulatory code", "file", rec.Filename, "code", clause)
			continue
		}
		codes = append(codes, code)
	}
	return codes
}
