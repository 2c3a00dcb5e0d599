package store

import (
	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
)

// LinkProperties renders the score property map materialized on similarity
// edges: one property per scored dimension plus the overall score. Property
// names follow the export column naming.
func LinkProperties(p *schema.Profile, l *similarity.Link) map[string]any {
	props := make(map[string]any, len(l.Scores)+1)
	for dim, score := range l.Scores {
		props[schema.ColumnName(dim)] = score
	}
	props["overall_similarity"] = l.Overall
	return props
}
