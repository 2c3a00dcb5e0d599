package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/reslab/lergraph/pkg/cfr"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/logger"
	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
	"github.com/reslab/lergraph/pkg/store"
)

// Neo4jGraphStorage persists the incident graph through a Neo4j session per
// operation. All labels and relationship types are taken from the validated
// profile enumeration; input strings only ever appear as parameters.
type Neo4jGraphStorage struct {
	client  *Client
	profile *schema.Profile
}

// New creates the storage adapter and applies the uniqueness constraints
// best-effort: a failure (e.g. insufficient privileges) is logged and the
// adapter continues, since MERGE keeps the writes idempotent either way.
func New(ctx context.Context, client *Client, profile *schema.Profile) *Neo4jGraphStorage {
	s := &Neo4jGraphStorage{
		client:  client,
		profile: profile,
	}
	s.initConstraints(ctx)
	return s
}

func (s *Neo4jGraphStorage) initConstraints(ctx context.Context) {
	session := s.session(ctx)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT incident_filename_unique IF NOT EXISTS FOR (i:Incident) REQUIRE i.filename IS UNIQUE`,
		`CREATE CONSTRAINT regulatory_code_unique IF NOT EXISTS FOR (c:RegulatoryCode) REQUIRE c.cfr IS UNIQUE`,
	}
	for _, dim := range s.profile.Dimensions {
		label := s.profile.Specs[dim].NodeLabel
		stmts = append(stmts, fmt.Sprintf(
			`CREATE CONSTRAINT %s_description_unique IF NOT EXISTS FOR (a:%s) REQUIRE a.description IS UNIQUE`,
			toSnake(label), label,
		))
	}

	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			logger.Warn("[Neo4j] Constraint init failed, continuing", "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *Neo4jGraphStorage) session(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

func (s *Neo4jGraphStorage) Reset(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runConsume(ctx, tx, `MATCH (n) DETACH DELETE n`, nil)
	})
	if err != nil {
		return fmt.Errorf("neo4j: reset graph: %w", err)
	}
	return nil
}

func (s *Neo4jGraphStorage) SaveRegulatoryCodes(ctx context.Context, codes []cfr.Code) error {
	if len(codes) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, map[string]any{
			"cfr":   c.CFR,
			"upper": c.Upper,
			"lower": c.Lower,
		})
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runConsume(ctx, tx, `
UNWIND $codes AS c
MERGE (rc:RegulatoryCode {cfr: c.cfr})
SET rc.upper = c.upper, rc.lower = c.lower
`, map[string]any{"codes": rows})
	})
	if err != nil {
		return fmt.Errorf("neo4j: save regulatory codes: %w", err)
	}
	return nil
}

func (s *Neo4jGraphStorage) SaveIncident(ctx context.Context, rec *ler.Record, codes []cfr.Code) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := runConsume(ctx, tx, `
MERGE (i:Incident {filename: $filename})
SET i.title = $title, i.date = $date
`, map[string]any{
			"filename": rec.Filename,
			"title":    rec.Metadata.Title,
			"date":     rec.Metadata.EventDate,
		}); err != nil {
			return nil, err
		}

		for _, dim := range s.profile.Dimensions {
			values := nonEmpty(rec.Keywords(string(dim)))
			if len(values) == 0 {
				continue
			}
			spec := s.profile.Specs[dim]
			q := fmt.Sprintf(`
MATCH (i:Incident {filename: $filename})
UNWIND $values AS v
MERGE (a:%s {description: v})
MERGE (i)-[:%s]->(a)
`, spec.NodeLabel, spec.RelType)
			if _, err := runConsume(ctx, tx, q, map[string]any{
				"filename": rec.Filename,
				"values":   values,
			}); err != nil {
				return nil, err
			}
		}

		if rec.Metadata.Facility.Name != "" {
			if _, err := runConsume(ctx, tx, `
MATCH (i:Incident {filename: $filename})
MERGE (f:Facility {name: $name, unit: $unit})
MERGE (i)-[:OCCURRED_AT]->(f)
`, map[string]any{
				"filename": rec.Filename,
				"name":     rec.Metadata.Facility.Name,
				"unit":     rec.Metadata.Facility.Unit,
			}); err != nil {
				return nil, err
			}
		}

		if len(codes) > 0 {
			rows := make([]map[string]any, 0, len(codes))
			for _, c := range codes {
				rows = append(rows, map[string]any{
					"cfr":   c.CFR,
					"upper": c.Upper,
					"lower": c.Lower,
				})
			}
			if _, err := runConsume(ctx, tx, `
MATCH (i:Incident {filename: $filename})
UNWIND $codes AS c
MERGE (rc:RegulatoryCode {cfr: c.cfr})
SET rc.upper = c.upper, rc.lower = c.lower
MERGE (i)-[:REGULATED_BY]->(rc)
`, map[string]any{
				"filename": rec.Filename,
				"codes":    rows,
			}); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: save incident %s: %w", rec.Filename, err)
	}
	return nil
}

func (s *Neo4jGraphStorage) SaveSimilarityLinks(ctx context.Context, links []*similarity.Link) error {
	// Edges are batched per relationship type so each type is a single
	// UNWIND statement.
	byRel := make(map[string][]map[string]any)
	for _, l := range links {
		props := store.LinkProperties(s.profile, l)
		row := map[string]any{
			"file1": l.File1,
			"file2": l.File2,
			"props": props,
		}
		if l.OverallQualified {
			byRel[s.profile.OverallRel] = append(byRel[s.profile.OverallRel], row)
		}
		for _, dim := range l.Qualified {
			rel := s.profile.Specs[dim].SimilarityRel
			if rel == "" {
				continue
			}
			byRel[rel] = append(byRel[rel], row)
		}
	}
	if len(byRel) == 0 {
		return nil
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, rel := range s.similarityRels() {
			rows, ok := byRel[rel]
			if !ok {
				continue
			}
			q := fmt.Sprintf(`
UNWIND $links AS l
MATCH (a:Incident {filename: l.file1})
MATCH (b:Incident {filename: l.file2})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r += l.props
`, rel)
			if _, err := runConsume(ctx, tx, q, map[string]any{"links": rows}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: save similarity links: %w", err)
	}
	return nil
}

func (s *Neo4jGraphStorage) RestructureRelationships(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, rule := range s.profile.ChainRules {
			from := s.profile.Specs[rule.From]
			to := s.profile.Specs[rule.To]
			q := fmt.Sprintf(`
MATCH (i:Incident)-[:%s]->(a:%s)
MATCH (i)-[:%s]->(b:%s)
MERGE (a)-[:%s]->(b)
`, from.RelType, from.NodeLabel, to.RelType, to.NodeLabel, rule.RelType)
			if _, err := runConsume(ctx, tx, q, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: restructure relationships: %w", err)
	}
	return nil
}

func (s *Neo4jGraphStorage) Counts(ctx context.Context) (store.Counts, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		counts := store.Counts{}

		res, err := tx.Run(ctx, `MATCH (n) RETURN count(n) AS c`, nil)
		if err != nil {
			return nil, err
		}
		if rec, err := res.Single(ctx); err != nil {
			return nil, err
		} else {
			counts.Nodes, _ = rec.Values[0].(int64)
		}

		res, err = tx.Run(ctx, `MATCH ()-[r]->() RETURN count(r) AS c`, nil)
		if err != nil {
			return nil, err
		}
		if rec, err := res.Single(ctx); err != nil {
			return nil, err
		} else {
			counts.Relationships, _ = rec.Values[0].(int64)
		}

		return counts, nil
	})
	if err != nil {
		return store.Counts{}, fmt.Errorf("neo4j: count graph: %w", err)
	}
	return result.(store.Counts), nil
}

func (s *Neo4jGraphStorage) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// similarityRels enumerates the similarity relationship types in profile
// order, overall last, so batch statement order is deterministic.
func (s *Neo4jGraphStorage) similarityRels() []string {
	rels := make([]string, 0, len(s.profile.Dimensions)+1)
	for _, dim := range s.profile.Dimensions {
		if rel := s.profile.Specs[dim].SimilarityRel; rel != "" {
			rels = append(rels, rel)
		}
	}
	return append(rels, s.profile.OverallRel)
}

func runConsume(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (any, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if _, err := res.Consume(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func toSnake(label string) string {
	out := make([]rune, 0, len(label)+4)
	for i, r := range label {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
