// Package memory implements GraphStorage on in-process maps. It backs the
// package tests and the dry-run store adapter, with the same idempotent
// upsert semantics as the Neo4j implementation.
package memory

import (
	"context"
	"sync"

	"github.com/reslab/lergraph/pkg/cfr"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
	"github.com/reslab/lergraph/pkg/store"
)

type nodeKey struct {
	Label string
	Key   string
}

type edgeKey struct {
	From nodeKey
	Rel  string
	To   nodeKey
}

// MemoryGraphStorage holds the graph as node and edge maps.
type MemoryGraphStorage struct {
	mu      sync.Mutex
	profile *schema.Profile

	nodes map[nodeKey]map[string]any
	edges map[edgeKey]map[string]any

	// attribute values per incident and dimension, for the derived rules
	values map[string]map[schema.Dimension][]string
}

// New creates an empty in-memory graph store for the given profile.
func New(profile *schema.Profile) *MemoryGraphStorage {
	return &MemoryGraphStorage{
		profile: profile,
		nodes:   make(map[nodeKey]map[string]any),
		edges:   make(map[edgeKey]map[string]any),
		values:  make(map[string]map[schema.Dimension][]string),
	}
}

func (s *MemoryGraphStorage) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[nodeKey]map[string]any)
	s.edges = make(map[edgeKey]map[string]any)
	s.values = make(map[string]map[schema.Dimension][]string)
	return nil
}

func (s *MemoryGraphStorage) SaveRegulatoryCodes(_ context.Context, codes []cfr.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range codes {
		s.setNode(nodeKey{"RegulatoryCode", c.CFR}, map[string]any{
			"cfr":   c.CFR,
			"upper": c.Upper,
			"lower": c.Lower,
		})
	}
	return nil
}

func (s *MemoryGraphStorage) SaveIncident(_ context.Context, rec *ler.Record, codes []cfr.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incident := nodeKey{"Incident", rec.Filename}
	s.setNode(incident, map[string]any{
		"filename": rec.Filename,
		"title":    rec.Metadata.Title,
		"date":     rec.Metadata.EventDate,
	})

	dims := make(map[schema.Dimension][]string)
	for _, dim := range s.profile.Dimensions {
		spec := s.profile.Specs[dim]
		for _, value := range rec.Keywords(string(dim)) {
			if value == "" {
				continue
			}
			attr := nodeKey{spec.NodeLabel, value}
			s.setNode(attr, map[string]any{"description": value})
			s.setEdge(edgeKey{incident, spec.RelType, attr}, nil, true)
			dims[dim] = append(dims[dim], value)
		}
	}
	s.values[rec.Filename] = dims

	if rec.Metadata.Facility.Name != "" {
		fac := nodeKey{"Facility", rec.Metadata.Facility.Name + "|" + rec.Metadata.Facility.Unit}
		s.setNode(fac, map[string]any{
			"name": rec.Metadata.Facility.Name,
			"unit": rec.Metadata.Facility.Unit,
		})
		s.setEdge(edgeKey{incident, "OCCURRED_AT", fac}, nil, true)
	}

	for _, c := range codes {
		code := nodeKey{"RegulatoryCode", c.CFR}
		s.setNode(code, map[string]any{
			"cfr":   c.CFR,
			"upper": c.Upper,
			"lower": c.Lower,
		})
		s.setEdge(edgeKey{incident, "REGULATED_BY", code}, nil, true)
	}

	return nil
}

func (s *MemoryGraphStorage) SaveSimilarityLinks(_ context.Context, links []*similarity.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range links {
		from := nodeKey{"Incident", l.File1}
		to := nodeKey{"Incident", l.File2}
		props := store.LinkProperties(s.profile, l)

		if l.OverallQualified {
			s.setEdge(edgeKey{from, s.profile.OverallRel, to}, props, false)
		}
		for _, dim := range l.Qualified {
			rel := s.profile.Specs[dim].SimilarityRel
			if rel == "" {
				continue
			}
			s.setEdge(edgeKey{from, rel, to}, props, false)
		}
	}
	return nil
}

func (s *MemoryGraphStorage) RestructureRelationships(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rule := range s.profile.ChainRules {
		fromLabel := s.profile.Specs[rule.From].NodeLabel
		toLabel := s.profile.Specs[rule.To].NodeLabel
		for _, dims := range s.values {
			for _, a := range dims[rule.From] {
				for _, b := range dims[rule.To] {
					s.setEdge(edgeKey{
						nodeKey{fromLabel, a},
						rule.RelType,
						nodeKey{toLabel, b},
					}, nil, true)
				}
			}
		}
	}
	return nil
}

func (s *MemoryGraphStorage) Counts(_ context.Context) (store.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Counts{
		Nodes:         int64(len(s.nodes)),
		Relationships: int64(len(s.edges)),
	}, nil
}

func (s *MemoryGraphStorage) Close(_ context.Context) error {
	return nil
}

// CountNodes returns the number of nodes carrying the given label.
func (s *MemoryGraphStorage) CountNodes(label string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.nodes {
		if k.Label == label {
			n++
		}
	}
	return n
}

// Edge looks up one edge and its properties.
func (s *MemoryGraphStorage) Edge(fromLabel, fromKey, rel, toLabel, toKey string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	props, ok := s.edges[edgeKey{nodeKey{fromLabel, fromKey}, rel, nodeKey{toLabel, toKey}}]
	return props, ok
}

// Node looks up one node's properties.
func (s *MemoryGraphStorage) Node(label, key string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	props, ok := s.nodes[nodeKey{label, key}]
	return props, ok
}

// setNode merges node properties, overwriting existing values.
func (s *MemoryGraphStorage) setNode(key nodeKey, props map[string]any) {
	existing, ok := s.nodes[key]
	if !ok {
		existing = make(map[string]any, len(props))
		s.nodes[key] = existing
	}
	for k, v := range props {
		existing[k] = v
	}
}

// setEdge creates an edge if absent. With overwrite false, properties are
// set on creation only.
func (s *MemoryGraphStorage) setEdge(key edgeKey, props map[string]any, overwrite bool) {
	if existing, ok := s.edges[key]; ok {
		if overwrite {
			for k, v := range props {
				existing[k] = v
			}
		}
		return
	}
	stored := make(map[string]any, len(props))
	for k, v := range props {
		stored[k] = v
	}
	s.edges[key] = stored
}
