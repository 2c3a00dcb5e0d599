package memory

import (
	"context"
	"testing"

	"github.com/reslab/lergraph/pkg/cfr"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
)

func incident(filename string, attrs map[string][]string) *ler.Record {
	return &ler.Record{
		Filename:   filename,
		Attributes: attrs,
		Metadata: ler.Metadata{
			Facility: ler.Facility{Name: "Plant A", Unit: "1"},
			Title:    "Test incident",
		},
	}
}

func TestSaveIncidentIdempotent(t *testing.T) {
	s := New(schema.LERProfile())
	ctx := context.Background()

	rec := incident("a.txt", map[string][]string{
		"Task":  {"pump repair"},
		"Cause": {"corrosion"},
	})
	codes := []cfr.Code{{CFR: "50.73(a)(2)(i)", Upper: "Operations", Lower: "Shutdown"}}

	if err := s.SaveIncident(ctx, rec, codes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := s.Counts(ctx)

	if err := s.SaveIncident(ctx, rec, codes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := s.Counts(ctx)

	if first != second {
		t.Errorf("second save changed counts: %+v -> %+v", first, second)
	}

	// incident + task + cause + facility + code = 5 nodes
	if first.Nodes != 5 {
		t.Errorf("got %d nodes, want 5", first.Nodes)
	}
	// task rel + cause rel + occurred_at + regulated_by = 4 edges
	if first.Relationships != 4 {
		t.Errorf("got %d relationships, want 4", first.Relationships)
	}
}

func TestAttributeValuesDedupedAcrossIncidents(t *testing.T) {
	s := New(schema.LERProfile())
	ctx := context.Background()

	a := incident("a.txt", map[string][]string{"Cause": {"corrosion"}})
	b := incident("b.txt", map[string][]string{"Cause": {"corrosion"}})

	_ = s.SaveIncident(ctx, a, nil)
	_ = s.SaveIncident(ctx, b, nil)

	if got := s.CountNodes("Cause"); got != 1 {
		t.Errorf("got %d cause nodes, want 1 shared node", got)
	}
	if _, ok := s.Edge("Incident", "a.txt", "HAS_CAUSE", "Cause", "corrosion"); !ok {
		t.Errorf("missing edge from a.txt")
	}
	if _, ok := s.Edge("Incident", "b.txt", "HAS_CAUSE", "Cause", "corrosion"); !ok {
		t.Errorf("missing edge from b.txt")
	}
}

func TestSimilarityScoresSetOnCreateOnly(t *testing.T) {
	profile := schema.LERProfile()
	s := New(profile)
	ctx := context.Background()

	_ = s.SaveIncident(ctx, incident("a.txt", nil), nil)
	_ = s.SaveIncident(ctx, incident("b.txt", nil), nil)

	link := &similarity.Link{
		File1:     "a.txt",
		File2:     "b.txt",
		Scores:    map[schema.Dimension]float64{"Task": 0.9},
		Overall:   0.9,
		Qualified: []schema.Dimension{"Task"},
	}
	if err := s.SaveSimilarityLinks(ctx, []*similarity.Link{link}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// replay with different scores; existing edge keeps its values
	replay := &similarity.Link{
		File1:     "a.txt",
		File2:     "b.txt",
		Scores:    map[schema.Dimension]float64{"Task": 0.1},
		Overall:   0.1,
		Qualified: []schema.Dimension{"Task"},
	}
	if err := s.SaveSimilarityLinks(ctx, []*similarity.Link{replay}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	props, ok := s.Edge("Incident", "a.txt", "SIMILAR_TASK", "Incident", "b.txt")
	if !ok {
		t.Fatalf("similarity edge missing")
	}
	if props["task_similarity"] != 0.9 {
		t.Errorf("got task_similarity %v, want original 0.9", props["task_similarity"])
	}
	if props["overall_similarity"] != 0.9 {
		t.Errorf("got overall_similarity %v, want original 0.9", props["overall_similarity"])
	}
}

func TestSimilarityEdgeDirectionFixed(t *testing.T) {
	s := New(schema.LERProfile())
	ctx := context.Background()

	_ = s.SaveIncident(ctx, incident("a.txt", nil), nil)
	_ = s.SaveIncident(ctx, incident("b.txt", nil), nil)

	link := &similarity.Link{
		File1:            "a.txt",
		File2:            "b.txt",
		Scores:           map[schema.Dimension]float64{},
		Overall:          0.95,
		OverallQualified: true,
	}
	_ = s.SaveSimilarityLinks(ctx, []*similarity.Link{link})

	if _, ok := s.Edge("Incident", "a.txt", "SIMILAR_OVERALL", "Incident", "b.txt"); !ok {
		t.Errorf("expected edge a.txt -> b.txt")
	}
	if _, ok := s.Edge("Incident", "b.txt", "SIMILAR_OVERALL", "Incident", "a.txt"); ok {
		t.Errorf("reverse edge must not exist")
	}
}

func TestRestructureRelationships(t *testing.T) {
	s := New(schema.LERProfile())
	ctx := context.Background()

	// task and cause co-occur on a.txt; the chain rule derives CAUSES
	_ = s.SaveIncident(ctx, incident("a.txt", map[string][]string{
		"Task":  {"pump repair"},
		"Cause": {"corrosion", "fatigue"},
	}), nil)
	// unrelated incident, no co-occurrence with a.txt values
	_ = s.SaveIncident(ctx, incident("b.txt", map[string][]string{
		"Task": {"valve check"},
	}), nil)

	if err := s.RestructureRelationships(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, cause := range []string{"corrosion", "fatigue"} {
		if _, ok := s.Edge("Task", "pump repair", "CAUSES", "Cause", cause); !ok {
			t.Errorf("missing derived edge pump repair -> %s", cause)
		}
	}
	if _, ok := s.Edge("Task", "valve check", "CAUSES", "Cause", "corrosion"); ok {
		t.Errorf("derived edge must require co-occurrence on one incident")
	}

	// idempotent: a second pass adds nothing
	before, _ := s.Counts(ctx)
	if err := s.RestructureRelationships(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, _ := s.Counts(ctx)
	if before != after {
		t.Errorf("second restructure changed counts: %+v -> %+v", before, after)
	}
}

func TestReset(t *testing.T) {
	s := New(schema.LERProfile())
	ctx := context.Background()

	_ = s.SaveIncident(ctx, incident("a.txt", map[string][]string{"Task": {"x"}}), nil)
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counts, _ := s.Counts(ctx)
	if counts.Nodes != 0 || counts.Relationships != 0 {
		t.Errorf("reset left data behind: %+v", counts)
	}
}

func TestSaveRegulatoryCodes(t *testing.T) {
	s := New(schema.LERProfile())
	ctx := context.Background()

	codes := []cfr.Code{
		{CFR: "50.73(a)(2)(i)", Upper: "Operations", Lower: "Shutdown"},
		{CFR: "50.73(a)(2)(iv)", Upper: "Systems", Lower: "Actuation"},
	}
	if err := s.SaveRegulatoryCodes(ctx, codes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.CountNodes("RegulatoryCode"); got != 2 {
		t.Errorf("got %d code nodes, want 2", got)
	}

	props, ok := s.Node("RegulatoryCode", "50.73(a)(2)(iv)")
	if !ok {
		t.Fatalf("code node missing")
	}
	if props["upper"] != "Systems" || props["lower"] != "Actuation" {
		t.Errorf("got props %v", props)
	}
}
