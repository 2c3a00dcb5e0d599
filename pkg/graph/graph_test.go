package graph

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/reslab/lergraph/pkg/ai"
	"github.com/reslab/lergraph/pkg/cache"
	"github.com/reslab/lergraph/pkg/cfr"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
	"github.com/reslab/lergraph/pkg/store/memory"
)

// mapEmbedder returns a fixed vector per text; texts without an entry map
// to a shared fallback vector.
type mapEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (m *mapEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	m.calls++
	if v, ok := m.vectors[string(input)]; ok {
		return v, nil
	}
	return []float32{1, 1, 1, 1}, nil
}

func (m *mapEmbedder) ResetMetrics() {}

func (m *mapEmbedder) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func newTestClient(t *testing.T) *GraphClient {
	t.Helper()
	client, err := NewGraphClient(NewGraphClientParams{
		ParallelIncidents:  2,
		ParallelEmbeddings: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func buildOnce(t *testing.T, params BuildGraphParams) *BuildResult {
	t.Helper()
	result, err := newTestClient(t).BuildGraph(context.Background(), params)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return result
}

func TestBuildGraphTaskOnlyWeights(t *testing.T) {
	// two incidents share the identical task keyword; everything else is
	// disjoint, and only the task dimension carries weight
	profile := schema.LERProfile()
	profile.Weights = map[schema.Dimension]float64{"Task": 1.0}

	records := []ler.Record{
		{
			Filename: "ler_1.txt",
			Attributes: map[string][]string{
				"Task":      {"valve-failure"},
				"Cause":     {"corrosion"},
				"Event":     {"leak"},
				"Influence": {"shutdown"},
			},
		},
		{
			Filename: "ler_2.txt",
			Attributes: map[string][]string{
				"Task":      {"valve-failure"},
				"Cause":     {"operator error"},
				"Event":     {"trip"},
				"Influence": {"delay"},
			},
		},
	}

	client := &mapEmbedder{vectors: map[string][]float32{
		"valve-failure":  {1, 0, 0, 0},
		"corrosion":      {0, 1, 0, 0},
		"operator error": {0, 0, 1, 0},
		"leak":           {0, 1, 0, 0},
		"trip":           {0, 0, 1, 0},
		"shutdown":       {0, 1, 0, 0},
		"delay":          {0, 0, 1, 0},
	}}

	storeClient := memory.New(profile)
	engine := similarity.NewEngine(client, cache.NewMemoryCache(), profile)

	result := buildOnce(t, BuildGraphParams{
		Records: records,
		Profile: profile,
		Engine:  engine,
		Store:   storeClient,
	})

	if result.Pairs != 1 || result.LinkedPairs != 1 {
		t.Fatalf("got pairs=%d linked=%d, want 1/1", result.Pairs, result.LinkedPairs)
	}

	props, ok := storeClient.Edge("Incident", "ler_1.txt", "SIMILAR_TASK", "Incident", "ler_2.txt")
	if !ok {
		t.Fatalf("expected task similarity edge")
	}
	if props["task_similarity"] != 1.0 {
		t.Errorf("got task_similarity %v, want 1.0", props["task_similarity"])
	}

	for _, rel := range []string{"SIMILAR_CAUSE", "SIMILAR_EVENT", "SIMILAR_INFLUENCE"} {
		if _, ok := storeClient.Edge("Incident", "ler_1.txt", rel, "Incident", "ler_2.txt"); ok {
			t.Errorf("unexpected %s edge for disjoint dimension", rel)
		}
	}

	// aggregate is 1.0 under task-only weights, so the overall edge exists too
	if _, ok := storeClient.Edge("Incident", "ler_1.txt", "SIMILAR_OVERALL", "Incident", "ler_2.txt"); !ok {
		t.Errorf("expected overall similarity edge")
	}
}

func TestBuildGraphEquipmentProfileSinglePair(t *testing.T) {
	profile := schema.EquipmentProfile()
	profile.Threshold = 0.5

	records := []ler.Record{
		{
			Filename: "rep_1.txt",
			Attributes: map[string][]string{
				"Equipment": {"feedwater pump"},
				"Cause":     {"bearing wear"},
				"Impact":    {"derate"},
			},
		},
		{
			Filename: "rep_2.txt",
			Attributes: map[string][]string{
				"Equipment": {"feedwater pump"},
				"Cause":     {"bearing wear"},
				"Impact":    {"outage"},
			},
		},
		{
			Filename: "rep_3.txt",
			Attributes: map[string][]string{
				"Equipment": {"diesel generator"},
				"Cause":     {"fuel degradation"},
				"Impact":    {"test failure"},
			},
		},
	}

	client := &mapEmbedder{vectors: map[string][]float32{
		"feedwater pump":   {1, 0, 0, 0},
		"diesel generator": {0, 1, 0, 0},
		"bearing wear":     {0, 0, 1, 0},
		"fuel degradation": {0, 0, 0, 1},
		"derate":           {1, 0, 0, 0},
		"outage":           {0, 1, 0, 0},
		"test failure":     {0, 0, 1, 0},
	}}

	storeClient := memory.New(profile)
	engine := similarity.NewEngine(client, cache.NewMemoryCache(), profile)

	result := buildOnce(t, BuildGraphParams{
		Records: records,
		Profile: profile,
		Engine:  engine,
		Store:   storeClient,
	})

	// only (1,2) reaches 0.5*1 + 0.3*1 + 0.2*0 = 0.8 >= 0.5
	if result.Pairs != 3 {
		t.Fatalf("got %d pairs, want 3", result.Pairs)
	}
	if len(result.Links) != 1 {
		t.Fatalf("got %d export rows, want 1", len(result.Links))
	}
	if result.Links[0].File1 != "rep_1.txt" || result.Links[0].File2 != "rep_2.txt" {
		t.Errorf("got pair (%s, %s)", result.Links[0].File1, result.Links[0].File2)
	}

	if _, ok := storeClient.Edge("Incident", "rep_1.txt", "SIMILAR_OVERALL", "Incident", "rep_2.txt"); !ok {
		t.Errorf("expected overall edge for (1,2)")
	}
	if _, ok := storeClient.Edge("Incident", "rep_1.txt", "SIMILAR_OVERALL", "Incident", "rep_3.txt"); ok {
		t.Errorf("unexpected overall edge for (1,3)")
	}
	if _, ok := storeClient.Edge("Incident", "rep_2.txt", "SIMILAR_OVERALL", "Incident", "rep_3.txt"); ok {
		t.Errorf("unexpected overall edge for (2,3)")
	}
}

func TestBuildGraphRegulatoryCodes(t *testing.T) {
	profile := schema.LERProfile()

	index, err := cfr.NewIndex(strings.NewReader(
		"CFR,class_1,class_2\n50.73(a)(2)(iv)(A),Systems,Actuation\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := []ler.Record{
		{
			Filename: "ler_1.txt",
			Metadata: ler.Metadata{
				// the second clause is not in the index and is skipped
				Clause: "50.73(a)(2)(iv)(A), 99.99(z)",
			},
		},
	}

	storeClient := memory.New(profile)
	engine := similarity.NewEngine(&mapEmbedder{}, cache.NewMemoryCache(), profile)

	buildOnce(t, BuildGraphParams{
		Records: records,
		Index:   index,
		Profile: profile,
		Engine:  engine,
		Store:   storeClient,
	})

	if got := storeClient.CountNodes("RegulatoryCode"); got != 1 {
		t.Fatalf("got %d regulatory code nodes, want 1", got)
	}
	props, ok := storeClient.Node("RegulatoryCode", "50.73(a)(2)(iv)(A)")
	if !ok {
		t.Fatalf("code node missing")
	}
	if props["upper"] != "Systems" || props["lower"] != "Actuation" {
		t.Errorf("got classification %v", props)
	}
	if _, ok := storeClient.Edge("Incident", "ler_1.txt", "REGULATED_BY", "RegulatoryCode", "50.73(a)(2)(iv)(A)"); !ok {
		t.Errorf("expected regulated-by edge")
	}
}

func TestBuildGraphRestructuring(t *testing.T) {
	profile := schema.LERProfile()

	records := []ler.Record{
		{
			Filename: "ler_1.txt",
			Attributes: map[string][]string{
				"Task":  {"inspection"},
				"Cause": {"wear"},
			},
		},
	}

	storeClient := memory.New(profile)
	engine := similarity.NewEngine(&mapEmbedder{}, cache.NewMemoryCache(), profile)

	params := BuildGraphParams{
		Records: records,
		Profile: profile,
		Engine:  engine,
		Store:   storeClient,
	}
	buildOnce(t, params)

	if _, ok := storeClient.Edge("Task", "inspection", "CAUSES", "Cause", "wear"); !ok {
		t.Fatalf("expected derived edge inspection -> wear")
	}

	// a second restructuring pass adds nothing
	before, _ := storeClient.Counts(context.Background())
	if err := storeClient.RestructureRelationships(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, _ := storeClient.Counts(context.Background())
	if before != after {
		t.Errorf("restructuring is not idempotent: %+v -> %+v", before, after)
	}
}

func TestBuildGraphIdempotent(t *testing.T) {
	profile := schema.LERProfile()

	records := []ler.Record{
		{
			Filename: "ler_1.txt",
			Attributes: map[string][]string{
				"Task":  {"valve-failure"},
				"Cause": {"corrosion"},
			},
			Metadata: ler.Metadata{
				Facility: ler.Facility{Name: "Plant A", Unit: "2"},
				Title:    "First",
			},
		},
		{
			Filename: "ler_2.txt",
			Attributes: map[string][]string{
				"Task":  {"valve-failure"},
				"Cause": {"corrosion"},
			},
			Metadata: ler.Metadata{
				Facility: ler.Facility{Name: "Plant A", Unit: "2"},
				Title:    "Second",
			},
		},
	}

	client := &mapEmbedder{vectors: map[string][]float32{
		"valve-failure": {1, 0},
		"corrosion":     {0, 1},
	}}

	storeClient := memory.New(profile)
	engine := similarity.NewEngine(client, cache.NewMemoryCache(), profile)

	params := BuildGraphParams{
		Records: records,
		Profile: profile,
		Engine:  engine,
		Store:   storeClient,
	}

	first := buildOnce(t, params)
	second := buildOnce(t, params)

	if first.Counts != second.Counts {
		t.Errorf("second build changed counts: %+v -> %+v", first.Counts, second.Counts)
	}

	// shared attribute values resolve to single nodes
	if got := storeClient.CountNodes("Task"); got != 1 {
		t.Errorf("got %d task nodes, want 1", got)
	}
	if got := storeClient.CountNodes("Cause"); got != 1 {
		t.Errorf("got %d cause nodes, want 1", got)
	}
}

func TestWriteCSV(t *testing.T) {
	profile := schema.LERProfile()

	links := []*similarity.Link{
		{
			File1: "ler_1.txt",
			File2: "ler_2.txt",
			Scores: map[schema.Dimension]float64{
				"Task":      1,
				"Event":     0,
				"Cause":     0.5,
				"Influence": 0,
			},
			Overall: 0.375,
		},
	}

	buf := new(bytes.Buffer)
	if err := WriteCSV(buf, profile, links); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	wantHeader := "filename_1,filename_2,task_similarity,event_similarity,cause_similarity,influence_similarity,overall_similarity"
	if lines[0] != wantHeader {
		t.Errorf("got header %q, want %q", lines[0], wantHeader)
	}

	wantRow := "ler_1.txt,ler_2.txt,1.000000,0.000000,0.500000,0.000000,0.375000"
	if lines[1] != wantRow {
		t.Errorf("got row %q, want %q", lines[1], wantRow)
	}
}
