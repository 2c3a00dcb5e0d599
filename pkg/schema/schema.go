package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
)

// Dimension is one attribute category extracted from an incident report,
// e.g. Cause or Equipment. Dimension names match the keys of the incident
// record's attribute map.
type Dimension string

// DimensionSpec fixes the graph vocabulary for one dimension. Labels and
// relationship names are a closed enumeration validated at load time; they
// are never derived from input data.
type DimensionSpec struct {
	NodeLabel     string `validate:"required,alphanum"`
	RelType       string `validate:"required"`
	SimilarityRel string
}

// DerivedRule describes one restructuring pass: whenever two attribute values
// of the From and To dimensions co-occur on the same incident, a single
// RelType edge is created between the two value nodes.
type DerivedRule struct {
	From    Dimension `validate:"required"`
	RelType string    `validate:"required"`
	To      Dimension `validate:"required"`
}

// Profile is the complete graph schema configuration for one attribute
// taxonomy: the ordered dimension set, its graph vocabulary, the derived
// relationship rules, and the similarity policy (weights and threshold).
type Profile struct {
	Name       string                     `validate:"required"`
	Dimensions []Dimension                `validate:"required,min=1"`
	Specs      map[Dimension]DimensionSpec `validate:"required"`

	ChainRules []DerivedRule

	Weights   map[Dimension]float64
	Threshold float64 `validate:"gte=0,lte=1"`

	OverallRel string `validate:"required"`
}

const (
	ProfileLER       = "ler"
	ProfileEquipment = "equipment"
)

var validate = validator.New()

// LERProfile is the report-centric taxonomy: each incident carries the task
// in progress, the event, its cause, its influence and the corrective action
// taken, chained in that causal order.
func LERProfile() *Profile {
	return &Profile{
		Name: ProfileLER,
		Dimensions: []Dimension{
			"Task", "Event", "Cause", "Influence", "Corrective Actions",
		},
		Specs: map[Dimension]DimensionSpec{
			"Task":               {NodeLabel: "Task", RelType: "RELATED_TO_TASK", SimilarityRel: "SIMILAR_TASK"},
			"Event":              {NodeLabel: "Event", RelType: "HAS_EVENT", SimilarityRel: "SIMILAR_EVENT"},
			"Cause":              {NodeLabel: "Cause", RelType: "HAS_CAUSE", SimilarityRel: "SIMILAR_CAUSE"},
			"Influence":          {NodeLabel: "Influence", RelType: "HAS_INFLUENCE", SimilarityRel: "SIMILAR_INFLUENCE"},
			"Corrective Actions": {NodeLabel: "CorrectiveAction", RelType: "HAS_CORRECTIVE_ACTIONS"},
		},
		ChainRules: []DerivedRule{
			{From: "Task", RelType: "CAUSES", To: "Cause"},
			{From: "Cause", RelType: "TRIGGERS", To: "Event"},
			{From: "Event", RelType: "IMPACTS", To: "Influence"},
			{From: "Influence", RelType: "ADDRESSED_BY", To: "Corrective Actions"},
		},
		Weights: map[Dimension]float64{
			"Task":      0.25,
			"Cause":     0.25,
			"Event":     0.25,
			"Influence": 0.25,
		},
		Threshold:  0.8,
		OverallRel: "SIMILAR_OVERALL",
	}
}

// EquipmentProfile is the entity-centric taxonomy used by the alternate
// extraction schema: incidents are described by the equipment involved, the
// failure type, cause and its category, how the failure was detected, the
// impact, and the corrective action.
func EquipmentProfile() *Profile {
	return &Profile{
		Name: ProfileEquipment,
		Dimensions: []Dimension{
			"Equipment", "FailureType", "Cause", "CauseCategory",
			"Detection", "Impact", "CorrectiveAction",
		},
		Specs: map[Dimension]DimensionSpec{
			"Equipment":        {NodeLabel: "Equipment", RelType: "INVOLVED_EQUIPMENT", SimilarityRel: "SIMILAR_EQUIPMENT"},
			"FailureType":      {NodeLabel: "FailureType", RelType: "HAS_FAILURE_TYPE"},
			"Cause":            {NodeLabel: "Cause", RelType: "HAS_CAUSE", SimilarityRel: "SIMILAR_CAUSE"},
			"CauseCategory":    {NodeLabel: "CauseCategory", RelType: "HAS_CAUSE_CATEGORY"},
			"Detection":        {NodeLabel: "Detection", RelType: "DETECTED_BY"},
			"Impact":           {NodeLabel: "Impact", RelType: "HAS_IMPACT", SimilarityRel: "SIMILAR_IMPACT"},
			"CorrectiveAction": {NodeLabel: "CorrectiveAction", RelType: "HAS_CORRECTIVE_ACTIONS"},
		},
		ChainRules: []DerivedRule{
			{From: "Equipment", RelType: "EXHIBITS", To: "FailureType"},
			{From: "CorrectiveAction", RelType: "ADDRESSES", To: "FailureType"},
			{From: "Cause", RelType: "CLASSIFIED_AS", To: "CauseCategory"},
		},
		Weights: map[Dimension]float64{
			"Equipment": 0.5,
			"Cause":     0.3,
			"Impact":    0.2,
		},
		Threshold:  0.8,
		OverallRel: "SIMILAR_OVERALL",
	}
}

// LoadProfile resolves a built-in profile by name and applies the optional
// threshold and weight overrides. An empty threshold/weights string leaves
// the profile defaults in place.
//
// Weight overrides use the form "task=0.5,cause=0.3"; dimension names are
// matched case-insensitively against the profile's dimension set.
func LoadProfile(name string, thresholdOverride string, weightsOverride string) (*Profile, error) {
	var p *Profile
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileLER:
		p = LERProfile()
	case ProfileEquipment:
		p = EquipmentProfile()
	default:
		return nil, fmt.Errorf("unknown schema profile: %q", name)
	}

	if thresholdOverride != "" {
		t, err := strconv.ParseFloat(strings.TrimSpace(thresholdOverride), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid similarity threshold %q: %w", thresholdOverride, err)
		}
		p.Threshold = t
	}

	if weightsOverride != "" {
		weights, err := parseWeights(weightsOverride, p)
		if err != nil {
			return nil, err
		}
		p.Weights = weights
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the profile's internal consistency: the struct constraints,
// that every dimension has a spec, and that weights and derived rules only
// name known dimensions with non-negative weights.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid schema profile %q: %w", p.Name, err)
	}

	known := make(map[Dimension]bool, len(p.Dimensions))
	for _, d := range p.Dimensions {
		if _, ok := p.Specs[d]; !ok {
			return fmt.Errorf("schema profile %q: dimension %q has no spec", p.Name, d)
		}
		known[d] = true
	}

	for d, w := range p.Weights {
		if !known[d] {
			return fmt.Errorf("schema profile %q: weight for unknown dimension %q", p.Name, d)
		}
		if w < 0 {
			return fmt.Errorf("schema profile %q: negative weight for dimension %q", p.Name, d)
		}
	}

	for _, rule := range p.ChainRules {
		if !known[rule.From] {
			return fmt.Errorf("schema profile %q: derived rule from unknown dimension %q", p.Name, rule.From)
		}
		if !known[rule.To] {
			return fmt.Errorf("schema profile %q: derived rule to unknown dimension %q", p.Name, rule.To)
		}
	}

	return nil
}

// ScoredDimensions returns the dimensions that take part in similarity
// scoring (those with a positive weight or a per-dimension similarity
// relationship), in profile dimension order.
func (p *Profile) ScoredDimensions() []Dimension {
	out := make([]Dimension, 0, len(p.Dimensions))
	for _, d := range p.Dimensions {
		if p.Weights[d] > 0 || p.Specs[d].SimilarityRel != "" {
			out = append(out, d)
		}
	}
	return out
}

// ColumnName renders the export column header for one dimension.
func ColumnName(d Dimension) string {
	name := strings.ToLower(string(d))
	name = strings.ReplaceAll(name, " ", "_")
	return name + "_similarity"
}

func parseWeights(s string, p *Profile) (map[Dimension]float64, error) {
	byLower := make(map[string]Dimension, len(p.Dimensions))
	for _, d := range p.Dimensions {
		byLower[strings.ToLower(string(d))] = d
	}

	out := make(map[Dimension]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid weight entry %q, want name=value", part)
		}
		dim, ok := byLower[strings.ToLower(strings.TrimSpace(kv[0]))]
		if !ok {
			return nil, fmt.Errorf("weight for unknown dimension %q", kv[0])
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight value %q: %w", kv[1], err)
		}
		out[dim] = w
	}
	return out, nil
}
