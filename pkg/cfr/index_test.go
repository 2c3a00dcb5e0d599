package cfr

import (
	"reflect"
	"strings"
	"testing"
)

const sampleTable = `CFR,class_1,class_2,notes
50.73(a)(2)(i),Operations,Shutdown,ignored
50.73(a)(2)(iv),Systems,Actuation,ignored
50.73(a)(2)(v),Safety,Function,ignored
`

func TestNewIndex(t *testing.T) {
	idx, err := NewIndex(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if idx.Len() != 3 {
		t.Errorf("got %d codes, want 3", idx.Len())
	}

	code, ok := idx.Lookup("50.73(a)(2)(iv)")
	if !ok {
		t.Fatalf("expected code to be found")
	}
	want := Code{CFR: "50.73(a)(2)(iv)", Upper: "Systems", Lower: "Actuation"}
	if code != want {
		t.Errorf("got %+v, want %+v", code, want)
	}

	if _, ok := idx.Lookup("99.99"); ok {
		t.Errorf("unknown code should not be found")
	}
}

func TestNewIndexColumnOrder(t *testing.T) {
	// column positions differ from the sample, header names decide
	table := `class_2,CFR,class_1
Shutdown,50.73(a)(2)(i),Operations
`
	idx, err := NewIndex(strings.NewReader(table))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	code, ok := idx.Lookup("50.73(a)(2)(i)")
	if !ok {
		t.Fatalf("expected code to be found")
	}
	if code.Upper != "Operations" || code.Lower != "Shutdown" {
		t.Errorf("got %+v", code)
	}
}

func TestNewIndexMissingColumns(t *testing.T) {
	if _, err := NewIndex(strings.NewReader("CFR,other\nx,y\n")); err == nil {
		t.Errorf("expected error for missing columns")
	}
}

func TestCodesOrder(t *testing.T) {
	idx, err := NewIndex(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make([]string, 0, idx.Len())
	for _, c := range idx.Codes() {
		got = append(got, c.CFR)
	}
	want := []string{"50.73(a)(2)(i)", "50.73(a)(2)(iv)", "50.73(a)(2)(v)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got order %v, want %v", got, want)
	}
}

func TestSplitClause(t *testing.T) {
	tests := []struct {
		name   string
		clause string
		want   []string
	}{
		{"single", "50.73(a)(2)(i)", []string{"50.73(a)(2)(i)"}},
		{"multiple", "50.73(a)(2)(i), 50.73(a)(2)(iv)", []string{"50.73(a)(2)(i)", "50.73(a)(2)(iv)"}},
		{"extra whitespace", "  50.73(a)(2)(i) ,  50.73(a)(2)(iv)  ", []string{"50.73(a)(2)(i)", "50.73(a)(2)(iv)"}},
		{"empty entries dropped", "50.73(a)(2)(i),,", []string{"50.73(a)(2)(i)"}},
		{"empty clause", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitClause(tt.clause); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitClause(%q) = %v, want %v", tt.clause, got, tt.want)
			}
		})
	}
}
