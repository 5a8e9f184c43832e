package revision

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

var trackedPaths = []string{
	"technical_info.material",
	"technical_info.shade",
	"dates.delivery",
	"dates.try_in_1",
	"pricing.manual_adjustment",
}

func sampleRecord() Record {
	return Record{
		"technical_info": map[string]interface{}{
			"material": "zirconio",
			"shade":    "A2",
		},
		"dates": map[string]interface{}{
			"delivery": "2026-03-20",
		},
		"pricing": map[string]interface{}{
			"manual_adjustment": 0,
		},
		"groups": []interface{}{
			map[string]interface{}{"teeth": []interface{}{"11", "12"}},
		},
	}
}

func TestDiff_DeepCopyHasNoChanges(t *testing.T) {
	orig := sampleRecord()
	if got := Diff(orig, Snapshot(orig), trackedPaths); len(got) != 0 {
		t.Errorf("expected no changes, got %v", got)
	}
	if got := Diff(orig, Snapshot(orig), nil); len(got) != 0 {
		t.Errorf("expected no changes across all leaves, got %v", got)
	}
}

func TestDiff_SingleFieldChanged(t *testing.T) {
	orig := sampleRecord()
	cur := Snapshot(orig)
	cur["technical_info"].(map[string]interface{})["material"] = "disilicato"

	got := Diff(orig, cur, trackedPaths)
	if !reflect.DeepEqual(got, []string{"technical_info.material"}) {
		t.Errorf("expected only technical_info.material, got %v", got)
	}
}

func TestDiff_Symmetric(t *testing.T) {
	a := sampleRecord()
	b := Snapshot(a)
	b["dates"].(map[string]interface{})["try_in_1"] = "2026-03-10"
	b["technical_info"].(map[string]interface{})["shade"] = "B1"

	ab := Diff(a, b, trackedPaths)
	ba := Diff(b, a, trackedPaths)
	if !reflect.DeepEqual(ab, ba) {
		t.Errorf("diff not symmetric: %v vs %v", ab, ba)
	}
	if !reflect.DeepEqual(ab, []string{"dates.try_in_1", "technical_info.shade"}) {
		t.Errorf("unexpected sorted result %v", ab)
	}
}

func TestDiff_MissingKeysTolerated(t *testing.T) {
	orig := Record{"technical_info": map[string]interface{}{"material": "pmma"}}
	cur := Record{
		"technical_info": map[string]interface{}{"material": "pmma", "shade": ""},
		"dates":          map[string]interface{}{"try_in_1": "2026-04-01"},
	}
	got := Diff(orig, cur, trackedPaths)
	if !reflect.DeepEqual(got, []string{"dates.try_in_1"}) {
		t.Errorf("expected only dates.try_in_1, got %v", got)
	}
}

func TestDiff_NilRecords(t *testing.T) {
	if got := Diff(nil, nil, trackedPaths); len(got) != 0 {
		t.Errorf("expected no changes, got %v", got)
	}
	got := Diff(nil, Record{"dates": map[string]interface{}{"delivery": "x"}}, nil)
	if !reflect.DeepEqual(got, []string{"dates.delivery"}) {
		t.Errorf("unexpected %v", got)
	}
}

func TestDiff_DuplicatePathsReportedOnce(t *testing.T) {
	a := Record{"x": "1"}
	b := Record{"x": "2"}
	if got := Diff(a, b, []string{"x", "x"}); len(got) != 1 {
		t.Errorf("expected one path, got %v", got)
	}
}

func TestEqual_Coercion(t *testing.T) {
	s := "A2"
	tests := []struct {
		name string
		a, b interface{}
		want bool
	}{
		{"nil and empty string", nil, "", true},
		{"nil and empty list", nil, []interface{}{}, true},
		{"numeric string and int", "120", 120, true},
		{"numeric string and float", "120.50", 120.5, true},
		{"padded numeric string", " 8 ", 8, true},
		{"json number and decimal", json.Number("99.90"), decimal.RequireFromString("99.9"), true},
		{"different numbers", "120", 121, false},
		{"bool and string", true, "true", true},
		{"bool mismatch", false, "true", false},
		{"pointer and value", &s, "A2", true},
		{"nil pointer and empty", (*string)(nil), "", true},
		{"text vs number", "abc", 1, false},
		{"zero vs empty", 0, "", false},
		{"lists element-wise", []interface{}{"11", 12}, []string{"11", "12"}, true},
		{"lists differ in length", []interface{}{"11"}, []interface{}{"11", "12"}, false},
		{"maps recursive", map[string]interface{}{"a": "1"}, map[string]interface{}{"a": 1, "b": ""}, true},
		{"map vs scalar", map[string]interface{}{"a": 1}, "a", false},
		{"NaN is not a number", "NaN", "NaN", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := Equal(tt.b, tt.a); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v (reversed)", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestCompare_CarriesValues(t *testing.T) {
	a := Record{"pricing": map[string]interface{}{"manual_adjustment": "0"}}
	b := Record{"pricing": map[string]interface{}{"manual_adjustment": "-15"}}
	changes := Compare(a, b, []string{"pricing.manual_adjustment"})
	if len(changes) != 1 || changes[0].Original != "0" || changes[0].Current != "-15" {
		t.Errorf("unexpected changes %+v", changes)
	}
}
