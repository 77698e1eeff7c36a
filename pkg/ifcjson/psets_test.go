package ifcjson

import (
	"testing"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
)

func TestFlattenPropertySetsDirectMap(t *testing.T) {
	e := Entity{
		"psets": map[string]any{
			"Pset_SpaceCommon.Reference":   "R-204",
			"Pset_SpaceCommon.GrossArea":   42.5,
			"Pset_SpaceCommon.IsExternal":  false,
			"Pset_SpaceCommon.Obstruction": map[string]any{"NominalValue": "none"},
		},
	}
	props, skipped := FlattenPropertySets(e)
	if len(skipped) != 0 {
		t.Fatalf("expected no skipped keys, got %v", skipped)
	}
	if got := props["Pset_SpaceCommon.Reference"]; got != common.StringValue("R-204") {
		t.Fatalf("expected string value R-204, got %v", got)
	}
	if got := props["Pset_SpaceCommon.GrossArea"]; got != common.NumberValue(42.5) {
		t.Fatalf("expected number value 42.5, got %v", got)
	}
	if got := props["Pset_SpaceCommon.IsExternal"]; got != common.BoolValue(false) {
		t.Fatalf("expected bool value false, got %v", got)
	}
	if got := props["Pset_SpaceCommon.Obstruction"]; got != common.StringValue("none") {
		t.Fatalf("expected unwrapped NominalValue, got %v", got)
	}
}

func TestFlattenPropertySetsListShape(t *testing.T) {
	e := Entity{
		"HasPropertySets": []any{
			map[string]any{
				"Name": "Pset_AirHandlerTypeCommon",
				"HasProperties": []any{
					map[string]any{"Name": "AirFlowRate", "NominalValue": 1200.0},
					map[string]any{
						"Name":         "Manufacturer",
						"NominalValue": map[string]any{"type": "IfcLabel", "value": "Acme"},
					},
					map[string]any{"Name": "NoValue"},
				},
			},
		},
	}
	props, skipped := FlattenPropertySets(e)
	if len(skipped) != 0 {
		t.Fatalf("expected no skipped keys, got %v", skipped)
	}
	if got := props["Pset_AirHandlerTypeCommon.AirFlowRate"]; got != common.NumberValue(1200.0) {
		t.Fatalf("expected air flow rate 1200, got %v", got)
	}
	if got := props["Pset_AirHandlerTypeCommon.Manufacturer"]; got != common.StringValue("Acme") {
		t.Fatalf("expected typed wrapper to unwrap to Acme, got %v", got)
	}
	if _, ok := props["Pset_AirHandlerTypeCommon.NoValue"]; ok {
		t.Fatalf("expected property without a value to be dropped")
	}
}

func TestFlattenPropertySetsSkipsNonScalars(t *testing.T) {
	e := Entity{
		"psets": map[string]any{
			"Pset_X.List":   []any{1.0, 2.0},
			"Pset_X.Nested": map[string]any{"a": 1.0},
			"Pset_X.Ok":     "fine",
		},
	}
	props, skipped := FlattenPropertySets(e)
	if len(props) != 1 {
		t.Fatalf("expected only the scalar property, got %v", props)
	}
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped keys, got %v", skipped)
	}
	if skipped[0] != "Pset_X.List" || skipped[1] != "Pset_X.Nested" {
		t.Fatalf("expected skipped keys sorted, got %v", skipped)
	}
}
