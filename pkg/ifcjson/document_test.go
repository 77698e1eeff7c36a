package ifcjson

import (
	"errors"
	"testing"
)

func TestParseObjectsWrapper(t *testing.T) {
	doc, err := Parse([]byte(`{
		"objects": {
			"2O2Fr$t4X7Zf8NOew3FLOH": {"type": "IfcSpace", "Name": "Room 101"}
		}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	e, ok := doc.Instances["2O2Fr$t4X7Zf8NOew3FLOH"]
	if !ok {
		t.Fatalf("expected instance under its GlobalId key, got %v", doc.Instances)
	}
	if e.Type() != "IfcSpace" {
		t.Fatalf("expected type IfcSpace, got %q", e.Type())
	}
	if e.Name() != "Room 101" {
		t.Fatalf("expected name Room 101, got %q", e.Name())
	}
}

func TestParseFlatDocument(t *testing.T) {
	doc, err := Parse([]byte(`{
		"a": {"type": "IfcDoor"},
		"b": {"type": "IfcWall"}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(doc.Instances))
	}
}

func TestParseRepairsTrailingComma(t *testing.T) {
	doc, err := Parse([]byte(`{
		"instances": {
			"x": {"type": "IfcSpace", "Name": "Lobby",}
		}
	}`))
	if err != nil {
		t.Fatalf("expected repair pass to recover the document: %v", err)
	}
	if doc.Instances["x"].Name() != "Lobby" {
		t.Fatalf("expected name Lobby, got %q", doc.Instances["x"].Name())
	}
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"not an object":   `[1, 2`,
		"scalar members":  `{"schema": "IFC4"}`,
		"empty object":    `{}`,
	}
	for name, input := range cases {
		if _, err := Parse([]byte(input)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestEntityGetFallsBackToAttributes(t *testing.T) {
	e := Entity{
		"attributes": map[string]any{"Name": "AHU-1"},
	}
	if got := e.Name(); got != "AHU-1" {
		t.Fatalf("expected name from attributes object, got %q", got)
	}
}

func TestEntityNamePrefersNameOverLongName(t *testing.T) {
	e := Entity{"Name": "204", "LongName": "Conference Room"}
	if got := e.Name(); got != "204" {
		t.Fatalf("expected Name to win over LongName, got %q", got)
	}
	e = Entity{"Name": "  ", "LongName": "Conference Room"}
	if got := e.Name(); got != "Conference Room" {
		t.Fatalf("expected blank Name to fall through, got %q", got)
	}
}

func TestEntityGlobalIDFallsBackToKey(t *testing.T) {
	e := Entity{"type": "IfcSpace"}
	if got := e.GlobalID("map-key"); got != "map-key" {
		t.Fatalf("expected mapping key fallback, got %q", got)
	}
	e = Entity{"GlobalId": " 2O2Fr$t4X7Zf8NOew3FLOH "}
	if got := e.GlobalID("map-key"); got != "2O2Fr$t4X7Zf8NOew3FLOH" {
		t.Fatalf("expected trimmed GlobalId attribute, got %q", got)
	}
}

func TestRefIDShapes(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"abc", "abc"},
		{map[string]any{"ref": "abc"}, "abc"},
		{map[string]any{"GlobalId": "abc"}, "abc"},
		{[]any{map[string]any{"id": "abc"}}, "abc"},
		{map[string]any{"unrelated": 1.0}, ""},
		{nil, ""},
		{42.0, ""},
	}
	for _, c := range cases {
		if got := RefID(c.in); got != c.want {
			t.Fatalf("RefID(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRefList(t *testing.T) {
	got := RefList([]any{"a", map[string]any{"ref": "b"}, 7.0, "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if got := RefList("solo"); len(got) != 1 || got[0] != "solo" {
		t.Fatalf("expected single reference to wrap into a list, got %v", got)
	}
	if got := RefList(nil); got != nil {
		t.Fatalf("expected nil for nil input, got %v", got)
	}
}
