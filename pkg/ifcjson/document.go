// Package ifcjson parses ifcJSON building-model documents into a form the
// entity mapper and relationship extractor can walk. Exporters disagree on
// almost every structural detail (wrapper keys, reference shapes, casing),
// so all lookups are tolerant.
package ifcjson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrMalformed wraps parse failures. The document is skipped as a whole;
// other documents in the same run are unaffected.
var ErrMalformed = fmt.Errorf("malformed ifcJSON")

// Entity is one raw ifcJSON entity record. Values are the decoded JSON
// shapes (string, float64, bool, map, slice).
type Entity map[string]any

// Document is a parsed ifcJSON file: a mapping from local entity id
// (usually the GlobalId itself) to the entity record.
type Document struct {
	Instances map[string]Entity
}

// Parse decodes an ifcJSON document. On a plain JSON syntax error it
// attempts one repair pass before giving up, since IFC exporters routinely
// emit trailing commas and unquoted keys.
func Parse(data []byte) (*Document, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := json.Unmarshal([]byte(repaired), &root); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	instances, err := instancesOf(root)
	if err != nil {
		return nil, err
	}
	return &Document{Instances: instances}, nil
}

// instancesOf locates the entity mapping. Known variants:
//
//	{"objects":   {"GUID": {...}}}
//	{"instances": {"GUID": {...}}}
//	{"GUID": {...}}  (flat)
func instancesOf(root map[string]any) (map[string]Entity, error) {
	for _, key := range []string{"objects", "instances"} {
		if wrapped, ok := root[key].(map[string]any); ok {
			return toEntities(wrapped), nil
		}
	}
	for _, v := range root {
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("%w: expected an 'objects' or 'instances' mapping", ErrMalformed)
		}
	}
	if len(root) == 0 {
		return nil, fmt.Errorf("%w: document has no entities", ErrMalformed)
	}
	return toEntities(root), nil
}

func toEntities(raw map[string]any) map[string]Entity {
	out := make(map[string]Entity, len(raw))
	for id, v := range raw {
		if obj, ok := v.(map[string]any); ok {
			out[id] = Entity(obj)
		}
	}
	return out
}

// Get looks up the first of the given keys at the top level of the entity,
// then inside its "attributes" object. Exporters split fields between the
// two inconsistently.
func (e Entity) Get(keys ...string) any {
	for _, k := range keys {
		if v, ok := e[k]; ok && v != nil {
			return v
		}
	}
	if attrs, ok := e["attributes"].(map[string]any); ok {
		for _, k := range keys {
			if v, ok := attrs[k]; ok && v != nil {
				return v
			}
		}
	}
	return nil
}

// Type returns the entity's IFC type, or "" when none is declared.
func (e Entity) Type() string {
	for _, k := range []string{"type", "class", "ifcType"} {
		if s, ok := e[k].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := e["schema"].(string); ok {
		return s
	}
	return ""
}

// Name returns the entity's display name, preferring Name over LongName.
func (e Entity) Name() string {
	for _, k := range []string{"Name", "LongName", "name", "longName"} {
		if s, ok := e.Get(k).(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// GlobalID returns the entity's GlobalId attribute, falling back to the
// mapping key the document stored it under. Returns "" when neither is
// usable; such entities cannot be merged safely and are skipped.
func (e Entity) GlobalID(key string) string {
	for _, k := range []string{"GlobalId", "globalId", "global_id", "guid"} {
		if s, ok := e.Get(k).(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return strings.TrimSpace(key)
}

// RefID resolves a reference value to an entity id. References appear as a
// bare string, as {"ref": ...} / {"id": ...} / {"GlobalId": ...} objects,
// or packed into one-element arrays.
func RefID(v any) string {
	switch ref := v.(type) {
	case string:
		return strings.TrimSpace(ref)
	case map[string]any:
		for _, k := range []string{"ref", "id", "GlobalId", "globalId"} {
			if s, ok := ref[k].(string); ok && s != "" {
				return strings.TrimSpace(s)
			}
		}
	case []any:
		if len(ref) > 0 {
			return RefID(ref[0])
		}
	}
	return ""
}

// RefList resolves a reference value that may be a single reference or a
// list of them, dropping unresolvable entries.
func RefList(v any) []string {
	if v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		if id := RefID(v); id != "" {
			return []string{id}
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if id := RefID(item); id != "" {
			out = append(out, id)
		}
	}
	return out
}
