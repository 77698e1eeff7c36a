package ifcjson

import (
	"sort"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
)

// FlattenPropertySets collects an entity's property sets into a flat
// map keyed "PsetName.PropertyName". Values that are not plain scalars
// (nested objects, multi-valued lists) are returned in skipped rather than
// guessed into a scalar.
func FlattenPropertySets(e Entity) (map[string]common.PropertyValue, []string) {
	props := make(map[string]common.PropertyValue)
	var skipped []string

	// Direct map shapes: {"psets": {"Pset_X.P": value, ...}}
	for _, key := range []string{"psets", "Properties", "properties", "property_sets"} {
		direct, ok := e[key].(map[string]any)
		if !ok {
			continue
		}
		for name, raw := range direct {
			if nominal, ok := raw.(map[string]any); ok {
				if v, exists := nominal["NominalValue"]; exists {
					raw = v
				}
			}
			setScalar(props, &skipped, name, raw)
		}
	}

	// List-of-sets shape: [{"Name": "Pset_X", "HasProperties": [...]}]
	var sets []any
	for _, key := range []string{"HasPropertySets", "PropertySets", "isDefinedBy"} {
		if list, ok := e.Get(key).([]any); ok {
			sets = append(sets, list...)
		}
	}
	for _, raw := range sets {
		pset, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		psetName := stringAt(pset, "Name", "name")
		properties, ok := firstList(pset, "HasProperties", "Properties", "properties")
		if !ok {
			continue
		}
		for _, rawProp := range properties {
			prop, ok := rawProp.(map[string]any)
			if !ok {
				continue
			}
			propName := stringAt(prop, "Name", "name")
			if propName == "" {
				continue
			}
			key := propName
			if psetName != "" {
				key = psetName + "." + propName
			}
			value, exists := firstValue(prop, "NominalValue", "Value", "nominalValue", "value")
			if !exists {
				continue
			}
			if nominal, ok := value.(map[string]any); ok {
				// Typed value wrapper, e.g. {"type":"IfcLabel","value":"Acme"}
				if inner, exists := firstValue(nominal, "value", "Value", "wrappedValue"); exists {
					value = inner
				}
			}
			setScalar(props, &skipped, key, value)
		}
	}

	sort.Strings(skipped)
	return props, skipped
}

// setScalar stores a scalar value under key, or records the key as skipped
// when the value is multi-valued or otherwise unsupported. Nil values are
// dropped silently; an absent value carries no information.
func setScalar(props map[string]common.PropertyValue, skipped *[]string, key string, raw any) {
	if raw == nil {
		return
	}
	switch v := raw.(type) {
	case string:
		props[key] = common.StringValue(v)
	case float64:
		props[key] = common.NumberValue(v)
	case bool:
		props[key] = common.BoolValue(v)
	default:
		*skipped = append(*skipped, key)
	}
}

func stringAt(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstList(m map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if list, ok := m[k].([]any); ok {
			return list, true
		}
	}
	return nil, false
}

func firstValue(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
