package common

import (
	"sort"
	"strconv"
)

// PropertyKind discriminates the scalar kinds a flattened property value
// can take. Source property sets are duck-typed; anything that is not a
// plain scalar is tagged Unsupported and reported by the mapper instead of
// being coerced.
type PropertyKind string

const (
	KindString      PropertyKind = "string"
	KindNumber      PropertyKind = "number"
	KindBool        PropertyKind = "bool"
	KindUnsupported PropertyKind = "unsupported"
)

// PropertyValue is a tagged union of the scalar kinds found in ifcJSON
// property sets. Exactly one of the value fields is meaningful, selected
// by Kind.
type PropertyValue struct {
	Kind PropertyKind `json:"kind"`
	Str  string       `json:"str,omitempty"`
	Num  float64      `json:"num,omitempty"`
	Bool bool         `json:"bool,omitempty"`
}

func StringValue(s string) PropertyValue {
	return PropertyValue{Kind: KindString, Str: s}
}

func NumberValue(n float64) PropertyValue {
	return PropertyValue{Kind: KindNumber, Num: n}
}

func BoolValue(b bool) PropertyValue {
	return PropertyValue{Kind: KindBool, Bool: b}
}

// Render returns the value as the string used in cards and evidence
// output. Numbers render without a trailing ".0" when integral so that
// card text stays byte-stable across ingestions.
func (v PropertyValue) Render() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Scalar returns the underlying Go value, or nil for unsupported values.
// Used when binding property maps as store parameters.
func (v PropertyValue) Scalar() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

// Node represents one building-model entity in the property graph.
// Identity is the IFC GlobalId; re-ingesting a node with the same GlobalID
// merges properties instead of creating a duplicate.
//
// Labels always contain the generic entity marker plus the node's IFC type
// (and possibly a coarse class label, see pkg/schema). Properties hold the
// flattened "Pset.Property" keys.
type Node struct {
	GlobalID   string                   `json:"global_id"`
	IfcType    string                   `json:"ifc_type"`
	Name       string                   `json:"name"`
	Labels     []string                 `json:"labels"`
	SourceTag  string                   `json:"source_tag"`
	Properties map[string]PropertyValue `json:"properties"`
}

// PropertyKeys returns the node's property keys in sorted order. Card
// building and evidence formatting iterate properties through this to stay
// deterministic.
func (n Node) PropertyKeys() []string {
	keys := make([]string, 0, len(n.Properties))
	for k := range n.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EdgeType names one of the stored relationship types.
type EdgeType string

const (
	// EdgeContainedIn points from an element to its spatial container
	// (space, storey, building, ...). One edge per declared containment
	// level; transitive closure is a query-time traversal.
	EdgeContainedIn EdgeType = "CONTAINED_IN"
	// EdgeMemberOf points from an element to a distribution system.
	EdgeMemberOf EdgeType = "MEMBER_OF"
	// EdgeConnectsTo links two connected elements. Stored directed (see
	// Connection) but traversed as undirected.
	EdgeConnectsTo EdgeType = "CONNECTS_TO"
)

// Edge is a typed relationship between two nodes, identified by
// (Type, SourceID, TargetID). Re-ingesting an existing edge is a no-op.
type Edge struct {
	Type     EdgeType `json:"type"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
}

// Key returns the identity of the edge, used for merge and dedupe maps.
func (e Edge) Key() string {
	return string(e.Type) + "|" + e.SourceID + "|" + e.TargetID
}

// Connection builds a CONNECTS_TO edge in canonical direction: the
// lexically smaller GlobalId becomes the source. Duplicate declarations of
// the same unordered pair therefore collapse onto one stored edge.
func Connection(a, b string) Edge {
	if b < a {
		a, b = b, a
	}
	return Edge{Type: EdgeConnectsTo, SourceID: a, TargetID: b}
}

// Neighbor is a node adjacent to some origin node together with the edge
// that links them. Returned by store traversals for card building and
// neighborhood expansion.
type Neighbor struct {
	Node Node `json:"node"`
	Edge Edge `json:"edge"`
}

// Card is the derived text summary of a node used as the unit of
// embedding. Text is a deterministic function of the node and its one-hop
// neighborhood: identical state yields byte-identical text.
type Card struct {
	NodeID string    `json:"node_id"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector,omitempty"`
}

// Provenance records how a node entered an evidence set.
type Provenance string

const (
	ProvenanceSemantic  Provenance = "semantic"
	ProvenanceLexical   Provenance = "lexical"
	ProvenanceExpansion Provenance = "expansion"
)

// EvidenceNode is one retrieved node with its relevance score and the
// retrieval paths that produced it. Hops is 0 for direct hits and the
// traversal distance from the originating hit otherwise.
type EvidenceNode struct {
	Node       Node         `json:"node"`
	Score      float64      `json:"score"`
	Hops       int          `json:"hops"`
	Provenance []Provenance `json:"provenance"`
}

// EvidenceSet is the bounded, deduplicated result of one retrieval: nodes
// ordered by descending score, plus the edges connecting retained nodes.
// Stale is set when the index used for the semantic pass was built against
// an older graph fingerprint than the store currently reports.
//
// An EvidenceSet is scoped to a single query and never persisted.
type EvidenceSet struct {
	Question string         `json:"question"`
	Nodes    []EvidenceNode `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Stale    bool           `json:"stale"`
}

// Empty reports whether retrieval produced no evidence. Callers answer
// with an explicit "no evidence found" in that case.
func (s EvidenceSet) Empty() bool {
	return len(s.Nodes) == 0
}
