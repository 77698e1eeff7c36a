package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/schema"
	"github.com/OFFIS-RIT/bimrag/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// UpsertNodes merges each node by globalId in its own transaction.
// The MERGE, the type-compatibility check, and the property update run in
// one statement, so concurrent merges of the same node cannot interleave.
// Property updates are last-writer-wins per key via `SET n += $props`.
//
// A record whose globalId already exists under a different IFC type is a
// constraint violation: the statement matches zero rows and the record is
// counted as conflicted, not written.
func (s *GraphDBStorage) UpsertNodes(ctx context.Context, nodes []common.Node) (store.UpsertSummary, error) {
	var summary store.UpsertSummary

	for _, node := range nodes {
		stmt := fmt.Sprintf(`
			MERGE (n:%s {globalId: $id})
			ON CREATE SET n._new = true
			WITH n, coalesce(n._new, false) AS wasNew
			REMOVE n._new
			WITH n, wasNew
			WHERE wasNew OR n.ifcType IS NULL OR n.ifcType = $ifcType
			SET n.ifcType = $ifcType,
			    n.name = $name,
			    n.sourceTag = $source,
			    n += $props,
			    n%s
			RETURN wasNew
		`, "`"+schema.EntityLabel+"`", labelFragment(node.Labels))

		result, err := s.run(ctx, stmt, map[string]any{
			"id":      node.GlobalID,
			"ifcType": node.IfcType,
			"name":    node.Name,
			"source":  node.SourceTag,
			"props":   encodeProperties(node.Properties),
		})
		if err != nil {
			return summary, err
		}
		if len(result.Records) == 0 {
			summary.Conflicted++
			continue
		}
		wasNew, _, err := neo4j.GetRecordValue[bool](result.Records[0], "wasNew")
		if err != nil {
			return summary, err
		}
		if wasNew {
			summary.Created++
		} else {
			summary.Updated++
		}
	}

	return summary, nil
}

// labelFragment renders the additional labels of a node as a Cypher label
// expression (":`IfcSpace`:`IfcEntity`"). Labels come from the fixed
// schema taxonomy or from IFC type names, neither of which contains
// backticks.
func labelFragment(labels []string) string {
	var b strings.Builder
	for _, label := range labels {
		b.WriteString(":`")
		b.WriteString(label)
		b.WriteString("`")
	}
	return b.String()
}

// encodeProperties flattens the tagged property values into the scalar
// map bound as $props, namespaced with propPrefix. Unsupported values were
// already skipped by the mapper and never reach the store.
func encodeProperties(props map[string]common.PropertyValue) map[string]any {
	out := make(map[string]any, len(props))
	for key, value := range props {
		if scalar := value.Scalar(); scalar != nil {
			out[propPrefix+key] = scalar
		}
	}
	return out
}

// decodeNode rebuilds a common.Node from a stored dbtype.Node, splitting
// the namespaced property-set keys back out of the raw property map.
func decodeNode(n dbtype.Node) common.Node {
	node := common.Node{
		Labels:     n.Labels,
		Properties: make(map[string]common.PropertyValue),
	}
	for key, raw := range n.Props {
		if strings.HasPrefix(key, propPrefix) {
			if value, ok := decodeScalar(raw); ok {
				node.Properties[strings.TrimPrefix(key, propPrefix)] = value
			}
			continue
		}
		switch key {
		case "globalId":
			node.GlobalID, _ = raw.(string)
		case "name":
			node.Name, _ = raw.(string)
		case "ifcType":
			node.IfcType, _ = raw.(string)
		case "sourceTag":
			node.SourceTag, _ = raw.(string)
		}
	}
	return node
}

func decodeScalar(raw any) (common.PropertyValue, bool) {
	switch v := raw.(type) {
	case string:
		return common.StringValue(v), true
	case float64:
		return common.NumberValue(v), true
	case int64:
		return common.NumberValue(float64(v)), true
	case bool:
		return common.BoolValue(v), true
	default:
		return common.PropertyValue{}, false
	}
}
