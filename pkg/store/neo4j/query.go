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

// relTypeUnion renders the traversable relationship types for a
// variable-length pattern ("CONTAINED_IN|MEMBER_OF|CONNECTS_TO").
func relTypeUnion() string {
	parts := make([]string, len(schema.EdgeTypes))
	for i, t := range schema.EdgeTypes {
		parts[i] = string(t)
	}
	return strings.Join(parts, "|")
}

// GetNodes returns the nodes for the given globalIds; missing ids are
// skipped, order follows the store's globalId ordering.
func (s *GraphDBStorage) GetNodes(ctx context.Context, globalIDs []string) ([]common.Node, error) {
	if len(globalIDs) == 0 {
		return nil, nil
	}
	result, err := s.run(ctx, `
		MATCH (n:IfcEntity)
		WHERE n.globalId IN $ids
		RETURN n
		ORDER BY n.globalId
	`, map[string]any{"ids": globalIDs})
	if err != nil {
		return nil, err
	}
	return collectNodes(result)
}

// ListNodes returns every entity node ordered by globalId. Used by the
// card builder to walk the full graph.
func (s *GraphDBStorage) ListNodes(ctx context.Context) ([]common.Node, error) {
	result, err := s.run(ctx, `
		MATCH (n:IfcEntity)
		RETURN n
		ORDER BY n.globalId
	`, nil)
	if err != nil {
		return nil, err
	}
	return collectNodes(result)
}

// Neighbors returns the one-hop neighborhood of a node across all stored
// edge types. The undirected pattern covers CONNECTS_TO traversal in both
// directions; edge records keep their stored direction.
func (s *GraphDBStorage) Neighbors(ctx context.Context, globalID string) ([]common.Neighbor, error) {
	stmt := fmt.Sprintf(`
		MATCH (n:IfcEntity {globalId: $id})-[r:%s]-(m:IfcEntity)
		RETURN m, type(r) AS relType,
		       startNode(r).globalId AS src, endNode(r).globalId AS dst
		ORDER BY m.globalId, relType
	`, relTypeUnion())

	result, err := s.run(ctx, stmt, map[string]any{"id": globalID})
	if err != nil {
		return nil, err
	}

	neighbors := make([]common.Neighbor, 0, len(result.Records))
	for _, record := range result.Records {
		rawNode, _, err := neo4j.GetRecordValue[dbtype.Node](record, "m")
		if err != nil {
			return nil, err
		}
		relType, _, _ := neo4j.GetRecordValue[string](record, "relType")
		src, _, _ := neo4j.GetRecordValue[string](record, "src")
		dst, _, _ := neo4j.GetRecordValue[string](record, "dst")
		neighbors = append(neighbors, common.Neighbor{
			Node: decodeNode(rawNode),
			Edge: common.Edge{Type: common.EdgeType(relType), SourceID: src, TargetID: dst},
		})
	}
	return neighbors, nil
}

// Expand traverses outward from the seed up to depth hops. Variable-length
// bounds cannot be bound as parameters, so depth is inlined after
// clamping; everything else is parameterized.
func (s *GraphDBStorage) Expand(ctx context.Context, seed string, depth int) (*store.Expansion, error) {
	if depth < 1 {
		depth = 1
	}

	nodeStmt := fmt.Sprintf(`
		MATCH path = (seed:IfcEntity {globalId: $id})-[:%s*1..%d]-(m:IfcEntity)
		WHERE m.globalId <> $id
		RETURN m, min(length(path)) AS hops
		ORDER BY m.globalId
	`, relTypeUnion(), depth)

	result, err := s.run(ctx, nodeStmt, map[string]any{"id": seed})
	if err != nil {
		return nil, err
	}

	expansion := &store.Expansion{
		Nodes: make(map[string]common.Node),
		Hops:  make(map[string]int),
	}
	ids := []string{seed}
	for _, record := range result.Records {
		rawNode, _, err := neo4j.GetRecordValue[dbtype.Node](record, "m")
		if err != nil {
			return nil, err
		}
		hops, _, err := neo4j.GetRecordValue[int64](record, "hops")
		if err != nil {
			return nil, err
		}
		node := decodeNode(rawNode)
		expansion.Nodes[node.GlobalID] = node
		expansion.Hops[node.GlobalID] = int(hops)
		ids = append(ids, node.GlobalID)
	}

	edgeStmt := fmt.Sprintf(`
		MATCH (a:IfcEntity)-[r:%s]->(b:IfcEntity)
		WHERE a.globalId IN $ids AND b.globalId IN $ids
		RETURN a.globalId AS src, b.globalId AS dst, type(r) AS relType
		ORDER BY src, dst, relType
	`, relTypeUnion())

	edgeResult, err := s.run(ctx, edgeStmt, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	for _, record := range edgeResult.Records {
		src, _, _ := neo4j.GetRecordValue[string](record, "src")
		dst, _, _ := neo4j.GetRecordValue[string](record, "dst")
		relType, _, _ := neo4j.GetRecordValue[string](record, "relType")
		expansion.Edges = append(expansion.Edges, common.Edge{
			Type:     common.EdgeType(relType),
			SourceID: src,
			TargetID: dst,
		})
	}

	return expansion, nil
}

// SearchLexical matches nodes whose name or IFC type contains any token,
// case-insensitively. This catches exact identifiers (room numbers,
// equipment tags) that embeddings blur.
func (s *GraphDBStorage) SearchLexical(ctx context.Context, tokens []string, limit int) ([]common.Node, error) {
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}
	lowered := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			lowered = append(lowered, tok)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	result, err := s.run(ctx, `
		MATCH (n:IfcEntity)
		WHERE any(tok IN $tokens WHERE
			toLower(coalesce(n.name, '')) CONTAINS tok OR
			toLower(coalesce(n.ifcType, '')) CONTAINS tok)
		RETURN n
		ORDER BY n.globalId
		LIMIT $limit
	`, map[string]any{"tokens": lowered, "limit": limit})
	if err != nil {
		return nil, err
	}
	return collectNodes(result)
}

func collectNodes(result *neo4j.EagerResult) ([]common.Node, error) {
	nodes := make([]common.Node, 0, len(result.Records))
	for _, record := range result.Records {
		rawNode, _, err := neo4j.GetRecordValue[dbtype.Node](record, "n")
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, decodeNode(rawNode))
	}
	return nodes, nil
}
