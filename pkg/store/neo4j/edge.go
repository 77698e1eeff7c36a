package neo4j

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// UpsertEdges merges each edge by (type, source, target). The MATCH on
// both endpoints filters out edges whose endpoints are absent; those are
// returned as dropped so the caller can count them. Re-merging an existing
// edge is a no-op.
func (s *GraphDBStorage) UpsertEdges(ctx context.Context, edges []common.Edge) (store.EdgeSummary, error) {
	var summary store.EdgeSummary

	for _, edge := range edges {
		stmt := fmt.Sprintf(`
			MATCH (a:IfcEntity {globalId: $src}), (b:IfcEntity {globalId: $dst})
			MERGE (a)-[r:%s]->(b)
			ON CREATE SET r._new = true
			WITH r, coalesce(r._new, false) AS wasNew
			REMOVE r._new
			RETURN wasNew
		`, "`"+string(edge.Type)+"`")

		result, err := s.run(ctx, stmt, map[string]any{
			"src": edge.SourceID,
			"dst": edge.TargetID,
		})
		if err != nil {
			return summary, err
		}
		if len(result.Records) == 0 {
			summary.Dropped = append(summary.Dropped, edge)
			continue
		}
		wasNew, _, err := neo4j.GetRecordValue[bool](result.Records[0], "wasNew")
		if err != nil {
			return summary, err
		}
		if wasNew {
			summary.Created++
		}
	}

	return summary, nil
}
