// Package memory implements store.GraphStorage in process memory. It backs
// tests and small local runs; semantics mirror the Neo4j implementation,
// including per-node atomic merges and type-conflict skipping.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/store"
)

// GraphMemStorage is an in-memory property graph guarded by one mutex;
// every merge of a node happens under the lock, so concurrent ingestion
// runs cannot interleave a read-modify-write on the same node.
type GraphMemStorage struct {
	mu          sync.Mutex
	nodes       map[string]common.Node
	edges       map[string]common.Edge
	generation  int
	fingerprint string
}

// NewGraphMemStorage creates an empty in-memory graph.
func NewGraphMemStorage() *GraphMemStorage {
	return &GraphMemStorage{
		nodes: make(map[string]common.Node),
		edges: make(map[string]common.Edge),
	}
}

// ApplySchema is a no-op: uniqueness on globalId is structural here, the
// node map key is the identity.
func (s *GraphMemStorage) ApplySchema(ctx context.Context) error {
	return nil
}

// UpsertNodes merges nodes by globalId with last-writer-wins per property
// key. An existing node with a different IFC type is left untouched and
// counted as conflicted.
func (s *GraphMemStorage) UpsertNodes(ctx context.Context, nodes []common.Node) (store.UpsertSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary store.UpsertSummary
	for _, node := range nodes {
		existing, ok := s.nodes[node.GlobalID]
		if !ok {
			copied := node
			copied.Properties = cloneProps(node.Properties)
			s.nodes[node.GlobalID] = copied
			summary.Created++
			continue
		}
		if existing.IfcType != "" && node.IfcType != "" && existing.IfcType != node.IfcType {
			summary.Conflicted++
			continue
		}
		if existing.Properties == nil {
			existing.Properties = make(map[string]common.PropertyValue)
		}
		for key, value := range node.Properties {
			existing.Properties[key] = value
		}
		if node.Name != "" {
			existing.Name = node.Name
		}
		if node.IfcType != "" {
			existing.IfcType = node.IfcType
			existing.Labels = node.Labels
		}
		existing.SourceTag = node.SourceTag
		s.nodes[node.GlobalID] = existing
		summary.Updated++
	}
	return summary, nil
}

// UpsertEdges merges edges by identity key; edges with a missing endpoint
// are reported as dropped.
func (s *GraphMemStorage) UpsertEdges(ctx context.Context, edges []common.Edge) (store.EdgeSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary store.EdgeSummary
	for _, edge := range edges {
		if _, ok := s.nodes[edge.SourceID]; !ok {
			summary.Dropped = append(summary.Dropped, edge)
			continue
		}
		if _, ok := s.nodes[edge.TargetID]; !ok {
			summary.Dropped = append(summary.Dropped, edge)
			continue
		}
		key := edge.Key()
		if _, ok := s.edges[key]; ok {
			continue
		}
		s.edges[key] = edge
		summary.Created++
	}
	return summary, nil
}

func (s *GraphMemStorage) GetNodes(ctx context.Context, globalIDs []string) ([]common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.Node, 0, len(globalIDs))
	for _, id := range globalIDs {
		if node, ok := s.nodes[id]; ok {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalID < out[j].GlobalID })
	return out, nil
}

func (s *GraphMemStorage) ListNodes(ctx context.Context) ([]common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalID < out[j].GlobalID })
	return out, nil
}

// Neighbors returns the one-hop neighborhood, treating every edge type as
// traversable in both directions.
func (s *GraphMemStorage) Neighbors(ctx context.Context, globalID string) ([]common.Neighbor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.Neighbor
	for _, edge := range s.edges {
		var otherID string
		switch globalID {
		case edge.SourceID:
			otherID = edge.TargetID
		case edge.TargetID:
			otherID = edge.SourceID
		default:
			continue
		}
		if other, ok := s.nodes[otherID]; ok {
			out = append(out, common.Neighbor{Node: other, Edge: edge})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Node.GlobalID != out[j].Node.GlobalID {
			return out[i].Node.GlobalID < out[j].Node.GlobalID
		}
		return out[i].Edge.Key() < out[j].Edge.Key()
	})
	return out, nil
}

// Expand runs a breadth-first traversal from the seed up to depth hops.
func (s *GraphMemStorage) Expand(ctx context.Context, seed string, depth int) (*store.Expansion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if depth < 1 {
		depth = 1
	}
	expansion := &store.Expansion{
		Nodes: make(map[string]common.Node),
		Hops:  make(map[string]int),
	}
	if _, ok := s.nodes[seed]; !ok {
		return expansion, nil
	}

	visited := map[string]int{seed: 0}
	frontier := []string{seed}
	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, edge := range s.edges {
				var otherID string
				switch id {
				case edge.SourceID:
					otherID = edge.TargetID
				case edge.TargetID:
					otherID = edge.SourceID
				default:
					continue
				}
				if _, seen := visited[otherID]; seen {
					continue
				}
				node, ok := s.nodes[otherID]
				if !ok {
					continue
				}
				visited[otherID] = hop
				expansion.Nodes[otherID] = node
				expansion.Hops[otherID] = hop
				next = append(next, otherID)
			}
		}
		sort.Strings(next)
		frontier = next
	}

	for _, edge := range s.edges {
		if _, ok := visited[edge.SourceID]; !ok {
			continue
		}
		if _, ok := visited[edge.TargetID]; !ok {
			continue
		}
		expansion.Edges = append(expansion.Edges, edge)
	}
	sort.Slice(expansion.Edges, func(i, j int) bool {
		return expansion.Edges[i].Key() < expansion.Edges[j].Key()
	})
	return expansion, nil
}

// SearchLexical matches nodes whose name or IFC type contains any token,
// case-insensitively, ordered by globalId.
func (s *GraphMemStorage) SearchLexical(ctx context.Context, tokens []string, limit int) ([]common.Node, error) {
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	nodes, err := s.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	var out []common.Node
	for _, node := range nodes {
		name := strings.ToLower(node.Name)
		ifcType := strings.ToLower(node.IfcType)
		for _, tok := range tokens {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok == "" {
				continue
			}
			if strings.Contains(name, tok) || strings.Contains(ifcType, tok) {
				out = append(out, node)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *GraphMemStorage) Fingerprint(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint, nil
}

func (s *GraphMemStorage) BumpFingerprint(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.fingerprint = fmt.Sprintf("mem-%d", s.generation)
	return s.fingerprint, nil
}

func cloneProps(props map[string]common.PropertyValue) map[string]common.PropertyValue {
	out := make(map[string]common.PropertyValue, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
