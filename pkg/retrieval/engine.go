// Package retrieval turns a natural-language question into a scored,
// bounded evidence subgraph: hybrid semantic + lexical seeding, reciprocal
// rank fusion, hop-bounded expansion with geometric score decay, and
// consistent truncation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/bimrag/pkg/ai"
	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/index"
	"github.com/OFFIS-RIT/bimrag/pkg/logger"
	"github.com/OFFIS-RIT/bimrag/pkg/store"
)

const (
	defaultTopK     = 10
	defaultHops     = 1
	defaultMaxNodes = 40
	// Each hop away from a seed halves the inherited score.
	expansionDecay = 0.5
)

// Engine executes retrieval against one graph store and one vector index.
type Engine struct {
	aiClient    ai.GraphAIClient
	storeClient store.GraphStorage
	vectorIndex index.VectorIndex

	topK     int
	hops     int
	maxNodes int
	minScore float64
}

// NewEngineParams configures an Engine. Zero values select defaults;
// MinScore of zero disables the threshold.
type NewEngineParams struct {
	AIClient    ai.GraphAIClient
	StoreClient store.GraphStorage
	VectorIndex index.VectorIndex

	TopK     int
	Hops     int
	MaxNodes int
	MinScore float64
}

// NewEngine creates a retrieval engine.
func NewEngine(params NewEngineParams) *Engine {
	e := &Engine{
		aiClient:    params.AIClient,
		storeClient: params.StoreClient,
		vectorIndex: params.VectorIndex,
		topK:        params.TopK,
		hops:        params.Hops,
		maxNodes:    params.MaxNodes,
		minScore:    params.MinScore,
	}
	if e.topK <= 0 {
		e.topK = defaultTopK
	}
	if e.hops < 0 {
		e.hops = defaultHops
	}
	if e.maxNodes <= 0 {
		e.maxNodes = defaultMaxNodes
	}
	return e
}

// Retrieve answers the question with an evidence subgraph. An unbuilt or
// empty index, or a question whose best seed falls below the minimum
// score, yields an empty evidence set rather than an error.
func (e *Engine) Retrieve(ctx context.Context, question string) (common.EvidenceSet, error) {
	evidence := common.EvidenceSet{Question: question}

	stale, err := e.checkStaleness(ctx)
	if err != nil {
		return evidence, err
	}
	evidence.Stale = stale

	seeds, err := e.collectSeeds(ctx, question)
	if err != nil {
		return evidence, err
	}
	if len(seeds) == 0 {
		return evidence, nil
	}

	scored, edges, err := e.expand(ctx, seeds)
	if err != nil {
		return evidence, err
	}

	nodes, edges := truncate(scored, edges, e.maxNodes)
	if err := e.hydrate(ctx, nodes); err != nil {
		return evidence, err
	}

	evidence.Nodes = nodes
	evidence.Edges = edges
	return evidence, nil
}

// collectSeeds runs both channels, fuses them, and applies the minimum
// score threshold against the semantic channel's raw similarity.
func (e *Engine) collectSeeds(ctx context.Context, question string) ([]seedCandidate, error) {
	vector, err := e.aiClient.GenerateEmbedding(ctx, []byte(question))
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := e.vectorIndex.Search(ctx, vector, e.topK)
	if errors.Is(err, index.ErrNotReady) {
		logger.Warn("Vector index not built, serving without semantic channel")
		hits = nil
	} else if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}

	if e.minScore > 0 {
		kept := hits[:0]
		for _, hit := range hits {
			if hit.Score >= e.minScore {
				kept = append(kept, hit)
			}
		}
		hits = kept
	}

	lexical, err := e.storeClient.SearchLexical(ctx, tokenize(question), e.topK)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	return fuseSeeds(hits, lexical), nil
}

// expand walks outward from every seed up to the hop budget. A node
// reached from several origins keeps its best score; expansion scores
// decay geometrically and never exceed the origin seed's score.
func (e *Engine) expand(ctx context.Context, seeds []seedCandidate) ([]common.EvidenceNode, []common.Edge, error) {
	best := make(map[string]*common.EvidenceNode, len(seeds))
	for _, seed := range seeds {
		best[seed.NodeID] = &common.EvidenceNode{
			Node:       common.Node{GlobalID: seed.NodeID},
			Score:      seed.Score,
			Hops:       0,
			Provenance: seed.Provenance,
		}
	}

	edgeSet := make(map[string]common.Edge)
	if e.hops > 0 {
		for _, seed := range seeds {
			expansion, err := e.storeClient.Expand(ctx, seed.NodeID, e.hops)
			if err != nil {
				return nil, nil, fmt.Errorf("expansion from %s failed: %w", seed.NodeID, err)
			}
			for id, node := range expansion.Nodes {
				hop := expansion.Hops[id]
				score := seed.Score * math.Pow(expansionDecay, float64(hop))
				existing, ok := best[id]
				if !ok {
					best[id] = &common.EvidenceNode{
						Node:       node,
						Score:      score,
						Hops:       hop,
						Provenance: []common.Provenance{common.ProvenanceExpansion},
					}
					continue
				}
				if score > existing.Score {
					existing.Score = score
				}
				if hop < existing.Hops {
					existing.Hops = hop
				}
				existing.Provenance = appendProvenance(existing.Provenance, common.ProvenanceExpansion)
			}
			for _, edge := range expansion.Edges {
				edgeSet[edge.Key()] = edge
			}
		}
	}

	nodes := make([]common.EvidenceNode, 0, len(best))
	for _, node := range best {
		nodes = append(nodes, *node)
	}
	edges := make([]common.Edge, 0, len(edgeSet))
	for _, edge := range edgeSet {
		edges = append(edges, edge)
	}
	return nodes, edges, nil
}

// truncate caps the node list at maxNodes dropping lowest scores first,
// then keeps only edges whose both endpoints survived.
func truncate(nodes []common.EvidenceNode, edges []common.Edge, maxNodes int) ([]common.EvidenceNode, []common.Edge) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Score != nodes[j].Score {
			return nodes[i].Score > nodes[j].Score
		}
		return nodes[i].Node.GlobalID < nodes[j].Node.GlobalID
	})
	if len(nodes) > maxNodes {
		nodes = nodes[:maxNodes]
	}

	retained := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		retained[node.Node.GlobalID] = struct{}{}
	}

	kept := make([]common.Edge, 0, len(edges))
	for _, edge := range edges {
		if _, ok := retained[edge.SourceID]; !ok {
			continue
		}
		if _, ok := retained[edge.TargetID]; !ok {
			continue
		}
		kept = append(kept, edge)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Key() < kept[j].Key() })
	return nodes, kept
}

// hydrate fills in full node data for evidence entries that only carry a
// globalId (seeds surfaced by the semantic channel).
func (e *Engine) hydrate(ctx context.Context, nodes []common.EvidenceNode) error {
	missing := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if node.Node.IfcType == "" {
			missing = append(missing, node.Node.GlobalID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	fetched, err := e.storeClient.GetNodes(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to hydrate evidence nodes: %w", err)
	}
	byID := make(map[string]common.Node, len(fetched))
	for _, node := range fetched {
		byID[node.GlobalID] = node
	}
	for i := range nodes {
		if nodes[i].Node.IfcType == "" {
			if full, ok := byID[nodes[i].Node.GlobalID]; ok {
				nodes[i].Node = full
			}
		}
	}
	return nil
}

// checkStaleness compares the index fingerprint against the store's. A
// mismatch is reported on the evidence set and logged, never fatal.
func (e *Engine) checkStaleness(ctx context.Context) (bool, error) {
	status, err := e.vectorIndex.Status(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read index status: %w", err)
	}
	if status.State != index.StateReady {
		return false, nil
	}

	fingerprint, err := e.storeClient.Fingerprint(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read store fingerprint: %w", err)
	}
	if fingerprint != "" && status.Fingerprint != fingerprint {
		logger.Warn(
			"Vector index is stale",
			"index_fingerprint", status.Fingerprint,
			"store_fingerprint", fingerprint,
		)
		return true, nil
	}
	return false, nil
}

func appendProvenance(list []common.Provenance, p common.Provenance) []common.Provenance {
	for _, existing := range list {
		if existing == p {
			return list
		}
	}
	return append(list, p)
}

// tokenize lowercases the question and splits it into searchable tokens,
// dropping single-character fragments.
func tokenize(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	})
	tokens := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if len(field) < 2 {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		tokens = append(tokens, field)
	}
	return tokens
}
