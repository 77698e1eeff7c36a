package retrieval

import (
	"sort"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/index"
)

const rrfK = 60.0

// seedCandidate is one node surfaced by the semantic or lexical channel
// (or both) before fusion.
type seedCandidate struct {
	NodeID       string
	SemanticRank int // 1-based, 0 when absent
	LexicalRank  int // 1-based, 0 when absent
	Score        float64
	Provenance   []common.Provenance
}

func rrfComponent(rank int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / (rrfK + float64(rank))
}

// fuseSeeds merges the two channels with reciprocal rank fusion. A node
// present in both channels always outranks the same node present in one,
// since each component is strictly positive. Provenance records the
// semantic channel when both found the node.
func fuseSeeds(semantic []index.Hit, lexical []common.Node) []seedCandidate {
	byID := make(map[string]*seedCandidate, len(semantic)+len(lexical))

	for i, hit := range semantic {
		byID[hit.NodeID] = &seedCandidate{
			NodeID:       hit.NodeID,
			SemanticRank: i + 1,
			Provenance:   []common.Provenance{common.ProvenanceSemantic},
		}
	}
	for i, node := range lexical {
		if existing, ok := byID[node.GlobalID]; ok {
			existing.LexicalRank = i + 1
			existing.Provenance = append(existing.Provenance, common.ProvenanceLexical)
			continue
		}
		byID[node.GlobalID] = &seedCandidate{
			NodeID:      node.GlobalID,
			LexicalRank: i + 1,
			Provenance:  []common.Provenance{common.ProvenanceLexical},
		}
	}

	fused := make([]seedCandidate, 0, len(byID))
	for _, candidate := range byID {
		candidate.Score = rrfComponent(candidate.SemanticRank) + rrfComponent(candidate.LexicalRank)
		fused = append(fused, *candidate)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		// Exact RRF ties: semantic hits come before lexical-only ones,
		// better semantic rank first.
		si, sj := fused[i].SemanticRank, fused[j].SemanticRank
		if si != sj {
			if si == 0 {
				return false
			}
			if sj == 0 {
				return true
			}
			return si < sj
		}
		return fused[i].NodeID < fused[j].NodeID
	})
	return fused
}
