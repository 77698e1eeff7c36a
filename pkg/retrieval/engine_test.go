package retrieval

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/bimrag/pkg/ai"
	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/index"
	idxmem "github.com/OFFIS-RIT/bimrag/pkg/index/memory"
	"github.com/OFFIS-RIT/bimrag/pkg/store"
	storemem "github.com/OFFIS-RIT/bimrag/pkg/store/memory"
)

// stubAIClient returns a fixed embedding so tests control similarity exactly.
type stubAIClient struct {
	vector []float32
}

func (c *stubAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return c.vector, nil
}

func (c *stubAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (c *stubAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (c *stubAIClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (c *stubAIClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error { return nil }
func (c *stubAIClient) ResetMetrics()                                                  {}
func (c *stubAIClient) GetMetrics() ai.ModelMetrics                                    { return ai.ModelMetrics{} }

var _ ai.GraphAIClient = (*stubAIClient)(nil)

// seedGraph builds: Level 2 <- Room 204 <- AHU-1 (contained), AHU-1 member
// of System S-1, AHU-1 connects to VAV-3.
func seedGraph(t *testing.T) store.GraphStorage {
	t.Helper()
	ctx := context.Background()
	mem := storemem.NewGraphMemStorage()

	nodes := []common.Node{
		{GlobalID: "storey2", IfcType: "IfcBuildingStorey", Name: "Level 2", Labels: []string{"IfcEntity", "IfcBuildingStorey"}},
		{GlobalID: "room204", IfcType: "IfcSpace", Name: "Room 204", Labels: []string{"IfcEntity", "IfcSpace"}},
		{GlobalID: "ahu1", IfcType: "IfcUnitaryEquipment", Name: "AHU-1", Labels: []string{"IfcEntity", "IfcUnitaryEquipment"}},
		{GlobalID: "sys1", IfcType: "IfcSystem", Name: "Supply Air S-1", Labels: []string{"IfcEntity", "IfcSystem"}},
		{GlobalID: "vav3", IfcType: "IfcFlowController", Name: "VAV-3", Labels: []string{"IfcEntity", "IfcFlowController"}},
	}
	if _, err := mem.UpsertNodes(ctx, nodes); err != nil {
		t.Fatalf("failed to seed nodes: %v", err)
	}
	edges := []common.Edge{
		{Type: common.EdgeContainedIn, SourceID: "room204", TargetID: "storey2"},
		{Type: common.EdgeContainedIn, SourceID: "ahu1", TargetID: "room204"},
		{Type: common.EdgeMemberOf, SourceID: "ahu1", TargetID: "sys1"},
		common.Connection("ahu1", "vav3"),
	}
	if _, err := mem.UpsertEdges(ctx, edges); err != nil {
		t.Fatalf("failed to seed edges: %v", err)
	}
	return mem
}

func publishIndex(t *testing.T, fingerprint string) index.VectorIndex {
	t.Helper()
	idx := idxmem.NewFlatMemIndex()
	cards := []common.Card{
		{NodeID: "ahu1", Text: "ahu", Vector: []float32{1, 0}},
		{NodeID: "room204", Text: "room", Vector: []float32{0, 1}},
	}
	if err := idx.Publish(context.Background(), cards, fingerprint); err != nil {
		t.Fatalf("failed to publish index: %v", err)
	}
	return idx
}

func currentFingerprint(t *testing.T, s store.GraphStorage) string {
	t.Helper()
	fp, err := s.Fingerprint(context.Background())
	if err != nil {
		t.Fatalf("failed to read fingerprint: %v", err)
	}
	return fp
}

func TestRetrieveLexicalExactMatch(t *testing.T) {
	ctx := context.Background()
	mem := seedGraph(t)
	idx := publishIndex(t, currentFingerprint(t, mem))

	engine := NewEngine(NewEngineParams{
		AIClient:    &stubAIClient{vector: []float32{0, 0}},
		StoreClient: mem,
		VectorIndex: idx,
		Hops:        0,
	})

	evidence, err := engine.Retrieve(ctx, "Where is AHU-1 located?")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	found := false
	for _, node := range evidence.Nodes {
		if node.Node.GlobalID == "ahu1" {
			found = true
			if len(node.Provenance) == 0 {
				t.Fatal("expected provenance on lexical hit")
			}
		}
	}
	if !found {
		t.Fatalf("expected exact-name match in evidence, got %+v", evidence.Nodes)
	}
}

func TestRetrieveExpansionDecay(t *testing.T) {
	ctx := context.Background()
	mem := seedGraph(t)
	idx := publishIndex(t, currentFingerprint(t, mem))

	engine := NewEngine(NewEngineParams{
		AIClient:    &stubAIClient{vector: []float32{1, 0}},
		StoreClient: mem,
		VectorIndex: idx,
		Hops:        1,
	})

	evidence, err := engine.Retrieve(ctx, "zzqx")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	byID := make(map[string]common.EvidenceNode)
	for _, node := range evidence.Nodes {
		byID[node.Node.GlobalID] = node
	}
	seed, ok := byID["ahu1"]
	if !ok {
		t.Fatalf("expected semantic seed ahu1, got %+v", evidence.Nodes)
	}
	neighbor, ok := byID["sys1"]
	if !ok {
		t.Fatalf("expected expansion to reach sys1, got %+v", evidence.Nodes)
	}
	if neighbor.Score >= seed.Score {
		t.Fatalf("expansion score %f not below seed score %f", neighbor.Score, seed.Score)
	}
	if neighbor.Hops != 1 {
		t.Fatalf("expected hop distance 1, got %d", neighbor.Hops)
	}
}

func TestRetrieveHopBound(t *testing.T) {
	ctx := context.Background()
	mem := seedGraph(t)

	idx := idxmem.NewFlatMemIndex()
	cards := []common.Card{{NodeID: "ahu1", Text: "ahu", Vector: []float32{1, 0}}}
	if err := idx.Publish(ctx, cards, currentFingerprint(t, mem)); err != nil {
		t.Fatalf("failed to publish index: %v", err)
	}

	engine := NewEngine(NewEngineParams{
		AIClient:    &stubAIClient{vector: []float32{1, 0}},
		StoreClient: mem,
		VectorIndex: idx,
		Hops:        1,
	})

	evidence, err := engine.Retrieve(ctx, "zzqx")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	for _, node := range evidence.Nodes {
		// storey2 is two hops from ahu1 (via room204)
		if node.Node.GlobalID == "storey2" {
			t.Fatalf("node beyond hop budget retained: %+v", node)
		}
	}
}

func TestRetrieveTruncationKeepsEdgeConsistency(t *testing.T) {
	ctx := context.Background()
	mem := seedGraph(t)
	idx := publishIndex(t, currentFingerprint(t, mem))

	engine := NewEngine(NewEngineParams{
		AIClient:    &stubAIClient{vector: []float32{1, 0}},
		StoreClient: mem,
		VectorIndex: idx,
		Hops:        1,
		MaxNodes:    1,
	})

	evidence, err := engine.Retrieve(ctx, "zzqx")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(evidence.Nodes) != 1 {
		t.Fatalf("expected 1 node after truncation, got %d", len(evidence.Nodes))
	}
	if len(evidence.Edges) != 0 {
		t.Fatalf("expected no edges with a single retained node, got %+v", evidence.Edges)
	}
}

func TestRetrieveEmptyIndexNoMatch(t *testing.T) {
	ctx := context.Background()
	mem := seedGraph(t)

	idx := idxmem.NewFlatMemIndex()
	if err := idx.Publish(ctx, nil, currentFingerprint(t, mem)); err != nil {
		t.Fatalf("failed to publish empty index: %v", err)
	}

	engine := NewEngine(NewEngineParams{
		AIClient:    &stubAIClient{vector: []float32{1, 0}},
		StoreClient: mem,
		VectorIndex: idx,
	})

	evidence, err := engine.Retrieve(ctx, "zzqx")
	if err != nil {
		t.Fatalf("expected no error on empty index, got %v", err)
	}
	if !evidence.Empty() {
		t.Fatalf("expected empty evidence set, got %+v", evidence.Nodes)
	}
}

func TestRetrieveMinScoreThreshold(t *testing.T) {
	ctx := context.Background()
	mem := seedGraph(t)
	idx := publishIndex(t, currentFingerprint(t, mem))

	engine := NewEngine(NewEngineParams{
		AIClient:    &stubAIClient{vector: []float32{0.01, 0}},
		StoreClient: mem,
		VectorIndex: idx,
		MinScore:    0.5,
	})

	evidence, err := engine.Retrieve(ctx, "zzqx")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !evidence.Empty() {
		t.Fatalf("expected empty evidence below threshold, got %+v", evidence.Nodes)
	}
}

func TestRetrieveStaleIndexFlag(t *testing.T) {
	ctx := context.Background()
	mem := seedGraph(t)
	idx := publishIndex(t, currentFingerprint(t, mem))

	// a later ingest run moves the store fingerprint past the index's
	if _, err := mem.BumpFingerprint(ctx); err != nil {
		t.Fatalf("failed to bump fingerprint: %v", err)
	}

	engine := NewEngine(NewEngineParams{
		AIClient:    &stubAIClient{vector: []float32{1, 0}},
		StoreClient: mem,
		VectorIndex: idx,
	})

	evidence, err := engine.Retrieve(ctx, "Where is AHU-1 located?")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !evidence.Stale {
		t.Fatal("expected stale flag on fingerprint mismatch")
	}
	if evidence.Empty() {
		t.Fatal("stale index must still serve results")
	}
}

func TestFuseSeedsBothChannelsOutrankSingle(t *testing.T) {
	semantic := []index.Hit{
		{NodeID: "a", Score: 0.9},
		{NodeID: "b", Score: 0.8},
	}
	lexical := []common.Node{
		{GlobalID: "b", IfcType: "IfcSpace", Name: "b"},
	}

	fused := fuseSeeds(semantic, lexical)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused seeds, got %d", len(fused))
	}
	if fused[0].NodeID != "b" {
		t.Fatalf("expected dual-channel node first, got %+v", fused)
	}
	if len(fused[0].Provenance) != 2 {
		t.Fatalf("expected both provenances, got %+v", fused[0].Provenance)
	}
}

func TestFuseSeedsTieBreaksSemanticFirst(t *testing.T) {
	// Equal RRF scores: semantic rank 1 vs lexical rank 1. The semantic
	// hit wins even though its id sorts after the lexical one.
	semantic := []index.Hit{
		{NodeID: "zzz", Score: 0.9},
	}
	lexical := []common.Node{
		{GlobalID: "aaa", IfcType: "IfcSpace", Name: "aaa"},
	}

	fused := fuseSeeds(semantic, lexical)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused seeds, got %d", len(fused))
	}
	if fused[0].Score != fused[1].Score {
		t.Fatalf("expected an exact score tie, got %v vs %v", fused[0].Score, fused[1].Score)
	}
	if fused[0].NodeID != "zzz" {
		t.Fatalf("expected semantic seed first on a tie, got %+v", fused)
	}
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Which rooms does AHU-1 serve? AHU-1!")
	want := map[string]bool{"which": true, "rooms": true, "does": true, "ahu-1": true, "serve": true}
	if len(tokens) != len(want) {
		t.Fatalf("unexpected tokens %v", tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Fatalf("unexpected token %q in %v", tok, tokens)
		}
	}
}
