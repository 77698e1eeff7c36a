package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/OFFIS-RIT/bimrag/pkg/ai"
	"github.com/OFFIS-RIT/bimrag/pkg/common"
	storemem "github.com/OFFIS-RIT/bimrag/pkg/store/memory"
)

// flakyAIClient fails the first failures embedding calls, then succeeds.
// onEmbed runs on every attempt, successful or not.
type flakyAIClient struct {
	vector   []float32
	failures int
	attempts int
	onEmbed  func()
}

func (c *flakyAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if c.onEmbed != nil {
		c.onEmbed()
	}
	c.attempts++
	if c.attempts <= c.failures {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	return c.vector, nil
}

func (c *flakyAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (c *flakyAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (c *flakyAIClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (c *flakyAIClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error { return nil }
func (c *flakyAIClient) ResetMetrics()                                                  {}
func (c *flakyAIClient) GetMetrics() ai.ModelMetrics                                    { return ai.ModelMetrics{} }

var _ ai.GraphAIClient = (*flakyAIClient)(nil)

// memIndex is a minimal in-package VectorIndex with build tracking, so
// these tests do not depend on the backend packages.
type memIndex struct {
	cards       []common.Card
	fingerprint string
	published   bool
	building    bool
}

func (x *memIndex) BeginBuild(ctx context.Context) error {
	x.building = true
	return nil
}

func (x *memIndex) Publish(ctx context.Context, cards []common.Card, fingerprint string) error {
	x.cards = cards
	x.fingerprint = fingerprint
	x.published = true
	x.building = false
	return nil
}

func (x *memIndex) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if !x.published {
		return nil, ErrNotReady
	}
	return nil, nil
}

func (x *memIndex) Status(ctx context.Context) (Status, error) {
	state := StateNotBuilt
	switch {
	case x.published:
		state = StateReady
	case x.building:
		state = StateBuilding
	}
	return Status{State: state, Fingerprint: x.fingerprint, Cards: len(x.cards)}, nil
}

func seedStore(t *testing.T) *storemem.GraphMemStorage {
	t.Helper()
	ctx := context.Background()
	mem := storemem.NewGraphMemStorage()
	if _, err := mem.UpsertNodes(ctx, []common.Node{
		{GlobalID: "ahu1", IfcType: "IfcUnitaryEquipment", Name: "AHU-1", Labels: []string{"IfcEntity", "IfcUnitaryEquipment"}},
	}); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	if _, err := mem.BumpFingerprint(ctx); err != nil {
		t.Fatalf("failed to bump fingerprint: %v", err)
	}
	return mem
}

func TestBuildRetriesTransientEmbedFailures(t *testing.T) {
	ctx := context.Background()
	mem := seedStore(t)
	aiClient := &flakyAIClient{vector: []float32{1, 0}, failures: 2}
	idx := &memIndex{}

	builder := NewBuilder(NewBuilderParams{AIClient: aiClient})
	summary, err := builder.Build(ctx, mem, idx)
	if err != nil {
		t.Fatalf("expected transient failures to be retried, got %v", err)
	}
	if summary.Cards != 1 {
		t.Fatalf("expected 1 card, got %d", summary.Cards)
	}
	if aiClient.attempts != 3 {
		t.Fatalf("expected 3 embedding attempts, got %d", aiClient.attempts)
	}
	if len(idx.cards) != 1 || len(idx.cards[0].Vector) != 2 {
		t.Fatalf("published card missing vector: %+v", idx.cards)
	}
}

func TestBuildFailsAfterExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	mem := seedStore(t)
	aiClient := &flakyAIClient{vector: []float32{1, 0}, failures: embedMaxTries}
	idx := &memIndex{}

	builder := NewBuilder(NewBuilderParams{AIClient: aiClient})
	if _, err := builder.Build(ctx, mem, idx); err == nil {
		t.Fatal("expected build to fail once retries are exhausted")
	}
	if idx.published {
		t.Fatal("failed build must not publish")
	}
}

func TestBuildMarksIndexBuilding(t *testing.T) {
	ctx := context.Background()
	mem := seedStore(t)
	idx := &memIndex{}

	var observed []State
	aiClient := &flakyAIClient{vector: []float32{1, 0}}
	aiClient.onEmbed = func() {
		status, err := idx.Status(ctx)
		if err == nil {
			observed = append(observed, status.State)
		}
	}

	builder := NewBuilder(NewBuilderParams{AIClient: aiClient})
	if _, err := builder.Build(ctx, mem, idx); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(observed) == 0 || observed[0] != StateBuilding {
		t.Fatalf("expected building state during embedding, observed %v", observed)
	}
	status, err := idx.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != StateReady {
		t.Fatalf("expected ready state after publish, got %v", status.State)
	}
	if status.Fingerprint != "mem-1" {
		t.Fatalf("expected store fingerprint recorded, got %q", status.Fingerprint)
	}
}
