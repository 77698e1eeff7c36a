package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/index"
)

func testCards() []common.Card {
	return []common.Card{
		{NodeID: "a", Text: "card a", Vector: []float32{1, 0, 0}},
		{NodeID: "b", Text: "card b", Vector: []float32{0, 1, 0}},
		{NodeID: "c", Text: "card c", Vector: []float32{0.5, 0.5, 0}},
	}
}

func TestSearchBeforePublish(t *testing.T) {
	x := NewFlatMemIndex()
	_, err := x.Search(context.Background(), []float32{1, 0, 0}, 3)
	if !errors.Is(err, index.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	status, err := x.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != index.StateNotBuilt {
		t.Fatalf("expected state %q, got %q", index.StateNotBuilt, status.State)
	}
}

func TestSearchRanking(t *testing.T) {
	ctx := context.Background()
	x := NewFlatMemIndex()
	if err := x.Publish(ctx, testCards(), "fp-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	hits, err := x.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].NodeID != "a" || hits[1].NodeID != "c" {
		t.Fatalf("unexpected ranking: %+v", hits)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores not descending: %+v", hits)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ctx := context.Background()
	x := NewFlatMemIndex()
	if err := x.Publish(ctx, nil, "fp-empty"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	hits, err := x.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("expected no error on empty published index, got %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	x := NewFlatMemIndex()
	if err := x.Publish(ctx, testCards(), "fp-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if _, err := x.Search(ctx, []float32{1, 0}, 3); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestPublishReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	x := NewFlatMemIndex()
	if err := x.Publish(ctx, testCards(), "fp-1"); err != nil {
		t.Fatalf("first Publish failed: %v", err)
	}
	if err := x.Publish(ctx, []common.Card{
		{NodeID: "z", Text: "card z", Vector: []float32{0, 0, 1}},
	}, "fp-2"); err != nil {
		t.Fatalf("second Publish failed: %v", err)
	}

	status, err := x.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Cards != 1 || status.Fingerprint != "fp-2" {
		t.Fatalf("expected replaced index, got %+v", status)
	}

	hits, err := x.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, h := range hits {
		if h.NodeID == "a" {
			t.Fatal("old generation still visible after Publish")
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	x := NewFlatMemIndex()
	if err := x.Publish(ctx, testCards(), "fp-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := x.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	y := NewFlatMemIndex()
	if err := y.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	status, err := y.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != index.StateReady || status.Cards != 3 || status.Fingerprint != "fp-1" {
		t.Fatalf("unexpected status after load: %+v", status)
	}

	hits, err := y.Search(ctx, []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].NodeID != "b" {
		t.Fatalf("unexpected hits after load: %+v", hits)
	}
}

func TestBuildLifecycleStates(t *testing.T) {
	ctx := context.Background()
	x := NewFlatMemIndex()

	if err := x.BeginBuild(ctx); err != nil {
		t.Fatalf("BeginBuild failed: %v", err)
	}
	status, err := x.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != index.StateBuilding {
		t.Fatalf("expected state %q, got %q", index.StateBuilding, status.State)
	}

	if err := x.Publish(ctx, testCards(), "fp-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	status, err = x.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != index.StateReady {
		t.Fatalf("expected state %q, got %q", index.StateReady, status.State)
	}

	// A rebuild over a published generation keeps serving Ready.
	if err := x.BeginBuild(ctx); err != nil {
		t.Fatalf("BeginBuild failed: %v", err)
	}
	status, err = x.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != index.StateReady {
		t.Fatalf("expected state %q during rebuild, got %q", index.StateReady, status.State)
	}
}

var _ index.VectorIndex = (*FlatMemIndex)(nil)
var _ index.BuildTracker = (*FlatMemIndex)(nil)
