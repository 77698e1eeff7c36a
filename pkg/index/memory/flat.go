// Package memory provides an exact inner-product vector index held in
// process memory, with an optional JSON snapshot on disk. It is the
// hermetic backend for tests and small local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/index"
)

// FlatMemIndex scans every stored vector on search. Exact and simple;
// fine up to the building-model scale this serves.
type FlatMemIndex struct {
	mu          sync.RWMutex
	cards       []common.Card
	fingerprint string
	published   bool
	building    bool
}

// NewFlatMemIndex creates an empty in-memory index in the NotBuilt state.
func NewFlatMemIndex() *FlatMemIndex {
	return &FlatMemIndex{}
}

// BeginBuild marks a rebuild in progress. A published generation keeps
// serving searches until Publish swaps it out.
func (x *FlatMemIndex) BeginBuild(ctx context.Context) error {
	x.mu.Lock()
	x.building = true
	x.mu.Unlock()
	return nil
}

// Publish atomically replaces the index content.
func (x *FlatMemIndex) Publish(ctx context.Context, cards []common.Card, fingerprint string) error {
	next := make([]common.Card, len(cards))
	copy(next, cards)

	x.mu.Lock()
	x.cards = next
	x.fingerprint = fingerprint
	x.published = true
	x.building = false
	x.mu.Unlock()
	return nil
}

// Search returns up to limit hits ordered by descending inner product,
// ties broken by node id for determinism.
func (x *FlatMemIndex) Search(ctx context.Context, vector []float32, limit int) ([]index.Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.published {
		return nil, index.ErrNotReady
	}
	if limit <= 0 || len(x.cards) == 0 {
		return nil, nil
	}

	hits := make([]index.Hit, 0, len(x.cards))
	for _, c := range x.cards {
		if len(c.Vector) != len(vector) {
			return nil, fmt.Errorf("vector dimension mismatch: card %s has %d, query has %d",
				c.NodeID, len(c.Vector), len(vector))
		}
		var dot float64
		for i := range vector {
			dot += float64(vector[i]) * float64(c.Vector[i])
		}
		hits = append(hits, index.Hit{NodeID: c.NodeID, Score: dot})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].NodeID < hits[j].NodeID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Status reports the current state and fingerprint.
func (x *FlatMemIndex) Status(ctx context.Context) (index.Status, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	state := index.StateNotBuilt
	switch {
	case x.published:
		state = index.StateReady
	case x.building:
		state = index.StateBuilding
	}
	return index.Status{
		State:       state,
		Fingerprint: x.fingerprint,
		Cards:       len(x.cards),
	}, nil
}

type snapshot struct {
	Fingerprint string        `json:"fingerprint"`
	Cards       []common.Card `json:"cards"`
}

// Save writes the published index to path as a JSON snapshot.
func (x *FlatMemIndex) Save(path string) error {
	x.mu.RLock()
	snap := snapshot{Fingerprint: x.fingerprint, Cards: x.cards}
	published := x.published
	x.mu.RUnlock()

	if !published {
		return index.ErrNotReady
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode index snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index snapshot: %w", err)
	}
	return nil
}

// Load replaces the index content from a JSON snapshot written by Save.
func (x *FlatMemIndex) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read index snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode index snapshot: %w", err)
	}

	x.mu.Lock()
	x.cards = snap.Cards
	x.fingerprint = snap.Fingerprint
	x.published = true
	x.mu.Unlock()
	return nil
}
