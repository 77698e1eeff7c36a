// Package index defines the vector index over node cards and the batch
// builder that populates it from the graph store.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bimrag/internal/util"
	"github.com/OFFIS-RIT/bimrag/pkg/ai"
	"github.com/OFFIS-RIT/bimrag/pkg/card"
	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/logger"
	"github.com/OFFIS-RIT/bimrag/pkg/store"

	"golang.org/x/sync/errgroup"
)

// ErrNotReady is returned by Search before the first successful Publish.
var ErrNotReady = errors.New("vector index not built")

// State describes the lifecycle of a vector index.
type State string

const (
	StateNotBuilt State = "not_built"
	StateBuilding State = "building"
	StateReady    State = "ready"
)

// Hit is a single nearest-neighbor result.
type Hit struct {
	NodeID string
	Score  float64
}

// Status reports the current index state, the graph fingerprint it was
// built from, and the number of cards it holds.
type Status struct {
	State       State
	Fingerprint string
	Cards       int
}

// VectorIndex is the nearest-neighbor store over node cards.
//
// Publish replaces the entire index content atomically: readers see either
// the previous generation or the new one, never a mix. Search returns
// ErrNotReady before the first Publish; an empty published index returns
// zero hits without error.
type VectorIndex interface {
	Publish(ctx context.Context, cards []common.Card, fingerprint string) error
	Search(ctx context.Context, vector []float32, limit int) ([]Hit, error)
	Status(ctx context.Context) (Status, error)
}

// BuildTracker is implemented by indexes that surface the Building state
// while a rebuild is in progress. Backends that derive their state purely
// from published generations report NotBuilt or Ready only.
type BuildTracker interface {
	BeginBuild(ctx context.Context) error
}

const (
	defaultEmbedBatch    = 64
	defaultEmbedParallel = 4
	embedMaxTries        = 3
)

// Builder rebuilds a vector index from the current graph state: it renders
// every node card, embeds the texts in parallel batches, and publishes the
// result tagged with the store fingerprint.
type Builder struct {
	aiClient    ai.GraphAIClient
	cardBuilder *card.Builder
	batchSize   int
	parallel    int
}

// NewBuilderParams configures a Builder. Zero values select defaults.
type NewBuilderParams struct {
	AIClient    ai.GraphAIClient
	CardBuilder *card.Builder
	BatchSize   int
	Parallel    int
}

// NewBuilder creates an index builder.
func NewBuilder(params NewBuilderParams) *Builder {
	b := &Builder{
		aiClient:    params.AIClient,
		cardBuilder: params.CardBuilder,
		batchSize:   params.BatchSize,
		parallel:    params.Parallel,
	}
	if b.cardBuilder == nil {
		b.cardBuilder = card.NewBuilder(card.NewBuilderParams{})
	}
	if b.batchSize <= 0 {
		b.batchSize = defaultEmbedBatch
	}
	if b.parallel <= 0 {
		b.parallel = defaultEmbedParallel
	}
	return b
}

// BuildSummary reports the outcome of one index rebuild.
type BuildSummary struct {
	Cards       int    `json:"cards"`
	Fingerprint string `json:"fingerprint"`
	DurationMs  int64  `json:"duration_ms"`
}

// Build rebuilds the index from the store's current state. The fingerprint
// is read before the walk so a concurrent ingest makes the result stale
// rather than silently mixed.
func (b *Builder) Build(
	ctx context.Context,
	storeClient store.GraphStorage,
	idx VectorIndex,
) (BuildSummary, error) {
	start := time.Now()

	fingerprint, err := storeClient.Fingerprint(ctx)
	if err != nil {
		return BuildSummary{}, fmt.Errorf("failed to read store fingerprint: %w", err)
	}

	if tracker, ok := idx.(BuildTracker); ok {
		if err := tracker.BeginBuild(ctx); err != nil {
			return BuildSummary{}, fmt.Errorf("failed to mark index as building: %w", err)
		}
	}

	cards, err := b.cardBuilder.BuildAll(ctx, storeClient)
	if err != nil {
		return BuildSummary{}, err
	}

	if err := b.embed(ctx, cards); err != nil {
		return BuildSummary{}, err
	}

	if err := idx.Publish(ctx, cards, fingerprint); err != nil {
		return BuildSummary{}, fmt.Errorf("failed to publish index: %w", err)
	}

	summary := BuildSummary{
		Cards:       len(cards),
		Fingerprint: fingerprint,
		DurationMs:  time.Since(start).Milliseconds(),
	}
	logger.Info(
		"Index rebuilt",
		"cards", summary.Cards,
		"fingerprint", summary.Fingerprint,
		"duration_ms", summary.DurationMs,
	)
	return summary, nil
}

// embed fills in the Vector of every card, batching requests and running
// batches in parallel. Clients with a batch fast path get one request per
// batch; others are called once per card within the batch.
func (b *Builder) embed(ctx context.Context, cards []common.Card) error {
	if len(cards) == 0 {
		return nil
	}

	batcher, hasBatch := b.aiClient.(ai.EmbeddingBatcher)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(b.parallel)
	_ = util.ChunkRange(len(cards), b.batchSize, func(lo, hi int) error {
		eg.Go(func() error {
			batch := cards[lo:hi]
			if hasBatch {
				inputs := make([][]byte, len(batch))
				for i := range batch {
					inputs[i] = []byte(batch[i].Text)
				}
				vectors, err := util.RetryWithContext(ectx, embedMaxTries, func(ctx context.Context) ([][]float32, error) {
					return batcher.GenerateEmbeddings(ctx, inputs)
				})
				if err != nil {
					return fmt.Errorf("failed to embed card batch: %w", err)
				}
				if len(vectors) != len(batch) {
					return fmt.Errorf("embedding batch size mismatch: got %d want %d", len(vectors), len(batch))
				}
				for i := range batch {
					batch[i].Vector = vectors[i]
				}
				return nil
			}
			for i := range batch {
				text := []byte(batch[i].Text)
				vector, err := util.RetryWithContext(ectx, embedMaxTries, func(ctx context.Context) ([]float32, error) {
					return b.aiClient.GenerateEmbedding(ctx, text)
				})
				if err != nil {
					return fmt.Errorf("failed to embed card %s: %w", batch[i].NodeID, err)
				}
				batch[i].Vector = vector
			}
			return nil
		})
		return nil
	})
	return eg.Wait()
}
