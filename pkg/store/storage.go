package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
)

// ErrNotFound is returned by lookups for nodes that do not exist.
var ErrNotFound = errors.New("node not found")

// UpsertSummary reports the outcome of a node upsert batch.
type UpsertSummary struct {
	Created int
	Updated int
	// Conflicted counts records skipped because an existing node with the
	// same globalId carries an irreconcilable IFC type.
	Conflicted int
}

// EdgeSummary reports the outcome of an edge upsert batch. Edges whose
// endpoints do not exist in the store are returned in Dropped so callers
// can count and log them; they are never silently lost.
type EdgeSummary struct {
	Created int
	Dropped []common.Edge
}

// Expansion is the result of a bounded traversal from one seed node.
// Hops maps each discovered globalId to its minimum distance from the
// seed; the seed itself is not included.
type Expansion struct {
	Nodes map[string]common.Node
	Edges []common.Edge
	Hops  map[string]int
}

// GraphStorage is the persistent property-graph handle passed to every
// component: ingestion merges through it, card building and retrieval
// read through it. Implementations must make the merge of a single node
// effectively atomic; two concurrent merges of the same node must not
// interleave into a corrupt property mapping.
type GraphStorage interface {
	// ApplySchema applies the uniqueness constraints and secondary
	// indexes from pkg/schema. Idempotent; a failure is fatal to the run.
	ApplySchema(ctx context.Context) error

	// UpsertNodes merges nodes by globalId: create if absent, otherwise
	// update properties last-writer-wins per key and refresh sourceTag.
	UpsertNodes(ctx context.Context, nodes []common.Node) (UpsertSummary, error)

	// UpsertEdges merges edges by (type, source, target); re-merging an
	// existing edge is a no-op.
	UpsertEdges(ctx context.Context, edges []common.Edge) (EdgeSummary, error)

	// GetNodes returns the nodes for the given globalIds, skipping ids
	// that do not exist.
	GetNodes(ctx context.Context, globalIDs []string) ([]common.Node, error)

	// ListNodes returns every entity node, ordered by globalId.
	ListNodes(ctx context.Context) ([]common.Node, error)

	// Neighbors returns the one-hop neighborhood of a node across all
	// edge types, treating CONNECTS_TO as undirected.
	Neighbors(ctx context.Context, globalID string) ([]common.Neighbor, error)

	// Expand traverses outward from seed up to depth hops across all
	// edge types.
	Expand(ctx context.Context, seed string, depth int) (*Expansion, error)

	// SearchLexical returns up to limit nodes whose name or IFC type
	// contains any of the tokens, case-insensitively. Candidate order is
	// deterministic (globalId ascending).
	SearchLexical(ctx context.Context, tokens []string, limit int) ([]common.Node, error)

	// Fingerprint returns the current graph version marker. It changes
	// on every mutating ingest run and is recorded by the index builder
	// to make staleness detectable.
	Fingerprint(ctx context.Context) (string, error)

	// BumpFingerprint installs and returns a fresh fingerprint.
	BumpFingerprint(ctx context.Context) (string, error)
}
