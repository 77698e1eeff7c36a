// Package pgx provides a vector index backed by PostgreSQL with pgvector.
// Each Publish writes a new generation of rows and flips a metadata pointer,
// so readers always see one complete generation.
package pgx

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/index"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const metaID = "cards"

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBIndex implements index.VectorIndex on PostgreSQL + pgvector.
type GraphDBIndex struct {
	conn pgxIConn
}

// NewGraphDBIndex creates an index over an existing database connection.
// Run Migrate first to apply the schema.
func NewGraphDBIndex(conn pgxIConn) *GraphDBIndex {
	return &GraphDBIndex{conn: conn}
}

// Migrate applies the embedded schema migrations against databaseURL.
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	// golang-migrate's pgx/v5 driver registers the pgx5 scheme.
	url := databaseURL
	if strings.HasPrefix(url, "postgres://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	} else if strings.HasPrefix(url, "postgresql://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Publish writes cards as a fresh generation, points the metadata row at
// it, and drops older generations, all in one transaction.
func (x *GraphDBIndex) Publish(ctx context.Context, cards []common.Card, fingerprint string) error {
	tx, err := x.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT generation FROM index_meta WHERE id = $1`, metaID,
	).Scan(&current)
	if err != nil && !errors.Is(err, pgxv5.ErrNoRows) {
		return fmt.Errorf("failed to read index generation: %w", err)
	}
	next := current + 1

	for _, c := range cards {
		if _, err := tx.Exec(ctx,
			`INSERT INTO node_cards (node_id, card_text, embedding, generation)
			 VALUES ($1, $2, $3, $4)`,
			c.NodeID, c.Text, pgvector.NewVector(c.Vector), next,
		); err != nil {
			return fmt.Errorf("failed to insert card %s: %w", c.NodeID, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO index_meta (id, generation, fingerprint, cards)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET generation = $2, fingerprint = $3, cards = $4, published_at = now()`,
		metaID, next, fingerprint, len(cards),
	); err != nil {
		return fmt.Errorf("failed to update index metadata: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM node_cards WHERE generation < $1`, next,
	); err != nil {
		return fmt.Errorf("failed to drop old index generations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit publish transaction: %w", err)
	}
	return nil
}

// Search returns up to limit hits from the published generation, ordered
// by descending inner product.
func (x *GraphDBIndex) Search(ctx context.Context, vector []float32, limit int) ([]index.Hit, error) {
	var generation int64
	err := x.conn.QueryRow(ctx,
		`SELECT generation FROM index_meta WHERE id = $1`, metaID,
	).Scan(&generation)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, index.ErrNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index generation: %w", err)
	}
	if limit <= 0 {
		return nil, nil
	}

	// <#> is negative inner product; negate for a descending score.
	rows, err := x.conn.Query(ctx,
		`SELECT node_id, (embedding <#> $1) * -1 AS score
		 FROM node_cards
		 WHERE generation = $2
		 ORDER BY embedding <#> $1, node_id
		 LIMIT $3`,
		pgvector.NewVector(vector), generation, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	defer rows.Close()

	hits := make([]index.Hit, 0, limit)
	for rows.Next() {
		var hit index.Hit
		if err := rows.Scan(&hit.NodeID, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search hits: %w", err)
	}
	return hits, nil
}

// Status reports the published generation's fingerprint and card count.
func (x *GraphDBIndex) Status(ctx context.Context) (index.Status, error) {
	var (
		fingerprint string
		cards       int64
	)
	err := x.conn.QueryRow(ctx,
		`SELECT fingerprint, cards FROM index_meta WHERE id = $1`, metaID,
	).Scan(&fingerprint, &cards)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return index.Status{State: index.StateNotBuilt}, nil
	}
	if err != nil {
		return index.Status{}, fmt.Errorf("failed to read index metadata: %w", err)
	}
	return index.Status{
		State:       index.StateReady,
		Fingerprint: fingerprint,
		Cards:       int(cards),
	}, nil
}
