// Package neo4j implements store.GraphStorage on a Neo4j database. All
// writes go through MERGE statements keyed on globalId, so each node or
// edge merge runs as one server-side transaction and re-running an
// ingestion cannot duplicate data.
package neo4j

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/bimrag/internal/util"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// propPrefix namespaces flattened property-set keys on the node, keeping
// them apart from the structural attributes (globalId, name, ifcType,
// sourceTag).
const propPrefix = "p$"

// GraphDBStorage implements store.GraphStorage using the official Neo4j
// driver. Sessions and transactions are managed per call through
// neo4j.ExecuteQuery.
type GraphDBStorage struct {
	driver neo4j.DriverWithContext
	dbName string
}

// NewGraphDBStorageParams configures the Neo4j connection.
type NewGraphDBStorageParams struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewGraphDBStorage creates the storage handle and verifies connectivity.
func NewGraphDBStorage(ctx context.Context, params NewGraphDBStorageParams) (*GraphDBStorage, error) {
	driver, err := neo4j.NewDriverWithContext(params.URI, neo4j.BasicAuth(params.Username, params.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("could not reach Neo4j at %s: %w", params.URI, err)
	}
	return &GraphDBStorage{
		driver: driver,
		dbName: params.Database,
	}, nil
}

// Close releases the underlying driver.
func (s *GraphDBStorage) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// run executes one Cypher statement in its own transaction and buffers
// the result.
func (s *GraphDBStorage) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		s.driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.dbName),
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j query failed: %w", err)
	}
	return result, nil
}

// Fingerprint returns the current graph version marker, or "" for a graph
// that has never been ingested into.
func (s *GraphDBStorage) Fingerprint(ctx context.Context) (string, error) {
	result, err := s.run(ctx, `MATCH (m:GraphMeta {id: 'graph'}) RETURN m.fingerprint AS fp`, nil)
	if err != nil {
		return "", err
	}
	if len(result.Records) == 0 {
		return "", nil
	}
	fp, _, err := neo4j.GetRecordValue[string](result.Records[0], "fp")
	if err != nil {
		return "", err
	}
	return fp, nil
}

// BumpFingerprint installs a fresh fingerprint on the GraphMeta singleton,
// invalidating any index built against the previous one.
func (s *GraphDBStorage) BumpFingerprint(ctx context.Context) (string, error) {
	fp, err := util.NewID()
	if err != nil {
		return "", err
	}
	_, err = s.run(ctx, `
		MERGE (m:GraphMeta {id: 'graph'})
		SET m.fingerprint = $fp
	`, map[string]any{"fp": fp})
	if err != nil {
		return "", err
	}
	return fp, nil
}
