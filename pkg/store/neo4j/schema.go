package neo4j

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/bimrag/pkg/schema"
)

// ApplySchema installs the uniqueness constraints and secondary indexes
// declared in pkg/schema. All statements use IF NOT EXISTS, so repeated
// application is a no-op. A failure here is fatal to the run; ingesting
// without the globalId constraint cannot be made idempotent.
func (s *GraphDBStorage) ApplySchema(ctx context.Context) error {
	for _, c := range schema.Constraints {
		stmt := fmt.Sprintf(
			"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:`%s`) REQUIRE n.`%s` IS UNIQUE",
			identSuffix(c.Label), identSuffix(c.Property), c.Label, c.Property,
		)
		if _, err := s.run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to apply constraint on %s.%s: %w", c.Label, c.Property, err)
		}
	}
	for _, idx := range schema.Indexes {
		stmt := fmt.Sprintf(
			"CREATE INDEX %s_%s_idx IF NOT EXISTS FOR (n:`%s`) ON (n.`%s`)",
			identSuffix(idx.Label), identSuffix(idx.Property), idx.Label, idx.Property,
		)
		if _, err := s.run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to apply index on %s.%s: %w", idx.Label, idx.Property, err)
		}
	}
	return nil
}

// identSuffix lowercases a label or property for use inside a constraint
// or index name. The schema taxonomy is fixed, so no escaping beyond this
// is needed.
func identSuffix(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		}
	}
	return string(out)
}
