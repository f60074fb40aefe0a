package taxonomy

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/costwise/fern/pkg/tracing"
)

// Store loads category taxonomies from the graph. Categories are nodes
// keyed per tenant with CHILD_OF edges to their parent division.
type Store struct {
	client *Client
	logger ectologger.Logger
}

// NewStore creates a taxonomy store
func NewStore(client *Client, logger ectologger.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Snapshot is an immutable in-memory view of a tenant's category tree. The
// scorer reads from it without touching the graph, which keeps scoring pure
// and a batch run reproducible against a fixed taxonomy.
type Snapshot struct {
	parents map[string]string
}

// NewSnapshot builds a snapshot from a child->parent key map. Used by the
// store and directly in tests.
func NewSnapshot(parents map[string]string) *Snapshot {
	if parents == nil {
		parents = map[string]string{}
	}
	return &Snapshot{parents: parents}
}

// Related reports whether two category keys are adjacent in the taxonomy:
// one is the other's parent, or both share a parent.
func (s *Snapshot) Related(a, b string) bool {
	if a == b {
		return true
	}
	parentA, okA := s.parents[a]
	parentB, okB := s.parents[b]
	if okA && parentA == b {
		return true
	}
	if okB && parentB == a {
		return true
	}
	return okA && okB && parentA == parentB
}

// Parent returns the parent key of a category, if any.
func (s *Snapshot) Parent(key string) (string, bool) {
	parent, ok := s.parents[key]
	return parent, ok
}

// Size returns the number of categories with a known parent.
func (s *Snapshot) Size() int {
	return len(s.parents)
}

// Parents returns a copy of the child to parent key map.
func (s *Snapshot) Parents() map[string]string {
	out := make(map[string]string, len(s.parents))
	for k, v := range s.parents {
		out[k] = v
	}
	return out
}

// LoadSnapshot reads the tenant's category tree into memory.
func (s *Store) LoadSnapshot(ctx context.Context, tenantID string) (*Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Store.LoadSnapshot")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID})

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := `
			MATCH (c:Category {tenant_id: $tenant_id})-[:CHILD_OF]->(p:Category {tenant_id: $tenant_id})
			RETURN c.key AS child, p.key AS parent
		`
		res, err := tx.Run(ctx, cypher, map[string]any{"tenant_id": tenantID})
		if err != nil {
			return nil, err
		}

		parents := make(map[string]string)
		for res.Next(ctx) {
			record := res.Record()
			child, _ := record.Get("child")
			parent, _ := record.Get("parent")
			childKey, okC := child.(string)
			parentKey, okP := parent.(string)
			if okC && okP {
				parents[childKey] = parentKey
			}
		}
		return parents, res.Err()
	})
	if err != nil {
		log.WithError(err).Error("Failed to load category taxonomy")
		return nil, err
	}

	parents := result.(map[string]string)
	log.WithFields(map[string]any{"category_count": len(parents)}).Debug("Loaded category taxonomy snapshot")

	return NewSnapshot(parents), nil
}

// UpsertCategory writes a category node and its parent edge. Used by the
// taxonomy admin endpoint when a tenant customizes its division tree.
func (s *Store) UpsertCategory(ctx context.Context, tenantID, key, parentKey string) error {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Store.UpsertCategory")
	defer span.End()

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := `
			MERGE (c:Category {tenant_id: $tenant_id, key: $key})
		`
		params := map[string]any{"tenant_id": tenantID, "key": key}
		if parentKey != "" {
			cypher = `
				MERGE (c:Category {tenant_id: $tenant_id, key: $key})
				MERGE (p:Category {tenant_id: $tenant_id, key: $parent})
				MERGE (c)-[:CHILD_OF]->(p)
			`
			params["parent"] = parentKey
		}
		_, err := tx.Run(ctx, cypher, params)
		return nil, err
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"key":       key,
		}).Error("Failed to upsert category")
	}
	return err
}
