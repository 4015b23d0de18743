// Package neo4j keeps the category hierarchy as (:Category)-[:CHILD_OF]->(:Category) paths.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/source-aware-retrieval/internal/core/catfilter"
	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const (
	siblingsCypher = `
MATCH (c:Category {path: $path})-[:CHILD_OF]->(parent:Category)<-[:CHILD_OF]-(s:Category)
WHERE s.path <> $path
RETURN s.path AS path
ORDER BY path
LIMIT $limit
`
	registerCypher = `
UNWIND $nodes AS n
MERGE (c:Category {path: n.path})
WITH c, n
WHERE n.parent <> ''
MERGE (p:Category {path: n.parent})
MERGE (c)-[:CHILD_OF]->(p)
`
	constraintCypher = `CREATE CONSTRAINT category_path_unique IF NOT EXISTS FOR (c:Category) REQUIRE c.path IS UNIQUE`

	defaultSiblingLimit = 10
)

// runner executes one cypher statement in a managed transaction.
type runner interface {
	read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	write(ctx context.Context, cypher string, params map[string]any) error
}

type CategoryTree struct {
	run       runner
	delimiter string
	limit     int
	logger    *slog.Logger
}

type Option func(*CategoryTree)

func WithDelimiter(delimiter string) Option {
	return func(t *CategoryTree) {
		if delimiter != "" {
			t.delimiter = delimiter
		}
	}
}

func WithSiblingLimit(limit int) Option {
	return func(t *CategoryTree) {
		if limit > 0 {
			t.limit = limit
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *CategoryTree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func New(driver neo4j.DriverWithContext, database string, opts ...Option) *CategoryTree {
	return newTree(&driverRunner{driver: driver, database: database}, opts...)
}

func newTree(run runner, opts ...Option) *CategoryTree {
	t := &CategoryTree{
		run:       run,
		delimiter: domain.DefaultHierarchyDelimiter,
		limit:     defaultSiblingLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EnsureSchema is best effort; a failure is logged and the tree keeps working without the constraint.
func (t *CategoryTree) EnsureSchema(ctx context.Context) {
	if err := t.run.write(ctx, constraintCypher, nil); err != nil {
		t.logger.Warn("neo4j_schema_init_failed", "error", err)
	}
}

func (t *CategoryTree) Siblings(ctx context.Context, category string) ([]string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, nil
	}
	records, err := t.run.read(ctx, siblingsCypher, map[string]any{"path": category, "limit": t.limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j siblings of %s: %w", category, err)
	}
	out := make([]string, 0, len(records))
	for _, record := range records {
		path, _, err := neo4j.GetRecordValue[string](record, "path")
		if err != nil {
			return nil, fmt.Errorf("neo4j sibling path: %w", err)
		}
		out = append(out, path)
	}
	return out, nil
}

// RegisterCategories merges every category path and all of its ancestors.
func (t *CategoryTree) RegisterCategories(ctx context.Context, categories []string) error {
	nodes := categoryNodes(categories, t.delimiter)
	if len(nodes) == 0 {
		return nil
	}
	if err := t.run.write(ctx, registerCypher, map[string]any{"nodes": nodes}); err != nil {
		return fmt.Errorf("neo4j register categories: %w", err)
	}
	return nil
}

// categoryNodes lists {path, parent} pairs, parents before children.
func categoryNodes(categories []string, delimiter string) []map[string]any {
	seen := map[string]struct{}{}
	var nodes []map[string]any
	for _, category := range categories {
		category = strings.TrimSpace(category)
		if category == "" {
			continue
		}
		chain := catfilter.Ancestors(category, delimiter)
		slices.Reverse(chain)
		chain = append(chain, category)

		parent := ""
		for _, path := range chain {
			if _, ok := seen[path]; !ok {
				seen[path] = struct{}{}
				nodes = append(nodes, map[string]any{"path": path, "parent": parent})
			}
			parent = path
		}
	}
	return nodes
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return records.([]*neo4j.Record), nil
}

func (r *driverRunner) write(ctx context.Context, cypher string, params map[string]any) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}
