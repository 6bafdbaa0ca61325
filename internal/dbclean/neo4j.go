package dbclean

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// deleteNodesCypher deletes in batches so large graphs do not exhaust the
// transaction memory pool.
const deleteNodesCypher = `
CALL () {
    MATCH (n)
    WITH n
    DETACH DELETE n
} IN TRANSACTIONS OF 50000 ROWS`

// Neo4j empties the graph and drops its schema.
type Neo4j struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4j creates a driver for uri with basic auth.
func NewNeo4j(uri, user, password string, logger *zap.Logger) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Neo4j{driver: driver, logger: logger}, nil
}

func (n *Neo4j) Name() string { return "neo4j" }

func (n *Neo4j) Ping(ctx context.Context) error {
	return n.driver.VerifyConnectivity(ctx)
}

// Clean deletes every node and relationship, then drops all constraints
// and every index except the built-in LOOKUP ones.
func (n *Neo4j) Clean(ctx context.Context) error {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	// CALL ... IN TRANSACTIONS needs an auto-commit transaction
	if err := run(ctx, session, deleteNodesCypher); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}

	constraints, err := collect(ctx, session, "SHOW CONSTRAINTS")
	if err != nil {
		return fmt.Errorf("list constraints: %w", err)
	}
	for _, c := range constraints {
		name, _ := c["name"].(string)
		if name == "" {
			continue
		}
		n.logger.Debug("dropping constraint", zap.String("name", name))
		if err := run(ctx, session, "DROP CONSTRAINT "+quoteName(name)+" IF EXISTS"); err != nil {
			return fmt.Errorf("drop constraint %s: %w", name, err)
		}
	}

	indexes, err := collect(ctx, session, "SHOW INDEXES")
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	for _, idx := range indexes {
		name, _ := idx["name"].(string)
		if name == "" || !droppableIndex(idx) {
			continue
		}
		n.logger.Debug("dropping index", zap.String("name", name))
		if err := run(ctx, session, "DROP INDEX "+quoteName(name)+" IF EXISTS"); err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	return nil
}

func (n *Neo4j) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

func run(ctx context.Context, session neo4j.SessionWithContext, cypher string) error {
	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func collect(ctx context.Context, session neo4j.SessionWithContext, cypher string) ([]map[string]any, error) {
	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.AsMap())
	}
	return rows, nil
}

// droppableIndex skips LOOKUP indexes and indexes owned by a constraint,
// which disappear with the constraint itself.
func droppableIndex(idx map[string]any) bool {
	if t, _ := idx["type"].(string); t == "LOOKUP" {
		return false
	}
	if owner, ok := idx["owningConstraint"].(string); ok && owner != "" {
		return false
	}
	return true
}

// quoteName backtick-quotes a schema object name.
func quoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func isNeo4jAuthError(err error) bool {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		return strings.HasPrefix(nerr.Code, "Neo.ClientError.Security.")
	}
	return false
}

// Inspect reports node and relationship totals and per-label and per-type
// counts. apoc.meta.stats is used when APOC is installed, plain Cypher
// counts otherwise.
func (n *Neo4j) Inspect(ctx context.Context) (*Inventory, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	if version, err := collect(ctx, session, "RETURN apoc.version() AS version"); err == nil && len(version) == 1 {
		stats, err := collect(ctx, session, "CALL apoc.meta.stats()")
		if err == nil && len(stats) == 1 {
			counts, err := metaStatsCounts(stats[0])
			if err == nil {
				return &Inventory{DB: n.Name(), Method: "apoc.meta.stats", Counts: counts}, nil
			}
			n.logger.Debug("unexpected apoc.meta.stats shape", zap.Error(err))
		}
	}

	n.logger.Debug("APOC unavailable, counting with Cypher")
	counts, err := n.countWithCypher(ctx, session)
	if err != nil {
		return nil, err
	}
	return &Inventory{DB: n.Name(), Method: "cypher", Counts: counts}, nil
}

// metaStatsCounts converts one apoc.meta.stats() row.
func metaStatsCounts(row map[string]any) ([]Count, error) {
	nodes, err := toInt64(row["nodeCount"])
	if err != nil {
		return nil, fmt.Errorf("nodeCount: %w", err)
	}
	rels, err := toInt64(row["relCount"])
	if err != nil {
		return nil, fmt.Errorf("relCount: %w", err)
	}
	labels, err := toCountMap(row["labels"])
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	types, err := toCountMap(row["relTypesCount"])
	if err != nil {
		return nil, fmt.Errorf("relTypesCount: %w", err)
	}

	counts := []Count{
		{Group: GroupTotal, Name: "nodes", Value: nodes},
		{Group: GroupTotal, Name: "relationships", Value: rels},
	}
	counts = append(counts, sortedCounts(GroupLabel, labels)...)
	return append(counts, sortedCounts(GroupRelationship, types)...), nil
}

func (n *Neo4j) countWithCypher(ctx context.Context, session neo4j.SessionWithContext) ([]Count, error) {
	nodes, err := single(ctx, session, "MATCH (n) RETURN count(n) AS c")
	if err != nil {
		return nil, fmt.Errorf("count nodes: %w", err)
	}
	rels, err := single(ctx, session, "MATCH ()-[r]->() RETURN count(r) AS c")
	if err != nil {
		return nil, fmt.Errorf("count relationships: %w", err)
	}

	labels, err := countEach(ctx, session,
		"CALL db.labels() YIELD label RETURN label AS name",
		func(name string) string { return "MATCH (n:" + quoteName(name) + ") RETURN count(n) AS c" })
	if err != nil {
		return nil, fmt.Errorf("count labels: %w", err)
	}
	types, err := countEach(ctx, session,
		"CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType AS name",
		func(name string) string { return "MATCH ()-[r:" + quoteName(name) + "]->() RETURN count(r) AS c" })
	if err != nil {
		return nil, fmt.Errorf("count relationship types: %w", err)
	}

	counts := []Count{
		{Group: GroupTotal, Name: "nodes", Value: nodes},
		{Group: GroupTotal, Name: "relationships", Value: rels},
	}
	counts = append(counts, sortedCounts(GroupLabel, labels)...)
	return append(counts, sortedCounts(GroupRelationship, types)...), nil
}

// countEach lists names with listCypher and runs countCypher(name) for each.
func countEach(ctx context.Context, session neo4j.SessionWithContext, listCypher string, countCypher func(string) string) (map[string]int64, error) {
	rows, err := collect(ctx, session, listCypher)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		name, _ := row["name"].(string)
		if name == "" {
			continue
		}
		c, err := single(ctx, session, countCypher(name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

// single runs a query returning one row with an integer column "c".
func single(ctx context.Context, session neo4j.SessionWithContext, cypher string) (int64, error) {
	rows, err := collect(ctx, session, cypher)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("expected one row, got %d", len(rows))
	}
	return toInt64(rows[0]["c"])
}
