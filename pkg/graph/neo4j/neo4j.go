// Package neo4j implements the graph store on a Neo4j database using
// parameterized MERGE statements.
package neo4j

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/chatgraph/chatgraph/pkg/graph"
)

const defaultTimeout = 10 * time.Second

// GraphNeo4jStore persists nodes and relations through the Bolt driver.
// Safe for concurrent use; each call runs in its own managed session.
type GraphNeo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

type NewGraphNeo4jStoreParams struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// NewGraphNeo4jStore connects to the database and verifies connectivity
// before returning.
func NewGraphNeo4jStore(ctx context.Context, params NewGraphNeo4jStoreParams) (*GraphNeo4jStore, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	driver, err := neo4j.NewDriverWithContext(params.URI, neo4j.BasicAuth(params.Username, params.Password, ""), func(cfg *neo4j.Config) {
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j at %s: %w", params.URI, err)
	}

	return &GraphNeo4jStore{driver: driver, database: params.Database}, nil
}

func (s *GraphNeo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// UpsertNode merges a node on its key properties and overlays the rest.
func (s *GraphNeo4jStore) UpsertNode(ctx context.Context, ref graph.NodeRef, props map[string]any) error {
	query := fmt.Sprintf(
		"MERGE (n:`%s` {%s}) SET n += $props",
		sanitizeSymbol(ref.Label),
		keyPattern("n", ref.Keys),
	)
	params := keyParams("n", ref.Keys)
	params["props"] = nonNilProps(props)

	return s.write(ctx, query, params)
}

// UpsertRelation merges both endpoint nodes, then the typed edge between
// them, and overlays the edge properties.
func (s *GraphNeo4jStore) UpsertRelation(ctx context.Context, start graph.NodeRef, end graph.NodeRef, relType string, props map[string]any) error {
	query := fmt.Sprintf(
		"MERGE (a:`%s` {%s}) MERGE (b:`%s` {%s}) MERGE (a)-[r:`%s`]->(b) SET r += $props",
		sanitizeSymbol(start.Label),
		keyPattern("a", start.Keys),
		sanitizeSymbol(end.Label),
		keyPattern("b", end.Keys),
		sanitizeSymbol(relType),
	)
	params := keyParams("a", start.Keys)
	for name, value := range keyParams("b", end.Keys) {
		params[name] = value
	}
	params["props"] = nonNilProps(props)

	return s.write(ctx, query, params)
}

func (s *GraphNeo4jStore) write(ctx context.Context, query string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, params)
	})
	return err
}

// keyPattern renders the merge-key map of one node as a Cypher property
// pattern with deterministic key order.
func keyPattern(prefix string, keys map[string]any) string {
	names := sortedKeys(keys)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("`%s`: $%s_%s", sanitizeSymbol(name), prefix, paramName(name)))
	}
	return strings.Join(parts, ", ")
}

func keyParams(prefix string, keys map[string]any) map[string]any {
	params := make(map[string]any, len(keys)+1)
	for name, value := range keys {
		params[prefix+"_"+paramName(name)] = value
	}
	return params
}

func sortedKeys(keys map[string]any) []string {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sanitizeSymbol makes a label or relationship type safe to interpolate
// into a backtick-quoted Cypher symbol. Labels cannot be passed as query
// parameters.
func sanitizeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "`", "")
}

// paramName reduces a key name to characters valid in a Cypher parameter.
func paramName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func nonNilProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
