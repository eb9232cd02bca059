package graph

import "context"

// NodeRef identifies a node in the graph store by label and merge keys.
// Keys are matched exactly on merge; other properties are overlaid.
type NodeRef struct {
	Label string
	Keys  map[string]any
}

// Store is the persistence boundary of the pipeline. Implementations must
// make both operations idempotent: merging the same node or relation twice
// leaves the graph unchanged.
type Store interface {
	UpsertNode(ctx context.Context, ref NodeRef, props map[string]any) error
	UpsertRelation(ctx context.Context, start NodeRef, end NodeRef, relType string, props map[string]any) error
}
