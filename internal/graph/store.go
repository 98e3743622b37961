package graph

import (
	"context"
	"io"

	"github.com/relay-ops/graphkb/internal/cypher"
)

// PropDef declares one typed property column for DDL generation.
type PropDef struct {
	Name string
	Kind ValueKind
}

// NodeTableDef describes the storage table for one node label.
type NodeTableDef struct {
	Label string
	Props []PropDef
}

// RelTableDef describes the storage table for one relationship type.
// Pairs lists the allowed (source label, target label) endpoint pairs.
type RelTableDef struct {
	Type  string
	Pairs [][2]string
	Props []PropDef
}

// DDL is the storage-level description of the graph schema, produced by the
// schema registry and consumed by Store.InitSchema.
type DDL struct {
	Nodes []NodeTableDef
	Rels  []RelTableDef
}

// Store is the interface for the underlying graph backend.
// Implementations: KuzuStore (production), MemStore (testing/ephemeral).
// All graph access from the mutation store and the query gateway goes
// through this interface.
type Store interface {
	io.Closer

	// InitSchema creates node and relationship tables for the given schema.
	// Idempotent; called at startup and after a registry reload.
	InitSchema(ctx context.Context, ddl DDL) error

	// Begin opens a transaction. Batches are applied inside exactly one
	// transaction so the store never observes a partial batch.
	Begin(ctx context.Context) (Tx, error)

	// Query executes a validated, tenant-rewritten read query and returns
	// its single-column rows. The gateway owns validation; backends execute.
	Query(ctx context.Context, q *cypher.Query) ([]any, error)

	// Stats counts one tenant's records per label and relationship type.
	Stats(ctx context.Context, tenant string) (*Stats, error)

	// Export dumps one tenant's full slice of the graph in a deterministic
	// order, for backup and diagram generation.
	Export(ctx context.Context, tenant string) (*Snapshot, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Tx is a single storage transaction. Lookups observe writes staged earlier
// in the same transaction, which is what lets an edge operation reference a
// node created earlier in its batch.
type Tx interface {
	// GetNode fetches a node by label and deterministic id.
	// Returns ErrNotFound if absent.
	GetNode(ctx context.Context, label, id string) (*NodeRecord, error)

	// PutNode creates or fully replaces a node record.
	PutNode(ctx context.Context, rec NodeRecord) error

	// DeleteNode removes a node and every edge incident to it. The cascade
	// is part of the contract, not an implementation accident.
	// Returns ErrNotFound if the node is absent.
	DeleteNode(ctx context.Context, label, id string) error

	// GetEdge fetches an edge by relationship type and deterministic id.
	// Returns ErrNotFound if absent.
	GetEdge(ctx context.Context, relType, id string) (*EdgeRecord, error)

	// PutEdge creates or fully replaces an edge record.
	PutEdge(ctx context.Context, rec EdgeRecord) error

	// DeleteEdge removes an edge. Returns ErrNotFound if absent.
	DeleteEdge(ctx context.Context, relType, id string) error

	// Commit makes the transaction's writes durable and visible.
	Commit(ctx context.Context) error

	// Rollback discards the transaction. Safe to call after Commit.
	Rollback() error
}
