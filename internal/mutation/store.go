// Package mutation applies mutation batches transactionally against the
// underlying graph store, implementing the upsert/merge protocol and
// per-entity serialization.
//
// A batch either applies completely or not at all: every operation is
// validated against the schema registry before the first write, the whole
// batch runs inside one storage transaction, and any failure rolls it back.
// Operations apply in submitted order, so an edge may reference a node
// created earlier in its batch.
package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/relay-ops/graphkb/internal/graph"
	"github.com/relay-ops/graphkb/internal/identity"
	"github.com/relay-ops/graphkb/internal/schema"
)

// Config holds the mutation policy flags.
type Config struct {
	// AllowStubNodes lets an edge operation auto-create a missing endpoint
	// as a stub node (slug only, version 1) instead of failing with a
	// dangling reference. Off by default; stubs bypass required-property
	// checks, which is why this is a deliberate opt-in.
	AllowStubNodes bool

	// MaxRetries bounds transaction retries on write-write conflicts before
	// surfacing ConcurrentUpdateConflict. The whole batch is always safe to
	// resubmit because every mutation is idempotent via deterministic ids.
	MaxRetries int
}

// DefaultConfig returns the strict defaults.
func DefaultConfig() Config {
	return Config{AllowStubNodes: false, MaxRetries: 5}
}

// Store coordinates batch application.
type Store struct {
	backend graph.Store
	reg     *schema.Registry
	cfg     Config
	locks   *lockTable
}

// New creates a mutation store over the given backend and registry.
func New(backend graph.Store, reg *schema.Registry, cfg Config) *Store {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Store{
		backend: backend,
		reg:     reg,
		cfg:     cfg,
		locks:   newLockTable(),
	}
}

// resolvedOp is an operation after validation: ids computed, properties
// split into declared and extras.
type resolvedOp struct {
	kind     graph.OpKind
	label    string
	slug     string
	nodeID   string
	relType  string
	srcLabel string
	srcSlug  string
	srcID    string
	dstLabel string
	dstSlug  string
	dstID    string
	declared graph.Props
	extras   graph.Props
}

// Apply validates and applies one batch for one tenant. On failure the
// returned error wraps a *graph.BatchError carrying the index of the first
// failing operation; the store is left untouched.
func (s *Store) Apply(ctx context.Context, tenant string, batch graph.Batch) (*graph.CommitResult, error) {
	if tenant == "" {
		return nil, &identity.InvalidIdentityError{Field: "tenant"}
	}
	if len(batch.Operations) == 0 {
		return &graph.CommitResult{}, nil
	}

	// Phase 1: validate everything before touching storage. Any violation
	// aborts the whole batch here.
	resolved := make([]resolvedOp, len(batch.Operations))
	for i, op := range batch.Operations {
		r, err := s.resolve(tenant, op)
		if err != nil {
			return nil, &graph.BatchError{Index: i, Err: err}
		}
		resolved[i] = r
	}

	// Phase 2: serialize on every touched identity, then apply inside one
	// transaction, retrying on storage-level write conflicts.
	release := s.locks.acquire(touchedIDs(resolved))
	defer release()

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		result, err := s.applyOnce(ctx, tenant, resolved)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, graph.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %d attempts: %v", graph.ErrConflict, s.cfg.MaxRetries, lastErr)
}

// resolve validates one operation against the schema and computes its
// deterministic ids.
func (s *Store) resolve(tenant string, op graph.Operation) (resolvedOp, error) {
	switch op.Kind {
	case graph.OpUpsertNode:
		declared, extras, err := s.reg.SplitNodeProps(op.Label, op.Props)
		if err != nil {
			return resolvedOp{}, err
		}
		id, err := identity.NodeID(tenant, op.Label, op.Slug)
		if err != nil {
			return resolvedOp{}, err
		}
		return resolvedOp{
			kind: op.Kind, label: op.Label, slug: op.Slug, nodeID: id,
			declared: declared, extras: extras,
		}, nil

	case graph.OpDeleteNode:
		if !s.reg.KnownLabel(op.Label) {
			return resolvedOp{}, &graph.ViolationError{Label: op.Label, Reason: "label not declared", Sentinel: graph.ErrUnknownLabel}
		}
		id, err := identity.NodeID(tenant, op.Label, op.Slug)
		if err != nil {
			return resolvedOp{}, err
		}
		return resolvedOp{kind: op.Kind, label: op.Label, slug: op.Slug, nodeID: id}, nil

	case graph.OpUpsertEdge, graph.OpDeleteEdge:
		declared, extras, err := s.reg.SplitRelProps(op.Type, op.Props)
		if err != nil {
			return resolvedOp{}, err
		}
		if !s.reg.EndpointAllowed(op.Type, op.Source.Label, op.Target.Label) {
			return resolvedOp{}, &graph.ViolationError{
				Label:    op.Type,
				Reason:   fmt.Sprintf("endpoint pair %s->%s not declared", op.Source.Label, op.Target.Label),
				Sentinel: graph.ErrSchemaViolation,
			}
		}
		srcID, err := identity.NodeID(tenant, op.Source.Label, op.Source.Slug)
		if err != nil {
			return resolvedOp{}, err
		}
		dstID, err := identity.NodeID(tenant, op.Target.Label, op.Target.Slug)
		if err != nil {
			return resolvedOp{}, err
		}
		return resolvedOp{
			kind: op.Kind, relType: op.Type,
			srcLabel: op.Source.Label, srcSlug: op.Source.Slug, srcID: srcID,
			dstLabel: op.Target.Label, dstSlug: op.Target.Slug, dstID: dstID,
			declared: declared, extras: extras,
		}, nil

	default:
		return resolvedOp{}, fmt.Errorf("mutation: unknown operation kind %q", op.Kind)
	}
}

// touchedIDs collects every entity identity a batch writes, for lock
// acquisition. Edge endpoints are included: endpoint existence checks and
// stub creation are reads-then-writes on those identities too.
func touchedIDs(ops []resolvedOp) []string {
	var ids []string
	for _, r := range ops {
		switch r.kind {
		case graph.OpUpsertNode, graph.OpDeleteNode:
			ids = append(ids, r.nodeID)
		case graph.OpUpsertEdge, graph.OpDeleteEdge:
			ids = append(ids, r.srcID, r.dstID)
		}
	}
	return ids
}

// applyOnce runs the batch inside one transaction.
func (s *Store) applyOnce(ctx context.Context, tenant string, ops []resolvedOp) (*graph.CommitResult, error) {
	tx, err := s.backend.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	result := &graph.CommitResult{}
	for i, r := range ops {
		var err error
		switch r.kind {
		case graph.OpUpsertNode:
			err = s.upsertNode(ctx, tx, tenant, r, result)
		case graph.OpUpsertEdge:
			err = s.upsertEdge(ctx, tx, tenant, r, result)
		case graph.OpDeleteNode:
			err = s.deleteNode(ctx, tx, r, result)
		case graph.OpDeleteEdge:
			err = s.deleteEdge(ctx, tx, tenant, r, result)
		}
		if err != nil {
			if errors.Is(err, graph.ErrConflict) {
				return nil, err
			}
			return nil, &graph.BatchError{Index: i, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, graph.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: commit: %v", graph.ErrStorageUnavailable, err)
	}
	return result, nil
}

func (s *Store) upsertNode(ctx context.Context, tx graph.Tx, tenant string, r resolvedOp, result *graph.CommitResult) error {
	existing, err := tx.GetNode(ctx, r.label, r.nodeID)
	switch {
	case errors.Is(err, graph.ErrNotFound):
		if err := s.reg.CheckRequired(r.label, r.declared); err != nil {
			return err
		}
		result.NodesCreated++
		return tx.PutNode(ctx, graph.NodeRecord{
			ID: r.nodeID, Tenant: tenant, Label: r.label, Slug: r.slug,
			Props: r.declared, Extras: r.extras, Version: 1,
		})
	case err != nil:
		return err
	}

	props, propsChanged := mergeProps(existing.Props, r.declared)
	extras, extrasChanged := mergeProps(existing.Extras, r.extras)
	if !propsChanged && !extrasChanged {
		result.Unchanged++
		return nil
	}
	existing.Props = props
	existing.Extras = extras
	existing.Version++
	result.NodesUpdated++
	return tx.PutNode(ctx, *existing)
}

func (s *Store) upsertEdge(ctx context.Context, tx graph.Tx, tenant string, r resolvedOp, result *graph.CommitResult) error {
	if err := s.ensureEndpoint(ctx, tx, tenant, r.srcLabel, r.srcSlug, r.srcID, result); err != nil {
		return err
	}
	if err := s.ensureEndpoint(ctx, tx, tenant, r.dstLabel, r.dstSlug, r.dstID, result); err != nil {
		return err
	}

	edgeID, err := identity.EdgeID(tenant, r.relType, r.srcID, r.dstID)
	if err != nil {
		return err
	}
	existing, err := tx.GetEdge(ctx, r.relType, edgeID)
	switch {
	case errors.Is(err, graph.ErrNotFound):
		result.EdgesCreated++
		return tx.PutEdge(ctx, graph.EdgeRecord{
			ID: edgeID, Tenant: tenant, Type: r.relType,
			SourceID: r.srcID, TargetID: r.dstID,
			Props: r.declared, Extras: r.extras,
		})
	case err != nil:
		return err
	}

	props, propsChanged := mergeProps(existing.Props, r.declared)
	extras, extrasChanged := mergeProps(existing.Extras, r.extras)
	if !propsChanged && !extrasChanged {
		result.Unchanged++
		return nil
	}
	existing.Props = props
	existing.Extras = extras
	result.EdgesUpdated++
	return tx.PutEdge(ctx, *existing)
}

// ensureEndpoint verifies an edge endpoint exists, in the store or staged
// earlier in this batch's transaction. Under the stub policy a missing
// endpoint is created instead.
func (s *Store) ensureEndpoint(ctx context.Context, tx graph.Tx, tenant, label, slug, id string, result *graph.CommitResult) error {
	_, err := tx.GetNode(ctx, label, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return err
	}
	if !s.cfg.AllowStubNodes {
		return fmt.Errorf("%w: %s %q", graph.ErrDanglingReference, label, slug)
	}
	result.NodesCreated++
	return tx.PutNode(ctx, graph.NodeRecord{
		ID: id, Tenant: tenant, Label: label, Slug: slug, Version: 1,
	})
}

// deleteNode removes a node and, by the storage contract, every incident
// edge. Deleting an absent node is a no-op so a whole-batch resubmit stays
// safe.
func (s *Store) deleteNode(ctx context.Context, tx graph.Tx, r resolvedOp, result *graph.CommitResult) error {
	err := tx.DeleteNode(ctx, r.label, r.nodeID)
	switch {
	case errors.Is(err, graph.ErrNotFound):
		result.Unchanged++
		return nil
	case err != nil:
		return err
	}
	result.NodesDeleted++
	return nil
}

func (s *Store) deleteEdge(ctx context.Context, tx graph.Tx, tenant string, r resolvedOp, result *graph.CommitResult) error {
	edgeID, err := identity.EdgeID(tenant, r.relType, r.srcID, r.dstID)
	if err != nil {
		return err
	}
	err = tx.DeleteEdge(ctx, r.relType, edgeID)
	switch {
	case errors.Is(err, graph.ErrNotFound):
		result.Unchanged++
		return nil
	case err != nil:
		return err
	}
	result.EdgesDeleted++
	return nil
}
