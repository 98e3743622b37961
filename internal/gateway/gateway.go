// Package gateway is the read-side front door: it parses constrained Cypher,
// validates it against the schema registry, pins every pattern to the calling
// tenant, bounds the result size, and executes it against the graph store
// under a deadline.
//
// A query moves through received -> validated -> rewritten -> executing and
// ends in exactly one terminal state: completed, rejected, timed_out, or
// failed. Nothing reaches storage before validation and rewriting succeed.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relay-ops/graphkb/internal/cypher"
	"github.com/relay-ops/graphkb/internal/graph"
	"github.com/relay-ops/graphkb/internal/schema"
)

// Terminal states, as reported in metrics.
const (
	stateCompleted = "completed"
	stateRejected  = "rejected"
	stateTimedOut  = "timed_out"
	stateFailed    = "failed"
)

// Config bounds what any single query may cost.
type Config struct {
	// DefaultTimeout applies when the caller sets none.
	DefaultTimeout time.Duration
	// DefaultRowLimit is injected into queries that carry no LIMIT.
	DefaultRowLimit int64
	// MaxRowLimit caps every query's LIMIT, explicit or injected.
	MaxRowLimit int64
}

// DefaultConfig returns the standard gateway bounds.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:  10 * time.Second,
		DefaultRowLimit: 100,
		MaxRowLimit:     1000,
	}
}

// Options are per-call overrides. Zero values mean "use the gateway config";
// neither can exceed the configured maximums.
type Options struct {
	Timeout time.Duration
	MaxRows int64
}

// Gateway validates, rewrites, and executes tenant-scoped read queries.
type Gateway struct {
	store graph.Store
	reg   *schema.Registry
	cfg   Config
}

// New creates a gateway over the given store and registry.
func New(store graph.Store, reg *schema.Registry, cfg Config) *Gateway {
	def := DefaultConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.DefaultRowLimit <= 0 {
		cfg.DefaultRowLimit = def.DefaultRowLimit
	}
	if cfg.MaxRowLimit <= 0 {
		cfg.MaxRowLimit = def.MaxRowLimit
	}
	return &Gateway{store: store, reg: reg, cfg: cfg}
}

// Execute runs one query for one tenant and returns a cursor over its rows.
func (g *Gateway) Execute(ctx context.Context, tenant, text string, opts Options) (*ResultSet, error) {
	start := time.Now()
	id := uuid.NewString()

	rs, state, err := g.execute(ctx, tenant, text, opts, id)
	queriesTotal.WithLabelValues(state).Inc()
	queryDuration.Observe(time.Since(start).Seconds())
	if rs != nil {
		queryRows.Observe(float64(rs.Len()))
	}
	return rs, err
}

func (g *Gateway) execute(ctx context.Context, tenant, text string, opts Options, id string) (*ResultSet, string, error) {
	if tenant == "" {
		return nil, stateRejected, fmt.Errorf("%w: missing tenant", graph.ErrQueryRejected)
	}

	q, err := cypher.Parse(text)
	if err != nil {
		return nil, stateRejected, fmt.Errorf("%w: %v", graph.ErrQueryRejected, err)
	}
	if len(q.Return) != 1 {
		return nil, stateRejected, fmt.Errorf("%w: RETURN must have exactly one item, got %d",
			graph.ErrUnsupportedShape, len(q.Return))
	}
	if err := g.validate(q); err != nil {
		return nil, stateRejected, err
	}

	g.rewrite(q, tenant, opts.MaxRows)

	timeout := opts.Timeout
	if timeout <= 0 || timeout > g.cfg.DefaultTimeout {
		timeout = g.cfg.DefaultTimeout
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := g.store.Query(qctx, q)
	switch {
	case err == nil:
		return &ResultSet{id: id, rows: rows}, stateCompleted, nil
	case ctx.Err() != nil:
		// The caller gave up; that is their cancellation, not a storage
		// outage or a gateway deadline.
		return nil, stateFailed, fmt.Errorf("query cancelled: %w", ctx.Err())
	case qctx.Err() != nil:
		return nil, stateTimedOut, fmt.Errorf("%w: after %s", graph.ErrQueryTimeout, timeout)
	default:
		return nil, stateFailed, fmt.Errorf("%w: %v", graph.ErrStorageUnavailable, err)
	}
}

// validate checks every identifier the query references against the current
// schema snapshot. The query never reaches storage with an unknown label,
// relationship type, or property.
func (g *Gateway) validate(q *cypher.Query) error {
	for i := range q.Nodes {
		n := &q.Nodes[i]
		if n.Label == "" {
			return fmt.Errorf("%w: node pattern without a label", graph.ErrQueryRejected)
		}
		if !g.reg.KnownLabel(n.Label) {
			return fmt.Errorf("%w: %q", graph.ErrUnknownLabel, n.Label)
		}
		for prop := range n.Props {
			if err := g.checkNodeProp(n.Label, prop); err != nil {
				return err
			}
		}
	}
	for i := range q.Rels {
		r := &q.Rels[i]
		if !g.reg.KnownRelationship(r.Type) {
			return fmt.Errorf("%w: relationship %q", graph.ErrUnknownLabel, r.Type)
		}
		for prop := range r.Props {
			if err := g.checkRelProp(r.Type, prop); err != nil {
				return err
			}
		}
	}
	for _, c := range q.Where {
		if err := g.checkRef(q, c.Alias, c.Prop); err != nil {
			return err
		}
	}

	item := q.Return[0]
	if item.Kind == cypher.ReturnProperty {
		if err := g.checkRef(q, item.Alias, item.Prop); err != nil {
			return err
		}
	} else if q.AliasPattern(item.Alias) == nil && q.RelAliasPattern(item.Alias) == nil {
		return fmt.Errorf("%w: unbound alias %q in RETURN", graph.ErrQueryRejected, item.Alias)
	}
	if q.Order != nil {
		if err := g.checkRef(q, q.Order.Alias, q.Order.Prop); err != nil {
			return err
		}
	}
	return nil
}

// checkRef resolves alias.prop against whichever pattern binds the alias.
func (g *Gateway) checkRef(q *cypher.Query, alias, prop string) error {
	if n := q.AliasPattern(alias); n != nil {
		return g.checkNodeProp(n.Label, prop)
	}
	if r := q.RelAliasPattern(alias); r != nil {
		return g.checkRelProp(r.Type, prop)
	}
	return fmt.Errorf("%w: unbound alias %q", graph.ErrQueryRejected, alias)
}

func (g *Gateway) checkNodeProp(label, prop string) error {
	if prop == "tenant" {
		return fmt.Errorf("%w: tenant is implicit and may not be referenced", graph.ErrQueryRejected)
	}
	if _, ok := g.reg.QueryPropKind(label, prop); !ok {
		return fmt.Errorf("%w: %s has no property %q", graph.ErrQueryRejected, label, prop)
	}
	return nil
}

func (g *Gateway) checkRelProp(relType, prop string) error {
	if prop == "tenant" {
		return fmt.Errorf("%w: tenant is implicit and may not be referenced", graph.ErrQueryRejected)
	}
	if _, ok := g.reg.QueryRelPropKind(relType, prop); !ok {
		return fmt.Errorf("%w: %s has no property %q", graph.ErrQueryRejected, relType, prop)
	}
	return nil
}

// rewrite pins every pattern to the tenant and bounds the row count. This
// runs after validation, so by construction every pattern is labeled and the
// caller could not have referenced tenant themselves.
func (g *Gateway) rewrite(q *cypher.Query, tenant string, maxRows int64) {
	for i := range q.Nodes {
		if q.Nodes[i].Props == nil {
			q.Nodes[i].Props = map[string]any{}
		}
		q.Nodes[i].Props["tenant"] = tenant
	}
	for i := range q.Rels {
		if q.Rels[i].Props == nil {
			q.Rels[i].Props = map[string]any{}
		}
		q.Rels[i].Props["tenant"] = tenant
	}

	bound := g.cfg.MaxRowLimit
	if maxRows > 0 && maxRows < bound {
		bound = maxRows
	}
	switch {
	case q.Limit == 0:
		q.Limit = min(g.cfg.DefaultRowLimit, bound)
	case q.Limit > bound:
		q.Limit = bound
	}
}

// IsRejection reports whether err is a validation-stage refusal, letting
// transport layers map errors to status codes without re-parsing messages.
func IsRejection(err error) bool {
	return errors.Is(err, graph.ErrQueryRejected) ||
		errors.Is(err, graph.ErrUnsupportedShape) ||
		errors.Is(err, graph.ErrUnknownLabel)
}
