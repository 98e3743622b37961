package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/relay-ops/graphkb/internal/cypher"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
// Used by tests and by ephemeral runs without a database path; it evaluates
// the constrained query AST directly instead of rendering Cypher text.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string]NodeRecord // key: deterministic node id
	edges map[string]EdgeRecord // key: deterministic edge id
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[string]NodeRecord),
		edges: make(map[string]EdgeRecord),
	}
}

// InitSchema is a no-op for the in-memory store; records are validated
// upstream by the schema registry.
func (m *MemStore) InitSchema(_ context.Context, _ DDL) error {
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *MemStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

// --- Transactions ---

// memTx stages writes in overlay maps and applies them on Commit under the
// store lock. Reads inside the transaction observe staged writes first, so
// an edge operation can resolve a node created earlier in its batch.
//
// Every node read from the store records the version it observed (0 when
// absent); Commit re-checks those versions and fails with ErrConflict if a
// concurrent transaction moved one, so a read-merge-write never silently
// overwrites an interleaved update.
type memTx struct {
	store    *MemStore
	putNodes map[string]NodeRecord
	delNodes map[string]bool
	putEdges map[string]EdgeRecord
	delEdges map[string]bool
	readVers map[string]int64
	done     bool
}

// Begin opens a transaction backed by an overlay.
func (m *MemStore) Begin(_ context.Context) (Tx, error) {
	return &memTx{
		store:    m,
		putNodes: make(map[string]NodeRecord),
		delNodes: make(map[string]bool),
		putEdges: make(map[string]EdgeRecord),
		delEdges: make(map[string]bool),
		readVers: make(map[string]int64),
	}, nil
}

func (t *memTx) GetNode(_ context.Context, label, id string) (*NodeRecord, error) {
	if t.delNodes[id] {
		return nil, ErrNotFound
	}
	if rec, ok := t.putNodes[id]; ok {
		return cloneNode(rec), nil
	}
	t.store.mu.RLock()
	rec, ok := t.store.nodes[id]
	t.store.mu.RUnlock()
	if _, seen := t.readVers[id]; !seen {
		if ok {
			t.readVers[id] = rec.Version
		} else {
			t.readVers[id] = 0
		}
	}
	if !ok || rec.Label != label {
		return nil, ErrNotFound
	}
	return cloneNode(rec), nil
}

func (t *memTx) PutNode(_ context.Context, rec NodeRecord) error {
	delete(t.delNodes, rec.ID)
	t.putNodes[rec.ID] = *cloneNode(rec)
	return nil
}

func (t *memTx) DeleteNode(ctx context.Context, label, id string) error {
	if _, err := t.GetNode(ctx, label, id); err != nil {
		return err
	}
	delete(t.putNodes, id)
	t.delNodes[id] = true

	// Cascade: stage deletion of every incident edge, staged or stored.
	for eid, e := range t.putEdges {
		if e.SourceID == id || e.TargetID == id {
			delete(t.putEdges, eid)
		}
	}
	t.store.mu.RLock()
	for eid, e := range t.store.edges {
		if e.SourceID == id || e.TargetID == id {
			t.delEdges[eid] = true
		}
	}
	t.store.mu.RUnlock()
	return nil
}

func (t *memTx) GetEdge(_ context.Context, relType, id string) (*EdgeRecord, error) {
	if t.delEdges[id] {
		return nil, ErrNotFound
	}
	if rec, ok := t.putEdges[id]; ok {
		return cloneEdge(rec), nil
	}
	t.store.mu.RLock()
	rec, ok := t.store.edges[id]
	t.store.mu.RUnlock()
	if !ok || rec.Type != relType {
		return nil, ErrNotFound
	}
	return cloneEdge(rec), nil
}

func (t *memTx) PutEdge(_ context.Context, rec EdgeRecord) error {
	delete(t.delEdges, rec.ID)
	t.putEdges[rec.ID] = *cloneEdge(rec)
	return nil
}

func (t *memTx) DeleteEdge(ctx context.Context, relType, id string) error {
	if _, err := t.GetEdge(ctx, relType, id); err != nil {
		return err
	}
	delete(t.putEdges, id)
	t.delEdges[id] = true
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, ver := range t.readVers {
		cur, ok := t.store.nodes[id]
		switch {
		case !ok && ver != 0:
			return fmt.Errorf("%w: node %s deleted concurrently", ErrConflict, id)
		case ok && cur.Version != ver:
			return fmt.Errorf("%w: node %s moved from version %d to %d", ErrConflict, id, ver, cur.Version)
		}
	}
	for id := range t.delEdges {
		delete(t.store.edges, id)
	}
	for id := range t.delNodes {
		delete(t.store.nodes, id)
	}
	for id, rec := range t.putNodes {
		t.store.nodes[id] = rec
	}
	for id, rec := range t.putEdges {
		t.store.edges[id] = rec
	}
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	return nil
}

// --- Stats ---

// Stats counts one tenant's records per label and relationship type.
func (m *MemStore) Stats(_ context.Context, tenant string) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &Stats{
		Tenant:       tenant,
		NodesByLabel: map[string]int64{},
		EdgesByType:  map[string]int64{},
	}
	for _, n := range m.nodes {
		if n.Tenant == tenant {
			st.NodesByLabel[n.Label]++
		}
	}
	for _, e := range m.edges {
		if e.Tenant == tenant {
			st.EdgesByType[e.Type]++
		}
	}
	return st, nil
}

// Export copies one tenant's records into an ordered snapshot.
func (m *MemStore) Export(_ context.Context, tenant string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{Tenant: tenant}
	for _, n := range m.nodes {
		if n.Tenant == tenant {
			snap.Nodes = append(snap.Nodes, *cloneNode(n))
		}
	}
	for _, e := range m.edges {
		if e.Tenant == tenant {
			snap.Edges = append(snap.Edges, *cloneEdge(e))
		}
	}
	sortSnapshot(snap)
	return snap, nil
}

// sortSnapshot orders a snapshot so repeated exports are byte-identical.
func sortSnapshot(snap *Snapshot) {
	sort.Slice(snap.Nodes, func(i, j int) bool {
		a, b := snap.Nodes[i], snap.Nodes[j]
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Slug < b.Slug
	})
	sort.Slice(snap.Edges, func(i, j int) bool {
		a, b := snap.Edges[i], snap.Edges[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.ID < b.ID
	})
}

// --- Query evaluation ---

// binding maps pattern aliases to the matched records for one result row.
type binding struct {
	nodes map[string]*NodeRecord
	rels  map[string]*EdgeRecord
}

// Query evaluates a validated, tenant-rewritten query AST against the maps.
// The gateway guarantees exactly one return item by the time a query gets
// here; count queries collapse to a single row.
func (m *MemStore) Query(ctx context.Context, q *cypher.Query) ([]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var bindings []binding
	for _, n := range m.nodes {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !m.nodeMatches(&n, q.Nodes[0]) {
			continue
		}
		rec := n
		b := binding{nodes: map[string]*NodeRecord{}, rels: map[string]*EdgeRecord{}}
		if q.Nodes[0].Alias != "" {
			b.nodes[q.Nodes[0].Alias] = &rec
		}
		bindings = append(bindings, m.extend(b, &rec, q, 0)...)
	}

	// WHERE conjunction.
	filtered := bindings[:0]
	for _, b := range bindings {
		ok := true
		for _, c := range q.Where {
			if !evalCondition(b, c) {
				ok = false
				break
			}
		}
		if ok {
			filtered = append(filtered, b)
		}
	}

	item := q.Return[0]
	if item.Kind == cypher.ReturnCount {
		return []any{int64(len(filtered))}, nil
	}

	if q.Order != nil {
		sortBindings(filtered, *q.Order)
	}

	var rows []any
	for _, b := range filtered {
		rows = append(rows, renderItem(b, item))
		if q.Limit > 0 && int64(len(rows)) >= q.Limit {
			break
		}
	}
	return rows, nil
}

// extend recursively walks the relationship chain starting at node pattern
// index i, producing one binding per complete path match.
func (m *MemStore) extend(b binding, cur *NodeRecord, q *cypher.Query, i int) []binding {
	if i == len(q.Rels) {
		return []binding{b}
	}
	rel := q.Rels[i]
	next := q.Nodes[i+1]

	var out []binding
	for _, e := range m.edges {
		if e.Type != rel.Type || !propsMatch(e.Props, e.Extras, edgeBuiltin(&e), rel.Props) {
			continue
		}
		var nextID string
		switch rel.Direction {
		case cypher.DirOut:
			if e.SourceID != cur.ID {
				continue
			}
			nextID = e.TargetID
		case cypher.DirIn:
			if e.TargetID != cur.ID {
				continue
			}
			nextID = e.SourceID
		}
		node, ok := m.nodes[nextID]
		if !ok || !m.nodeMatches(&node, next) {
			continue
		}
		edge := e
		rec := node
		nb := binding{
			nodes: map[string]*NodeRecord{},
			rels:  map[string]*EdgeRecord{},
		}
		for k, v := range b.nodes {
			nb.nodes[k] = v
		}
		for k, v := range b.rels {
			nb.rels[k] = v
		}
		if rel.Alias != "" {
			nb.rels[rel.Alias] = &edge
		}
		if next.Alias != "" {
			nb.nodes[next.Alias] = &rec
		}
		out = append(out, m.extend(nb, &rec, q, i+1)...)
	}
	return out
}

func (m *MemStore) nodeMatches(n *NodeRecord, p cypher.NodePattern) bool {
	if p.Label != "" && n.Label != p.Label {
		return false
	}
	return propsMatch(n.Props, n.Extras, nodeBuiltin(n), p.Props)
}

// nodeBuiltin exposes the fixed record columns to pattern matching.
func nodeBuiltin(n *NodeRecord) Props {
	return Props{
		"id":      String(n.ID),
		"tenant":  String(n.Tenant),
		"slug":    String(n.Slug),
		"version": Int(n.Version),
	}
}

func edgeBuiltin(e *EdgeRecord) Props {
	return Props{
		"id":     String(e.ID),
		"tenant": String(e.Tenant),
	}
}

// propsMatch checks every inline pattern literal against the record.
func propsMatch(props, extras, builtin Props, want map[string]any) bool {
	for name, literal := range want {
		val, ok := lookupProp(props, extras, builtin, name)
		if !ok || !literalEqual(val, literal) {
			return false
		}
	}
	return true
}

func lookupProp(props, extras, builtin Props, name string) (Value, bool) {
	if v, ok := builtin[name]; ok {
		return v, true
	}
	if v, ok := props[name]; ok {
		return v, true
	}
	if v, ok := extras[name]; ok {
		return v, true
	}
	return Value{}, false
}

// literalEqual compares a stored value with a query literal.
func literalEqual(v Value, lit any) bool {
	switch l := lit.(type) {
	case string:
		return v.Kind == KindString && v.Str == l
	case int64:
		switch v.Kind {
		case KindInt:
			return v.Int == l
		case KindFloat:
			return v.Flt == float64(l)
		}
		return false
	case float64:
		switch v.Kind {
		case KindFloat:
			return v.Flt == l
		case KindInt:
			return float64(v.Int) == l
		}
		return false
	case bool:
		return v.Kind == KindBool && v.Bool == l
	}
	return false
}

func evalCondition(b binding, c cypher.Condition) bool {
	var val Value
	var ok bool
	if n, found := b.nodes[c.Alias]; found {
		val, ok = lookupProp(n.Props, n.Extras, nodeBuiltin(n), c.Prop)
	} else if e, found := b.rels[c.Alias]; found {
		val, ok = lookupProp(e.Props, e.Extras, edgeBuiltin(e), c.Prop)
	}
	if !ok {
		return false
	}

	switch c.Op {
	case cypher.OpEq:
		return literalEqual(val, c.Value)
	case cypher.OpNeq:
		return !literalEqual(val, c.Value)
	case cypher.OpContains:
		switch val.Kind {
		case KindString:
			s, isStr := c.Value.(string)
			return isStr && strings.Contains(val.Str, s)
		case KindStringList:
			s, isStr := c.Value.(string)
			if !isStr {
				return false
			}
			for _, item := range val.List {
				if item == s {
					return true
				}
			}
		}
		return false
	case cypher.OpLt, cypher.OpLte, cypher.OpGt, cypher.OpGte:
		cmp, comparable := compareValues(val, c.Value)
		if !comparable {
			return false
		}
		switch c.Op {
		case cypher.OpLt:
			return cmp < 0
		case cypher.OpLte:
			return cmp <= 0
		case cypher.OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	}
	return false
}

// compareValues orders a stored value against a literal: -1, 0, or 1.
func compareValues(v Value, lit any) (int, bool) {
	switch l := lit.(type) {
	case string:
		if v.Kind != KindString {
			return 0, false
		}
		return strings.Compare(v.Str, l), true
	case int64:
		return compareNumeric(v, float64(l))
	case float64:
		return compareNumeric(v, l)
	}
	return 0, false
}

func compareNumeric(v Value, f float64) (int, bool) {
	n, ok := numericOf(v)
	if !ok {
		return 0, false
	}
	switch {
	case n < f:
		return -1, true
	case n > f:
		return 1, true
	}
	return 0, true
}

func numericOf(v Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Flt, true
	}
	return 0, false
}

// sortBindings orders result rows by the referenced property. The sort key
// may live on a node or a relationship alias; values are compared typed so
// numeric properties order numerically, not lexicographically. Rows where
// the key is absent sort first.
func sortBindings(bs []binding, ob cypher.OrderBy) {
	resolve := func(b binding) (Value, bool) {
		if n, ok := b.nodes[ob.Alias]; ok {
			return lookupProp(n.Props, n.Extras, nodeBuiltin(n), ob.Prop)
		}
		if e, ok := b.rels[ob.Alias]; ok {
			return lookupProp(e.Props, e.Extras, edgeBuiltin(e), ob.Prop)
		}
		return Value{}, false
	}
	sort.SliceStable(bs, func(i, j int) bool {
		vi, oki := resolve(bs[i])
		vj, okj := resolve(bs[j])
		var cmp int
		switch {
		case oki && okj:
			cmp = orderValues(vi, vj)
		case oki:
			cmp = 1
		case okj:
			cmp = -1
		}
		if ob.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

// orderValues compares two stored values for ORDER BY. Numeric kinds compare
// numerically across int and float; everything else falls back to the string
// form of the native value.
func orderValues(a, b Value) int {
	if an, aok := numericOf(a); aok {
		if bn, bok := numericOf(b); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	if a.Kind == KindBool && b.Kind == KindBool {
		switch {
		case !a.Bool && b.Bool:
			return -1
		case a.Bool && !b.Bool:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprintf("%v", a.Native()), fmt.Sprintf("%v", b.Native()))
}

// renderItem produces the single result column for one binding.
func renderItem(b binding, item cypher.ReturnItem) any {
	switch item.Kind {
	case cypher.ReturnProperty:
		if n, ok := b.nodes[item.Alias]; ok {
			if v, found := lookupProp(n.Props, n.Extras, nodeBuiltin(n), item.Prop); found {
				return v.Native()
			}
		}
		if e, ok := b.rels[item.Alias]; ok {
			if v, found := lookupProp(e.Props, e.Extras, edgeBuiltin(e), item.Prop); found {
				return v.Native()
			}
		}
		return nil
	case cypher.ReturnNode:
		if n, ok := b.nodes[item.Alias]; ok {
			out := map[string]any{
				"id":      n.ID,
				"slug":    n.Slug,
				"version": n.Version,
			}
			for k, v := range n.Props {
				out[k] = v.Native()
			}
			for k, v := range n.Extras {
				out[k] = v.Native()
			}
			return out
		}
		return nil
	}
	return nil
}

// --- Helpers ---

func cloneNode(rec NodeRecord) *NodeRecord {
	rec.Props = rec.Props.Clone()
	rec.Extras = rec.Extras.Clone()
	return &rec
}

func cloneEdge(rec EdgeRecord) *EdgeRecord {
	rec.Props = rec.Props.Clone()
	rec.Extras = rec.Extras.Clone()
	return &rec
}
