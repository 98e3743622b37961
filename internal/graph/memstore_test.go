package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-ops/graphkb/internal/cypher"
)

func mustParse(t *testing.T, src string) *cypher.Query {
	t.Helper()
	q, err := cypher.Parse(src)
	require.NoError(t, err)
	return q
}

// pinTenant mimics the gateway rewrite: every pattern gets a tenant pin.
func pinTenant(q *cypher.Query, tenant string) *cypher.Query {
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
	return q
}

func putNode(t *testing.T, m *MemStore, rec NodeRecord) {
	t.Helper()
	ctx := context.Background()
	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.PutNode(ctx, rec))
	require.NoError(t, tx.Commit(ctx))
}

func putEdge(t *testing.T, m *MemStore, rec EdgeRecord) {
	t.Helper()
	ctx := context.Background()
	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.PutEdge(ctx, rec))
	require.NoError(t, tx.Commit(ctx))
}

func TestMemStore_NodeRoundTrip(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	rec := NodeRecord{
		ID: "SOPFile:abc", Tenant: "acme", Label: "SOPFile", Slug: "drain-failed",
		Props:   Props{"title": String("Drain Failed")},
		Version: 1,
	}
	putNode(t, m, rec)

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	got, err := tx.GetNode(ctx, "SOPFile", "SOPFile:abc")
	require.NoError(t, err)
	assert.Equal(t, "drain-failed", got.Slug)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "Drain Failed", got.Props["title"].Str)

	_, err = tx.GetNode(ctx, "SOPFile", "SOPFile:missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Label mismatch is not a hit.
	_, err = tx.GetNode(ctx, "Alert", "SOPFile:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_TxOverlayVisibility(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.PutNode(ctx, NodeRecord{
		ID: "Alert:x", Tenant: "acme", Label: "Alert", Slug: "x", Version: 1,
	}))

	// Staged write visible inside the transaction.
	got, err := tx.GetNode(ctx, "Alert", "Alert:x")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Slug)

	// Not visible outside before commit.
	tx2, err := m.Begin(ctx)
	require.NoError(t, err)
	_, err = tx2.GetNode(ctx, "Alert", "Alert:x")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tx2.Rollback())

	require.NoError(t, tx.Commit(ctx))

	tx3, err := m.Begin(ctx)
	require.NoError(t, err)
	defer tx3.Rollback()
	_, err = tx3.GetNode(ctx, "Alert", "Alert:x")
	assert.NoError(t, err)
}

func TestMemStore_RollbackDiscards(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.PutNode(ctx, NodeRecord{ID: "Alert:x", Tenant: "a", Label: "Alert", Slug: "x", Version: 1}))
	require.NoError(t, tx.Rollback())

	st, err := m.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, st.NodesByLabel)
}

func TestMemStore_CommitConflict(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	putNode(t, m, NodeRecord{ID: "Alert:x", Tenant: "acme", Label: "Alert", Slug: "x", Version: 1})

	tx1, err := m.Begin(ctx)
	require.NoError(t, err)
	got, err := tx1.GetNode(ctx, "Alert", "Alert:x")
	require.NoError(t, err)

	// A second transaction moves the node before tx1 commits.
	tx2, err := m.Begin(ctx)
	require.NoError(t, err)
	other, err := tx2.GetNode(ctx, "Alert", "Alert:x")
	require.NoError(t, err)
	other.Version++
	require.NoError(t, tx2.PutNode(ctx, *other))
	require.NoError(t, tx2.Commit(ctx))

	got.Version++
	require.NoError(t, tx1.PutNode(ctx, *got))
	assert.ErrorIs(t, tx1.Commit(ctx), ErrConflict)

	// The interleaved write survives intact.
	tx3, err := m.Begin(ctx)
	require.NoError(t, err)
	defer tx3.Rollback()
	cur, err := tx3.GetNode(ctx, "Alert", "Alert:x")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cur.Version)
}

func TestMemStore_CommitConflictOnCreateRace(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	tx1, err := m.Begin(ctx)
	require.NoError(t, err)
	_, err = tx1.GetNode(ctx, "Alert", "Alert:x")
	require.ErrorIs(t, err, ErrNotFound)

	putNode(t, m, NodeRecord{ID: "Alert:x", Tenant: "acme", Label: "Alert", Slug: "x", Version: 1})

	require.NoError(t, tx1.PutNode(ctx, NodeRecord{
		ID: "Alert:x", Tenant: "acme", Label: "Alert", Slug: "x", Version: 1,
	}))
	assert.ErrorIs(t, tx1.Commit(ctx), ErrConflict)
}

func TestMemStore_CascadeDelete(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	putNode(t, m, NodeRecord{ID: "SOPFile:s", Tenant: "acme", Label: "SOPFile", Slug: "s", Version: 1})
	putNode(t, m, NodeRecord{ID: "Alert:a", Tenant: "acme", Label: "Alert", Slug: "a", Version: 1})
	putEdge(t, m, EdgeRecord{
		ID: "DOCUMENTS:e", Tenant: "acme", Type: "DOCUMENTS",
		SourceID: "SOPFile:s", TargetID: "Alert:a",
	})

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteNode(ctx, "SOPFile", "SOPFile:s"))
	require.NoError(t, tx.Commit(ctx))

	st, err := m.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.NodesByLabel["Alert"])
	assert.Zero(t, st.NodesByLabel["SOPFile"])
	assert.Empty(t, st.EdgesByType, "edges incident to a deleted node must go with it")
}

func seedDocGraph(t *testing.T, m *MemStore) {
	t.Helper()
	putNode(t, m, NodeRecord{
		ID: "SOPFile:s1", Tenant: "acme", Label: "SOPFile", Slug: "drain-failed",
		Props: Props{"title": String("Drain Failed")}, Version: 1,
	})
	putNode(t, m, NodeRecord{
		ID: "Alert:a1", Tenant: "acme", Label: "Alert", Slug: "node-not-ready",
		Props: Props{"severity": Int(3)}, Version: 1,
	})
	putNode(t, m, NodeRecord{
		ID: "Alert:a2", Tenant: "acme", Label: "Alert", Slug: "disk-pressure",
		Props: Props{"severity": Int(1)}, Version: 1,
	})
	putEdge(t, m, EdgeRecord{
		ID: "DOCUMENTS:e1", Tenant: "acme", Type: "DOCUMENTS",
		SourceID: "SOPFile:s1", TargetID: "Alert:a1",
	})
	// Another tenant's overlapping graph.
	putNode(t, m, NodeRecord{
		ID: "SOPFile:o1", Tenant: "other", Label: "SOPFile", Slug: "drain-failed", Version: 1,
	})
}

func TestMemStore_QuerySingleNode(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	q := pinTenant(mustParse(t, `MATCH (s:SOPFile) RETURN s.slug`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{"drain-failed"}, rows)
}

func TestMemStore_QueryPath(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	q := pinTenant(mustParse(t,
		`MATCH (s:SOPFile)-[:DOCUMENTS]->(a:Alert) WHERE s.slug = 'drain-failed' RETURN a.slug`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{"node-not-ready"}, rows)
}

func TestMemStore_QueryInboundDirection(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	q := pinTenant(mustParse(t,
		`MATCH (a:Alert)<-[:DOCUMENTS]-(s:SOPFile) RETURN s.slug`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{"drain-failed"}, rows)
}

func TestMemStore_QueryTenantPin(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	q := pinTenant(mustParse(t, `MATCH (s:SOPFile) RETURN s.slug`), "ghost")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemStore_QueryCount(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	q := pinTenant(mustParse(t, `MATCH (a:Alert) RETURN count(a)`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2)}, rows)
}

func TestMemStore_QueryComparisonAndOrder(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	q := pinTenant(mustParse(t,
		`MATCH (a:Alert) WHERE a.severity >= 1 RETURN a.slug ORDER BY a.slug LIMIT 10`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{"disk-pressure", "node-not-ready"}, rows)
}

func TestMemStore_QueryOrderNumeric(t *testing.T) {
	m := NewMemStore()
	putNode(t, m, NodeRecord{
		ID: "Alert:a1", Tenant: "acme", Label: "Alert", Slug: "low",
		Props: Props{"severity": Int(2)}, Version: 1,
	})
	putNode(t, m, NodeRecord{
		ID: "Alert:a2", Tenant: "acme", Label: "Alert", Slug: "mid",
		Props: Props{"severity": Int(9)}, Version: 1,
	})
	putNode(t, m, NodeRecord{
		ID: "Alert:a3", Tenant: "acme", Label: "Alert", Slug: "high",
		Props: Props{"severity": Int(10)}, Version: 1,
	})

	// Multi-digit values must order numerically, not lexicographically.
	q := pinTenant(mustParse(t,
		`MATCH (a:Alert) RETURN a.severity ORDER BY a.severity`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(9), int64(10)}, rows)

	q = pinTenant(mustParse(t,
		`MATCH (a:Alert) RETURN a.severity ORDER BY a.severity DESC`), "acme")
	rows, err = m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(10), int64(9), int64(2)}, rows)
}

func TestMemStore_QueryOrderByRelProperty(t *testing.T) {
	m := NewMemStore()
	putNode(t, m, NodeRecord{ID: "SOPFile:s1", Tenant: "acme", Label: "SOPFile", Slug: "first", Version: 1})
	putNode(t, m, NodeRecord{ID: "SOPFile:s2", Tenant: "acme", Label: "SOPFile", Slug: "second", Version: 1})
	putNode(t, m, NodeRecord{ID: "Alert:a1", Tenant: "acme", Label: "Alert", Slug: "target", Version: 1})
	putEdge(t, m, EdgeRecord{
		ID: "DOCUMENTS:e1", Tenant: "acme", Type: "DOCUMENTS",
		SourceID: "SOPFile:s1", TargetID: "Alert:a1",
		Props: Props{"confidence": Float(10.0)},
	})
	putEdge(t, m, EdgeRecord{
		ID: "DOCUMENTS:e2", Tenant: "acme", Type: "DOCUMENTS",
		SourceID: "SOPFile:s2", TargetID: "Alert:a1",
		Props: Props{"confidence": Float(2.0)},
	})

	q := pinTenant(mustParse(t,
		`MATCH (s:SOPFile)-[d:DOCUMENTS]->(a:Alert) RETURN s.slug ORDER BY d.confidence`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{"second", "first"}, rows)
}

func TestMemStore_QueryLimit(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	q := pinTenant(mustParse(t, `MATCH (a:Alert) RETURN a.slug LIMIT 1`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMemStore_QueryReturnNode(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	q := pinTenant(mustParse(t, `MATCH (s:SOPFile) RETURN s`), "acme")
	rows, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	node, ok := rows[0].(map[string]any)
	require.True(t, ok, "whole-node return should be a structured value")
	assert.Equal(t, "drain-failed", node["slug"])
	assert.Equal(t, "Drain Failed", node["title"])
}

func TestMemStore_Stats(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	st, err := m.Stats(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.NodesByLabel["SOPFile"])
	assert.Equal(t, int64(2), st.NodesByLabel["Alert"])
	assert.Equal(t, int64(1), st.EdgesByType["DOCUMENTS"])

	other, err := m.Stats(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.NodesByLabel["SOPFile"])
	assert.Empty(t, other.EdgesByType)
}

func TestMemStore_Export(t *testing.T) {
	m := NewMemStore()
	seedDocGraph(t, m)

	snap, err := m.Export(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 3)
	require.Len(t, snap.Edges, 1)

	// Ordered by label then slug, and scoped to the tenant.
	assert.Equal(t, "Alert", snap.Nodes[0].Label)
	assert.Equal(t, "Alert", snap.Nodes[1].Label)
	assert.Equal(t, "SOPFile", snap.Nodes[2].Label)
	for _, n := range snap.Nodes {
		assert.Equal(t, "acme", n.Tenant)
	}

	// Mutating the snapshot must not reach the store.
	snap.Nodes[0].Props = Props{"title": String("tampered")}
	again, err := m.Export(context.Background(), "acme")
	require.NoError(t, err)
	assert.NotContains(t, again.Nodes[0].Props, "title")
}
