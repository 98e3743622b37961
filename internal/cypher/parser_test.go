package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SingleNode(t *testing.T) {
	q, err := Parse(`MATCH (s:SOPFile) RETURN s.slug`)
	require.NoError(t, err)
	require.Len(t, q.Nodes, 1)
	assert.Equal(t, "s", q.Nodes[0].Alias)
	assert.Equal(t, "SOPFile", q.Nodes[0].Label)
	require.Len(t, q.Return, 1)
	assert.Equal(t, ReturnProperty, q.Return[0].Kind)
	assert.Equal(t, "slug", q.Return[0].Prop)
	assert.Zero(t, q.Limit)
}

func TestParse_PathWithWhereAndLimit(t *testing.T) {
	q, err := Parse(`MATCH (s:SOPFile)-[:DOCUMENTS]->(a:Alert) WHERE s.slug = 'drain-failed' AND a.severity >= 2 RETURN a.slug LIMIT 50`)
	require.NoError(t, err)
	require.Len(t, q.Nodes, 2)
	require.Len(t, q.Rels, 1)
	assert.Equal(t, "DOCUMENTS", q.Rels[0].Type)
	assert.Equal(t, DirOut, q.Rels[0].Direction)
	require.Len(t, q.Where, 2)
	assert.Equal(t, OpEq, q.Where[0].Op)
	assert.Equal(t, "drain-failed", q.Where[0].Value)
	assert.Equal(t, OpGte, q.Where[1].Op)
	assert.Equal(t, int64(2), q.Where[1].Value)
	assert.Equal(t, int64(50), q.Limit)
}

func TestParse_InboundRelAndInlineProps(t *testing.T) {
	q, err := Parse(`MATCH (a:Alert {slug: 'node-not-ready'})<-[:DOCUMENTS]-(s:SOPFile) RETURN s`)
	require.NoError(t, err)
	require.Len(t, q.Rels, 1)
	assert.Equal(t, DirIn, q.Rels[0].Direction)
	assert.Equal(t, "node-not-ready", q.Nodes[0].Props["slug"])
	assert.Equal(t, ReturnNode, q.Return[0].Kind)
}

func TestParse_Count(t *testing.T) {
	q, err := Parse(`MATCH (s:SOPFile) RETURN count(s)`)
	require.NoError(t, err)
	require.Len(t, q.Return, 1)
	assert.Equal(t, ReturnCount, q.Return[0].Kind)
	assert.Equal(t, "s", q.Return[0].Alias)
}

func TestParse_MultipleReturnItemsParses(t *testing.T) {
	// The parser accepts multi-item RETURNs; shape enforcement is the
	// gateway's job so the caller sees a shape error, not a syntax error.
	q, err := Parse(`MATCH (s:SOPFile) RETURN s.slug, s.title`)
	require.NoError(t, err)
	assert.Len(t, q.Return, 2)
}

func TestParse_OrderBy(t *testing.T) {
	q, err := Parse(`MATCH (s:SOPFile) RETURN s.slug ORDER BY s.slug DESC LIMIT 10`)
	require.NoError(t, err)
	require.NotNil(t, q.Order)
	assert.True(t, q.Order.Descending)
	assert.Equal(t, "slug", q.Order.Prop)
}

func TestParse_RejectsWriteClauses(t *testing.T) {
	for _, src := range []string{
		`CREATE (n:SOPFile {slug: 'x'})`,
		`MATCH (n:SOPFile) DELETE n`,
		`MATCH (n:SOPFile) SET n.title = 'x' RETURN n`,
		`MERGE (n:SOPFile {slug: 'x'}) RETURN n`,
		`MATCH (n:SOPFile) WITH n RETURN n`,
		`MATCH (n:SOPFile) CALL apoc.load() RETURN n`,
	} {
		_, err := Parse(src)
		require.Error(t, err, "query should be rejected: %s", src)
		var synErr *SyntaxError
		assert.ErrorAs(t, err, &synErr)
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	for _, src := range []string{
		``,
		`MATCH (s:SOPFile`,
		`MATCH (s:SOPFile) RETURN`,
		`MATCH (s:SOPFile)-[]->(a:Alert) RETURN a`, // untyped relationship
		`MATCH (s:SOPFile) WHERE s.slug RETURN s`,
		`MATCH (s:SOPFile) RETURN s.slug LIMIT 0`,
		`MATCH (s:SOPFile) RETURN s.slug garbage`,
		`MATCH (s:SOPFile) WHERE s.slug = 'unterminated RETURN s`,
	} {
		_, err := Parse(src)
		assert.Error(t, err, "expected parse failure: %s", src)
	}
}

func TestRender_RoundTripParams(t *testing.T) {
	q, err := Parse(`MATCH (s:SOPFile {slug: 'drain-failed'})-[:DOCUMENTS]->(a:Alert) WHERE a.severity > 1 RETURN a.slug LIMIT 5`)
	require.NoError(t, err)

	text, params := Render(q)
	assert.Contains(t, text, "MATCH (s:SOPFile {slug: $p0})-[:DOCUMENTS]->(a:Alert)")
	assert.Contains(t, text, "WHERE a.severity > $p1")
	assert.Contains(t, text, "RETURN a.slug")
	assert.Contains(t, text, "LIMIT 5")
	assert.Equal(t, "drain-failed", params["p0"])
	assert.Equal(t, int64(1), params["p1"])

	// No literal may survive inline.
	assert.NotContains(t, text, "drain-failed")
}

func TestRender_TenantInjectionStaysParameterized(t *testing.T) {
	q, err := Parse(`MATCH (s:SOPFile)-[:DOCUMENTS]->(a:Alert) RETURN a.slug`)
	require.NoError(t, err)
	for i := range q.Nodes {
		if q.Nodes[i].Props == nil {
			q.Nodes[i].Props = map[string]any{}
		}
		q.Nodes[i].Props["tenant"] = "acme"
	}
	for i := range q.Rels {
		if q.Rels[i].Props == nil {
			q.Rels[i].Props = map[string]any{}
		}
		q.Rels[i].Props["tenant"] = "acme"
	}
	text, params := Render(q)
	assert.NotContains(t, text, "acme")
	found := 0
	for _, v := range params {
		if v == "acme" {
			found++
		}
	}
	assert.Equal(t, 3, found, "tenant must be bound once per pattern")
}

func TestParse_NegativeLiterals(t *testing.T) {
	q, err := Parse(`MATCH (a:Alert) WHERE a.severity > -1 RETURN a.slug`)
	require.NoError(t, err)
	require.Len(t, q.Where, 1)
	assert.Equal(t, int64(-1), q.Where[0].Value)

	q, err = Parse(`MATCH (d:DocChunk {score: -0.5}) RETURN d.slug`)
	require.NoError(t, err)
	assert.Equal(t, -0.5, q.Nodes[0].Props["score"])

	// A bare minus with no number is still a syntax error.
	_, err = Parse(`MATCH (a:Alert) WHERE a.severity > - RETURN a.slug`)
	assert.Error(t, err)
}

func TestParse_StringEscapes(t *testing.T) {
	q, err := Parse(`MATCH (s:SOPFile) WHERE s.title = 'line one\nline two' RETURN s.slug`)
	require.NoError(t, err)
	require.Len(t, q.Where, 1)
	assert.Equal(t, "line one\nline two", q.Where[0].Value)

	q, err = Parse(`MATCH (s:SOPFile) WHERE s.title = 'it\'s fine' RETURN s.slug`)
	require.NoError(t, err)
	assert.Equal(t, "it's fine", q.Where[0].Value)

	_, err = Parse(`MATCH (s:SOPFile) WHERE s.title = 'bad \q escape' RETURN s.slug`)
	assert.Error(t, err)
}
