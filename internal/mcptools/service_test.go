package mcptools

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-ops/graphkb/internal/gateway"
	"github.com/relay-ops/graphkb/internal/graph"
	"github.com/relay-ops/graphkb/internal/mutation"
	"github.com/relay-ops/graphkb/internal/schema"
)

func newTestService(t *testing.T) *GraphService {
	t.Helper()
	reg, err := schema.NewRegistry(schema.DefaultDefinitions(), schema.Strict)
	require.NoError(t, err)
	backend := graph.NewMemStore()

	muts := mutation.New(backend, reg, mutation.DefaultConfig())
	_, err = muts.Apply(context.Background(), "acme", graph.Batch{
		Operations: []graph.Operation{
			{
				Kind: graph.OpUpsertNode, Label: "SOPFile", Slug: "drain-failed",
				Props: graph.Props{
					"title":    graph.String("Drain Failed"),
					"view_uri": graph.String("kb://sop/drain-failed"),
				},
			},
			{Kind: graph.OpUpsertNode, Label: "Alert", Slug: "node-not-ready"},
			{
				Kind: graph.OpUpsertEdge, Type: "DOCUMENTS",
				Source: graph.NodeRef{Label: "SOPFile", Slug: "drain-failed"},
				Target: graph.NodeRef{Label: "Alert", Slug: "node-not-ready"},
			},
		},
	})
	require.NoError(t, err)

	gw := gateway.New(backend, reg, gateway.DefaultConfig())
	return NewGraphService(gw, reg, backend)
}

func TestGraphService_QueryGraph(t *testing.T) {
	svc := newTestService(t)

	_, out, err := svc.QueryGraph(context.Background(), nil, QueryGraphInput{
		Tenant: "acme",
		Query:  `MATCH (s:SOPFile)-[:DOCUMENTS]->(a:Alert) RETURN s.title`,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ExecutionID)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, []any{"Drain Failed"}, out.Rows)
}

func TestGraphService_QueryGraph_MissingTenant(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.QueryGraph(context.Background(), nil, QueryGraphInput{
		Query: `MATCH (s:SOPFile) RETURN s.title`,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant is required")
}

func TestGraphService_QueryGraph_Rejection(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.QueryGraph(context.Background(), nil, QueryGraphInput{
		Tenant: "acme",
		Query:  `CREATE (s:SOPFile {slug: "x"})`,
	})
	require.Error(t, err)
	assert.True(t, gateway.IsRejection(err))
}

func TestGraphService_DescribeSchema(t *testing.T) {
	svc := newTestService(t)

	_, out, err := svc.DescribeSchema(context.Background(), nil, DescribeSchemaInput{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Schema.Labels)
	assert.NotEmpty(t, out.Schema.Relationships)
}

func TestGraphService_GraphStats(t *testing.T) {
	svc := newTestService(t)

	_, out, err := svc.GraphStats(context.Background(), nil, GraphStatsInput{Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Stats.NodesByLabel["SOPFile"])
	assert.Equal(t, int64(1), out.Stats.EdgesByType["DOCUMENTS"])

	_, out, err = svc.GraphStats(context.Background(), nil, GraphStatsInput{Tenant: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, out.Stats.NodesByLabel)
}

func TestGraphMCPServer_ToolsList(t *testing.T) {
	server := NewGraphMCPServer(newTestService(t))

	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Run(ctx, serverTransport)

	mcpClient := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "dev"}, nil)
	session, err := mcpClient.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	toolNames := make([]string, len(tools.Tools))
	for i, tool := range tools.Tools {
		toolNames[i] = tool.Name
	}

	assert.Contains(t, toolNames, "query_graph")
	assert.Contains(t, toolNames, "describe_schema")
	assert.Contains(t, toolNames, "graph_stats")
	assert.Len(t, tools.Tools, 3)
}
