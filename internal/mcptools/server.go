package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewGraphMCPServer creates an MCP server with the graph tools registered.
func NewGraphMCPServer(svc *GraphService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "graphkb",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_graph",
		Description: "Run a read-only Cypher query against one tenant's knowledge graph. Accepts a single MATCH path with optional WHERE, exactly one RETURN item, and optional ORDER BY / LIMIT. Results are bounded and scoped to the tenant.",
	}, svc.QueryGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "describe_schema",
		Description: "List the entity labels, relationship types, their declared properties, and the allowed endpoint pairs in the active graph schema.",
	}, svc.DescribeSchema)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Summarize one tenant's graph slice: node counts per label and edge counts per relationship type.",
	}, svc.GraphStats)

	return server
}

// RunStdio serves the graph tools over stdio until the context is cancelled.
func RunStdio(ctx context.Context, svc *GraphService) error {
	server := NewGraphMCPServer(svc)
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunMCPServer starts an HTTP server exposing the graph MCP tools.
func RunMCPServer(ctx context.Context, svc *GraphService, addr string) error {
	server := NewGraphMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
