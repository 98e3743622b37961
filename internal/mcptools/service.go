package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relay-ops/graphkb/internal/gateway"
	"github.com/relay-ops/graphkb/internal/graph"
	"github.com/relay-ops/graphkb/internal/schema"
)

// GraphService holds the query gateway and registry used by MCP tool handlers.
type GraphService struct {
	gw    *gateway.Gateway
	reg   *schema.Registry
	store graph.Store
}

// NewGraphService creates a GraphService over the given gateway.
func NewGraphService(gw *gateway.Gateway, reg *schema.Registry, store graph.Store) *GraphService {
	return &GraphService{gw: gw, reg: reg, store: store}
}

// QueryGraph executes one tenant-scoped read query and collects its rows.
func (s *GraphService) QueryGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryGraphInput,
) (*mcp.CallToolResult, QueryGraphOutput, error) {
	if input.Tenant == "" {
		return nil, QueryGraphOutput{}, fmt.Errorf("tenant is required")
	}
	if input.Query == "" {
		return nil, QueryGraphOutput{}, fmt.Errorf("query is required")
	}

	opts := gateway.Options{
		Timeout: time.Duration(input.TimeoutSeconds) * time.Second,
		MaxRows: int64(input.MaxRows),
	}
	rs, err := s.gw.Execute(ctx, input.Tenant, input.Query, opts)
	if err != nil {
		return nil, QueryGraphOutput{}, err
	}

	rows := rs.Collect()
	return nil, QueryGraphOutput{
		ExecutionID: rs.ID(),
		Rows:        rows,
		Count:       len(rows),
	}, nil
}

// DescribeSchema returns the active schema snapshot.
func (s *GraphService) DescribeSchema(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ DescribeSchemaInput,
) (*mcp.CallToolResult, DescribeSchemaOutput, error) {
	return nil, DescribeSchemaOutput{Schema: s.reg.Describe()}, nil
}

// GraphStats summarizes one tenant's slice of the graph.
func (s *GraphService) GraphStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GraphStatsInput,
) (*mcp.CallToolResult, GraphStatsOutput, error) {
	if input.Tenant == "" {
		return nil, GraphStatsOutput{}, fmt.Errorf("tenant is required")
	}

	stats, err := s.store.Stats(ctx, input.Tenant)
	if err != nil {
		return nil, GraphStatsOutput{}, fmt.Errorf("stats: %w", err)
	}
	return nil, GraphStatsOutput{Stats: *stats}, nil
}
