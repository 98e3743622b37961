package mcptools

import (
	"github.com/relay-ops/graphkb/internal/graph"
	"github.com/relay-ops/graphkb/internal/schema"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// QueryGraphInput is the input for the query_graph MCP tool.
type QueryGraphInput struct {
	Tenant         string `json:"tenant" jsonschema:"tenant whose graph slice to query"`
	Query          string `json:"query" jsonschema:"read-only Cypher: a single MATCH path with optional WHERE, one RETURN item, optional ORDER BY and LIMIT"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" jsonschema:"per-query timeout in seconds (bounded by the server default)"`
	MaxRows        int    `json:"maxRows,omitempty" jsonschema:"maximum rows to return (bounded by the server cap)"`
}

// QueryGraphOutput is the result of the query_graph MCP tool.
type QueryGraphOutput struct {
	ExecutionID string `json:"executionId"`
	Rows        []any  `json:"rows"`
	Count       int    `json:"count"`
}

// DescribeSchemaInput is the input for the describe_schema MCP tool.
type DescribeSchemaInput struct{}

// DescribeSchemaOutput is the result of the describe_schema MCP tool.
type DescribeSchemaOutput struct {
	Schema schema.Description `json:"schema"`
}

// GraphStatsInput is the input for the graph_stats MCP tool.
type GraphStatsInput struct {
	Tenant string `json:"tenant" jsonschema:"tenant whose graph slice to summarize"`
}

// GraphStatsOutput is the result of the graph_stats MCP tool.
type GraphStatsOutput struct {
	Stats graph.Stats `json:"stats"`
}
