// Package export renders a tenant's graph snapshot for consumption outside
// the service: a JSON dump for backup and offline analysis, and a Mermaid
// diagram for documentation.
package export

import (
	"time"

	"github.com/relay-ops/graphkb/internal/graph"
)

// GraphExport is the top-level JSON export structure.
type GraphExport struct {
	Tenant     string             `json:"tenant"`
	ExportedAt string             `json:"exportedAt"`
	Nodes      []graph.NodeRecord `json:"nodes"`
	Edges      []graph.EdgeRecord `json:"edges"`
}

// FromSnapshot wraps a store snapshot with export metadata. The snapshot's
// ordering is preserved, so identical data exports identically up to the
// timestamp.
func FromSnapshot(snap *graph.Snapshot) *GraphExport {
	return &GraphExport{
		Tenant:     snap.Tenant,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Nodes:      snap.Nodes,
		Edges:      snap.Edges,
	}
}
