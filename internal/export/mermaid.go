package export

import (
	"fmt"
	"strings"
)

// GenerateMermaid produces a Mermaid graph TD diagram from a snapshot.
// Nodes are grouped into subgraphs by label; edges become labeled arrows.
func GenerateMermaid(e *GraphExport) string {
	// Stable node → ID mapping (Mermaid identifiers must be alphanumeric).
	nodeIDs := make(map[string]string)
	nextID := 0
	getID := func(key string) string {
		if id, ok := nodeIDs[key]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", nextID)
		nextID++
		nodeIDs[key] = id
		return id
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	// Emit one subgraph per label, in snapshot order.
	var curLabel string
	open := false
	for _, n := range e.Nodes {
		if n.Label != curLabel {
			if open {
				sb.WriteString("  end\n")
			}
			curLabel = n.Label
			open = true
			sb.WriteString(fmt.Sprintf("  subgraph %s[\"%s\"]\n", getID(curLabel+"_group"), curLabel))
		}
		sb.WriteString(fmt.Sprintf("    %s[\"%.40s\"]\n", getID(n.ID), n.Slug))
	}
	if open {
		sb.WriteString("  end\n")
	}

	for _, edge := range e.Edges {
		srcID, ok := nodeIDs[edge.SourceID]
		if !ok {
			continue
		}
		tgtID, ok := nodeIDs[edge.TargetID]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s -->|%s| %s\n", srcID, edge.Type, tgtID))
	}

	return sb.String()
}
