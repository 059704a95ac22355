// Package version implements the workflow version lineage and the
// structural diff engine over workflow graph definitions.
package version

import "time"

// ChangeType classifies a single detected difference between two
// workflow definitions.
type ChangeType string

const (
	ChangeNodeAdded    ChangeType = "node_added"
	ChangeNodeRemoved  ChangeType = "node_removed"
	ChangeNodeModified ChangeType = "node_modified"
	ChangeEdgeAdded    ChangeType = "edge_added"
	ChangeEdgeRemoved  ChangeType = "edge_removed"
	ChangeEdgeModified ChangeType = "edge_modified"
	ChangeMetadata     ChangeType = "metadata_changed"
)

// Position is a node's placement on the workflow canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step in a workflow graph. Data is the open-ended
// property bag the visual builder attaches to each node, decoded from JSON.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data,omitempty"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Type     string `json:"type,omitempty"`
	Animated bool   `json:"animated,omitempty"`
}

// Definition is a full workflow graph snapshot.
type Definition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// WorkflowVersion is an immutable snapshot in a workflow's lineage.
// Only the IsActive flag ever changes after creation.
type WorkflowVersion struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflowId"`
	Version       int        `json:"version"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	ChangeSummary string     `json:"changeSummary,omitempty"`
	Definition    Definition `json:"definition"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	IsActive      bool       `json:"isActive"`
	ParentVersion *int       `json:"parentVersion,omitempty"`
}

// Change is one detected difference. NodeID and EdgeID are mutually
// exclusive; Field carries a dotted path for modifications.
type Change struct {
	Type        ChangeType `json:"type"`
	NodeID      string     `json:"nodeId,omitempty"`
	EdgeID      string     `json:"edgeId,omitempty"`
	Field       string     `json:"field,omitempty"`
	OldValue    any        `json:"oldValue,omitempty"`
	NewValue    any        `json:"newValue,omitempty"`
	Description string     `json:"description"`
}

// Comparison aggregates the classified changes between two definitions.
type Comparison struct {
	Added    []Change `json:"added"`
	Removed  []Change `json:"removed"`
	Modified []Change `json:"modified"`
	Summary  string   `json:"summary"`
}

// Total returns the number of changes across all categories.
func (c Comparison) Total() int {
	return len(c.Added) + len(c.Removed) + len(c.Modified)
}

// Clone returns a deep copy of the definition. Snapshots are handed out
// by value so callers can never mutate stored history.
func (d Definition) Clone() Definition {
	out := Definition{}
	if d.Nodes != nil {
		out.Nodes = make([]Node, len(d.Nodes))
		for i, node := range d.Nodes {
			node.Data = cloneData(node.Data)
			out.Nodes[i] = node
		}
	}
	if d.Edges != nil {
		out.Edges = make([]Edge, len(d.Edges))
		copy(out.Edges, d.Edges)
	}
	return out
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneData(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return typed
	}
}
