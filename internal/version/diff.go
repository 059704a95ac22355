package version

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Diff computes the structural differences between two workflow
// definitions. It is a pure function: no side effects, no I/O, and it
// never mutates its inputs.
//
// Node identity is the node id. Edge identity is the source-target pair,
// not the edge id: an edge that keeps its endpoints but changes type or
// animation is modified, while an edge that moves an endpoint shows up as
// one removal plus one addition even when its id is unchanged.
func Diff(before, after Definition) Comparison {
	added := []Change{}
	removed := []Change{}
	modified := []Change{}

	nodesBefore := nodeIndex(before.Nodes)
	nodesAfter := nodeIndex(after.Nodes)

	for _, node := range after.Nodes {
		if _, ok := nodesBefore[node.ID]; ok {
			continue
		}
		added = append(added, Change{
			Type:        ChangeNodeAdded,
			NodeID:      node.ID,
			NewValue:    node,
			Description: fmt.Sprintf("Node %q added", nodeLabel(node)),
		})
	}

	for _, node := range before.Nodes {
		if _, ok := nodesAfter[node.ID]; ok {
			continue
		}
		removed = append(removed, Change{
			Type:        ChangeNodeRemoved,
			NodeID:      node.ID,
			OldValue:    node,
			Description: fmt.Sprintf("Node %q removed", nodeLabel(node)),
		})
	}

	for _, node := range before.Nodes {
		counterpart, ok := nodesAfter[node.ID]
		if !ok {
			continue
		}
		modified = append(modified, compareNodes(node, counterpart)...)
	}

	edgesBefore := edgeIndex(before.Edges)
	edgesAfter := edgeIndex(after.Edges)

	for _, edge := range after.Edges {
		if _, ok := edgesBefore[edgeKey(edge)]; ok {
			continue
		}
		added = append(added, Change{
			Type:        ChangeEdgeAdded,
			EdgeID:      edge.ID,
			NewValue:    edge,
			Description: fmt.Sprintf("Connection added from %s to %s", edge.Source, edge.Target),
		})
	}

	for _, edge := range before.Edges {
		if _, ok := edgesAfter[edgeKey(edge)]; ok {
			continue
		}
		removed = append(removed, Change{
			Type:        ChangeEdgeRemoved,
			EdgeID:      edge.ID,
			OldValue:    edge,
			Description: fmt.Sprintf("Connection removed from %s to %s", edge.Source, edge.Target),
		})
	}

	for _, edge := range before.Edges {
		counterpart, ok := edgesAfter[edgeKey(edge)]
		if !ok {
			continue
		}
		modified = append(modified, compareEdges(edge, counterpart)...)
	}

	return Comparison{
		Added:    added,
		Removed:  removed,
		Modified: modified,
		Summary:  changeSummary(len(added), len(removed), len(modified)),
	}
}

// compareNodes reports position and data-bag differences between two
// nodes sharing an id. Position is compared as a whole: a change to x or
// y yields a single change record carrying both coordinates.
func compareNodes(before, after Node) []Change {
	var changes []Change
	if before.Position.X != after.Position.X || before.Position.Y != after.Position.Y {
		changes = append(changes, Change{
			Type:        ChangeNodeModified,
			NodeID:      before.ID,
			Field:       "position",
			OldValue:    before.Position,
			NewValue:    after.Position,
			Description: "Node position changed",
		})
	}
	changes = append(changes, compareData(before.ID, before.Data, after.Data)...)
	return changes
}

// compareData diffs the open-ended node data bags key by key. Keys are
// visited in sorted order so output is deterministic regardless of map
// iteration order.
func compareData(nodeID string, before, after map[string]any) []Change {
	var changes []Change
	for _, key := range sortedKeys(before) {
		field := "data." + key
		afterValue, ok := after[key]
		if !ok {
			changes = append(changes, Change{
				Type:        ChangeNodeModified,
				NodeID:      nodeID,
				Field:       field,
				OldValue:    before[key],
				Description: fmt.Sprintf("Field %s removed", field),
			})
			continue
		}
		if !valuesEqual(before[key], afterValue) {
			changes = append(changes, Change{
				Type:        ChangeNodeModified,
				NodeID:      nodeID,
				Field:       field,
				OldValue:    before[key],
				NewValue:    afterValue,
				Description: fmt.Sprintf("Field %s changed", field),
			})
		}
	}
	for _, key := range sortedKeys(after) {
		if _, ok := before[key]; ok {
			continue
		}
		field := "data." + key
		changes = append(changes, Change{
			Type:        ChangeNodeModified,
			NodeID:      nodeID,
			Field:       field,
			NewValue:    after[key],
			Description: fmt.Sprintf("Field %s added", field),
		})
	}
	return changes
}

// compareEdges checks exactly the type and animated fields of an edge
// pair sharing endpoints. Other edge properties are out of comparison
// scope on purpose.
func compareEdges(before, after Edge) []Change {
	var changes []Change
	if before.Type != after.Type {
		changes = append(changes, Change{
			Type:        ChangeEdgeModified,
			EdgeID:      before.ID,
			Field:       "type",
			OldValue:    before.Type,
			NewValue:    after.Type,
			Description: fmt.Sprintf("Edge type changed from %s to %s", before.Type, after.Type),
		})
	}
	if before.Animated != after.Animated {
		changes = append(changes, Change{
			Type:        ChangeEdgeModified,
			EdgeID:      before.ID,
			Field:       "animated",
			OldValue:    before.Animated,
			NewValue:    after.Animated,
			Description: "Edge animation changed",
		})
	}
	return changes
}

func changeSummary(added, removed, modified int) string {
	total := added + removed + modified
	if total == 0 {
		return "No changes detected"
	}
	var parts []string
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", removed))
	}
	if modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", modified))
	}
	return fmt.Sprintf("Total changes: %d (%s)", total, strings.Join(parts, ", "))
}

func nodeIndex(nodes []Node) map[string]Node {
	index := make(map[string]Node, len(nodes))
	for _, node := range nodes {
		index[node.ID] = node
	}
	return index
}

func edgeIndex(edges []Edge) map[string]Edge {
	index := make(map[string]Edge, len(edges))
	for _, edge := range edges {
		index[edgeKey(edge)] = edge
	}
	return index
}

func edgeKey(edge Edge) string {
	return edge.Source + "-" + edge.Target
}

// nodeLabel prefers the builder-assigned label over the raw node id in
// human-readable descriptions.
func nodeLabel(node Node) string {
	if label, ok := node.Data["label"].(string); ok && label != "" {
		return label
	}
	return node.ID
}

// valuesEqual compares two data-bag values by canonical JSON, following
// the normalize-then-compare approach used for rich document payloads.
// encoding/json writes map keys in sorted order, so the comparison is
// deterministic for any JSON-decoded value.
func valuesEqual(a, b any) bool {
	aJSON, errA := json.Marshal(a)
	bJSON, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(aJSON, bJSON)
}

func sortedKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
