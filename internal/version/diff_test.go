package version

import (
	"testing"
)

func simpleDefinition() Definition {
	return Definition{
		Nodes: []Node{
			{ID: "n1", Type: "start", Position: Position{X: 0, Y: 0}, Data: map[string]any{"label": "Start"}},
			{ID: "n2", Type: "task", Position: Position{X: 100, Y: 0}, Data: map[string]any{"label": "Review"}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "n1", Target: "n2", Type: "default"},
		},
	}
}

func TestDiffIdenticalDefinitions(t *testing.T) {
	def := simpleDefinition()
	cmp := Diff(def, def)

	if len(cmp.Added) != 0 || len(cmp.Removed) != 0 || len(cmp.Modified) != 0 {
		t.Fatalf("expected no changes, got %+v", cmp)
	}
	if cmp.Summary != "No changes detected" {
		t.Fatalf("unexpected summary: %q", cmp.Summary)
	}
}

func TestDiffAddedAndRemovedNodes(t *testing.T) {
	before := simpleDefinition()
	after := simpleDefinition()
	after.Nodes = append(after.Nodes[:1], Node{
		ID: "n3", Type: "end", Position: Position{X: 200, Y: 0}, Data: map[string]any{"label": "Done"},
	})
	after.Edges = nil

	cmp := Diff(before, after)

	if len(cmp.Added) != 1 {
		t.Fatalf("expected 1 added, got %d", len(cmp.Added))
	}
	if cmp.Added[0].Type != ChangeNodeAdded || cmp.Added[0].NodeID != "n3" {
		t.Fatalf("unexpected added change: %+v", cmp.Added[0])
	}
	if cmp.Added[0].Description != `Node "Done" added` {
		t.Fatalf("unexpected description: %q", cmp.Added[0].Description)
	}

	// n2 and the edge n1->n2 are gone.
	if len(cmp.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %d: %+v", len(cmp.Removed), cmp.Removed)
	}
	if cmp.Removed[0].Type != ChangeNodeRemoved || cmp.Removed[0].Description != `Node "Review" removed` {
		t.Fatalf("unexpected removed change: %+v", cmp.Removed[0])
	}
	if cmp.Removed[1].Type != ChangeEdgeRemoved || cmp.Removed[1].Description != "Connection removed from n1 to n2" {
		t.Fatalf("unexpected removed edge: %+v", cmp.Removed[1])
	}
}

func TestDiffNodeLabelFallsBackToID(t *testing.T) {
	after := Definition{Nodes: []Node{{ID: "n9", Type: "task"}}}
	cmp := Diff(Definition{}, after)

	if len(cmp.Added) != 1 || cmp.Added[0].Description != `Node "n9" added` {
		t.Fatalf("unexpected changes: %+v", cmp.Added)
	}
}

func TestDiffPositionChange(t *testing.T) {
	before := simpleDefinition()
	after := simpleDefinition()
	after.Nodes[1].Position = Position{X: 150, Y: 40}

	cmp := Diff(before, after)

	if len(cmp.Modified) != 1 {
		t.Fatalf("expected 1 modified, got %+v", cmp.Modified)
	}
	change := cmp.Modified[0]
	if change.Type != ChangeNodeModified || change.NodeID != "n2" || change.Field != "position" {
		t.Fatalf("unexpected change: %+v", change)
	}
	if change.Description != "Node position changed" {
		t.Fatalf("unexpected description: %q", change.Description)
	}
	if change.OldValue.(Position) != (Position{X: 100, Y: 0}) {
		t.Fatalf("unexpected old value: %+v", change.OldValue)
	}
	if change.NewValue.(Position) != (Position{X: 150, Y: 40}) {
		t.Fatalf("unexpected new value: %+v", change.NewValue)
	}
}

func TestDiffDataFieldChanges(t *testing.T) {
	before := Definition{Nodes: []Node{{
		ID: "n1", Type: "task",
		Data: map[string]any{"label": "Start", "timeout": float64(30)},
	}}}
	after := Definition{Nodes: []Node{{
		ID: "n1", Type: "task",
		Data: map[string]any{"label": "Begin", "retries": float64(3)},
	}}}

	cmp := Diff(before, after)

	if len(cmp.Modified) != 3 {
		t.Fatalf("expected 3 modified, got %+v", cmp.Modified)
	}
	// Sorted old keys first (label changed, timeout removed), then new-only keys.
	changed := cmp.Modified[0]
	if changed.Field != "data.label" || changed.Description != "Field data.label changed" {
		t.Fatalf("unexpected change: %+v", changed)
	}
	if changed.OldValue != "Start" || changed.NewValue != "Begin" {
		t.Fatalf("unexpected values: %+v", changed)
	}
	removed := cmp.Modified[1]
	if removed.Field != "data.timeout" || removed.Description != "Field data.timeout removed" || removed.NewValue != nil {
		t.Fatalf("unexpected removal: %+v", removed)
	}
	added := cmp.Modified[2]
	if added.Field != "data.retries" || added.Description != "Field data.retries added" || added.OldValue != nil {
		t.Fatalf("unexpected addition: %+v", added)
	}
	for _, change := range cmp.Modified {
		if change.Type != ChangeNodeModified || change.NodeID != "n1" {
			t.Fatalf("field change not tagged to node: %+v", change)
		}
	}
	if cmp.Summary != "Total changes: 3 (3 modified)" {
		t.Fatalf("unexpected summary: %q", cmp.Summary)
	}
}

func TestDiffNestedDataComparedByNormalizedJSON(t *testing.T) {
	before := Definition{Nodes: []Node{{
		ID:   "n1",
		Data: map[string]any{"config": map[string]any{"a": float64(1), "b": "x"}},
	}}}
	same := Definition{Nodes: []Node{{
		ID:   "n1",
		Data: map[string]any{"config": map[string]any{"b": "x", "a": float64(1)}},
	}}}
	changed := Definition{Nodes: []Node{{
		ID:   "n1",
		Data: map[string]any{"config": map[string]any{"a": float64(2), "b": "x"}},
	}}}

	if cmp := Diff(before, same); len(cmp.Modified) != 0 {
		t.Fatalf("key order must not register as a change: %+v", cmp.Modified)
	}
	if cmp := Diff(before, changed); len(cmp.Modified) != 1 {
		t.Fatalf("expected nested value change, got %+v", cmp.Modified)
	}
}

func TestDiffEdgeIdentityByEndpoints(t *testing.T) {
	before := Definition{Edges: []Edge{{ID: "e1", Source: "a", Target: "b", Type: "default"}}}
	after := Definition{Edges: []Edge{{ID: "e1", Source: "a", Target: "c", Type: "default"}}}

	cmp := Diff(before, after)

	if len(cmp.Modified) != 0 {
		t.Fatalf("endpoint change must not be a modification: %+v", cmp.Modified)
	}
	if len(cmp.Removed) != 1 || cmp.Removed[0].Type != ChangeEdgeRemoved {
		t.Fatalf("expected one edge removal, got %+v", cmp.Removed)
	}
	if cmp.Removed[0].Description != "Connection removed from a to b" {
		t.Fatalf("unexpected description: %q", cmp.Removed[0].Description)
	}
	if len(cmp.Added) != 1 || cmp.Added[0].Description != "Connection added from a to c" {
		t.Fatalf("expected one edge addition, got %+v", cmp.Added)
	}
}

func TestDiffEdgeModifications(t *testing.T) {
	before := Definition{Edges: []Edge{{ID: "e1", Source: "a", Target: "b", Type: "default", Animated: false}}}
	after := Definition{Edges: []Edge{{ID: "e2", Source: "a", Target: "b", Type: "smoothstep", Animated: true}}}

	cmp := Diff(before, after)

	if len(cmp.Modified) != 2 {
		t.Fatalf("expected type and animated changes, got %+v", cmp.Modified)
	}
	if cmp.Modified[0].Field != "type" || cmp.Modified[0].Description != "Edge type changed from default to smoothstep" {
		t.Fatalf("unexpected type change: %+v", cmp.Modified[0])
	}
	if cmp.Modified[1].Field != "animated" || cmp.Modified[1].Description != "Edge animation changed" {
		t.Fatalf("unexpected animated change: %+v", cmp.Modified[1])
	}
	// The id difference alone is not reported.
	for _, change := range cmp.Modified {
		if change.Field == "id" {
			t.Fatalf("edge id must not be compared: %+v", change)
		}
	}
}

func TestDiffCountSymmetry(t *testing.T) {
	pairs := []struct {
		name string
		a, b Definition
	}{
		{"node add", Definition{}, simpleDefinition()},
		{"mixed", simpleDefinition(), Definition{
			Nodes: []Node{
				{ID: "n1", Type: "start", Data: map[string]any{"label": "Start"}},
				{ID: "n4", Type: "end"},
			},
			Edges: []Edge{{ID: "e9", Source: "n1", Target: "n4"}},
		}},
	}

	for _, pair := range pairs {
		forward := Diff(pair.a, pair.b)
		reverse := Diff(pair.b, pair.a)
		if len(forward.Added) != len(reverse.Removed) {
			t.Fatalf("%s: forward added %d != reverse removed %d", pair.name, len(forward.Added), len(reverse.Removed))
		}
		if len(forward.Removed) != len(reverse.Added) {
			t.Fatalf("%s: forward removed %d != reverse added %d", pair.name, len(forward.Removed), len(reverse.Added))
		}
	}
}

func TestDiffSummaryOmitsZeroClauses(t *testing.T) {
	onlyAdded := Diff(Definition{}, Definition{Nodes: []Node{{ID: "n1"}}})
	if onlyAdded.Summary != "Total changes: 1 (1 added)" {
		t.Fatalf("unexpected summary: %q", onlyAdded.Summary)
	}

	addedAndRemoved := Diff(
		Definition{Nodes: []Node{{ID: "n1"}}},
		Definition{Nodes: []Node{{ID: "n2"}, {ID: "n3"}}},
	)
	if addedAndRemoved.Summary != "Total changes: 3 (2 added, 1 removed)" {
		t.Fatalf("unexpected summary: %q", addedAndRemoved.Summary)
	}
}

func TestDiffToleratesNilSlicesAndData(t *testing.T) {
	cmp := Diff(Definition{}, Definition{})
	if cmp.Total() != 0 || cmp.Summary != "No changes detected" {
		t.Fatalf("unexpected comparison: %+v", cmp)
	}

	before := Definition{Nodes: []Node{{ID: "n1"}}}
	after := Definition{Nodes: []Node{{ID: "n1", Data: map[string]any{"label": "L"}}}}
	cmp = Diff(before, after)
	if len(cmp.Modified) != 1 || cmp.Modified[0].Field != "data.label" {
		t.Fatalf("nil data bag should diff as empty: %+v", cmp.Modified)
	}
}

func TestDiffDoesNotMutateInputs(t *testing.T) {
	before := simpleDefinition()
	after := simpleDefinition()
	after.Nodes[0].Data["label"] = "Begin"

	_ = Diff(before, after)

	if before.Nodes[0].Data["label"] != "Start" {
		t.Fatalf("diff mutated its input: %+v", before.Nodes[0].Data)
	}
}
