package version

import (
	"context"
	"errors"
	"testing"
)

func startDefinition(label string) Definition {
	return Definition{
		Nodes: []Node{{ID: "n1", Type: "start", Position: Position{X: 0, Y: 0}, Data: map[string]any{"label": label}}},
		Edges: []Edge{},
	}
}

func newTestManager() *Manager {
	return NewManager(NewMemoryStore())
}

func TestCreateVersionNumbersSequentially(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	for i := 1; i <= 4; i++ {
		v, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "Draft", CreatedBy: "avery"})
		if err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
		if v.Version != i {
			t.Fatalf("expected version %d, got %d", i, v.Version)
		}
		if !v.IsActive {
			t.Fatalf("new version %d must be active", i)
		}
	}

	lineage, err := manager.Versions(ctx, "wf1")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(lineage) != 4 {
		t.Fatalf("expected 4 versions, got %d", len(lineage))
	}
	activeCount := 0
	for i, v := range lineage {
		if v.Version != i+1 {
			t.Fatalf("lineage out of order at %d: %+v", i, v)
		}
		if v.IsActive {
			activeCount++
			if v.Version != 4 {
				t.Fatalf("wrong active version: %d", v.Version)
			}
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active version, got %d", activeCount)
	}

	if lineage[0].ParentVersion != nil {
		t.Fatalf("first version must have no parent: %+v", lineage[0].ParentVersion)
	}
	if lineage[3].ParentVersion == nil || *lineage[3].ParentVersion != 3 {
		t.Fatalf("expected parent 3, got %+v", lineage[3].ParentVersion)
	}
	if lineage[3].ID != "wf1_v4" {
		t.Fatalf("unexpected id: %q", lineage[3].ID)
	}
}

func TestVersionsOfUnknownWorkflowIsEmpty(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	lineage, err := manager.Versions(ctx, "nope")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(lineage) != 0 {
		t.Fatalf("expected empty lineage, got %+v", lineage)
	}
	if _, err := manager.ActiveVersion(ctx, "nope"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestCreateVersionExpectedHead(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	zero := 0
	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "v1", ExpectedHead: &zero}); err != nil {
		t.Fatalf("CreateVersion() with empty lineage error = %v", err)
	}

	stale := 0
	_, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "v2", ExpectedHead: &stale})
	if !errors.Is(err, ErrHeadMoved) {
		t.Fatalf("expected ErrHeadMoved, got %v", err)
	}

	one := 1
	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "v2", ExpectedHead: &one}); err != nil {
		t.Fatalf("CreateVersion() with matching head error = %v", err)
	}
}

func TestCompareVersionsScenario(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "Initial", CreatedBy: "avery"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Begin"), CreateInput{Name: "Renamed", CreatedBy: "avery"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	active, err := manager.ActiveVersion(ctx, "wf1")
	if err != nil {
		t.Fatalf("ActiveVersion() error = %v", err)
	}
	if active.Version != 2 {
		t.Fatalf("expected active version 2, got %d", active.Version)
	}
	v1, err := manager.Version(ctx, "wf1", 1)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v1.IsActive {
		t.Fatal("version 1 must be inactive after second create")
	}

	cmp, err := manager.CompareVersions(ctx, "wf1", 1, 2)
	if err != nil {
		t.Fatalf("CompareVersions() error = %v", err)
	}
	if len(cmp.Added) != 0 || len(cmp.Removed) != 0 || len(cmp.Modified) != 1 {
		t.Fatalf("unexpected comparison: %+v", cmp)
	}
	change := cmp.Modified[0]
	if change.Type != ChangeNodeModified || change.NodeID != "n1" || change.Field != "data.label" {
		t.Fatalf("unexpected change: %+v", change)
	}
	if change.OldValue != "Start" || change.NewValue != "Begin" {
		t.Fatalf("unexpected values: %+v", change)
	}
	if change.Description != "Field data.label changed" {
		t.Fatalf("unexpected description: %q", change.Description)
	}
	if cmp.Summary != "Total changes: 1 (1 modified)" {
		t.Fatalf("unexpected summary: %q", cmp.Summary)
	}
}

func TestCompareVersionsMissingVersion(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "v1"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	_, err := manager.CompareVersions(ctx, "wf1", 1, 7)
	if !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
	if got := err.Error(); got != "one or both versions not found: version not found" {
		t.Fatalf("unexpected error message: %q", got)
	}
}

func TestRollbackGrowsLineage(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "Initial", CreatedBy: "avery"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Begin"), CreateInput{Name: "Renamed", CreatedBy: "avery"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	rolled, err := manager.Rollback(ctx, "wf1", 1, nil)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if rolled.Version != 3 {
		t.Fatalf("expected rollback to create version 3, got %d", rolled.Version)
	}
	if rolled.Name != "Initial (Rollback)" {
		t.Fatalf("unexpected name: %q", rolled.Name)
	}
	if rolled.ChangeSummary != "Rollback to version 1" {
		t.Fatalf("unexpected change summary: %q", rolled.ChangeSummary)
	}
	if rolled.CreatedBy != "system" {
		t.Fatalf("unexpected creator: %q", rolled.CreatedBy)
	}
	if rolled.ParentVersion == nil || *rolled.ParentVersion != 1 {
		t.Fatalf("expected parent 1, got %+v", rolled.ParentVersion)
	}
	if rolled.Definition.Nodes[0].Data["label"] != "Start" {
		t.Fatalf("definition not restored: %+v", rolled.Definition.Nodes[0].Data)
	}

	lineage, err := manager.Versions(ctx, "wf1")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(lineage) != 3 {
		t.Fatalf("rollback must grow the lineage, got %d versions", len(lineage))
	}

	active, err := manager.ActiveVersion(ctx, "wf1")
	if err != nil {
		t.Fatalf("ActiveVersion() error = %v", err)
	}
	if active.Version != 3 {
		t.Fatalf("expected active version 3, got %d", active.Version)
	}

	if _, err := manager.Rollback(ctx, "wf1", 42, nil); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestDeleteVersionGuards(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "v1"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	if err := manager.DeleteVersion(ctx, "wf1", 1); !errors.Is(err, ErrLastVersion) {
		t.Fatalf("expected ErrLastVersion, got %v", err)
	}
	if err := manager.DeleteVersion(ctx, "wf1", 9); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}

	lineage, err := manager.Versions(ctx, "wf1")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(lineage) != 1 || !lineage[0].IsActive {
		t.Fatalf("failed delete must leave the lineage untouched: %+v", lineage)
	}
}

func TestDeleteActiveVersionReactivatesPredecessor(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	for _, label := range []string{"One", "Two", "Three"} {
		if _, err := manager.CreateVersion(ctx, "wf1", startDefinition(label), CreateInput{Name: label}); err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
	}

	if err := manager.DeleteVersion(ctx, "wf1", 3); err != nil {
		t.Fatalf("DeleteVersion() error = %v", err)
	}

	active, err := manager.ActiveVersion(ctx, "wf1")
	if err != nil {
		t.Fatalf("ActiveVersion() error = %v", err)
	}
	if active.Version != 2 {
		t.Fatalf("expected version 2 reactivated, got %d", active.Version)
	}

	// Deleting an inactive version must not touch the active flag.
	if err := manager.DeleteVersion(ctx, "wf1", 1); err != nil {
		t.Fatalf("DeleteVersion() error = %v", err)
	}
	active, err = manager.ActiveVersion(ctx, "wf1")
	if err != nil {
		t.Fatalf("ActiveVersion() error = %v", err)
	}
	if active.Version != 2 {
		t.Fatalf("active version moved unexpectedly: %d", active.Version)
	}
}

func TestVersionNumbersStayUniqueAfterDeletion(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	for _, label := range []string{"One", "Two", "Three"} {
		if _, err := manager.CreateVersion(ctx, "wf1", startDefinition(label), CreateInput{Name: label}); err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
	}
	if err := manager.DeleteVersion(ctx, "wf1", 2); err != nil {
		t.Fatalf("DeleteVersion() error = %v", err)
	}

	v, err := manager.CreateVersion(ctx, "wf1", startDefinition("Four"), CreateInput{Name: "Four"})
	if err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	if v.Version != 4 {
		t.Fatalf("expected version 4 after deleting 2 from 1..3, got %d", v.Version)
	}
}

func TestChangeHistoryConcatenatesPairs(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	history, err := manager.ChangeHistory(ctx, "wf1")
	if err != nil {
		t.Fatalf("ChangeHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("empty lineage must yield empty history: %+v", history)
	}

	if _, err := manager.CreateVersion(ctx, "wf1", startDefinition("Start"), CreateInput{Name: "v1"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	history, err = manager.ChangeHistory(ctx, "wf1")
	if err != nil {
		t.Fatalf("ChangeHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("single version must yield empty history: %+v", history)
	}

	second := startDefinition("Begin")
	second.Nodes = append(second.Nodes, Node{ID: "n2", Type: "end", Data: map[string]any{"label": "Done"}})
	if _, err := manager.CreateVersion(ctx, "wf1", second, CreateInput{Name: "v2"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	third := second.Clone()
	third.Nodes = third.Nodes[:1]
	if _, err := manager.CreateVersion(ctx, "wf1", third, CreateInput{Name: "v3"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	history, err = manager.ChangeHistory(ctx, "wf1")
	if err != nil {
		t.Fatalf("ChangeHistory() error = %v", err)
	}
	// Pair (1,2): one node added, one label change. Pair (2,3): one node removed.
	if len(history) != 3 {
		t.Fatalf("expected 3 changes, got %+v", history)
	}
	if history[0].Type != ChangeNodeAdded || history[1].Type != ChangeNodeModified || history[2].Type != ChangeNodeRemoved {
		t.Fatalf("unexpected history order: %+v", history)
	}
}

func TestStoredVersionsAreNotAliased(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager()

	def := startDefinition("Start")
	if _, err := manager.CreateVersion(ctx, "wf1", def, CreateInput{Name: "v1"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	// Mutating the caller's definition must not touch stored history.
	def.Nodes[0].Data["label"] = "Hacked"

	stored, err := manager.Version(ctx, "wf1", 1)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if stored.Definition.Nodes[0].Data["label"] != "Start" {
		t.Fatalf("stored definition aliased caller memory: %+v", stored.Definition.Nodes[0].Data)
	}

	// Mutating a returned snapshot must not touch stored history either.
	stored.Definition.Nodes[0].Data["label"] = "Hacked"
	again, err := manager.Version(ctx, "wf1", 1)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if again.Definition.Nodes[0].Data["label"] != "Start" {
		t.Fatalf("store leaked internal state: %+v", again.Definition.Nodes[0].Data)
	}
}
