package version

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store persists version lineages. Implementations must preserve
// insertion order in ListVersions and keep at most one active version per
// workflow across AppendVersion and SetActive.
type Store interface {
	// ListVersions returns the full lineage in creation order, empty for
	// an unknown workflow.
	ListVersions(ctx context.Context, workflowID string) ([]WorkflowVersion, error)
	// GetVersion returns ErrVersionNotFound when the number is absent.
	GetVersion(ctx context.Context, workflowID string, number int) (WorkflowVersion, error)
	// ActiveVersion returns ErrVersionNotFound when no version is active.
	ActiveVersion(ctx context.Context, workflowID string) (WorkflowVersion, error)
	// AppendVersion deactivates every existing version of the workflow and
	// inserts v as the new active head, atomically per backend.
	AppendVersion(ctx context.Context, v WorkflowVersion) error
	// DeleteVersion removes one version; ErrVersionNotFound when absent.
	DeleteVersion(ctx context.Context, workflowID string, number int) error
	// SetActive marks exactly one version active.
	SetActive(ctx context.Context, workflowID string, number int) error
}

// CreateInput carries caller-supplied metadata for a new version.
// ExpectedHead, when set, enables optimistic concurrency: the create
// fails with ErrHeadMoved unless the lineage head is still that version
// (0 meaning an empty lineage).
type CreateInput struct {
	Name          string
	Description   string
	ChangeSummary string
	CreatedBy     string
	ExpectedHead  *int
}

// Manager owns the append-only version lineage per workflow and exposes
// rollback, comparison and history on top of a Store.
type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// CreateVersion appends a new snapshot as the active head. Version
// numbers start at 1 and are always one above the highest number in the
// lineage, so they stay unique even after deletions.
func (m *Manager) CreateVersion(ctx context.Context, workflowID string, def Definition, in CreateInput) (WorkflowVersion, error) {
	lineage, err := m.store.ListVersions(ctx, workflowID)
	if err != nil {
		return WorkflowVersion{}, fmt.Errorf("list versions: %w", err)
	}

	head, parent := lineageHead(lineage)
	if in.ExpectedHead != nil && *in.ExpectedHead != head {
		return WorkflowVersion{}, fmt.Errorf("expected head %d but lineage is at %d: %w", *in.ExpectedHead, head, ErrHeadMoved)
	}

	next := nextNumber(lineage)
	v := WorkflowVersion{
		ID:            fmt.Sprintf("%s_v%d", workflowID, next),
		WorkflowID:    workflowID,
		Version:       next,
		Name:          in.Name,
		Description:   in.Description,
		ChangeSummary: in.ChangeSummary,
		Definition:    def.Clone(),
		CreatedBy:     in.CreatedBy,
		CreatedAt:     m.now().UTC(),
		IsActive:      true,
		ParentVersion: parent,
	}
	if err := m.store.AppendVersion(ctx, v); err != nil {
		return WorkflowVersion{}, fmt.Errorf("append version: %w", err)
	}
	return v, nil
}

// Versions returns the lineage in creation order.
func (m *Manager) Versions(ctx context.Context, workflowID string) ([]WorkflowVersion, error) {
	return m.store.ListVersions(ctx, workflowID)
}

// Version looks up one snapshot by its number.
func (m *Manager) Version(ctx context.Context, workflowID string, number int) (WorkflowVersion, error) {
	return m.store.GetVersion(ctx, workflowID, number)
}

// ActiveVersion returns the single currently active snapshot.
func (m *Manager) ActiveVersion(ctx context.Context, workflowID string) (WorkflowVersion, error) {
	return m.store.ActiveVersion(ctx, workflowID)
}

// Rollback restores a historical snapshot by appending it as a brand-new
// head version. History is never rewound in place, so the full audit
// trail survives every rollback.
func (m *Manager) Rollback(ctx context.Context, workflowID string, target int, expectedHead *int) (WorkflowVersion, error) {
	targetVersion, err := m.store.GetVersion(ctx, workflowID, target)
	if err != nil {
		return WorkflowVersion{}, err
	}

	lineage, err := m.store.ListVersions(ctx, workflowID)
	if err != nil {
		return WorkflowVersion{}, fmt.Errorf("list versions: %w", err)
	}
	head, _ := lineageHead(lineage)
	if expectedHead != nil && *expectedHead != head {
		return WorkflowVersion{}, fmt.Errorf("expected head %d but lineage is at %d: %w", *expectedHead, head, ErrHeadMoved)
	}

	next := nextNumber(lineage)
	parent := target
	v := WorkflowVersion{
		ID:            fmt.Sprintf("%s_v%d", workflowID, next),
		WorkflowID:    workflowID,
		Version:       next,
		Name:          targetVersion.Name + " (Rollback)",
		Description:   targetVersion.Description,
		ChangeSummary: fmt.Sprintf("Rollback to version %d", target),
		Definition:    targetVersion.Definition.Clone(),
		CreatedBy:     "system",
		CreatedAt:     m.now().UTC(),
		IsActive:      true,
		ParentVersion: &parent,
	}
	if err := m.store.AppendVersion(ctx, v); err != nil {
		return WorkflowVersion{}, fmt.Errorf("append rollback version: %w", err)
	}
	return v, nil
}

// DeleteVersion removes one snapshot from the lineage. The sole
// remaining version of a workflow cannot be deleted. When the active
// version is deleted, the entry immediately before it in lineage order
// is reactivated.
func (m *Manager) DeleteVersion(ctx context.Context, workflowID string, number int) error {
	lineage, err := m.store.ListVersions(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}

	index := -1
	for i, v := range lineage {
		if v.Version == number {
			index = i
			break
		}
	}
	if index == -1 {
		return ErrVersionNotFound
	}
	if len(lineage) == 1 {
		return ErrLastVersion
	}

	wasActive := lineage[index].IsActive
	if err := m.store.DeleteVersion(ctx, workflowID, number); err != nil {
		return err
	}
	if !wasActive {
		return nil
	}

	predecessor := index - 1
	if predecessor < 0 {
		predecessor = index + 1
	}
	return m.store.SetActive(ctx, workflowID, lineage[predecessor].Version)
}

// CompareVersions diffs two snapshots in caller-controlled direction:
// "added" means present in the second version but not the first.
func (m *Manager) CompareVersions(ctx context.Context, workflowID string, from, to int) (Comparison, error) {
	fromVersion, errFrom := m.store.GetVersion(ctx, workflowID, from)
	toVersion, errTo := m.store.GetVersion(ctx, workflowID, to)
	if errors.Is(errFrom, ErrVersionNotFound) || errors.Is(errTo, ErrVersionNotFound) {
		return Comparison{}, fmt.Errorf("one or both versions not found: %w", ErrVersionNotFound)
	}
	if errFrom != nil {
		return Comparison{}, errFrom
	}
	if errTo != nil {
		return Comparison{}, errTo
	}
	return Diff(fromVersion.Definition, toVersion.Definition), nil
}

// ChangeHistory walks the lineage as consecutive pairs and concatenates
// each pair's changes in chronological order. A lineage with fewer than
// two versions has no history.
func (m *Manager) ChangeHistory(ctx context.Context, workflowID string) ([]Change, error) {
	lineage, err := m.store.ListVersions(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	history := []Change{}
	for i := 1; i < len(lineage); i++ {
		cmp := Diff(lineage[i-1].Definition, lineage[i].Definition)
		history = append(history, cmp.Added...)
		history = append(history, cmp.Removed...)
		history = append(history, cmp.Modified...)
	}
	return history, nil
}

func lineageHead(lineage []WorkflowVersion) (head int, parent *int) {
	if len(lineage) == 0 {
		return 0, nil
	}
	last := lineage[len(lineage)-1].Version
	return last, &last
}

func nextNumber(lineage []WorkflowVersion) int {
	highest := 0
	for _, v := range lineage {
		if v.Version > highest {
			highest = v.Version
		}
	}
	return highest + 1
}
