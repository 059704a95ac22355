package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flowline/api/internal/version"
)

// PostgresStore persists workflow version lineages in Postgres. Definitions
// are stored as jsonb so the diff engine works on the decoded form.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const versionColumns = `id, workflow_id, version, name, description, change_summary, definition, created_by, created_at, is_active, parent_version`

func (s *PostgresStore) ListVersions(ctx context.Context, workflowID string) ([]version.WorkflowVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []version.WorkflowVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, workflowID string, number int) (version.WorkflowVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM workflow_versions
		WHERE workflow_id = $1 AND version = $2
	`, workflowID, number)
	return scanVersionRow(row)
}

func (s *PostgresStore) ActiveVersion(ctx context.Context, workflowID string) (version.WorkflowVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM workflow_versions
		WHERE workflow_id = $1 AND is_active = TRUE
	`, workflowID)
	return scanVersionRow(row)
}

// AppendVersion deactivates the current head and inserts the new version as
// active in one transaction.
func (s *PostgresStore) AppendVersion(ctx context.Context, v version.WorkflowVersion) error {
	definition, err := json.Marshal(v.Definition)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workflow_versions SET is_active = FALSE
		WHERE workflow_id = $1 AND is_active = TRUE
	`, v.WorkflowID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("deactivate head: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_versions
			(id, workflow_id, version, name, description, change_summary, definition, created_by, created_at, is_active, parent_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, v.ID, v.WorkflowID, v.Version, v.Name, v.Description, v.ChangeSummary, definition, v.CreatedBy, v.CreatedAt, v.IsActive, v.ParentVersion); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteVersion(ctx context.Context, workflowID string, number int) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_versions
		WHERE workflow_id = $1 AND version = $2
	`, workflowID, number)
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	if affected == 0 {
		return version.ErrVersionNotFound
	}
	return nil
}

func (s *PostgresStore) SetActive(ctx context.Context, workflowID string, number int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workflow_versions SET is_active = FALSE
		WHERE workflow_id = $1 AND is_active = TRUE
	`, workflowID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("deactivate head: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE workflow_versions SET is_active = TRUE
		WHERE workflow_id = $1 AND version = $2
	`, workflowID, number)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("activate version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("activate version: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return version.ErrVersionNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersionRow(row *sql.Row) (version.WorkflowVersion, error) {
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return version.WorkflowVersion{}, version.ErrVersionNotFound
	}
	return v, err
}

func scanVersion(row rowScanner) (version.WorkflowVersion, error) {
	var v version.WorkflowVersion
	var definition []byte
	var parent sql.NullInt64
	err := row.Scan(&v.ID, &v.WorkflowID, &v.Version, &v.Name, &v.Description, &v.ChangeSummary, &definition, &v.CreatedBy, &v.CreatedAt, &v.IsActive, &parent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return version.WorkflowVersion{}, err
		}
		return version.WorkflowVersion{}, fmt.Errorf("scan version: %w", err)
	}
	if err := json.Unmarshal(definition, &v.Definition); err != nil {
		return version.WorkflowVersion{}, fmt.Errorf("decode definition: %w", err)
	}
	if parent.Valid {
		n := int(parent.Int64)
		v.ParentVersion = &n
	}
	return v, nil
}

// API keys

type APIKeyRecord struct {
	ID         string
	Name       string
	SecretHash string
	Role       string
	CreatedAt  time.Time
}

func (s *PostgresStore) InsertAPIKey(ctx context.Context, key APIKeyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, secret_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, key.ID, key.Name, key.SecretHash, key.Role, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAPIKey(ctx context.Context, id string) (APIKeyRecord, error) {
	var key APIKeyRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, secret_hash, role, created_at
		FROM api_keys
		WHERE id = $1
	`, id).Scan(&key.ID, &key.Name, &key.SecretHash, &key.Role, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return APIKeyRecord{}, sql.ErrNoRows
	}
	if err != nil {
		return APIKeyRecord{}, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return count, nil
}
