package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"flowline/api/internal/apikey"
	"flowline/api/internal/auth"
	"flowline/api/internal/config"
	"flowline/api/internal/export"
	"flowline/api/internal/gitrepo"
	"flowline/api/internal/search"
	"flowline/api/internal/util"
	"flowline/api/internal/version"
)

type Session struct {
	Token     string
	KeyID     string
	KeyName   string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

// CreateVersionInput is the request body for saving a new version.
type CreateVersionInput struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	ChangeSummary string             `json:"changeSummary"`
	Definition    version.Definition `json:"definition"`
	ExpectedHead  *int               `json:"expectedHead,omitempty"`
}

// auditTrail records versions as git commits per workflow.
type auditTrail interface {
	CommitVersion(workflowID string, v version.WorkflowVersion) (gitrepo.CommitInfo, error)
	History(workflowID string, limit int) ([]gitrepo.CommitInfo, error)
}

// versionIndex pushes versions into the search layer.
type versionIndex interface {
	IndexVersion(record search.VersionRecord)
	DeleteVersion(id string)
	Search(q search.Query) search.Response
}

// comparisonCache caches computed comparisons per version pair.
type comparisonCache interface {
	GetComparison(ctx context.Context, workflowID string, from, to int) (*version.Comparison, error)
	PutComparison(ctx context.Context, workflowID string, from, to int, cmp version.Comparison) error
}

// snapshotArchive uploads version snapshots to object storage.
type snapshotArchive interface {
	PutSnapshot(ctx context.Context, v version.WorkflowVersion) error
}

// Service wires the lineage manager to the supporting infrastructure.
// Every integration besides the store is optional and may be nil.
type Service struct {
	cfg      config.Config
	db       *sql.DB
	manager  *version.Manager
	keys     *apikey.Service
	git      auditTrail
	searcher versionIndex
	cache    comparisonCache
	archive  snapshotArchive
	exporter *export.Service
}

func NewService(cfg config.Config, db *sql.DB, store version.Store) *Service {
	return &Service{
		cfg:     cfg,
		db:      db,
		manager: version.NewManager(store),
	}
}

func (s *Service) WithKeys(keys *apikey.Service) *Service {
	s.keys = keys
	return s
}

func (s *Service) WithAuditTrail(git auditTrail) *Service {
	s.git = git
	return s
}

func (s *Service) WithSearch(searcher versionIndex) *Service {
	s.searcher = searcher
	return s
}

func (s *Service) WithCache(cache comparisonCache) *Service {
	s.cache = cache
	return s
}

func (s *Service) WithArchive(archive snapshotArchive) *Service {
	s.archive = archive
	return s
}

func (s *Service) WithExporter(exporter *export.Service) *Service {
	s.exporter = exporter
	return s
}

// Ping checks database connectivity for readiness probes.
func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Bootstrap provisions the seed API key when none exist yet. The one-time
// plaintext is logged so the operator can capture it.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.keys == nil || s.cfg.SeedAPIKey == "" {
		return nil
	}
	has, err := s.keys.HasKeys(ctx)
	if err != nil {
		return fmt.Errorf("check api keys: %w", err)
	}
	if has {
		return nil
	}
	key, plaintext, err := s.keys.Provision(ctx, s.cfg.SeedAPIKey, "editor")
	if err != nil {
		return fmt.Errorf("provision seed key: %w", err)
	}
	log.Printf("bootstrap: provisioned api key %s (%s): %s", key.ID, key.Name, plaintext)
	return nil
}

// AuthRequired reports whether requests must carry a bearer token. With no
// provisioned keys the API runs open, which keeps local development simple.
func (s *Service) AuthRequired(ctx context.Context) bool {
	if s.keys == nil {
		return false
	}
	has, err := s.keys.HasKeys(ctx)
	if err != nil {
		log.Printf("auth: key lookup failed, requiring auth: %v", err)
		return true
	}
	return has
}

// IssueToken exchanges an API key for a short-lived bearer token.
func (s *Service) IssueToken(ctx context.Context, plaintextKey string) (Session, error) {
	if s.keys == nil {
		return Session{}, domainError(503, "UNAVAILABLE", "API key auth is not configured", nil)
	}
	key, err := s.keys.Verify(ctx, plaintextKey)
	if err != nil {
		if errors.Is(err, apikey.ErrInvalidKey) {
			return Session{}, domainError(401, "UNAUTHORIZED", "Invalid API key", nil)
		}
		return Session{}, err
	}

	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	claims := auth.Claims{
		Sub:  key.ID,
		Name: key.Name,
		Role: key.Role,
		JTI:  util.NewID("jti"),
		Exp:  expiresAt.Unix(),
	}
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	return Session{
		Token:     token,
		KeyID:     key.ID,
		KeyName:   key.Name,
		Role:      key.Role,
		JTI:       claims.JTI,
		ExpiresAt: expiresAt,
	}, nil
}

// SessionFromToken validates a bearer token and rebuilds the session.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		KeyID:     claims.Sub,
		KeyName:   claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// CreateVersion validates and appends a new version, then records it in the
// audit trail, archive and search index.
func (s *Service) CreateVersion(ctx context.Context, workflowID string, in CreateVersionInput, createdBy string) (version.WorkflowVersion, error) {
	if strings.TrimSpace(workflowID) == "" {
		return version.WorkflowVersion{}, domainError(422, "VALIDATION_ERROR", "workflowId is required", nil)
	}
	if strings.TrimSpace(in.Name) == "" {
		return version.WorkflowVersion{}, domainError(422, "VALIDATION_ERROR", "name is required", nil)
	}

	v, err := s.manager.CreateVersion(ctx, workflowID, in.Definition, version.CreateInput{
		Name:          in.Name,
		Description:   in.Description,
		ChangeSummary: in.ChangeSummary,
		CreatedBy:     createdBy,
		ExpectedHead:  in.ExpectedHead,
	})
	if err != nil {
		return version.WorkflowVersion{}, err
	}

	s.recordVersion(v)
	return v, nil
}

// recordVersion fans the new version out to the optional integrations.
// Failures are logged, never surfaced: the lineage write already succeeded.
func (s *Service) recordVersion(v version.WorkflowVersion) {
	if s.git != nil {
		if _, err := s.git.CommitVersion(v.WorkflowID, v); err != nil {
			log.Printf("audit: commit version %s: %v", v.ID, err)
		}
	}
	if s.archive != nil {
		go func() {
			if err := s.archive.PutSnapshot(context.Background(), v); err != nil {
				log.Printf("archive: snapshot %s: %v", v.ID, err)
			}
		}()
	}
	if s.searcher != nil {
		s.searcher.IndexVersion(search.VersionRecord{
			ID:            v.ID,
			WorkflowID:    v.WorkflowID,
			Version:       v.Version,
			Name:          v.Name,
			Description:   v.Description,
			ChangeSummary: v.ChangeSummary,
		})
	}
}

// Versions returns the full lineage for a workflow.
func (s *Service) Versions(ctx context.Context, workflowID string) ([]version.WorkflowVersion, error) {
	return s.manager.Versions(ctx, workflowID)
}

// Version returns a single version by number.
func (s *Service) Version(ctx context.Context, workflowID string, number int) (version.WorkflowVersion, error) {
	return s.manager.Version(ctx, workflowID, number)
}

// ActiveVersion returns the current head of the lineage.
func (s *Service) ActiveVersion(ctx context.Context, workflowID string) (version.WorkflowVersion, error) {
	return s.manager.ActiveVersion(ctx, workflowID)
}

// Rollback appends a restored snapshot as a new head version.
func (s *Service) Rollback(ctx context.Context, workflowID string, target int, expectedHead *int) (version.WorkflowVersion, error) {
	v, err := s.manager.Rollback(ctx, workflowID, target, expectedHead)
	if err != nil {
		return version.WorkflowVersion{}, err
	}
	s.recordVersion(v)
	return v, nil
}

// DeleteVersion removes a version and drops it from the search index.
func (s *Service) DeleteVersion(ctx context.Context, workflowID string, number int) error {
	v, err := s.manager.Version(ctx, workflowID, number)
	if err != nil {
		return err
	}
	if err := s.manager.DeleteVersion(ctx, workflowID, number); err != nil {
		return err
	}
	if s.searcher != nil {
		s.searcher.DeleteVersion(v.ID)
	}
	return nil
}

// Compare diffs two versions, serving cached results when available.
func (s *Service) Compare(ctx context.Context, workflowID string, from, to int) (version.Comparison, error) {
	if s.cache != nil {
		cached, err := s.cache.GetComparison(ctx, workflowID, from, to)
		if err != nil {
			log.Printf("cache: get comparison %s %d..%d: %v", workflowID, from, to, err)
		} else if cached != nil {
			return *cached, nil
		}
	}

	cmp, err := s.manager.CompareVersions(ctx, workflowID, from, to)
	if err != nil {
		return version.Comparison{}, err
	}

	if s.cache != nil {
		if err := s.cache.PutComparison(ctx, workflowID, from, to, cmp); err != nil {
			log.Printf("cache: put comparison %s %d..%d: %v", workflowID, from, to, err)
		}
	}
	return cmp, nil
}

// ExportComparison renders a comparison report in the requested format.
func (s *Service) ExportComparison(ctx context.Context, workflowID string, from, to int, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(503, "UNAVAILABLE", "Export is not configured", nil)
	}

	fromVersion, err := s.manager.Version(ctx, workflowID, from)
	if err != nil {
		return nil, err
	}
	toVersion, err := s.manager.Version(ctx, workflowID, to)
	if err != nil {
		return nil, err
	}

	cmp, err := s.Compare(ctx, workflowID, from, to)
	if err != nil {
		return nil, err
	}

	return s.exporter.Export(export.Request{
		WorkflowID: workflowID,
		From:       from,
		To:         to,
		Format:     format,
	}, fromVersion, toVersion, cmp)
}

// ChangeHistory returns the concatenated changes across consecutive versions.
func (s *Service) ChangeHistory(ctx context.Context, workflowID string) ([]version.Change, error) {
	return s.manager.ChangeHistory(ctx, workflowID)
}

// Audit returns the git commit trail for a workflow.
func (s *Service) Audit(workflowID string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.git == nil {
		return []gitrepo.CommitInfo{}, nil
	}
	return s.git.History(workflowID, limit)
}

// Search runs a full-text query over version metadata.
func (s *Service) Search(q search.Query) search.Response {
	if s.searcher == nil {
		return search.Response{Results: []search.Result{}, Total: 0, Query: q.Text}
	}
	return s.searcher.Search(q)
}
