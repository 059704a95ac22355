// Package gitrepo keeps a per-workflow git repository as an audit trail.
// Every saved version becomes a commit of definition.json on main, so the
// full lineage survives even when versions are deleted from the database.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"flowline/api/internal/version"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CommitVersion records a version in the workflow's audit repo, creating the
// repo on first use.
func (s *Service) CommitVersion(workflowID string, v version.WorkflowVersion) (CommitInfo, error) {
	lock := s.workflowLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(workflowID)
	if err != nil {
		return CommitInfo{}, err
	}

	message := fmt.Sprintf("v%d: %s", v.Version, v.Name)
	if v.ChangeSummary != "" {
		message += "\n\n" + v.ChangeSummary
	}

	hash, err := s.commit(repo, v.Definition, v.CreatedBy, message)
	if err != nil {
		return CommitInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists commits on main, newest first. A limit of 0 means all.
func (s *Service) History(workflowID string, limit int) ([]CommitInfo, error) {
	lock := s.workflowLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(workflowID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []CommitInfo{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// DefinitionAt reads the workflow definition recorded at the given commit.
func (s *Service) DefinitionAt(workflowID, hash string) (version.Definition, error) {
	lock := s.workflowLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(workflowID))
	if err != nil {
		return version.Definition{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return version.Definition{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return version.Definition{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readDefinitionFromCommit(commitObj)
}

func (s *Service) repoPath(workflowID string) string {
	return filepath.Join(s.baseDir, workflowID)
}

func (s *Service) workflowLock(workflowID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[workflowID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[workflowID] = lock
	return lock
}

func (s *Service) openOrInit(workflowID string) (*git.Repository, error) {
	path := s.repoPath(workflowID)
	if _, err := os.Stat(path); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return nil, fmt.Errorf("open repo: %w", err)
		}
		return repo, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) commit(repo *git.Repository, def version.Definition, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal definition: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "definition.json"), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write definition.json: %w", err)
	}

	if _, err := worktree.Add("definition.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add definition: %w", err)
	}

	if author == "" {
		author = "system"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.flowline.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit definition: %w", err)
	}

	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("set HEAD to main: %w", err)
	}
	return hash, nil
}

func readDefinitionFromCommit(commitObj *object.Commit) (version.Definition, error) {
	file, err := commitObj.File("definition.json")
	if err != nil {
		return version.Definition{}, fmt.Errorf("load definition.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return version.Definition{}, fmt.Errorf("open definition reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return version.Definition{}, fmt.Errorf("read definition bytes: %w", err)
	}

	var def version.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return version.Definition{}, fmt.Errorf("decode commit definition: %w", err)
	}
	return def, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "user"
	}
	return string(runes)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
