// Package gitrepo keeps the revision history of each document, together with
// the anchors that were current at every revision, in a per-document git
// repository.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chronicle/anchors/internal/anchor"
	"chronicle/anchors/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile = "content.json"
	mainBranch  = "main"
)

// ErrNoRepository is returned for documents that were never imported.
var ErrNoRepository = errors.New("document repository does not exist")

type Content struct {
	Title   string          `json:"title"`
	Doc     json.RawMessage `json:"doc,omitempty"`
	Anchors []anchor.Anchor `json:"anchors,omitempty"`
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

// EnsureDocumentRepo creates the repository with initial as its first commit.
// It reports false when the repository already existed.
func (s *Service) EnsureDocumentRepo(documentID string, initial Content, author string) (bool, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(documentID)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return false, fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return false, fmt.Errorf("init repo: %w", err)
	}

	hash, err := s.commit(repo, initial, author, "Import document baseline")
	if err != nil {
		return false, err
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
		return false, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return false, fmt.Errorf("set HEAD to main: %w", err)
	}
	return true, nil
}

func (s *Service) CommitContent(documentID string, content Content, author, message string) (store.CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return store.CommitInfo{}, err
	}

	hash, err := s.commit(repo, content, author, message)
	if err != nil {
		return store.CommitInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}

	return toCommitInfo(commitObj), nil
}

func (s *Service) GetHeadContent(documentID string) (Content, store.CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}

	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}

	return content, toCommitInfo(commitObj), nil
}

func (s *Service) GetContentByHash(documentID, hash string) (Content, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return Content{}, err
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Content{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContentFromCommit(commitObj)
}

// History lists commits newest first. A limit of zero returns all of them.
func (s *Service) History(documentID string, limit int) ([]store.CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, max(limit, 0))
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// HasChanges reports whether committing to would record anything new.
func HasChanges(from, to Content) bool {
	if from.Title != to.Title {
		return true
	}
	if !bytes.Equal(normalizeJSON(from.Doc), normalizeJSON(to.Doc)) {
		return true
	}
	before, _ := json.Marshal(from.Anchors)
	after, _ := json.Marshal(to.Anchors)
	return !bytes.Equal(before, after)
}

func (s *Service) open(documentID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(documentID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo %s: %w", documentID, ErrNoRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, content Content, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal content: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, contentFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", contentFile, err)
	}

	if _, err := worktree.Add(contentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.chronicle.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}

	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func normalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return normalized
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
