// Package docstore persists each project's document tree as an append-only
// history of content-addressed commits.
//
// Layout under <root>/projects/<key>:
//
//	objects/<sha256>   content blobs
//	history/<id>.json  commit records (full manifest snapshot + parent)
//	history/HEAD       current commit id, advanced by atomic rename
//	tree/...           materialized working tree of the committed state
//
// Reads resolve through HEAD's manifest, never through the working tree, so
// a crash while materializing the tree cannot corrupt observable state. The
// working tree is a convenience export for humans browsing the data dir.
package docstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
	"github.com/p-blackswan/compliance-agent/lru"
)

// Operation describes what a change does to a path.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Change is one staged mutation within a commit.
type Change struct {
	Path    string
	Op      Operation
	Content string // ignored for OpDelete
}

// Commit is one immutable history record.
type Commit struct {
	ID        string            `json:"id"`
	Parent    string            `json:"parent,omitempty"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
	Manifest  map[string]string `json:"manifest"` // path -> blob sha256
}

// Store owns the per-project commit histories. All mutation funnels through
// Commit; there is no other write path.
type Store struct {
	root   string
	logger zerolog.Logger

	// commits caches decoded history records. Records are immutable, so
	// entries never need invalidation.
	commits *lru.Cache[string, *Commit]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a store rooted at dir.
func New(dir string, logger zerolog.Logger) *Store {
	return &Store{
		root:    dir,
		logger:  logger.With().Str("component", "docstore").Logger(),
		commits: lru.New[string, *Commit](256),
		locks:   make(map[string]*sync.Mutex),
	}
}

// projectLock returns the mutex serializing commits for one project.
func (s *Store) projectLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) projectDir(key string) string {
	return filepath.Join(s.root, "projects", key)
}

// EnsureInitialized creates the history root and an initial empty commit if
// none exists. Idempotent; safe to call on every startup and every propose.
func (s *Store) EnsureInitialized(key string) error {
	lock := s.projectLock(key)
	lock.Lock()
	defer lock.Unlock()

	dir := s.projectDir(key)
	for _, sub := range []string{"objects", "history", "tree"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to init project %s: %w", key, err)
		}
	}

	if _, err := s.headID(key); err == nil {
		return nil
	}

	initial := Commit{
		Message:   fmt.Sprintf("[%s] initialize project", key),
		CreatedAt: time.Now().UTC(),
		Manifest:  map[string]string{},
	}
	initial.ID = commitID(&initial)
	if err := s.writeCommit(key, &initial); err != nil {
		return fmt.Errorf("failed to write initial commit: %w", err)
	}

	s.logger.Info().Str("project", key).Str("commit", initial.ID).Msg("project history initialized")
	return nil
}

// Read returns the committed content of path. It reports
// errors.ErrNotFound for unknown projects and paths.
func (s *Store) Read(key, path string) (string, error) {
	head, err := s.headCommit(key)
	if err != nil {
		return "", err
	}
	sum, ok := head.Manifest[path]
	if !ok {
		return "", fmt.Errorf("path %s in project %s: %w", path, key, perrors.ErrNotFound)
	}
	raw, err := os.ReadFile(filepath.Join(s.projectDir(key), "objects", sum))
	if err != nil {
		return "", fmt.Errorf("failed to read blob %s: %w", sum, err)
	}
	return string(raw), nil
}

// Commit stages every change and creates exactly one new commit covering
// them. It either fully succeeds or leaves the readable history untouched:
// blobs land first (content-addressed, so orphans are harmless), then the
// commit record, and HEAD advances last by rename.
func (s *Store) Commit(key string, changes []Change, message string) (string, error) {
	if len(changes) == 0 {
		return "", &perrors.ValidationError{Field: "changes", Message: "commit requires at least one change"}
	}

	lock := s.projectLock(key)
	lock.Lock()
	defer lock.Unlock()

	head, err := s.headCommit(key)
	if err != nil {
		return "", err
	}

	manifest := make(map[string]string, len(head.Manifest))
	for p, h := range head.Manifest {
		manifest[p] = h
	}

	// Stage blobs before touching any history record.
	for _, ch := range changes {
		if err := validRelPath(ch.Path); err != nil {
			return "", err
		}
		switch ch.Op {
		case OpCreate, OpUpdate:
			sum, err := s.writeBlob(key, ch.Content)
			if err != nil {
				return "", fmt.Errorf("%w: staging %s: %v", perrors.ErrCommitFailed, ch.Path, err)
			}
			manifest[ch.Path] = sum
		case OpDelete:
			delete(manifest, ch.Path)
		default:
			return "", &perrors.ValidationError{Field: "operation", Message: fmt.Sprintf("unknown operation %q", ch.Op)}
		}
	}

	commit := Commit{
		Parent:    head.ID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
		Manifest:  manifest,
	}
	commit.ID = commitID(&commit)

	if err := s.writeCommit(key, &commit); err != nil {
		return "", fmt.Errorf("%w: %v", perrors.ErrCommitFailed, err)
	}

	// Committed. Tree materialization is best-effort from here on.
	if err := s.materialize(key, changes); err != nil {
		s.logger.Warn().Err(err).Str("project", key).Msg("working tree materialization failed")
	}

	s.logger.Info().
		Str("project", key).
		Str("commit", commit.ID).
		Int("files", len(changes)).
		Msg("commit created")

	return commit.ID, nil
}

// History returns all commits for the project, newest first.
func (s *Store) History(key string) ([]Commit, error) {
	head, err := s.headCommit(key)
	if err != nil {
		return nil, err
	}
	var out []Commit
	for c := head; ; {
		out = append(out, *c)
		if c.Parent == "" {
			break
		}
		next, err := s.readCommit(key, c.Parent)
		if err != nil {
			return nil, fmt.Errorf("broken history at %s: %w", c.Parent, err)
		}
		c = next
	}
	return out, nil
}

// List returns the paths present in the committed tree, sorted.
func (s *Store) List(key string) ([]string, error) {
	head, err := s.headCommit(key)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(head.Manifest))
	for p := range head.Manifest {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Head returns the current commit.
func (s *Store) Head(key string) (*Commit, error) {
	return s.headCommit(key)
}

func (s *Store) headID(key string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.projectDir(key), "history", "HEAD"))
	if err != nil {
		return "", fmt.Errorf("project %s history: %w", key, perrors.ErrNotFound)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *Store) headCommit(key string) (*Commit, error) {
	id, err := s.headID(key)
	if err != nil {
		return nil, err
	}
	return s.readCommit(key, id)
}

func (s *Store) readCommit(key, id string) (*Commit, error) {
	cacheKey := key + "/" + id
	if c, ok := s.commits.Get(cacheKey); ok {
		return c, nil
	}
	raw, err := os.ReadFile(filepath.Join(s.projectDir(key), "history", id+".json"))
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", id, perrors.ErrNotFound)
	}
	var c Commit
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to decode commit %s: %w", id, err)
	}
	s.commits.Put(cacheKey, &c)
	return &c, nil
}

// writeBlob stores content by hash. Writing an existing blob is a no-op.
func (s *Store) writeBlob(key, content string) (string, error) {
	sum := sha256Hex(content)
	path := filepath.Join(s.projectDir(key), "objects", sum)
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		return sum, nil
	}
	if err := atomicWrite(path, []byte(content)); err != nil {
		return "", err
	}
	return sum, nil
}

// writeCommit persists the record, then advances HEAD. The HEAD rename is
// the commit point.
func (s *Store) writeCommit(key string, c *Commit) error {
	historyDir := filepath.Join(s.projectDir(key), "history")
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicWrite(filepath.Join(historyDir, c.ID+".json"), raw); err != nil {
		return err
	}
	return atomicWrite(filepath.Join(historyDir, "HEAD"), []byte(c.ID+"\n"))
}

func (s *Store) materialize(key string, changes []Change) error {
	treeDir := filepath.Join(s.projectDir(key), "tree")
	for _, ch := range changes {
		dst := filepath.Join(treeDir, filepath.FromSlash(ch.Path))
		if ch.Op == OpDelete {
			if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, []byte(ch.Content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// commitID derives a stable id from the commit's parent, message and
// manifest, truncated for readability.
func commitID(c *Commit) string {
	h := sha256.New()
	fmt.Fprintf(h, "parent %s\nmessage %s\ntime %d\n", c.Parent, c.Message, c.CreatedAt.UnixNano())
	paths := make([]string, 0, len(c.Manifest))
	for p := range c.Manifest {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(h, "%s %s\n", p, c.Manifest[p])
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// atomicWrite writes via a temp file in the target directory plus rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// validRelPath rejects absolute paths and traversal outside the tree.
func validRelPath(p string) error {
	if p == "" {
		return &perrors.ValidationError{Field: "path", Message: "path is required"}
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return &perrors.ValidationError{Field: "path", Message: "path must be relative to the project root"}
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if clean != p || strings.HasPrefix(clean, "..") {
		return &perrors.ValidationError{Field: "path", Message: fmt.Sprintf("path %q escapes the project tree", p)}
	}
	return nil
}
