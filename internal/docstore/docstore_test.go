package docstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), zerolog.Nop())
}

func TestEnsureInitialized_Idempotent(t *testing.T) {
	s := setupStore(t)

	require.NoError(t, s.EnsureInitialized("alpha"))
	first, err := s.History("alpha")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Repeated calls must not grow the history or move HEAD.
	for i := 0; i < 3; i++ {
		require.NoError(t, s.EnsureInitialized("alpha"))
	}
	again, err := s.History("alpha")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestReadUnknownProject(t *testing.T) {
	s := setupStore(t)
	_, err := s.Read("ghost", "a.md")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestCommitAndRead(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureInitialized("alpha"))

	id, err := s.Commit("alpha", []Change{
		{Path: "artifacts/charter.md", Op: OpCreate, Content: "# Charter\n"},
		{Path: "plans/stage-plan.md", Op: OpCreate, Content: "# Plan\n"},
	}, "[alpha] generate charter")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Read("alpha", "artifacts/charter.md")
	require.NoError(t, err)
	assert.Equal(t, "# Charter\n", got)

	paths, err := s.List("alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"artifacts/charter.md", "plans/stage-plan.md"}, paths)

	head, err := s.Head("alpha")
	require.NoError(t, err)
	assert.Equal(t, id, head.ID)
	assert.Equal(t, "[alpha] generate charter", head.Message)
}

func TestCommit_UpdateAndDelete(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureInitialized("alpha"))

	_, err := s.Commit("alpha", []Change{{Path: "a.md", Op: OpCreate, Content: "v1\n"}}, "create")
	require.NoError(t, err)
	_, err = s.Commit("alpha", []Change{{Path: "a.md", Op: OpUpdate, Content: "v2\n"}}, "update")
	require.NoError(t, err)

	got, err := s.Read("alpha", "a.md")
	require.NoError(t, err)
	assert.Equal(t, "v2\n", got)

	_, err = s.Commit("alpha", []Change{{Path: "a.md", Op: OpDelete}}, "delete")
	require.NoError(t, err)
	_, err = s.Read("alpha", "a.md")
	assert.ErrorIs(t, err, perrors.ErrNotFound)

	history, err := s.History("alpha")
	require.NoError(t, err)
	assert.Len(t, history, 4) // init + create + update + delete
	assert.Equal(t, "delete", history[0].Message)
	assert.Equal(t, history[1].ID, history[0].Parent)
}

func TestCommit_EmptyChanges(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureInitialized("alpha"))
	_, err := s.Commit("alpha", nil, "empty")
	assert.ErrorIs(t, err, perrors.ErrValidation)
}

func TestCommit_RejectsEscapingPaths(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureInitialized("alpha"))

	for _, p := range []string{"", "/etc/passwd", "../outside.md", "a/../../b.md"} {
		_, err := s.Commit("alpha", []Change{{Path: p, Op: OpCreate, Content: "x"}}, "bad")
		assert.ErrorIs(t, err, perrors.ErrValidation, "path %q", p)
	}
}

func TestCommit_NoPartialApplication(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureInitialized("alpha"))

	_, err := s.Commit("alpha", []Change{{Path: "a.md", Op: OpCreate, Content: "original\n"}}, "seed")
	require.NoError(t, err)
	before, err := s.History("alpha")
	require.NoError(t, err)

	// Force blob staging of the second change to fail by occupying its
	// content-addressed slot with a directory.
	blocked := sha256Hex("new file\n")
	require.NoError(t, os.Mkdir(filepath.Join(s.projectDir("alpha"), "objects", blocked), 0o755))

	_, err = s.Commit("alpha", []Change{
		{Path: "a.md", Op: OpUpdate, Content: "modified\n"},
		{Path: "b.md", Op: OpCreate, Content: "new file\n"},
	}, "should fail atomically")
	require.ErrorIs(t, err, perrors.ErrCommitFailed)

	// Every readable path is unchanged and history did not advance.
	got, err := s.Read("alpha", "a.md")
	require.NoError(t, err)
	assert.Equal(t, "original\n", got)
	_, err = s.Read("alpha", "b.md")
	assert.ErrorIs(t, err, perrors.ErrNotFound)

	after, err := s.History("alpha")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCommit_MaterializesTree(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureInitialized("alpha"))

	_, err := s.Commit("alpha", []Change{{Path: "docs/readme.md", Op: OpCreate, Content: "hello\n"}}, "seed")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(s.projectDir("alpha"), "tree", "docs", "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(raw))
}

func TestCommitIDs_DistinctPerCommit(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureInitialized("alpha"))

	id1, err := s.Commit("alpha", []Change{{Path: "a.md", Op: OpCreate, Content: "x\n"}}, "one")
	require.NoError(t, err)
	id2, err := s.Commit("alpha", []Change{{Path: "a.md", Op: OpUpdate, Content: "y\n"}}, "two")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestProjectsIsolated(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureInitialized("alpha"))
	require.NoError(t, s.EnsureInitialized("beta"))

	_, err := s.Commit("alpha", []Change{{Path: "a.md", Op: OpCreate, Content: "alpha\n"}}, "seed")
	require.NoError(t, err)

	_, err = s.Read("beta", "a.md")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}
