package project

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(t.TempDir(), zerolog.Nop())
}

func TestCreateAndGet(t *testing.T) {
	r := setupRegistry(t)

	p, err := r.Create(CreateInput{Key: "website-revamp", Name: "Website Revamp", Description: "Q3 initiative"})
	require.NoError(t, err)
	assert.Equal(t, PhaseInitiating, p.Phase)
	assert.Equal(t, StatusActive, p.Status)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := r.Get("website-revamp")
	require.NoError(t, err)
	assert.Equal(t, "Website Revamp", got.Name)
	assert.Equal(t, "Q3 initiative", got.Description)
}

func TestCreate_Duplicate(t *testing.T) {
	r := setupRegistry(t)
	_, err := r.Create(CreateInput{Key: "alpha", Name: "Alpha"})
	require.NoError(t, err)
	_, err = r.Create(CreateInput{Key: "alpha", Name: "Alpha Again"})
	assert.ErrorIs(t, err, perrors.ErrValidation)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCreate_InvalidKeys(t *testing.T) {
	r := setupRegistry(t)
	for _, key := range []string{"", "A", "UPPER", "1leading", "has space", "x", "raid", "projects"} {
		_, err := r.Create(CreateInput{Key: key, Name: "n"})
		assert.ErrorIs(t, err, perrors.ErrValidation, "key %q", key)
	}
}

func TestCreate_MissingName(t *testing.T) {
	r := setupRegistry(t)
	_, err := r.Create(CreateInput{Key: "alpha"})
	assert.ErrorIs(t, err, perrors.ErrValidation)
}

func TestGet_NotFound(t *testing.T) {
	r := setupRegistry(t)
	_, err := r.Get("ghost")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestList(t *testing.T) {
	r := setupRegistry(t)
	_, err := r.Create(CreateInput{Key: "beta", Name: "Beta"})
	require.NoError(t, err)
	_, err = r.Create(CreateInput{Key: "alpha", Name: "Alpha"})
	require.NoError(t, err)

	all, err := r.List("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Key) // sorted

	active, err := r.List(StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	archived, err := r.List(StatusArchived)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestSave_RoundTrip(t *testing.T) {
	r := setupRegistry(t)
	p, err := r.Create(CreateInput{Key: "alpha", Name: "Alpha"})
	require.NoError(t, err)

	p.Phase = PhasePlanning
	require.NoError(t, r.Save(p))

	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, PhasePlanning, got.Phase)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestValidPhaseAndStatus(t *testing.T) {
	assert.True(t, ValidPhase(PhaseClosing))
	assert.False(t, ValidPhase("done"))
	assert.True(t, ValidStatus(StatusOnHold))
	assert.False(t, ValidStatus("paused"))
}
