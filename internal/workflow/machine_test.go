package workflow

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/compliance-agent/internal/audit"
	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
	"github.com/p-blackswan/compliance-agent/internal/project"
)

func setupMachine(t *testing.T) (*Machine, *audit.Log) {
	t.Helper()
	dir := t.TempDir()
	registry := project.NewRegistry(dir, zerolog.Nop())
	auditLog := audit.New(dir, false, zerolog.Nop())
	m := NewMachine(registry, auditLog, zerolog.Nop())
	_, err := registry.Create(project.CreateInput{Key: "alpha", Name: "Alpha"})
	require.NoError(t, err)
	return m, auditLog
}

func TestTransition_HappyPath(t *testing.T) {
	m, _ := setupMachine(t)

	p, err := m.Transition("alpha", project.PhasePlanning, "pm@example.com", "kickoff complete")
	require.NoError(t, err)
	assert.Equal(t, project.PhasePlanning, p.Phase)

	p, err = m.Transition("alpha", project.PhaseExecuting, "pm@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, project.PhaseExecuting, p.Phase)
}

func TestTransition_MonitoringLoop(t *testing.T) {
	m, _ := setupMachine(t)

	for _, target := range []project.Phase{project.PhasePlanning, project.PhaseExecuting, project.PhaseMonitoring} {
		_, err := m.Transition("alpha", target, "pm@example.com", "")
		require.NoError(t, err)
	}

	// Monitoring can loop back into executing for rework.
	p, err := m.Transition("alpha", project.PhaseExecuting, "pm@example.com", "rework")
	require.NoError(t, err)
	assert.Equal(t, project.PhaseExecuting, p.Phase)

	_, err = m.Transition("alpha", project.PhaseMonitoring, "pm@example.com", "")
	require.NoError(t, err)
	p, err = m.Transition("alpha", project.PhaseClosing, "pm@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, project.PhaseClosing, p.Phase)
}

func TestTransition_IllegalSkip(t *testing.T) {
	m, _ := setupMachine(t)

	_, err := m.Transition("alpha", project.PhaseExecuting, "pm@example.com", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrInvalidTransition)

	var te *perrors.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(project.PhaseInitiating), te.From)
	assert.Equal(t, []string{string(project.PhasePlanning)}, te.Allowed)
}

func TestTransition_ClosingIsTerminal(t *testing.T) {
	m, _ := setupMachine(t)
	for _, target := range []project.Phase{project.PhasePlanning, project.PhaseExecuting, project.PhaseMonitoring, project.PhaseClosing} {
		_, err := m.Transition("alpha", target, "pm@example.com", "")
		require.NoError(t, err)
	}
	_, err := m.Transition("alpha", project.PhaseExecuting, "pm@example.com", "")
	assert.ErrorIs(t, err, perrors.ErrInvalidTransition)
}

func TestTransition_RequiresActor(t *testing.T) {
	m, _ := setupMachine(t)
	_, err := m.Transition("alpha", project.PhasePlanning, "", "")
	assert.ErrorIs(t, err, perrors.ErrValidation)
}

func TestTransition_UnknownPhase(t *testing.T) {
	m, _ := setupMachine(t)
	_, err := m.Transition("alpha", project.Phase("done"), "pm@example.com", "")
	assert.ErrorIs(t, err, perrors.ErrValidation)
}

func TestTransition_UnknownProject(t *testing.T) {
	m, _ := setupMachine(t)
	_, err := m.Transition("ghost", project.PhasePlanning, "pm@example.com", "")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestTransition_BlockedWhenOnHold(t *testing.T) {
	m, _ := setupMachine(t)
	_, err := m.SetStatus("alpha", project.StatusOnHold, "pm@example.com", "budget review")
	require.NoError(t, err)

	_, err = m.Transition("alpha", project.PhasePlanning, "pm@example.com", "")
	assert.ErrorIs(t, err, perrors.ErrInvalidTransition)

	allowed, err := m.AllowedPhases("alpha")
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestAllowedPhases(t *testing.T) {
	m, _ := setupMachine(t)
	allowed, err := m.AllowedPhases("alpha")
	require.NoError(t, err)
	assert.Equal(t, []project.Phase{project.PhasePlanning}, allowed)
}

func TestSetStatus_ArchiveIsTerminal(t *testing.T) {
	m, _ := setupMachine(t)

	p, err := m.SetStatus("alpha", project.StatusArchived, "pm@example.com", "cancelled")
	require.NoError(t, err)
	assert.Equal(t, project.StatusArchived, p.Status)
	require.NotNil(t, p.ArchivedAt)

	_, err = m.SetStatus("alpha", project.StatusActive, "pm@example.com", "")
	assert.ErrorIs(t, err, perrors.ErrInvalidTransition)
}

func TestSetStatus_CompletedOnlyArchives(t *testing.T) {
	m, _ := setupMachine(t)
	_, err := m.SetStatus("alpha", project.StatusCompleted, "pm@example.com", "")
	require.NoError(t, err)

	_, err = m.SetStatus("alpha", project.StatusActive, "pm@example.com", "")
	assert.ErrorIs(t, err, perrors.ErrInvalidTransition)

	p, err := m.SetStatus("alpha", project.StatusArchived, "pm@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, project.StatusArchived, p.Status)
}

func TestSetStatus_ResumeFromHold(t *testing.T) {
	m, _ := setupMachine(t)
	_, err := m.SetStatus("alpha", project.StatusOnHold, "pm@example.com", "")
	require.NoError(t, err)
	p, err := m.SetStatus("alpha", project.StatusActive, "pm@example.com", "resumed")
	require.NoError(t, err)
	assert.Equal(t, project.StatusActive, p.Status)
}

func TestTransitionsAreAudited(t *testing.T) {
	m, auditLog := setupMachine(t)

	_, err := m.Transition("alpha", project.PhasePlanning, "pm@example.com", "kickoff")
	require.NoError(t, err)
	_, err = m.SetStatus("alpha", project.StatusOnHold, "pm@example.com", "budget")
	require.NoError(t, err)

	events, err := auditLog.List("alpha", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.Equal(t, audit.EventStatusChanged, events[0].Type)
	assert.Equal(t, string(project.StatusActive), events[0].From)
	assert.Equal(t, string(project.StatusOnHold), events[0].To)

	assert.Equal(t, audit.EventPhaseTransitioned, events[1].Type)
	assert.Equal(t, string(project.PhaseInitiating), events[1].From)
	assert.Equal(t, string(project.PhasePlanning), events[1].To)
	assert.Equal(t, "pm@example.com", events[1].Actor)
	assert.Equal(t, "kickoff", events[1].Reason)
}
