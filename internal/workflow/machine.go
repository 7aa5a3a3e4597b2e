// Package workflow drives project lifecycle phases through a fixed
// transition graph and keeps the status axis (active, on hold, completed,
// archived) consistent with it.
package workflow

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/compliance-agent/internal/audit"
	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
	"github.com/p-blackswan/compliance-agent/internal/project"
)

// phaseGraph holds the allowed forward edges between phases. Monitoring
// can hand back to executing when monitoring surfaces rework.
var phaseGraph = map[project.Phase][]project.Phase{
	project.PhaseInitiating: {project.PhasePlanning},
	project.PhasePlanning:   {project.PhaseExecuting},
	project.PhaseExecuting:  {project.PhaseMonitoring},
	project.PhaseMonitoring: {project.PhaseExecuting, project.PhaseClosing},
	project.PhaseClosing:    {},
}

// statusGraph holds the allowed status changes. Archived is terminal.
var statusGraph = map[project.Status][]project.Status{
	project.StatusActive:    {project.StatusOnHold, project.StatusCompleted, project.StatusArchived},
	project.StatusOnHold:    {project.StatusActive, project.StatusArchived},
	project.StatusCompleted: {project.StatusArchived},
	project.StatusArchived:  {},
}

// Machine applies phase and status transitions to projects and records
// every change in the audit log.
type Machine struct {
	registry *project.Registry
	auditLog *audit.Log
	logger   zerolog.Logger
}

func NewMachine(registry *project.Registry, auditLog *audit.Log, logger zerolog.Logger) *Machine {
	return &Machine{
		registry: registry,
		auditLog: auditLog,
		logger:   logger.With().Str("component", "workflow").Logger(),
	}
}

// AllowedPhases returns the phases the project may transition to from its
// current phase. Projects that are not active cannot move at all.
func (m *Machine) AllowedPhases(key string) ([]project.Phase, error) {
	p, err := m.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if p.Status != project.StatusActive {
		return []project.Phase{}, nil
	}
	return append([]project.Phase{}, phaseGraph[p.Phase]...), nil
}

// Transition moves the project to the target phase. The move must be an
// edge in the phase graph and the project must be active.
func (m *Machine) Transition(key string, target project.Phase, actor, reason string) (*project.Project, error) {
	if !project.ValidPhase(target) {
		return nil, &perrors.ValidationError{Field: "phase", Message: fmt.Sprintf("unknown phase %q", target)}
	}
	if actor == "" {
		return nil, &perrors.ValidationError{Field: "actor", Message: "actor is required"}
	}

	p, err := m.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if p.Status != project.StatusActive {
		return nil, &perrors.TransitionError{
			Entity:  "project",
			From:    string(p.Phase),
			To:      string(target),
			Allowed: []string{},
		}
	}

	allowed := phaseGraph[p.Phase]
	if !containsPhase(allowed, target) {
		return nil, &perrors.TransitionError{
			Entity:  "project",
			From:    string(p.Phase),
			To:      string(target),
			Allowed: phaseStrings(allowed),
		}
	}

	from := p.Phase
	p.Phase = target
	if err := m.registry.Save(p); err != nil {
		return nil, err
	}

	if err := m.auditLog.Append(key, audit.Event{
		Type:   audit.EventPhaseTransitioned,
		From:   string(from),
		To:     string(target),
		Actor:  actor,
		Reason: reason,
	}); err != nil {
		m.logger.Error().Err(err).Str("project", key).Msg("failed to record phase transition")
	}

	m.logger.Info().
		Str("project", key).
		Str("from", string(from)).
		Str("to", string(target)).
		Str("actor", actor).
		Msg("phase transitioned")

	return p, nil
}

// SetStatus changes the project's status axis. Archiving stamps
// ArchivedAt; archived projects never change again.
func (m *Machine) SetStatus(key string, target project.Status, actor, reason string) (*project.Project, error) {
	if !project.ValidStatus(target) {
		return nil, &perrors.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", target)}
	}
	if actor == "" {
		return nil, &perrors.ValidationError{Field: "actor", Message: "actor is required"}
	}

	p, err := m.registry.Get(key)
	if err != nil {
		return nil, err
	}

	allowed := statusGraph[p.Status]
	if !containsStatus(allowed, target) {
		return nil, &perrors.TransitionError{
			Entity:  "project status",
			From:    string(p.Status),
			To:      string(target),
			Allowed: statusStrings(allowed),
		}
	}

	from := p.Status
	p.Status = target
	if target == project.StatusArchived {
		now := time.Now().UTC()
		p.ArchivedAt = &now
	}
	if err := m.registry.Save(p); err != nil {
		return nil, err
	}

	if err := m.auditLog.Append(key, audit.Event{
		Type:   audit.EventStatusChanged,
		From:   string(from),
		To:     string(target),
		Actor:  actor,
		Reason: reason,
	}); err != nil {
		m.logger.Error().Err(err).Str("project", key).Msg("failed to record status change")
	}

	m.logger.Info().
		Str("project", key).
		Str("from", string(from)).
		Str("to", string(target)).
		Str("actor", actor).
		Msg("status changed")

	return p, nil
}

func containsPhase(list []project.Phase, target project.Phase) bool {
	for _, p := range list {
		if p == target {
			return true
		}
	}
	return false
}

func containsStatus(list []project.Status, target project.Status) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func phaseStrings(list []project.Phase) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = string(p)
	}
	return out
}

func statusStrings(list []project.Status) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}
