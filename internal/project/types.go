package project

import "time"

// Phase is a project's position in the delivery lifecycle.
type Phase string

const (
	PhaseInitiating Phase = "initiating"
	PhasePlanning   Phase = "planning"
	PhaseExecuting  Phase = "executing"
	PhaseMonitoring Phase = "monitoring"
	PhaseClosing    Phase = "closing"
)

// Status is the administrative state of a project, independent of phase.
type Status string

const (
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// Project is the metadata record for one managed project.
type Project struct {
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Phase       Phase      `json:"phase"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// CreateInput holds the parameters for creating a new project.
type CreateInput struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ValidPhase reports whether p is a known phase.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseInitiating, PhasePlanning, PhaseExecuting, PhaseMonitoring, PhaseClosing:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusOnHold, StatusCompleted, StatusArchived:
		return true
	}
	return false
}
