package mgmt

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
	"github.com/p-blackswan/compliance-agent/internal/project"
	"github.com/p-blackswan/compliance-agent/internal/proposal"
	"github.com/p-blackswan/compliance-agent/internal/raid"
)

// CreateProjectRequest is the body for POST /api/v1/projects.
type CreateProjectRequest struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ProjectResponse wraps a single project.
type ProjectResponse struct {
	Project *project.Project `json:"project"`
}

// ProjectListResponse wraps a project listing.
type ProjectListResponse struct {
	Projects []*project.Project `json:"projects"`
	Total    int                `json:"total"`
}

// ProposeRequest is the body for POST /api/v1/projects/:key/proposals.
type ProposeRequest struct {
	Command    string            `json:"command"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ProposalResponse wraps a single proposal.
type ProposalResponse struct {
	Proposal *proposal.Proposal `json:"proposal"`
}

// ProposalListResponse wraps a proposal listing.
type ProposalListResponse struct {
	Proposals []*proposal.Proposal `json:"proposals"`
	Total     int                  `json:"total"`
}

// ApplyResponse reports a successful apply.
type ApplyResponse struct {
	CommitID     string   `json:"commit_id"`
	FilesChanged []string `json:"files_changed"`
}

// RejectRequest is the body for POST .../proposals/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RaidAddRequest is the body for POST /api/v1/projects/:key/raid.
type RaidAddRequest struct {
	Type        string     `json:"type"`
	Severity    string     `json:"severity,omitempty"`
	Description string     `json:"description"`
	Mitigation  string     `json:"mitigation,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// RaidStatusRequest is the body for POST .../raid/:id/status.
type RaidStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// RaidEntryResponse wraps a single register entry.
type RaidEntryResponse struct {
	Entry *raid.Entry `json:"entry"`
}

// RaidListResponse wraps a register listing.
type RaidListResponse struct {
	Entries []raid.Entry `json:"entries"`
	Total   int          `json:"total"`
}

// TransitionRequest is the body for POST .../workflow/transition.
type TransitionRequest struct {
	Phase  string `json:"phase"`
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

// StatusRequest is the body for POST .../workflow/status.
type StatusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

// WorkflowResponse reports the project's lifecycle position.
type WorkflowResponse struct {
	Phase   string   `json:"phase"`
	Status  string   `json:"status"`
	Allowed []string `json:"allowed_transitions"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// domainProblem maps engine errors to Problem Detail responses so the
// caller always learns which next action is valid.
func domainProblem(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, perrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found", err.Error())
	case errors.Is(err, perrors.ErrInvalidCommand):
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_command", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrValidation):
		return problemResponse(c, fiber.StatusBadRequest,
			"validation_failed", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrInvalidTransition):
		return problemResponse(c, fiber.StatusConflict,
			"invalid_transition", "Conflict", err.Error())
	case errors.Is(err, perrors.ErrStaleProposal):
		return problemResponse(c, fiber.StatusConflict,
			"stale_proposal", "Conflict", err.Error())
	case errors.Is(err, perrors.ErrProposalExpired):
		return problemResponse(c, fiber.StatusGone,
			"proposal_expired", "Gone", err.Error())
	case errors.Is(err, perrors.ErrProposalResolved):
		return problemResponse(c, fiber.StatusConflict,
			"proposal_resolved", "Conflict", err.Error())
	case errors.Is(err, perrors.ErrCommitFailed):
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"commit_failed", "Service Unavailable", err.Error())
	default:
		return problemResponse(c, fiber.StatusInternalServerError,
			"internal_error", "Internal Server Error", "An internal error occurred")
	}
}
