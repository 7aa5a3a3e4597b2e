package mgmt

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/compliance-agent/internal/audit"
	"github.com/p-blackswan/compliance-agent/internal/docstore"
	"github.com/p-blackswan/compliance-agent/internal/health"
	"github.com/p-blackswan/compliance-agent/internal/project"
	"github.com/p-blackswan/compliance-agent/internal/proposal"
	"github.com/p-blackswan/compliance-agent/internal/raid"
	"github.com/p-blackswan/compliance-agent/internal/workflow"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	manager   *proposal.Manager
	registry  *project.Registry
	register  *raid.Register
	machine   *workflow.Machine
	docs      *docstore.Store
	auditLog  *audit.Log
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	manager *proposal.Manager,
	registry *project.Registry,
	register *raid.Register,
	machine *workflow.Machine,
	docs *docstore.Store,
	auditLog *audit.Log,
	checker *health.Checker,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		manager:   manager,
		registry:  registry,
		register:  register,
		machine:   machine,
		docs:      docs,
		auditLog:  auditLog,
		checker:   checker,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())
	ready := true
	for _, s := range results {
		if s == health.StatusDown {
			ready = false
			break
		}
	}
	status := "ready"
	code := fiber.StatusOK
	if !ready {
		status = "not_ready"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "checks": results})
}

// CreateProject handles POST /api/v1/projects.
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	p, err := h.registry.Create(project.CreateInput{
		Key:         req.Key,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return domainProblem(c, err)
	}
	if err := h.docs.EnsureInitialized(p.Key); err != nil {
		return domainProblem(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ProjectResponse{Project: p})
}

// ListProjects handles GET /api/v1/projects.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	status := project.Status(c.Query("status"))
	projects, err := h.registry.List(status)
	if err != nil {
		return domainProblem(c, err)
	}
	if projects == nil {
		projects = []*project.Project{}
	}
	return c.JSON(ProjectListResponse{Projects: projects, Total: len(projects)})
}

// GetProject handles GET /api/v1/projects/:key.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	p, err := h.registry.Get(c.Params("key"))
	if err != nil {
		return domainProblem(c, err)
	}
	return c.JSON(ProjectResponse{Project: p})
}

// Propose handles POST /api/v1/projects/:key/proposals.
func (h *Handlers) Propose(c *fiber.Ctx) error {
	var req ProposeRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.Command == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_command", "Bad Request",
			"Command is required")
	}

	p, err := h.manager.Propose(c.Context(), c.Params("key"), req.Command, req.Parameters)
	if err != nil {
		return domainProblem(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ProposalResponse{Proposal: p})
}

// ListProposals handles GET /api/v1/projects/:key/proposals.
func (h *Handlers) ListProposals(c *fiber.Ctx) error {
	ps := h.manager.List(c.Params("key"))
	if ps == nil {
		ps = []*proposal.Proposal{}
	}
	return c.JSON(ProposalListResponse{Proposals: ps, Total: len(ps)})
}

// GetProposal handles GET /api/v1/projects/:key/proposals/:id.
func (h *Handlers) GetProposal(c *fiber.Ctx) error {
	p, err := h.manager.Get(c.Params("key"), c.Params("id"))
	if err != nil {
		return domainProblem(c, err)
	}
	return c.JSON(ProposalResponse{Proposal: p})
}

// ApplyProposal handles POST /api/v1/projects/:key/proposals/:id/apply.
func (h *Handlers) ApplyProposal(c *fiber.Ctx) error {
	res, err := h.manager.Apply(c.Context(), c.Params("key"), c.Params("id"))
	if err != nil {
		return domainProblem(c, err)
	}
	return c.JSON(ApplyResponse{CommitID: res.CommitID, FilesChanged: res.FilesChanged})
}

// RejectProposal handles POST /api/v1/projects/:key/proposals/:id/reject.
func (h *Handlers) RejectProposal(c *fiber.Ctx) error {
	var req RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if err := h.manager.Reject(c.Context(), c.Params("key"), c.Params("id"), req.Reason); err != nil {
		return domainProblem(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddRaidEntry handles POST /api/v1/projects/:key/raid.
func (h *Handlers) AddRaidEntry(c *fiber.Ctx) error {
	key := c.Params("key")
	if _, err := h.registry.Get(key); err != nil {
		return domainProblem(c, err)
	}

	var req RaidAddRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	entry, err := h.register.Add(key, raid.Draft{
		Type:        raid.EntryType(req.Type),
		Severity:    raid.Severity(req.Severity),
		Description: req.Description,
		Mitigation:  req.Mitigation,
		Owner:       req.Owner,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return domainProblem(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(RaidEntryResponse{Entry: entry})
}

// ListRaidEntries handles GET /api/v1/projects/:key/raid.
func (h *Handlers) ListRaidEntries(c *fiber.Ctx) error {
	entries, err := h.register.List(c.Params("key"), raid.Filter{
		Type:     raid.EntryType(c.Query("type")),
		Status:   raid.EntryStatus(c.Query("status")),
		Severity: raid.Severity(c.Query("severity")),
	})
	if err != nil {
		return domainProblem(c, err)
	}
	if entries == nil {
		entries = []raid.Entry{}
	}
	return c.JSON(RaidListResponse{Entries: entries, Total: len(entries)})
}

// UpdateRaidStatus handles POST /api/v1/projects/:key/raid/:id/status.
func (h *Handlers) UpdateRaidStatus(c *fiber.Ctx) error {
	var req RaidStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	entry, err := h.register.UpdateStatus(c.Params("key"), c.Params("id"), raid.EntryStatus(req.Status), req.Note)
	if err != nil {
		return domainProblem(c, err)
	}
	return c.JSON(RaidEntryResponse{Entry: entry})
}

// ExportRaid handles GET /api/v1/projects/:key/raid/export.
func (h *Handlers) ExportRaid(c *fiber.Ctx) error {
	format := c.Query("format", "markdown")
	out, err := h.register.Export(c.Params("key"), format)
	if err != nil {
		return domainProblem(c, err)
	}
	switch format {
	case "json":
		c.Set("Content-Type", "application/json")
	case "yaml", "yml":
		c.Set("Content-Type", "application/yaml")
	default:
		c.Set("Content-Type", "text/markdown; charset=utf-8")
	}
	return c.SendString(out)
}

// GetWorkflow handles GET /api/v1/projects/:key/workflow.
func (h *Handlers) GetWorkflow(c *fiber.Ctx) error {
	key := c.Params("key")
	p, err := h.registry.Get(key)
	if err != nil {
		return domainProblem(c, err)
	}
	allowed, err := h.machine.AllowedPhases(key)
	if err != nil {
		return domainProblem(c, err)
	}
	names := make([]string, len(allowed))
	for i, ph := range allowed {
		names[i] = string(ph)
	}
	return c.JSON(WorkflowResponse{
		Phase:   string(p.Phase),
		Status:  string(p.Status),
		Allowed: names,
	})
}

// TransitionPhase handles POST /api/v1/projects/:key/workflow/transition.
func (h *Handlers) TransitionPhase(c *fiber.Ctx) error {
	var req TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	p, err := h.machine.Transition(c.Params("key"), project.Phase(req.Phase), req.Actor, req.Reason)
	if err != nil {
		return domainProblem(c, err)
	}
	return c.JSON(ProjectResponse{Project: p})
}

// SetProjectStatus handles POST /api/v1/projects/:key/workflow/status.
func (h *Handlers) SetProjectStatus(c *fiber.Ctx) error {
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	p, err := h.machine.SetStatus(c.Params("key"), project.Status(req.Status), req.Actor, req.Reason)
	if err != nil {
		return domainProblem(c, err)
	}
	return c.JSON(ProjectResponse{Project: p})
}

// ListDocuments handles GET /api/v1/projects/:key/documents.
func (h *Handlers) ListDocuments(c *fiber.Ctx) error {
	key := c.Params("key")
	if _, err := h.registry.Get(key); err != nil {
		return domainProblem(c, err)
	}
	paths, err := h.docs.List(key)
	if err != nil {
		return domainProblem(c, err)
	}
	if paths == nil {
		paths = []string{}
	}
	return c.JSON(fiber.Map{"paths": paths, "total": len(paths)})
}

// GetDocument handles GET /api/v1/projects/:key/documents/*.
func (h *Handlers) GetDocument(c *fiber.Ctx) error {
	content, err := h.docs.Read(c.Params("key"), c.Params("*"))
	if err != nil {
		return domainProblem(c, err)
	}
	c.Set("Content-Type", "text/markdown; charset=utf-8")
	return c.SendString(content)
}

// GetHistory handles GET /api/v1/projects/:key/history.
func (h *Handlers) GetHistory(c *fiber.Ctx) error {
	commits, err := h.docs.History(c.Params("key"))
	if err != nil {
		return domainProblem(c, err)
	}
	return c.JSON(fiber.Map{"commits": commits, "total": len(commits)})
}

// GetAuditLog handles GET /api/v1/projects/:key/audit.
func (h *Handlers) GetAuditLog(c *fiber.Ctx) error {
	key := c.Params("key")
	if _, err := h.registry.Get(key); err != nil {
		return domainProblem(c, err)
	}
	events, err := h.auditLog.List(key, c.QueryInt("limit", 100))
	if err != nil {
		return domainProblem(c, err)
	}
	if events == nil {
		events = []audit.Event{}
	}
	return c.JSON(fiber.Map{"events": events, "total": len(events)})
}
