package proposal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/compliance-agent/internal/audit"
	"github.com/p-blackswan/compliance-agent/internal/diffeng"
	"github.com/p-blackswan/compliance-agent/internal/docstore"
	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
	"github.com/p-blackswan/compliance-agent/internal/generate"
	"github.com/p-blackswan/compliance-agent/internal/metrics"
	"github.com/p-blackswan/compliance-agent/internal/notify"
	"github.com/p-blackswan/compliance-agent/internal/project"
	"github.com/p-blackswan/compliance-agent/internal/raid"
	"github.com/p-blackswan/compliance-agent/internal/retry"
)

// RaidUpdater is the slice of the RAID register a command side effect
// may use.
type RaidUpdater interface {
	Add(key string, draft raid.Draft) (*raid.Entry, error)
}

// PhaseTransitioner is the slice of the phase machine a command side
// effect may use.
type PhaseTransitioner interface {
	Transition(key string, target project.Phase, actor, reason string) (*project.Project, error)
}

const defaultTTL = time.Hour

// Manager owns the proposal lifecycle. All committed changes to a
// project's documents flow through Propose and Apply.
type Manager struct {
	docs      *docstore.Store
	registry  *project.Registry
	auditLog  *audit.Log
	generator generate.Generator
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	commands  map[string]CommandSpec
	deps      SideEffectDeps
	logger    zerolog.Logger

	store      *pendingStore
	ttl        time.Duration
	genTimeout time.Duration
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures the manager.
type Option func(*Manager)

func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

func WithGeneratorTimeout(d time.Duration) Option {
	return func(m *Manager) { m.genTimeout = d }
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

func WithCommands(cmds map[string]CommandSpec) Option {
	return func(m *Manager) { m.commands = cmds }
}

func WithSideEffectDeps(deps SideEffectDeps) Option {
	return func(m *Manager) { m.deps = deps }
}

// WithClock overrides the time source. Used by tests to exercise TTL
// expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager wires the proposal pipeline. generator may be nil, in which
// case every proposal uses the template fallback.
func NewManager(docs *docstore.Store, registry *project.Registry, auditLog *audit.Log, generator generate.Generator, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		docs:       docs,
		registry:   registry,
		auditLog:   auditLog,
		generator:  generator,
		commands:   DefaultCommands(),
		logger:     logger.With().Str("component", "proposal").Logger(),
		store:      newPendingStore(),
		ttl:        defaultTTL,
		genTimeout: 60 * time.Second,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) projectLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Propose validates the command, generates content, and stores a Pending
// proposal. It never mutates committed state.
func (m *Manager) Propose(ctx context.Context, projectKey, command string, params map[string]string) (*Proposal, error) {
	proj, err := m.registry.Get(projectKey)
	if err != nil {
		return nil, err
	}
	if proj.Status == project.StatusArchived {
		return nil, &perrors.ValidationError{Field: "project_key", Message: fmt.Sprintf("project %s is archived", projectKey)}
	}

	spec, ok := m.commands[command]
	if !ok {
		return nil, fmt.Errorf("unknown command %q: %w", command, perrors.ErrInvalidCommand)
	}
	if err := spec.Validate(params); err != nil {
		return nil, err
	}

	m.expireLapsed()

	if err := m.docs.EnsureInitialized(projectKey); err != nil {
		return nil, err
	}

	genCtx := generate.Context{
		ProjectKey:  proj.Key,
		ProjectName: proj.Name,
		Description: proj.Description,
		Phase:       string(proj.Phase),
		Params:      params,
	}
	prompt := generate.RenderPrompt(command, genCtx)
	content := m.generateContent(ctx, command, prompt, genCtx)

	path := spec.TargetPath(params)
	oldContent, err := m.docs.Read(projectKey, path)
	op := docstore.OpUpdate
	if err != nil {
		if !errors.Is(err, perrors.ErrNotFound) {
			return nil, err
		}
		oldContent = ""
		op = docstore.OpCreate
	}

	now := m.now()
	p := &Proposal{
		ID:         uuid.New().String(),
		ProjectKey: projectKey,
		Command:    command,
		Parameters: params,
		Status:     StatusPending,
		Changes: []FileChange{{
			Path:       path,
			Op:         op,
			OldContent: oldContent,
			NewContent: content,
			Diff:       diffeng.Unified(path, oldContent, content),
		}},
		Message:   spec.Describe(params),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.store.put(p)

	if err := m.auditLog.Append(projectKey, audit.Event{
		Type:        audit.EventProposalCreated,
		ProposalID:  p.ID,
		PromptHash:  audit.Hash(prompt),
		ContentHash: audit.Hash(content),
		Prompt:      prompt,
		Content:     content,
	}); err != nil {
		m.logger.Error().Err(err).Str("proposal_id", p.ID).Msg("failed to record proposal creation")
	}

	m.recordProposal(command, "created")
	m.updatePendingGauge()
	m.notify(ctx, notify.Notification{
		Kind:       "proposal.created",
		ProjectKey: projectKey,
		ProposalID: p.ID,
		Title:      "Proposal awaiting review",
		Message:    fmt.Sprintf("%s: %s", p.Message, summarizeChanges(p.Changes)),
	})

	m.logger.Info().
		Str("project", projectKey).
		Str("proposal_id", p.ID).
		Str("command", command).
		Str("path", path).
		Msg("proposal created")

	return p.clone(), nil
}

// generateContent asks the generator with a bounded timeout and retry,
// falling back to the deterministic template on any failure.
func (m *Manager) generateContent(ctx context.Context, command, prompt string, genCtx generate.Context) string {
	if m.generator == nil {
		m.recordFallback()
		return generate.RenderFallback(command, genCtx)
	}

	gctx, cancel := context.WithTimeout(ctx, m.genTimeout)
	defer cancel()

	var content string
	err := retry.Do(gctx, retry.DefaultConfig(), func(ctx context.Context) error {
		var genErr error
		content, genErr = m.generator.Generate(ctx, command, prompt)
		return genErr
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("command", command).Msg("generator unavailable, using template fallback")
		m.recordFallback()
		return generate.RenderFallback(command, genCtx)
	}
	return content
}

// Apply commits a pending proposal's changes as one atomic commit.
func (m *Manager) Apply(ctx context.Context, projectKey, proposalID string) (*ApplyResult, error) {
	lock := m.projectLock(projectKey)
	lock.Lock()
	defer lock.Unlock()

	p, err := m.lookup(projectKey, proposalID)
	if err != nil {
		return nil, err
	}
	if err := m.checkPending(p); err != nil {
		return nil, err
	}

	// Stale detection: the pre-image each change was diffed against must
	// still be the committed content.
	var stalePaths []string
	for _, c := range p.Changes {
		current, err := m.docs.Read(projectKey, c.Path)
		if err != nil {
			if !errors.Is(err, perrors.ErrNotFound) {
				return nil, err
			}
			current = ""
		}
		if current != c.OldContent {
			stalePaths = append(stalePaths, c.Path)
		}
	}
	if len(stalePaths) > 0 {
		m.recordProposal(p.Command, "stale")
		return nil, &perrors.StaleError{ProposalID: p.ID, Paths: stalePaths}
	}

	changes := make([]docstore.Change, len(p.Changes))
	paths := make([]string, len(p.Changes))
	for i, c := range p.Changes {
		changes[i] = docstore.Change{Path: c.Path, Op: c.Op, Content: c.NewContent}
		paths[i] = c.Path
	}

	message := fmt.Sprintf("[%s] %s", projectKey, p.Message)
	commitID, err := m.docs.Commit(projectKey, changes, message)
	if err != nil {
		// Proposal stays Pending; the caller may retry apply unchanged.
		m.recordError("proposal", "commit_failed")
		return nil, err
	}

	now := m.now()
	p.Status = StatusApplied
	p.CommitID = commitID
	p.ResolvedAt = &now

	if err := m.auditLog.Append(projectKey, audit.Event{
		Type:         audit.EventProposalApplied,
		ProposalID:   p.ID,
		CommitID:     commitID,
		FilesChanged: paths,
	}); err != nil {
		m.logger.Error().Err(err).Str("proposal_id", p.ID).Msg("failed to record proposal apply")
	}

	// Side effects run inside the same serialized scope as the commit.
	// The commit is the source of truth; a hook failure is logged, not
	// propagated, and hooks must tolerate re-runs.
	if spec, ok := m.commands[p.Command]; ok && spec.SideEffect != nil {
		if err := spec.SideEffect(ctx, m.deps, p); err != nil {
			m.logger.Error().Err(err).
				Str("proposal_id", p.ID).
				Str("command", p.Command).
				Msg("post-commit side effect failed")
			m.recordError("proposal", "side_effect")
		}
	}

	m.recordProposal(p.Command, "applied")
	if m.metrics != nil {
		m.metrics.CommitsTotal.Inc()
	}
	m.updatePendingGauge()
	m.notify(ctx, notify.Notification{
		Kind:       "proposal.applied",
		ProjectKey: projectKey,
		ProposalID: p.ID,
		Title:      "Proposal applied",
		Message:    fmt.Sprintf("%s committed as %s", p.Message, commitID),
	})

	m.logger.Info().
		Str("project", projectKey).
		Str("proposal_id", p.ID).
		Str("commit_id", commitID).
		Strs("files", paths).
		Msg("proposal applied")

	return &ApplyResult{CommitID: commitID, FilesChanged: paths}, nil
}

// Reject transitions a pending proposal to Rejected. Rejecting an
// already-rejected proposal is a no-op.
func (m *Manager) Reject(ctx context.Context, projectKey, proposalID, reason string) error {
	lock := m.projectLock(projectKey)
	lock.Lock()
	defer lock.Unlock()

	p, err := m.lookup(projectKey, proposalID)
	if err != nil {
		return err
	}
	if p.Status == StatusRejected {
		return nil
	}
	if err := m.checkPending(p); err != nil {
		return err
	}

	now := m.now()
	p.Status = StatusRejected
	p.Reason = reason
	p.ResolvedAt = &now

	if err := m.auditLog.Append(projectKey, audit.Event{
		Type:       audit.EventProposalRejected,
		ProposalID: p.ID,
		Reason:     reason,
	}); err != nil {
		m.logger.Error().Err(err).Str("proposal_id", p.ID).Msg("failed to record proposal rejection")
	}

	m.recordProposal(p.Command, "rejected")
	m.updatePendingGauge()
	m.notify(ctx, notify.Notification{
		Kind:       "proposal.rejected",
		ProjectKey: projectKey,
		ProposalID: p.ID,
		Title:      "Proposal rejected",
		Message:    reason,
	})

	m.logger.Info().
		Str("project", projectKey).
		Str("proposal_id", p.ID).
		Str("reason", reason).
		Msg("proposal rejected")

	return nil
}

// Get returns a copy of the proposal. Expiry is checked on read.
func (m *Manager) Get(projectKey, proposalID string) (*Proposal, error) {
	lock := m.projectLock(projectKey)
	lock.Lock()
	defer lock.Unlock()

	p, err := m.lookup(projectKey, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusPending && m.now().After(p.ExpiresAt) {
		m.expire(p)
	}
	return p.clone(), nil
}

// List returns copies of the project's proposals, newest first.
func (m *Manager) List(projectKey string) []*Proposal {
	lock := m.projectLock(projectKey)
	lock.Lock()
	defer lock.Unlock()

	now := m.now()
	ps := m.store.byProject(projectKey)
	out := make([]*Proposal, 0, len(ps))
	for _, p := range ps {
		if p.Status == StatusPending && now.After(p.ExpiresAt) {
			m.expire(p)
		}
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Manager) lookup(projectKey, proposalID string) (*Proposal, error) {
	p, ok := m.store.get(proposalID)
	if !ok || p.ProjectKey != projectKey {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, perrors.ErrNotFound)
	}
	return p, nil
}

// checkPending enforces the exactly-once terminal rule, expiring lapsed
// proposals as a side effect.
func (m *Manager) checkPending(p *Proposal) error {
	switch p.Status {
	case StatusApplied, StatusRejected:
		return fmt.Errorf("proposal %s is %s: %w", p.ID, p.Status, perrors.ErrProposalResolved)
	case StatusExpired:
		return fmt.Errorf("proposal %s: %w", p.ID, perrors.ErrProposalExpired)
	}
	if m.now().After(p.ExpiresAt) {
		m.expire(p)
		return fmt.Errorf("proposal %s: %w", p.ID, perrors.ErrProposalExpired)
	}
	return nil
}

func (m *Manager) expire(p *Proposal) {
	now := m.now()
	p.Status = StatusExpired
	p.ResolvedAt = &now

	if err := m.auditLog.Append(p.ProjectKey, audit.Event{
		Type:       audit.EventProposalExpired,
		ProposalID: p.ID,
	}); err != nil {
		m.logger.Error().Err(err).Str("proposal_id", p.ID).Msg("failed to record proposal expiry")
	}

	m.recordProposal(p.Command, "expired")
	m.updatePendingGauge()

	m.logger.Info().
		Str("project", p.ProjectKey).
		Str("proposal_id", p.ID).
		Msg("proposal expired")
}

// expireLapsed opportunistically expires lapsed pending proposals across
// all projects. Called from Propose, so cleanup needs no timer.
func (m *Manager) expireLapsed() {
	for _, p := range m.store.sweep(m.now()) {
		lock := m.projectLock(p.ProjectKey)
		lock.Lock()
		if p.Status == StatusPending {
			m.expire(p)
		}
		lock.Unlock()
	}
}

func (m *Manager) notify(ctx context.Context, n notify.Notification) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn().Err(err).Str("kind", n.Kind).Msg("notification failed")
	}
}

func (m *Manager) recordProposal(command, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordProposal(command, outcome)
	}
}

func (m *Manager) recordError(module, errType string) {
	if m.metrics != nil {
		m.metrics.RecordError(module, errType)
	}
}

func (m *Manager) recordFallback() {
	if m.metrics != nil {
		m.metrics.GeneratorFallbacks.Inc()
	}
}

func (m *Manager) updatePendingGauge() {
	if m.metrics != nil {
		m.metrics.ProposalsPending.Set(float64(m.store.countPending()))
	}
}

// summarizeChanges renders "N file(s), +adds/-dels" for reviewer messages.
func summarizeChanges(changes []FileChange) string {
	var added, deleted int
	for _, ch := range changes {
		st, err := diffeng.Stat(ch.Diff)
		if err != nil {
			continue
		}
		added += st.Added
		deleted += st.Deleted
	}
	return fmt.Sprintf("%d file(s), +%d/-%d", len(changes), added, deleted)
}
