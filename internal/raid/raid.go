// Package raid maintains the per-project register of risks, actions,
// issues and decisions. Entries live in a single raid.yaml file per
// project and only change through Add and UpdateStatus.
package raid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/compliance-agent/internal/audit"
	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
	"github.com/p-blackswan/compliance-agent/internal/metrics"
)

type EntryType string

const (
	TypeRisk     EntryType = "risk"
	TypeAction   EntryType = "action"
	TypeIssue    EntryType = "issue"
	TypeDecision EntryType = "decision"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type EntryStatus string

const (
	StatusOpen       EntryStatus = "open"
	StatusInProgress EntryStatus = "in_progress"
	StatusClosed     EntryStatus = "closed"
)

// statusGraph lists the permitted status moves. Closed entries never
// reopen; a replacement entry must be created instead.
var statusGraph = map[EntryStatus][]EntryStatus{
	StatusOpen:       {StatusInProgress, StatusClosed},
	StatusInProgress: {StatusClosed},
	StatusClosed:     {},
}

// StatusChange is one immutable record in an entry's history.
type StatusChange struct {
	From      EntryStatus `yaml:"from" json:"from"`
	To        EntryStatus `yaml:"to" json:"to"`
	Note      string      `yaml:"note,omitempty" json:"note,omitempty"`
	ChangedAt time.Time   `yaml:"changed_at" json:"changed_at"`
}

type Entry struct {
	ID          string         `yaml:"id" json:"id"`
	ProjectKey  string         `yaml:"project_key" json:"project_key"`
	Type        EntryType      `yaml:"type" json:"type"`
	Severity    Severity       `yaml:"severity,omitempty" json:"severity,omitempty"`
	Description string         `yaml:"description" json:"description"`
	Mitigation  string         `yaml:"mitigation,omitempty" json:"mitigation,omitempty"`
	Owner       string         `yaml:"owner,omitempty" json:"owner,omitempty"`
	Status      EntryStatus    `yaml:"status" json:"status"`
	DueDate     *time.Time     `yaml:"due_date,omitempty" json:"due_date,omitempty"`
	CreatedAt   time.Time      `yaml:"created_at" json:"created_at"`
	ClosedAt    *time.Time     `yaml:"closed_at,omitempty" json:"closed_at,omitempty"`
	History     []StatusChange `yaml:"history,omitempty" json:"history,omitempty"`
}

// Draft holds the caller-supplied fields for a new entry.
type Draft struct {
	Type        EntryType  `json:"type"`
	Severity    Severity   `json:"severity,omitempty"`
	Description string     `json:"description"`
	Mitigation  string     `json:"mitigation,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Filter narrows List results. Zero-valued fields match everything.
type Filter struct {
	Type     EntryType
	Status   EntryStatus
	Severity Severity
}

// Register stores entries in <root>/projects/<key>/raid.yaml.
type Register struct {
	root     string
	auditLog *audit.Log
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Register.
type Option func(*Register)

// WithMetrics records register mutations on the given collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Register) { r.metrics = m }
}

func NewRegister(dir string, auditLog *audit.Log, logger zerolog.Logger, opts ...Option) *Register {
	r := &Register{
		root:     dir,
		auditLog: auditLog,
		logger:   logger.With().Str("component", "raid").Logger(),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Register) recordEntry(entryType EntryType, action string) {
	if r.metrics != nil {
		r.metrics.RecordRaidEntry(string(entryType), action)
	}
}

func (r *Register) projectLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

func (r *Register) filePath(key string) string {
	return filepath.Join(r.root, "projects", key, "raid.yaml")
}

func validType(t EntryType) bool {
	switch t {
	case TypeRisk, TypeAction, TypeIssue, TypeDecision:
		return true
	}
	return false
}

func validSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func validStatus(s EntryStatus) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// Add validates the draft and appends a new Open entry to the project's
// register. Severity is required for everything except decisions.
func (r *Register) Add(key string, draft Draft) (*Entry, error) {
	if !validType(draft.Type) {
		return nil, &perrors.ValidationError{Field: "type", Message: fmt.Sprintf("unknown entry type %q", draft.Type)}
	}
	if strings.TrimSpace(draft.Description) == "" {
		return nil, &perrors.ValidationError{Field: "description", Message: "description is required"}
	}
	if draft.Type == TypeDecision {
		if draft.Severity != "" && !validSeverity(draft.Severity) {
			return nil, &perrors.ValidationError{Field: "severity", Message: fmt.Sprintf("unknown severity %q", draft.Severity)}
		}
	} else if !validSeverity(draft.Severity) {
		return nil, &perrors.ValidationError{Field: "severity", Message: fmt.Sprintf("severity is required for %s entries", draft.Type)}
	}

	lock := r.projectLock(key)
	lock.Lock()
	defer lock.Unlock()

	entries, err := r.load(key)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		ID:          uuid.New().String(),
		ProjectKey:  key,
		Type:        draft.Type,
		Severity:    draft.Severity,
		Description: draft.Description,
		Mitigation:  draft.Mitigation,
		Owner:       draft.Owner,
		Status:      StatusOpen,
		DueDate:     draft.DueDate,
		CreatedAt:   time.Now().UTC(),
	}
	entries = append(entries, entry)

	if err := r.save(key, entries); err != nil {
		return nil, err
	}

	if err := r.auditLog.Append(key, audit.Event{
		Type:    audit.EventRaidEntryChanged,
		EntryID: entry.ID,
		To:      string(StatusOpen),
		Reason:  fmt.Sprintf("%s entry added", entry.Type),
	}); err != nil {
		r.logger.Error().Err(err).Str("project", key).Msg("failed to record raid addition")
	}

	r.recordEntry(entry.Type, "added")
	r.logger.Info().
		Str("project", key).
		Str("entry_id", entry.ID).
		Str("type", string(entry.Type)).
		Msg("raid entry added")

	return &entry, nil
}

// UpdateStatus moves an entry along the status graph and appends the
// change to the entry's history. Closed is terminal.
func (r *Register) UpdateStatus(key, id string, target EntryStatus, note string) (*Entry, error) {
	if !validStatus(target) {
		return nil, &perrors.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", target)}
	}

	lock := r.projectLock(key)
	lock.Lock()
	defer lock.Unlock()

	entries, err := r.load(key)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range entries {
		if entries[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("raid entry %s: %w", id, perrors.ErrNotFound)
	}

	entry := &entries[idx]
	if !containsStatus(statusGraph[entry.Status], target) {
		return nil, &perrors.TransitionError{
			Entity:  "raid entry",
			From:    string(entry.Status),
			To:      string(target),
			Allowed: statusStrings(statusGraph[entry.Status]),
		}
	}

	now := time.Now().UTC()
	entry.History = append(entry.History, StatusChange{
		From:      entry.Status,
		To:        target,
		Note:      note,
		ChangedAt: now,
	})
	from := entry.Status
	entry.Status = target
	if target == StatusClosed {
		entry.ClosedAt = &now
	}

	if err := r.save(key, entries); err != nil {
		return nil, err
	}

	if err := r.auditLog.Append(key, audit.Event{
		Type:    audit.EventRaidEntryChanged,
		EntryID: entry.ID,
		From:    string(from),
		To:      string(target),
		Reason:  note,
	}); err != nil {
		r.logger.Error().Err(err).Str("project", key).Msg("failed to record raid status change")
	}

	r.recordEntry(entry.Type, "status_updated")
	out := *entry
	return &out, nil
}

// List returns the project's entries, oldest first, narrowed by filter.
func (r *Register) List(key string, filter Filter) ([]Entry, error) {
	lock := r.projectLock(key)
	lock.Lock()
	defer lock.Unlock()

	entries, err := r.load(key)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && e.Severity != filter.Severity {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Get returns a single entry by id.
func (r *Register) Get(key, id string) (*Entry, error) {
	entries, err := r.List(key, Filter{})
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("raid entry %s: %w", id, perrors.ErrNotFound)
}

// Export serializes the register for reporting. Supported formats are
// markdown, yaml and json.
func (r *Register) Export(key, format string) (string, error) {
	entries, err := r.List(key, Filter{})
	if err != nil {
		return "", err
	}

	switch format {
	case "markdown", "md":
		return renderMarkdown(key, entries), nil
	case "yaml", "yml":
		b, err := yaml.Marshal(entries)
		if err != nil {
			return "", fmt.Errorf("failed to marshal register: %w", err)
		}
		return string(b), nil
	case "json":
		b, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal register: %w", err)
		}
		return string(b), nil
	default:
		return "", &perrors.ValidationError{Field: "format", Message: fmt.Sprintf("unsupported export format %q", format)}
	}
}

func renderMarkdown(key string, entries []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# RAID Register: %s\n\n", key)
	if len(entries) == 0 {
		b.WriteString("No entries.\n")
		return b.String()
	}
	b.WriteString("| ID | Type | Severity | Status | Owner | Description |\n")
	b.WriteString("|----|------|----------|--------|-------|-------------|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			shortID(e.ID), e.Type, e.Severity, e.Status, e.Owner,
			strings.ReplaceAll(e.Description, "|", "\\|"))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (r *Register) load(key string) ([]Entry, error) {
	b, err := os.ReadFile(r.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read register: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse register: %w", err)
	}
	return entries, nil
}

func (r *Register) save(key string, entries []Entry) error {
	path := r.filePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create register directory: %w", err)
	}
	b, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal register: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".raid-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to stage register: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to stage register: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to stage register: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write register: %w", err)
	}
	return nil
}

func containsStatus(list []EntryStatus, target EntryStatus) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func statusStrings(list []EntryStatus) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}
