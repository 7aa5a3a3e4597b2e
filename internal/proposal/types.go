// Package proposal implements the change-control pipeline: commands
// produce reviewable bundles of file changes, and nothing reaches a
// project's committed history except through an approved proposal.
package proposal

import (
	"time"

	"github.com/p-blackswan/compliance-agent/internal/docstore"
)

// Status is a proposal's lifecycle state. Pending proposals move exactly
// once to Applied, Rejected or Expired; terminal states never change.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// FileChange is one proposed edit. Diff is computed once at proposal
// creation and never recomputed, so what the reviewer saw is exactly
// what apply() writes.
type FileChange struct {
	Path       string              `json:"path"`
	Op         docstore.Operation  `json:"operation"`
	OldContent string              `json:"old_content,omitempty"`
	NewContent string              `json:"new_content,omitempty"`
	Diff       string              `json:"diff"`
}

// Proposal is a pending, reviewable bundle of file changes for one
// command invocation.
type Proposal struct {
	ID         string            `json:"id"`
	ProjectKey string            `json:"project_key"`
	Command    string            `json:"command"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Status     Status            `json:"status"`
	Changes    []FileChange      `json:"changes"`
	Message    string            `json:"message"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	CommitID   string            `json:"commit_id,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// ApplyResult reports a successful apply.
type ApplyResult struct {
	CommitID     string   `json:"commit_id"`
	FilesChanged []string `json:"files_changed"`
}

func (p *Proposal) clone() *Proposal {
	out := *p
	out.Changes = append([]FileChange(nil), p.Changes...)
	if p.Parameters != nil {
		out.Parameters = make(map[string]string, len(p.Parameters))
		for k, v := range p.Parameters {
			out.Parameters[k] = v
		}
	}
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
