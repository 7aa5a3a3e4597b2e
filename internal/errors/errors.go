// Package errors provides structured error types for the compliance agent.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrValidation           = errors.New("invalid input")
	ErrInvalidCommand       = errors.New("invalid command")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrProposalExpired      = errors.New("proposal expired")
	ErrProposalResolved     = errors.New("proposal already resolved")
	ErrStaleProposal        = errors.New("proposal is stale")
	ErrCommitFailed         = errors.New("commit failed")
	ErrGeneratorUnavailable = errors.New("content generator unavailable")
	ErrTimeout              = errors.New("operation timed out")
)

// TransitionError reports a disallowed edge in a transition graph, carrying
// enough detail for a caller to present the next valid options.
type TransitionError struct {
	Entity  string // "phase" or "raid"
	From    string
	To      string
	Allowed []string
}

func (e *TransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("%s transition %s -> %s not allowed: %s is terminal", e.Entity, e.From, e.To, e.From)
	}
	return fmt.Sprintf("%s transition %s -> %s not allowed (allowed from %s: %s)",
		e.Entity, e.From, e.To, e.From, strings.Join(e.Allowed, ", "))
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// StaleError reports that a proposal's pre-image no longer matches the
// committed content for one or more paths.
type StaleError struct {
	ProposalID string
	Paths      []string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("proposal %s is stale: committed content changed for %s",
		e.ProposalID, strings.Join(e.Paths, ", "))
}

func (e *StaleError) Unwrap() error { return ErrStaleProposal }

// ValidationError reports a caller mistake with the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrGeneratorUnavailable) || errors.Is(err, ErrCommitFailed)
}
