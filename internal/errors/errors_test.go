package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionError(t *testing.T) {
	err := &TransitionError{Entity: "phase", From: "initiating", To: "closing", Allowed: []string{"planning"}}
	assert.Contains(t, err.Error(), "initiating -> closing")
	assert.Contains(t, err.Error(), "planning")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionError_Terminal(t *testing.T) {
	err := &TransitionError{Entity: "raid", From: "closed", To: "open"}
	assert.Contains(t, err.Error(), "terminal")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStaleError(t *testing.T) {
	err := &StaleError{ProposalID: "abc", Paths: []string{"artifacts/plan.md"}}
	assert.Contains(t, err.Error(), "artifacts/plan.md")
	assert.ErrorIs(t, err, ErrStaleProposal)
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "artifact_name", Message: "is required"}
	assert.Contains(t, err.Error(), "artifact_name")
	assert.ErrorIs(t, err, ErrValidation)

	bare := &ValidationError{Message: "bad request"}
	assert.Equal(t, "bad request", bare.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrGeneratorUnavailable))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrCommitFailed)))

	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(ErrStaleProposal))
	assert.False(t, IsRetryable(errors.New("other")))
}
