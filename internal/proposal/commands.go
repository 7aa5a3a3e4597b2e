package proposal

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
)

const (
	CommandAssessGaps       = "assess-gaps"
	CommandGenerateArtifact = "generate-artifact"
	CommandGeneratePlan     = "generate-plan"
)

// SideEffectDeps carries the collaborators a command's post-commit hook
// may touch. Hooks run inside the same serialized apply scope as the
// commit and must be safe to re-run.
type SideEffectDeps struct {
	Raid     RaidUpdater
	Workflow PhaseTransitioner
}

// CommandSpec describes one registered command. The registry is a closed
// set injected at construction; presentation layers cannot add commands
// at runtime.
type CommandSpec struct {
	Name string

	// Validate checks the caller-supplied parameter map against the
	// command's required-field contract.
	Validate func(params map[string]string) error

	// TargetPath returns the project-relative path the command writes.
	TargetPath func(params map[string]string) string

	// Describe returns the human description used in commit messages
	// and review UIs.
	Describe func(params map[string]string) string

	// SideEffect, if set, runs after a successful commit. None of the
	// base commands carry one.
	SideEffect func(ctx context.Context, deps SideEffectDeps, p *Proposal) error
}

// GenerateArtifactParams is the typed contract for generate-artifact.
type GenerateArtifactParams struct {
	ArtifactName string `json:"artifact_name" validate:"required,max=128"`
	ArtifactType string `json:"artifact_type" validate:"required,oneof=charter policy procedure register report assessment"`
}

// GeneratePlanParams is the typed contract for generate-plan.
type GeneratePlanParams struct {
	PlanType string `json:"plan_type" validate:"required,oneof=project stage exception"`
}

// AssessGapsParams is the typed contract for assess-gaps.
type AssessGapsParams struct {
	Focus string `json:"focus" validate:"omitempty,max=256"`
}

var validate = validator.New()

func invalidCommand(name string, err error) error {
	return fmt.Errorf("command %s: %v: %w", name, err, perrors.ErrInvalidCommand)
}

func decodeArtifactParams(params map[string]string) (*GenerateArtifactParams, error) {
	p := &GenerateArtifactParams{
		ArtifactName: params["artifact_name"],
		ArtifactType: params["artifact_type"],
	}
	if err := validate.Struct(p); err != nil {
		return nil, invalidCommand(CommandGenerateArtifact, err)
	}
	if strings.ContainsAny(p.ArtifactName, `/\`) || strings.Contains(p.ArtifactName, "..") {
		return nil, invalidCommand(CommandGenerateArtifact, fmt.Errorf("artifact_name %q must be a bare file name", p.ArtifactName))
	}
	return p, nil
}

func decodePlanParams(params map[string]string) (*GeneratePlanParams, error) {
	p := &GeneratePlanParams{PlanType: params["plan_type"]}
	if err := validate.Struct(p); err != nil {
		return nil, invalidCommand(CommandGeneratePlan, err)
	}
	return p, nil
}

func decodeGapParams(params map[string]string) (*AssessGapsParams, error) {
	p := &AssessGapsParams{Focus: params["focus"]}
	if err := validate.Struct(p); err != nil {
		return nil, invalidCommand(CommandAssessGaps, err)
	}
	return p, nil
}

// DefaultCommands returns the built-in command registry.
func DefaultCommands() map[string]CommandSpec {
	return map[string]CommandSpec{
		CommandAssessGaps: {
			Name: CommandAssessGaps,
			Validate: func(params map[string]string) error {
				_, err := decodeGapParams(params)
				return err
			},
			TargetPath: func(map[string]string) string {
				return "reports/gap-assessment.md"
			},
			Describe: func(map[string]string) string {
				return "assess compliance gaps"
			},
		},
		CommandGenerateArtifact: {
			Name: CommandGenerateArtifact,
			Validate: func(params map[string]string) error {
				_, err := decodeArtifactParams(params)
				return err
			},
			TargetPath: func(params map[string]string) string {
				return "artifacts/" + params["artifact_name"]
			},
			Describe: func(params map[string]string) string {
				return fmt.Sprintf("generate %s artifact %s", params["artifact_type"], params["artifact_name"])
			},
		},
		CommandGeneratePlan: {
			Name: CommandGeneratePlan,
			Validate: func(params map[string]string) error {
				_, err := decodePlanParams(params)
				return err
			},
			TargetPath: func(params map[string]string) string {
				return fmt.Sprintf("plans/%s-plan.md", params["plan_type"])
			},
			Describe: func(params map[string]string) string {
				return fmt.Sprintf("generate %s plan", params["plan_type"])
			},
		},
	}
}
