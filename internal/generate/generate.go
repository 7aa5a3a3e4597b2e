// Package generate produces document content for proposals. The primary
// path calls the Anthropic Messages API; when the API is unreachable a
// deterministic template fallback keeps propose() working.
package generate

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Generator turns a command and a rendered prompt into document text.
// Unavailability is a normal outcome and is reported as an error wrapping
// ErrGeneratorUnavailable so callers can fall back.
type Generator interface {
	Generate(ctx context.Context, command, prompt string) (string, error)
}

// Context carries the project facts a prompt is rendered from.
type Context struct {
	ProjectKey  string
	ProjectName string
	Description string
	Phase       string
	Params      map[string]string
}

// RenderPrompt builds the instruction text for a command. Pure function
// of the context; the same inputs always produce the same prompt.
func RenderPrompt(command string, c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are drafting compliance project documentation.\n\n")
	fmt.Fprintf(&b, "Project: %s (%s)\n", c.ProjectName, c.ProjectKey)
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
	}
	if c.Phase != "" {
		fmt.Fprintf(&b, "Current phase: %s\n", c.Phase)
	}
	b.WriteString("\n")

	switch command {
	case "assess-gaps":
		b.WriteString("Produce a gap assessment in Markdown. For each compliance area, state the current position, the target position, and the gap. Finish with a prioritised remediation list.")
	case "generate-artifact":
		fmt.Fprintf(&b, "Produce the %q document (%s) in Markdown. Use clear section headers and keep statements auditable.",
			c.Params["artifact_name"], c.Params["artifact_type"])
	case "generate-plan":
		fmt.Fprintf(&b, "Produce a %s plan in Markdown with numbered stages, owners, and entry/exit criteria.",
			c.Params["plan_type"])
	default:
		fmt.Fprintf(&b, "Produce the output for the %q command in Markdown.", command)
	}

	if len(c.Params) > 0 {
		b.WriteString("\n\nParameters:\n")
		keys := make([]string, 0, len(c.Params))
		for k := range c.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, c.Params[k])
		}
	}
	return b.String()
}
