package generate

import (
	"fmt"
	"strings"
)

// RenderFallback produces a deterministic document skeleton for a
// command. It never fails, so propose() always has content to offer even
// with no generator configured.
func RenderFallback(command string, c Context) string {
	switch command {
	case "assess-gaps":
		return fallbackGapAssessment(c)
	case "generate-artifact":
		return fallbackArtifact(c)
	case "generate-plan":
		return fallbackPlan(c)
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", titleWords(strings.ReplaceAll(command, "-", " ")))
		fmt.Fprintf(&b, "Project: %s\n\n", c.ProjectName)
		b.WriteString("_Draft generated from template. Review and complete before approval._\n")
		return b.String()
	}
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func fallbackGapAssessment(c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Gap Assessment: %s\n\n", c.ProjectName)
	if c.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", c.Description)
	}
	b.WriteString("| Area | Current Position | Target Position | Gap |\n")
	b.WriteString("|------|------------------|-----------------|-----|\n")
	b.WriteString("| Governance | _to be assessed_ | _define_ | _tbd_ |\n")
	b.WriteString("| Documentation | _to be assessed_ | _define_ | _tbd_ |\n")
	b.WriteString("| Controls | _to be assessed_ | _define_ | _tbd_ |\n\n")
	b.WriteString("## Remediation Priorities\n\n1. _Highest priority gap_\n2. _Next gap_\n")
	return b.String()
}

func fallbackArtifact(c Context) string {
	name := c.Params["artifact_name"]
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSuffix(name, ".md"))
	fmt.Fprintf(&b, "Project: %s (%s)\n\n", c.ProjectName, c.ProjectKey)
	b.WriteString("## Purpose\n\n_Describe the purpose of this document._\n\n")
	b.WriteString("## Scope\n\n_Define what is in and out of scope._\n\n")
	b.WriteString("## Content\n\n_Draft generated from template. Review and complete before approval._\n")
	return b.String()
}

func fallbackPlan(c Context) string {
	planType := c.Params["plan_type"]
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Plan: %s\n\n", titleWords(planType), c.ProjectName)
	b.WriteString("## Stages\n\n")
	b.WriteString("1. **Preparation** — owner: _tbd_; exit criteria: _tbd_\n")
	b.WriteString("2. **Execution** — owner: _tbd_; exit criteria: _tbd_\n")
	b.WriteString("3. **Review** — owner: _tbd_; exit criteria: _tbd_\n\n")
	b.WriteString("_Draft generated from template. Review and complete before approval._\n")
	return b.String()
}
