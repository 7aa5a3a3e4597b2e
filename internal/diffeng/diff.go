// Package diffeng computes and applies unified diffs over document content.
//
// It is a pure library: no state, no side effects. It is used to populate
// the cached diff on each proposed file change, and by reviewers to confirm
// that a diff reproduces the proposed content exactly.
package diffeng

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const contextLines = 3

const noNewlineMarker = `\ No newline at end of file`

// Unified returns the unified diff between oldText and newText for path.
// An empty oldText denotes file creation and an empty newText denotes
// deletion; both render as valid diffs against /dev/null. Identical inputs
// produce an empty string.
func Unified(path, oldText, newText string) string {
	if oldText == newText {
		return ""
	}

	a := SplitLines(oldText)
	b := SplitLines(newText)

	matcher := difflib.NewMatcher(a, b)
	groups := matcher.GetGroupedOpCodes(contextLines)

	fromFile := "a/" + path
	toFile := "b/" + path
	if oldText == "" {
		fromFile = "/dev/null"
	}
	if newText == "" {
		toFile = "/dev/null"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n", fromFile)
	fmt.Fprintf(&sb, "+++ %s\n", toFile)

	for _, group := range groups {
		first, last := group[0], group[len(group)-1]
		oldStart, oldCount := hunkRange(first.I1, last.I2)
		newStart, newCount := hunkRange(first.J1, last.J2)
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)

		for _, op := range group {
			switch op.Tag {
			case 'e':
				for _, line := range a[op.I1:op.I2] {
					writeLine(&sb, ' ', line)
				}
			case 'd':
				for _, line := range a[op.I1:op.I2] {
					writeLine(&sb, '-', line)
				}
			case 'i':
				for _, line := range b[op.J1:op.J2] {
					writeLine(&sb, '+', line)
				}
			case 'r':
				for _, line := range a[op.I1:op.I2] {
					writeLine(&sb, '-', line)
				}
				for _, line := range b[op.J1:op.J2] {
					writeLine(&sb, '+', line)
				}
			}
		}
	}

	return sb.String()
}

// SplitLines splits text into lines, each retaining its trailing newline.
// The final line may lack one. Empty text yields no lines, so that an empty
// file and a file containing a single blank line stay distinguishable.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// hunkRange converts a zero-based half-open line range into the 1-based
// start/count pair used in hunk headers. Empty ranges keep the zero-based
// start, matching the "-0,0" convention for creations.
func hunkRange(start, end int) (int, int) {
	count := end - start
	if count == 0 {
		return start, 0
	}
	return start + 1, count
}

func writeLine(sb *strings.Builder, prefix byte, line string) {
	sb.WriteByte(prefix)
	if strings.HasSuffix(line, "\n") {
		sb.WriteString(line)
		return
	}
	sb.WriteString(line)
	sb.WriteString("\n")
	sb.WriteString(noNewlineMarker)
	sb.WriteString("\n")
}
