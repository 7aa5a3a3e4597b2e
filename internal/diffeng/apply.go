package diffeng

import (
	"fmt"
	"strings"
)

// Apply reapplies a diff produced by Unified to oldText and returns the
// resulting content. It verifies the pre-image as it goes: a context or
// deletion line that does not match oldText is an error, which is how stale
// diffs surface when re-derived by a viewer.
func Apply(oldText, diffText string) (string, error) {
	if diffText == "" {
		return oldText, nil
	}

	st := &applyState{
		oldLines: SplitLines(oldText),
		lines:    strings.Split(diffText, "\n"),
	}

	for st.i < len(st.lines) {
		line := st.lines[st.i]
		switch {
		case line == "":
			st.i++
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			st.i++
		case strings.HasPrefix(line, "@@"):
			if err := st.applyHunk(line); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("unexpected diff line %q", line)
		}
	}

	// Unchanged tail after the last hunk.
	st.out = append(st.out, st.oldLines[st.oldIdx:]...)

	return strings.Join(st.out, ""), nil
}

type applyState struct {
	oldLines []string
	lines    []string
	out      []string
	oldIdx   int
	i        int
}

func (st *applyState) applyHunk(header string) error {
	oldStart, oldCount, err := parseHunkHeader(header)
	if err != nil {
		return err
	}

	// Copy untouched lines up to the hunk. A zero-count range anchors
	// after line oldStart rather than at it.
	target := oldStart - 1
	if oldCount == 0 {
		target = oldStart
	}
	if target > len(st.oldLines) {
		return fmt.Errorf("hunk %q starts beyond end of input", header)
	}
	for st.oldIdx < target {
		st.out = append(st.out, st.oldLines[st.oldIdx])
		st.oldIdx++
	}
	st.i++

	for st.i < len(st.lines) {
		l := st.lines[st.i]
		if l == "" || strings.HasPrefix(l, "@@") {
			return nil
		}
		noNewline := st.i+1 < len(st.lines) && strings.HasPrefix(st.lines[st.i+1], `\`)
		switch l[0] {
		case ' ':
			if err := st.consumeOld(l[1:]); err != nil {
				return err
			}
			st.out = append(st.out, st.oldLines[st.oldIdx-1])
		case '-':
			if err := st.consumeOld(l[1:]); err != nil {
				return err
			}
		case '+':
			text := l[1:]
			if !noNewline {
				text += "\n"
			}
			st.out = append(st.out, text)
		case '\\':
			// marker for the preceding line, handled below
			noNewline = false
		default:
			return fmt.Errorf("unexpected hunk line %q", l)
		}
		st.i++
		if noNewline {
			st.i++
		}
	}
	return nil
}

// consumeOld advances over one pre-image line, checking it matches want.
func (st *applyState) consumeOld(want string) error {
	if st.oldIdx >= len(st.oldLines) {
		return fmt.Errorf("diff refers to line %d beyond end of input", st.oldIdx+1)
	}
	got := strings.TrimSuffix(st.oldLines[st.oldIdx], "\n")
	if got != want {
		return fmt.Errorf("pre-image mismatch at line %d: have %q, diff expects %q", st.oldIdx+1, got, want)
	}
	st.oldIdx++
	return nil
}

func parseHunkHeader(line string) (oldStart, oldCount int, err error) {
	var newStart, newCount int
	if _, serr := fmt.Sscanf(line, "@@ -%d,%d +%d,%d @@", &oldStart, &oldCount, &newStart, &newCount); serr == nil {
		return oldStart, oldCount, nil
	}
	if _, serr := fmt.Sscanf(line, "@@ -%d +%d @@", &oldStart, &newStart); serr == nil {
		return oldStart, 1, nil
	}
	return 0, 0, fmt.Errorf("malformed hunk header %q", line)
}
