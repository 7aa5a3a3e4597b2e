package diffeng

import (
	"fmt"

	"github.com/sourcegraph/go-diff/diff"
)

// Stats summarizes a single file's unified diff.
type Stats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

// Stat parses a unified diff and returns its line counts. It doubles as a
// format check: malformed diff text is reported as an error. An empty diff
// has zero stats.
func Stat(diffText string) (Stats, error) {
	if diffText == "" {
		return Stats{}, nil
	}
	fd, err := diff.ParseFileDiff([]byte(diffText))
	if err != nil {
		return Stats{}, fmt.Errorf("parse diff: %w", err)
	}
	st := fd.Stat()
	return Stats{
		Added:   int(st.Added + st.Changed),
		Deleted: int(st.Deleted + st.Changed),
	}, nil
}
