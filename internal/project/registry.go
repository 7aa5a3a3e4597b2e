// Package project manages the per-project metadata records. Records live as
// project.json files under the data dir; phase and status changes go through
// the workflow state machine, never through ad-hoc writes.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
)

var keyRe = regexp.MustCompile(`^[a-z][a-z0-9-]{1,31}$`)

// reservedKeys contains words that cannot be used as project keys because
// they collide with API route segments.
var reservedKeys = map[string]bool{
	"projects": true, "proposals": true, "raid": true, "workflow": true,
	"audit": true, "history": true, "health": true, "metrics": true, "new": true,
}

// ValidateKey checks a candidate project key against the allowed pattern and
// the reserved word list.
func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return &perrors.ValidationError{Field: "key", Message: fmt.Sprintf("key %q must match %s", key, keyRe.String())}
	}
	if reservedKeys[key] {
		return &perrors.ValidationError{Field: "key", Message: fmt.Sprintf("key %q is a reserved word", key)}
	}
	return nil
}

// Registry is the file-backed store of project records.
type Registry struct {
	root   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewRegistry creates a registry rooted at dir.
func NewRegistry(dir string, logger zerolog.Logger) *Registry {
	return &Registry{
		root:   dir,
		logger: logger.With().Str("component", "project.registry").Logger(),
	}
}

func (r *Registry) recordPath(key string) string {
	return filepath.Join(r.root, "projects", key, "project.json")
}

// Create registers a new project in the initiating phase.
func (r *Registry) Create(input CreateInput) (*Project, error) {
	if err := ValidateKey(input.Key); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, &perrors.ValidationError{Field: "name", Message: "name is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.recordPath(input.Key)); err == nil {
		return nil, &perrors.ValidationError{Field: "key", Message: fmt.Sprintf("project %q already exists", input.Key)}
	}

	now := time.Now().UTC()
	p := &Project{
		Key:         input.Key,
		Name:        input.Name,
		Description: input.Description,
		Phase:       PhaseInitiating,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.save(p); err != nil {
		return nil, err
	}

	r.logger.Info().Str("project", p.Key).Msg("project created")
	return p, nil
}

// Get loads one project record.
func (r *Registry) Get(key string) (*Project, error) {
	raw, err := os.ReadFile(r.recordPath(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("project %s: %w", key, perrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project %s: %w", key, err)
	}
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode project %s: %w", key, err)
	}
	return &p, nil
}

// List returns all projects, optionally filtered by status, sorted by key.
func (r *Registry) List(status Status) ([]*Project, error) {
	base := filepath.Join(r.root, "projects")
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var out []*Project
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := r.Get(e.Name())
		if err != nil {
			continue // project dir without a record yet
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Save persists a modified record. Callers are the workflow machine and the
// registry itself; presentation layers never write records directly.
func (r *Registry) Save(p *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	return r.save(p)
}

func (r *Registry) save(p *Project) error {
	path := r.recordPath(p.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create project dir: %w", err)
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode project: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".project-*")
	if err != nil {
		return fmt.Errorf("failed to write project record: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write project record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write project record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write project record: %w", err)
	}
	return nil
}
