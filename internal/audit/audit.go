// Package audit appends one immutable record per change-control event to a
// per-project log file, one JSON object per line. Records are never rewritten.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies what happened.
type EventType string

const (
	EventProposalCreated  EventType = "proposal_created"
	EventProposalApplied  EventType = "proposal_applied"
	EventProposalRejected EventType = "proposal_rejected"
	EventProposalExpired  EventType = "proposal_expired"
	EventPhaseTransitioned EventType = "phase_transitioned"
	EventStatusChanged    EventType = "status_changed"
	EventRaidEntryChanged EventType = "raid_entry_changed"
)

// Event is one audit record. Hashes are always present for generated
// content; the full text rides along only when content logging is opted in.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	ProjectKey   string    `json:"project_key"`
	Type         EventType `json:"event_type"`
	ProposalID   string    `json:"proposal_id,omitempty"`
	PromptHash   string    `json:"prompt_hash,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
	Content      string    `json:"content,omitempty"`
	CommitID     string    `json:"commit_id,omitempty"`
	FilesChanged []string  `json:"files_changed,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	EntryID      string    `json:"entry_id,omitempty"`
}

// Log appends events to <root>/projects/<key>/audit.log.
type Log struct {
	root       string
	logContent bool
	logger     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an audit log rooted at dir. When logContent is false the
// Prompt and Content fields are stripped before writing; hashes remain.
func New(dir string, logContent bool, logger zerolog.Logger) *Log {
	return &Log{
		root:       dir,
		logContent: logContent,
		logger:     logger.With().Str("component", "audit").Logger(),
		locks:      make(map[string]*sync.Mutex),
	}
}

func (l *Log) projectLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func (l *Log) logPath(key string) string {
	return filepath.Join(l.root, "projects", key, "audit.log")
}

// Append records one event. The timestamp is set here so callers cannot
// backdate records.
func (l *Log) Append(key string, ev Event) error {
	ev.Timestamp = time.Now().UTC()
	ev.ProjectKey = key
	if !l.logContent {
		ev.Prompt = ""
		ev.Content = ""
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	lock := l.projectLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.logPath(key)), 0o755); err != nil {
		return fmt.Errorf("failed to create audit dir: %w", err)
	}
	f, err := os.OpenFile(l.logPath(key), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	l.logger.Info().
		Str("project", key).
		Str("event_type", string(ev.Type)).
		Str("proposal_id", ev.ProposalID).
		Msg("audit event")
	return nil
}

// List returns up to limit events, newest first. Each line parses
// independently; a corrupt line is skipped rather than poisoning the rest.
func (l *Log) List(key string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	lock := l.projectLock(key)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(l.logPath(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var all []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			l.logger.Warn().Err(err).Str("project", key).Msg("skipping corrupt audit line")
			continue
		}
		all = append(all, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// Hash returns the hex sha256 of text, the always-present stand-in for
// prompt/content text in audit records.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
