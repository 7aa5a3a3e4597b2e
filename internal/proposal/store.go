package proposal

import (
	"sync"
	"time"
)

// terminalRetention is how long resolved proposals stay queryable before
// opportunistic cleanup drops them.
const terminalRetention = 24 * time.Hour

// pendingStore keeps proposals in memory, keyed by id. Expiry is checked
// lazily by the manager on access; there is no background reaper.
type pendingStore struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
}

func newPendingStore() *pendingStore {
	return &pendingStore{proposals: make(map[string]*Proposal)}
}

func (s *pendingStore) put(p *Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = p
}

func (s *pendingStore) get(id string) (*Proposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	return p, ok
}

// byProject returns the project's proposals, newest first.
func (s *pendingStore) byProject(key string) []*Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Proposal
	for _, p := range s.proposals {
		if p.ProjectKey == key {
			out = append(out, p)
		}
	}
	return out
}

// sweep returns pending proposals whose TTL has elapsed and drops
// terminal proposals past the retention window. Called opportunistically
// from propose().
func (s *pendingStore) sweep(now time.Time) []*Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lapsed []*Proposal
	for id, p := range s.proposals {
		switch p.Status {
		case StatusPending:
			if now.After(p.ExpiresAt) {
				lapsed = append(lapsed, p)
			}
		default:
			if p.ResolvedAt != nil && now.Sub(*p.ResolvedAt) > terminalRetention {
				delete(s.proposals, id)
			}
		}
	}
	return lapsed
}

func (s *pendingStore) countPending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.proposals {
		if p.Status == StatusPending {
			n++
		}
	}
	return n
}
