package contact

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Sessions keeps one Submitter per visitor.
type Sessions struct {
	sender Sender
	opts   []SubmitterOption

	mu   sync.Mutex
	byID map[string]*Submitter
}

// NewSessions returns an empty registry whose submitters share sender.
func NewSessions(sender Sender, opts ...SubmitterOption) *Sessions {
	return &Sessions{sender: sender, opts: opts, byID: make(map[string]*Submitter)}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like one NewID produced.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the submitter for id, creating it on first use.
func (s *Sessions) Get(id string) *Submitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	if !ok {
		sub = NewSubmitter(s.sender, s.opts...)
		s.byID[id] = sub
	}
	return sub
}

// Lookup returns the submitter for id without creating one.
func (s *Sessions) Lookup(id string) (*Submitter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	return sub, ok
}

// View returns the state for id without creating a session. Unknown ids
// see an empty idle form.
func (s *Sessions) View(id string) View {
	if sub, ok := s.Lookup(id); ok {
		return sub.View()
	}
	return View{Status: StatusIdle.String()}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Sweep drops sessions untouched for longer than maxIdle. In-flight ones
// are kept.
func (s *Sessions) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sub := range s.byID {
		touched, idle := sub.idleSince()
		if idle && touched.Before(cutoff) {
			delete(s.byID, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(maxIdle); n > 0 {
				glog.V(1).Infof("contact: swept %d idle sessions, %d live", n, s.Len())
			}
		}
	}
}
