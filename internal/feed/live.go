package feed

import (
	"sync"

	"github.com/Zachkp/portfolio/internal/projects"
)

// Live holds the last-known project list for page renders. It owns exactly
// one subscription for its lifetime.
type Live struct {
	sub *Subscriber

	mu      sync.RWMutex
	list    []projects.Project
	loaded  bool
	version uint64
	cancel  Cancel
}

// NewLive returns an unstarted Live over sub.
func NewLive(sub *Subscriber) *Live {
	return &Live{sub: sub, list: []projects.Project{}}
}

// Start acquires the subscription. Calling Start twice is a no-op.
func (l *Live) Start() error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	cancel, err := l.sub.Subscribe(l.update)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	return nil
}

func (l *Live) update(list []projects.Project) {
	l.mu.Lock()
	l.list = list
	l.loaded = true
	l.version++
	l.mu.Unlock()
}

// Projects returns the last-known list and whether any snapshot has
// arrived yet.
func (l *Live) Projects() ([]projects.Project, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]projects.Project, len(l.list))
	copy(out, l.list)
	return out, l.loaded
}

// Version counts delivered snapshots.
func (l *Live) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Close releases the subscription. The last list stays readable.
func (l *Live) Close() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
