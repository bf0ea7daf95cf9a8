// Package feed turns document-store snapshots of the projects collection
// into typed project lists.
package feed

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Zachkp/portfolio/internal/docstore"
	"github.com/Zachkp/portfolio/internal/projects"
	"github.com/golang/glog"
)

// Path is the collection the feed reads.
const Path = "projects"

// Cancel releases a subscription. It is safe to call more than once and
// before any snapshot arrived. Once it returns no further update runs.
type Cancel func()

// Subscriber maps snapshots from a Store onto project lists.
type Subscriber struct {
	store   docstore.Store
	path    string
	onError func(error)
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithErrorHandler receives store errors in addition to the log.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Subscriber) { s.onError = fn }
}

// New returns a Subscriber reading the projects collection of store.
func New(store docstore.Store, opts ...Option) *Subscriber {
	s := &Subscriber{store: store, path: Path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromSnapshot maps one snapshot onto projects in entry order. Entries that
// are not objects are skipped and reported in the returned error.
func FromSnapshot(snap docstore.Snapshot) ([]projects.Project, error) {
	list := make([]projects.Project, 0, len(snap.Entries))
	var errs []error
	for _, e := range snap.Entries {
		p, err := projects.Decode(e.Key, e.Value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		list = append(list, p)
	}
	return list, errors.Join(errs...)
}

// Subscribe registers onUpdate. Each snapshot fully replaces the previous
// list. An empty snapshot yields an empty list.
//
// onUpdate runs while the subscription's lock is held; it must not call
// the returned Cancel itself.
func (s *Subscriber) Subscribe(onUpdate func([]projects.Project)) (Cancel, error) {
	if onUpdate == nil {
		return nil, fmt.Errorf("subscribe %s: onUpdate is required", s.path)
	}

	var (
		mu      sync.Mutex
		stopped bool
	)
	deliver := func(snap docstore.Snapshot) {
		if !snap.Exists() {
			glog.V(1).Infof("feed: %s is empty", s.path)
		}
		list, err := FromSnapshot(snap)
		if err != nil {
			glog.Warningf("feed: skipped malformed %s entries: %v", s.path, err)
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		onUpdate(list)
	}
	fail := func(err error) {
		glog.Errorf("feed: %s subscription error, keeping last list: %v", s.path, err)
		if s.onError != nil {
			s.onError(err)
		}
	}

	unsubscribe, err := s.store.Subscribe(s.path, deliver, fail)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", s.path, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			stopped = true
			mu.Unlock()
			unsubscribe()
		})
	}, nil
}
