// Package docstore is a push-based key/value document store. A collection
// path maps opaque keys to JSON values; subscribers receive the whole
// collection as a Snapshot every time it changes.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrReadOnly is returned by stores that cannot be written through.
	ErrReadOnly = errors.New("docstore: store is read-only")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("docstore: store is closed")
	// ErrNotFound is returned when removing a missing key.
	ErrNotFound = errors.New("docstore: key not found")
)

// Entry is one keyed value of a collection.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Snapshot is one complete delivery of a collection.
type Snapshot struct {
	Path    string
	Entries []Entry
}

// Exists reports whether the collection had any entries.
func (s Snapshot) Exists() bool {
	return len(s.Entries) > 0
}

func (s Snapshot) fingerprint() string {
	h := sha256.New()
	for _, e := range s.Entries {
		h.Write([]byte(e.Key))
		h.Write([]byte{0})
		h.Write(e.Value)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Store delivers snapshots of a collection. The current snapshot is
// delivered synchronously before Subscribe returns, then one snapshot per
// change. onError may be nil.
type Store interface {
	Subscribe(path string, onValue func(Snapshot), onError func(error)) (Unsubscribe, error)
}

// Writer is implemented by stores that accept writes.
type Writer interface {
	Put(ctx context.Context, path, key string, value json.RawMessage) error
	Push(ctx context.Context, path string, value json.RawMessage) (string, error)
	Remove(ctx context.Context, path, key string) error
}

// listener is one registration against a path.
type listener struct {
	id      uint64
	path    string
	onValue func(Snapshot)
	onError func(error)
}

// hub fans snapshots out to listeners. Delivery is serialized so listeners
// never observe two snapshots concurrently.
type hub struct {
	mu        sync.Mutex
	deliverMu sync.Mutex
	nextID    uint64
	listeners map[uint64]*listener
	last      map[string]string
}

func newHub() *hub {
	return &hub{
		listeners: make(map[uint64]*listener),
		last:      make(map[string]string),
	}
}

func (h *hub) add(path string, onValue func(Snapshot), onError func(error)) *listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	l := &listener{id: h.nextID, path: path, onValue: onValue, onError: onError}
	h.listeners[l.id] = l
	return l
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, id)
}

func (h *hub) active(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.listeners[id]
	return ok
}

func (h *hub) forPath(path string) []*listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*listener
	for _, l := range h.listeners {
		if l.path == path {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (h *hub) paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, l := range h.listeners {
		if _, ok := seen[l.path]; ok {
			continue
		}
		seen[l.path] = struct{}{}
		out = append(out, l.path)
	}
	sort.Strings(out)
	return out
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// initial loads the current snapshot and delivers it to one new listener.
// Loading under the delivery lock keeps it ordered with publish.
func (h *hub) initial(l *listener, load func() (Snapshot, error)) error {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	snap, err := load()
	if err != nil {
		return err
	}
	h.mu.Lock()
	if _, seen := h.last[snap.Path]; !seen {
		h.last[snap.Path] = snap.fingerprint()
	}
	h.mu.Unlock()
	l.onValue(snap)
	return nil
}

// publish loads the current snapshot and delivers it to every listener of
// its path unless it is identical to the last published one for that path.
func (h *hub) publish(load func() (Snapshot, error)) error {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	snap, err := load()
	if err != nil {
		return err
	}
	fp := snap.fingerprint()
	h.mu.Lock()
	if h.last[snap.Path] == fp {
		h.mu.Unlock()
		return nil
	}
	h.last[snap.Path] = fp
	h.mu.Unlock()

	for _, l := range h.forPath(snap.Path) {
		if !h.active(l.id) {
			continue
		}
		l.onValue(snap)
	}
	return nil
}

// fail reports err to every listener.
func (h *hub) fail(err error) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	h.mu.Lock()
	ls := make([]*listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		ls = append(ls, l)
	}
	h.mu.Unlock()
	for _, l := range ls {
		if l.onError != nil {
			l.onError(err)
		}
	}
}

func (h *hub) unsubscribe(id uint64) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewKey returns a time-ordered key, so pushed entries enumerate in
// insertion order.
func NewKey() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}
