package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process store. Writes publish synchronously.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]map[string]json.RawMessage
	hub    *hub
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string]json.RawMessage),
		hub:  newHub(),
	}
}

func (m *Memory) snapshot(path string) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.data[path]
	entries := make([]Entry, 0, len(coll))
	for k, v := range coll {
		entries = append(entries, Entry{Key: k, Value: append(json.RawMessage(nil), v...)})
	}
	sortEntries(entries)
	return Snapshot{Path: path, Entries: entries}
}

// Subscribe implements Store.
func (m *Memory) Subscribe(path string, onValue func(Snapshot), onError func(error)) (Unsubscribe, error) {
	if onValue == nil {
		return nil, fmt.Errorf("subscribe %s: onValue is required", path)
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	l := m.hub.add(path, onValue, onError)
	if err := m.hub.initial(l, func() (Snapshot, error) { return m.snapshot(path), nil }); err != nil {
		m.hub.remove(l.id)
		return nil, err
	}
	return m.hub.unsubscribe(l.id), nil
}

// Put implements Writer.
func (m *Memory) Put(ctx context.Context, path, key string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("put %s: key is required", path)
	}
	if !json.Valid(value) {
		return fmt.Errorf("put %s/%s: value is not valid JSON", path, key)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	coll, ok := m.data[path]
	if !ok {
		coll = make(map[string]json.RawMessage)
		m.data[path] = coll
	}
	coll[key] = append(json.RawMessage(nil), value...)
	m.mu.Unlock()

	m.publish(path)
	return nil
}

// Push implements Writer.
func (m *Memory) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	key := NewKey()
	if err := m.Put(ctx, path, key, value); err != nil {
		return "", err
	}
	return key, nil
}

// Remove implements Writer.
func (m *Memory) Remove(ctx context.Context, path, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.data[path][key]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.data[path], key)
	m.mu.Unlock()

	m.publish(path)
	return nil
}

// Replace swaps a whole collection in one change.
func (m *Memory) Replace(path string, entries map[string]json.RawMessage) {
	coll := make(map[string]json.RawMessage, len(entries))
	for k, v := range entries {
		coll[k] = append(json.RawMessage(nil), v...)
	}
	m.mu.Lock()
	m.data[path] = coll
	m.mu.Unlock()
	m.publish(path)
}

func (m *Memory) publish(path string) {
	_ = m.hub.publish(func() (Snapshot, error) { return m.snapshot(path), nil })
}

// Fail reports err to every subscriber, as a broken connection would.
func (m *Memory) Fail(err error) {
	m.hub.fail(err)
}

// Listeners returns the number of active subscriptions.
func (m *Memory) Listeners() int {
	return m.hub.count()
}

// Close drops every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	for _, p := range m.hub.paths() {
		for _, l := range m.hub.forPath(p) {
			m.hub.remove(l.id)
		}
	}
	return nil
}

var (
	_ Store  = (*Memory)(nil)
	_ Writer = (*Memory)(nil)
)
