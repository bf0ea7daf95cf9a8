package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

// SQLite keeps collections in the documents table. Local writes publish
// immediately; writes from other processes are picked up by polling
// PRAGMA data_version on a dedicated connection.
type SQLite struct {
	db       *sql.DB
	hub      *hub
	interval time.Duration

	mu      sync.Mutex
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewSQLite wraps an open database whose schema has been applied. A zero
// interval disables cross-process polling.
func NewSQLite(db *sql.DB, interval time.Duration) *SQLite {
	return &SQLite{db: db, hub: newHub(), interval: interval}
}

func (s *SQLite) load(ctx context.Context, path string) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM documents
		WHERE path = ?
		ORDER BY key
	`, path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Snapshot{}, fmt.Errorf("scan %s: %w", path, err)
		}
		entries = append(entries, Entry{Key: key, Value: json.RawMessage(value)})
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate %s: %w", path, err)
	}
	return Snapshot{Path: path, Entries: entries}, nil
}

// Subscribe implements Store.
func (s *SQLite) Subscribe(path string, onValue func(Snapshot), onError func(error)) (Unsubscribe, error) {
	if onValue == nil {
		return nil, fmt.Errorf("subscribe %s: onValue is required", path)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	if err := s.startPoller(); err != nil {
		return nil, err
	}
	l := s.hub.add(path, onValue, onError)
	err := s.hub.initial(l, func() (Snapshot, error) {
		return s.load(context.Background(), path)
	})
	if err != nil {
		s.hub.remove(l.id)
		return nil, err
	}
	return s.hub.unsubscribe(l.id), nil
}

// startPoller pins a connection and records the current data_version
// before any initial snapshot is read, so no commit falls between the two.
func (s *SQLite) startPoller() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed || s.interval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := s.db.Conn(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("pin poll connection: %w", err)
	}
	var version int64
	if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		_ = conn.Close()
		cancel()
		return fmt.Errorf("read data_version: %w", err)
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	go s.poll(ctx, conn, version)
	return nil
}

func (s *SQLite) poll(ctx context.Context, conn *sql.Conn, last int64) {
	defer close(s.done)
	defer conn.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var v int64
		if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
			if ctx.Err() != nil {
				return
			}
			glog.Warningf("docstore: poll data_version: %v", err)
			s.hub.fail(fmt.Errorf("poll data_version: %w", err))
			continue
		}
		if v == last {
			continue
		}
		last = v
		s.refreshAll(ctx)
	}
}

// refreshAll republishes every watched path; unchanged ones are dropped by
// the hub.
func (s *SQLite) refreshAll(ctx context.Context) {
	for _, path := range s.hub.paths() {
		p := path
		err := s.hub.publish(func() (Snapshot, error) { return s.load(ctx, p) })
		if err != nil && ctx.Err() == nil {
			glog.Warningf("docstore: refresh %s: %v", p, err)
			s.hub.fail(err)
		}
	}
}

func (s *SQLite) publish(ctx context.Context, path string) {
	err := s.hub.publish(func() (Snapshot, error) { return s.load(ctx, path) })
	if err != nil {
		glog.Warningf("docstore: publish %s: %v", path, err)
		s.hub.fail(err)
	}
}

func (s *SQLite) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Put implements Writer.
func (s *SQLite) Put(ctx context.Context, path, key string, value json.RawMessage) error {
	if s.isClosed() {
		return ErrClosed
	}
	if key == "" {
		return fmt.Errorf("put %s: key is required", path)
	}
	if !json.Valid(value) {
		return fmt.Errorf("put %s/%s: value is not valid JSON", path, key)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (path, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, path, key, string(value), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", path, key, err)
	}
	s.publish(ctx, path)
	return nil
}

// Push implements Writer.
func (s *SQLite) Push(ctx context.Context, path string, value json.RawMessage) (string, error) {
	key := NewKey()
	if err := s.Put(ctx, path, key, value); err != nil {
		return "", err
	}
	return key, nil
}

// Remove implements Writer.
func (s *SQLite) Remove(ctx context.Context, path, key string) error {
	if s.isClosed() {
		return ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ? AND key = ?`, path, key)
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", path, key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.publish(ctx, path)
	return nil
}

// Close stops the poller and drops every subscription. The database handle
// is owned by the caller.
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, p := range s.hub.paths() {
		for _, l := range s.hub.forPath(p) {
			s.hub.remove(l.id)
		}
	}
	return nil
}

var (
	_ Store  = (*SQLite)(nil)
	_ Writer = (*SQLite)(nil)
)
