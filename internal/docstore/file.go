package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// File serves collections from a JSON export of the form
//
//	{"projects": {"<key>": {...}, ...}, ...}
//
// and republishes whenever the file changes on disk. It is read-only.
type File struct {
	path string
	hub  *hub

	mu      sync.Mutex
	doc     map[string]map[string]json.RawMessage
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  bool
}

// OpenFile loads path and starts watching it. A missing file is treated as
// an empty document until it appears.
func OpenFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	f := &File{path: abs, hub: newHub(), doc: map[string]map[string]json.RawMessage{}}
	if err := f.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors and deploy tools replace files by rename.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	f.watcher = w
	f.done = make(chan struct{})
	go f.watch()
	return f, nil
}

func parseDocument(data []byte) (map[string]map[string]json.RawMessage, error) {
	doc := map[string]map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	for path, value := range raw {
		if string(bytes.TrimSpace(value)) == "null" {
			continue
		}
		var coll map[string]json.RawMessage
		if err := json.Unmarshal(value, &coll); err != nil {
			return nil, fmt.Errorf("parse collection %q: %w", path, err)
		}
		doc[path] = coll
	}
	return doc, nil
}

func (f *File) reload() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		data = nil
	} else if err != nil {
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
	return nil
}

func (f *File) snapshot(path string) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	coll := f.doc[path]
	entries := make([]Entry, 0, len(coll))
	for k, v := range coll {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	sortEntries(entries)
	return Snapshot{Path: path, Entries: entries}
}

func (f *File) watch() {
	defer close(f.done)
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			f.changed()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			glog.Warningf("docstore: watch %s: %v", f.path, err)
			f.hub.fail(err)
		}
	}
}

// changed reloads the file and republishes every watched path. A file that
// fails to parse keeps the previous document.
func (f *File) changed() {
	if err := f.reload(); err != nil {
		glog.Warningf("docstore: reload %s: %v", f.path, err)
		f.hub.fail(err)
		return
	}
	for _, p := range f.hub.paths() {
		path := p
		_ = f.hub.publish(func() (Snapshot, error) { return f.snapshot(path), nil })
	}
}

// Subscribe implements Store.
func (f *File) Subscribe(path string, onValue func(Snapshot), onError func(error)) (Unsubscribe, error) {
	if onValue == nil {
		return nil, fmt.Errorf("subscribe %s: onValue is required", path)
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	l := f.hub.add(path, onValue, onError)
	if err := f.hub.initial(l, func() (Snapshot, error) { return f.snapshot(path), nil }); err != nil {
		f.hub.remove(l.id)
		return nil, err
	}
	return f.hub.unsubscribe(l.id), nil
}

// Close stops watching and drops every subscription.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	err := f.watcher.Close()
	<-f.done
	for _, p := range f.hub.paths() {
		for _, l := range f.hub.forPath(p) {
			f.hub.remove(l.id)
		}
	}
	return err
}

var _ Store = (*File)(nil)
