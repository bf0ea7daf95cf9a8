// Package storage opens the site's SQLite database and applies its schema.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/glog"
	_ "modernc.org/sqlite"

	"github.com/Zachkp/portfolio/internal/storage/migrations"
)

// Open opens the database at path and brings its schema up to date.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := Migrate(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// migration is one numbered schema file, e.g. 002_visitors.sql.
type migration struct {
	version int
	name    string
}

func listMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var list []migration
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive number and '_'", e.Name())
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, e.Name(), version)
		}
		seen[version] = e.Name()
		list = append(list, migration{version: version, name: e.Name()})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].version < list[j].version })
	return list, nil
}

// Migrate applies every migration numbered above the database's
// user_version, in order, and returns the names it applied. Each file runs
// in its own transaction together with the version bump.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS) ([]string, error) {
	list, err := listMigrations(fsys)
	if err != nil {
		return nil, err
	}
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range list {
		if m.version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", m.name, err)
		}
		if err := apply(ctx, db, m, upSection(string(content))); err != nil {
			return applied, err
		}
		glog.Infof("storage: applied migration %s", m.name)
		applied = append(applied, m.name)
		current = m.version
	}
	return applied, nil
}

func apply(ctx context.Context, db *sql.DB, m migration, up string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.name, err)
	}
	defer tx.Rollback()
	if strings.TrimSpace(up) != "" {
		if _, err := tx.ExecContext(ctx, up); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migration %s: set version: %w", m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", m.name, err)
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// upSection returns the part of a migration after "-- +migrate Up" and
// before "-- +migrate Down". Files without markers run whole.
func upSection(content string) string {
	_, after, found := strings.Cut(content, "-- +migrate Up")
	if !found {
		return content
	}
	up, _, _ := strings.Cut(after, "-- +migrate Down")
	return up
}
