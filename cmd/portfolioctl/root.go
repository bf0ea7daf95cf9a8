package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zachkp/portfolio/internal/config"
	"github.com/Zachkp/portfolio/internal/docstore"
	"github.com/Zachkp/portfolio/internal/storage"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	backend  string
	database string
	file     string
}

// openedStore is a docstore plus whatever must be closed with it.
type openedStore struct {
	store  docstore.Store
	writer docstore.Writer
	close  func()
}

func (o *globalOptions) open() (*openedStore, error) {
	switch o.backend {
	case config.StoreSQLite:
		db, err := storage.Open(o.database)
		if err != nil {
			return nil, err
		}
		s := docstore.NewSQLite(db, 200*time.Millisecond)
		return &openedStore{store: s, writer: s, close: closeBoth(s, db)}, nil
	case config.StoreFile:
		f, err := docstore.OpenFile(o.file)
		if err != nil {
			return nil, err
		}
		return &openedStore{store: f, close: func() { _ = f.Close() }}, nil
	default:
		return nil, fmt.Errorf("unsupported store %q (want sqlite or file)", o.backend)
	}
}

func closeBoth(s *docstore.SQLite, db *sql.DB) func() {
	return func() {
		_ = s.Close()
		_ = db.Close()
	}
}

func (o *openedStore) requireWriter() (docstore.Writer, error) {
	if o.writer == nil {
		return nil, docstore.ErrReadOnly
	}
	return o.writer, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "portfolioctl",
		Short:         "Manage the portfolio site",
		Long:          `Inspect and edit the project store, and send test messages through the contact endpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.backend, "store", envOr("DOCSTORE", config.StoreSQLite), "Project store backend: sqlite or file")
	root.PersistentFlags().StringVar(&opts.database, "db", envOr("DATABASE_PATH", "portfolio.db"), "SQLite database path")
	root.PersistentFlags().StringVar(&opts.file, "file", envOr("DOCSTORE_FILE", "projects.json"), "JSON export path for the file store")
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	root.AddCommand(newProjectsCmd(opts))
	root.AddCommand(newContactCmd())
	return root
}
