package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Zachkp/portfolio/internal/feed"
	"github.com/Zachkp/portfolio/internal/projects"
)

func newProjectsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage portfolio projects",
		Long:  `List, watch, add, remove, import or export the projects shown on the site.`,
	}
	cmd.AddCommand(
		newProjectsListCmd(opts),
		newProjectsWatchCmd(opts),
		newProjectsAddCmd(opts),
		newProjectsRemoveCmd(opts),
		newProjectsImportCmd(opts),
		newProjectsExportCmd(opts),
	)
	return cmd
}

// currentProjects reads one snapshot and releases the subscription.
func currentProjects(o *openedStore) ([]projects.Project, error) {
	var (
		list []projects.Project
		got  bool
	)
	cancel, err := feed.New(o.store).Subscribe(func(l []projects.Project) {
		if !got {
			list, got = l, true
		}
	})
	if err != nil {
		return nil, err
	}
	cancel()
	return list, nil
}

func printProjects(w io.Writer, list []projects.Project) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTAGS\tLINK")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Title, strings.Join(p.Tags, ","), p.Link)
	}
	return tw.Flush()
}

func newProjectsListCmd(opts *globalOptions) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := opts.open()
			if err != nil {
				return err
			}
			defer o.close()
			list, err := currentProjects(o)
			if err != nil {
				return err
			}
			return printProjects(cmd.OutOrStdout(), projects.Filter(list, projects.Selection(tag)))
		},
	}
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Only show projects carrying this tag")
	return cmd
}

func newProjectsWatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the project list every time it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := opts.open()
			if err != nil {
				return err
			}
			defer o.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			out := cmd.OutOrStdout()
			cancel, err := feed.New(o.store).Subscribe(func(list []projects.Project) {
				fmt.Fprintf(out, "-- %d projects\n", len(list))
				_ = printProjects(out, list)
			})
			if err != nil {
				return err
			}
			defer cancel()
			<-ctx.Done()
			return nil
		},
	}
}

func newProjectsAddCmd(opts *globalOptions) *cobra.Command {
	var (
		rec  projects.Record
		tags []string
		key  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.Tags = append([]string{}, tags...)
			raw, err := rec.Marshal()
			if err != nil {
				return err
			}
			o, err := opts.open()
			if err != nil {
				return err
			}
			defer o.close()
			w, err := o.requireWriter()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if key == "" {
				key, err = w.Push(ctx, feed.Path, raw)
			} else {
				err = w.Put(ctx, feed.Path, key, raw)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&rec.Title, "title", "", "Project title (required)")
	cmd.Flags().StringVar(&rec.Description, "description", "", "Short description")
	cmd.Flags().StringVar(&rec.Image, "image", "", "Image URL")
	cmd.Flags().StringVar(&rec.Link, "link", "", "External link")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable or comma separated)")
	cmd.Flags().StringVar(&key, "key", "", "Store under this key instead of a generated one")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newProjectsRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := opts.open()
			if err != nil {
				return err
			}
			defer o.close()
			w, err := o.requireWriter()
			if err != nil {
				return err
			}
			return w.Remove(cmd.Context(), feed.Path, args[0])
		},
	}
}

// exportDocument is the JSON export shape shared with the file store.
type exportDocument map[string]map[string]json.RawMessage

func readExport(r io.Reader) (map[string]json.RawMessage, error) {
	var doc exportDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	entries, ok := doc[feed.Path]
	if !ok {
		return nil, fmt.Errorf("export has no %q collection", feed.Path)
	}
	var errs []error
	for key, raw := range entries {
		if err := projects.ValidateRecord(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return entries, nil
}

func newProjectsImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import projects from a JSON export",
		Long:  `Reads {"projects": {"<key>": {...}}} and writes every entry, replacing existing keys.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			entries, err := readExport(f)
			if err != nil {
				return err
			}

			o, err := opts.open()
			if err != nil {
				return err
			}
			defer o.close()
			w, err := o.requireWriter()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(entries))
			for k := range entries {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := w.Put(cmd.Context(), feed.Path, k, entries[k]); err != nil {
					return fmt.Errorf("import %s: %w", k, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d projects\n", len(keys))
			return nil
		},
	}
}

func newProjectsExportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the projects as a JSON export to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := opts.open()
			if err != nil {
				return err
			}
			defer o.close()
			list, err := currentProjects(o)
			if err != nil {
				return err
			}
			doc := exportDocument{feed.Path: {}}
			for _, p := range list {
				raw, err := p.Record().Marshal()
				if err != nil {
					return err
				}
				doc[feed.Path][p.ID] = raw
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
}
