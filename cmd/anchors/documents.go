package main

import (
	"encoding/json"
	"fmt"
	"os"

	"chronicle/anchors/internal/app"
	"chronicle/anchors/internal/config"
	"chronicle/anchors/internal/store"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return migrate(cmd, cfg)
		},
	}
}

func migrate(cmd *cobra.Command, cfg config.Config) error {
	db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(cmd.Context(), db, cfg.MigrationsDir)
	for _, version := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", version)
	}
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
	}
	return nil
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var title, author string
	cmd := &cobra.Command{
		Use:   "import <document-id> <doc.json>",
		Short: "Import a ProseMirror document and the anchors its comment marks describe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			info, err := rt.service.ImportDocument(cmd.Context(), args[0], app.ImportInput{Title: title, Doc: json.RawMessage(raw), Author: author})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title (defaults to the id)")
	cmd.Flags().StringVar(&author, "author", "", "commit author")
	return cmd
}

func newReanchorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reanchor <document-id>",
		Short: "Recover stored anchors against the current document text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.service.Reanchor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newRemapCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remap <document-id> <revision>",
		Short: "Carry anchors from a past revision forward to the head revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			anchors, err := rt.service.RemapRevision(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), anchors)
		},
	}
}

func newEditCmd(opts *rootOptions) *cobra.Command {
	var author, message string
	cmd := &cobra.Command{
		Use:   "edit <document-id> <edits.json>",
		Short: "Replay scripted edits in a tracked session and commit the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ops []app.EditOp
			if err := readJSONFile(args[1], &ops); err != nil {
				return err
			}
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			session, err := rt.service.OpenSession(cmd.Context(), args[0], author)
			if err != nil {
				return err
			}
			for i, op := range ops {
				if err := session.Apply(op); err != nil {
					if _, closeErr := session.Close(cmd.Context(), message); closeErr != nil {
						return fmt.Errorf("edit %d: %w (close: %v)", i, err, closeErr)
					}
					return fmt.Errorf("edit %d: %w", i, err)
				}
			}
			info, err := session.Close(cmd.Context(), message)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "commit author")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <document-id>",
		Short: "List document revisions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			items, err := rt.service.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of revisions (0 for all)")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show stored anchors and how their last recovery went",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.service.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the database and recovery cache are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.service.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
