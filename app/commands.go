package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/fixture"
	"github.com/htol/bookstore/journal"
	"github.com/htol/bookstore/logger"
	"github.com/htol/bookstore/query"
	"github.com/htol/bookstore/repo"
	"github.com/htol/bookstore/report"
	"github.com/htol/bookstore/runner"
	"github.com/spf13/cobra"
)

func newRunCmd(app *appEnv) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every query section in order",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			return app.run(cmd.Context(), seed)
		}),
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "replace the collection with the built-in catalogue first")
	return cmd
}

func (app *appEnv) run(ctx context.Context, seed bool) error {
	j, err := app.openJournal()
	if err != nil {
		logger.Warn("Journal unavailable, continuing without it", "path", app.config.Journal.Path, "error", err)
		j = nil
	}
	defer closeJournal(j)

	// A nil *journal.Journal must not become a non-nil Recorder.
	var rec runner.Recorder
	if j != nil {
		rec = j
	}

	connected := false
	err = app.withRepo(ctx, func(r repo.Repository) error {
		connected = true
		app.out.Connected()
		if seed {
			if err := r.Reset(ctx, fixture.Books()); err != nil {
				return err
			}
		}

		opts := runner.DefaultOptions()
		opts.PageSize = app.config.Report.PageSize
		qr := runner.New(r, app.out, rec, opts)
		err := qr.Run(ctx)
		if id := qr.RunID(); id != "" {
			logger.Info("Run journaled", "run_id", id)
		}
		return err
	})
	if connected {
		app.out.Closed()
	}
	return err
}

func newSeedCmd(app *appEnv) *cobra.Command {
	var (
		files    []string
		encoding string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace the collection with the built-in catalogue or books from JSON files",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			books := fixture.Books()
			if len(files) > 0 {
				var err error
				if books, err = fixture.Load(ctx, encoding, files...); err != nil {
					return err
				}
			}
			return app.withRepo(ctx, func(r repo.Repository) error {
				if err := r.Reset(ctx, books); err != nil {
					return err
				}
				app.out.Line("Seeded %d books", len(books))
				return nil
			})
		}),
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "JSON file holding an array of books (repeatable)")
	cmd.Flags().StringVar(&encoding, "encoding", "utf-8", "character set of the files")
	return cmd
}

// indexJSON is the machine-readable form of an index.
type indexJSON struct {
	Name   string          `json:"name"`
	Keys   json.RawMessage `json:"keys"`
	Unique bool            `json:"unique,omitempty"`
}

func newIndexesCmd(app *appEnv) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Create the title and author/year indexes and list all indexes",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return app.withRepo(ctx, func(r repo.Repository) error {
				for _, model := range []struct {
					name string
					fn   func() (string, error)
				}{
					{"title", func() (string, error) { return r.CreateIndex(ctx, query.TitleIndex()) }},
					{"author/year", func() (string, error) { return r.CreateIndex(ctx, query.AuthorYearIndex()) }},
				} {
					name, err := model.fn()
					if err != nil {
						return err
					}
					logger.Debug("Index ensured", "index", name)
					if !asJSON {
						app.out.IndexCreated(name)
					}
				}

				indexes, err := r.ListIndexes(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return app.out.JSON(indexesJSON(indexes))
				}
				app.out.Indexes(indexes)
				return nil
			})
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print indexes as JSON")
	return cmd
}

func indexesJSON(indexes []book.IndexInfo) []indexJSON {
	out := make([]indexJSON, len(indexes))
	for i, idx := range indexes {
		out[i] = indexJSON{Name: idx.Name, Keys: json.RawMessage(report.KeysJSON(idx.Keys)), Unique: idx.Unique}
	}
	return out
}

func newExplainCmd(app *appEnv) *cobra.Command {
	var (
		title  string
		author string
		after  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show the execution statistics of a title or author query",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filter, description := query.ByTitle(title), fmt.Sprintf("title %q", title)
			if author != "" {
				filter = query.AuthorPublishedAfter(author, after)
				description = fmt.Sprintf("author %q after %d", author, after)
			}
			return app.withRepo(ctx, func(r repo.Repository) error {
				plan, err := r.Explain(ctx, filter)
				if err != nil {
					return err
				}
				if asJSON {
					return app.out.JSON(plan)
				}
				app.out.Plan(description, plan)
				return nil
			})
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "explain an exact title match")
	flags.StringVar(&author, "author", "", "explain an author match combined with --after")
	flags.IntVar(&after, "after", runner.DefaultOptions().PublishedAfter, "published_year lower bound (exclusive) for --author")
	flags.BoolVar(&asJSON, "json", false, "print the plan statistics as JSON")
	cmd.MarkFlagsMutuallyExclusive("title", "author")
	cmd.MarkFlagsOneRequired("title", "author")
	return cmd
}

func newHistoryCmd(app *appEnv) *cobra.Command {
	var (
		limit  int
		runID  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled runs, or the steps of one run",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			return nil
		},
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			j, err := app.openJournal()
			if err != nil {
				return err
			}
			if j == nil {
				return errors.New("journal is disabled (JOURNAL_PATH is empty)")
			}
			defer closeJournal(j)

			if runID != "" {
				steps, err := j.Steps(ctx, runID)
				if err != nil {
					return err
				}
				if asJSON {
					return app.out.JSON(steps)
				}
				app.out.RunSteps(steps)
				return nil
			}

			runs, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				if runs == nil {
					runs = []journal.Run{}
				}
				return app.out.JSON(runs)
			}
			app.out.History(runs)
			return nil
		}),
	}
	flags := cmd.Flags()
	flags.IntVar(&limit, "limit", 10, "number of runs to show")
	flags.StringVar(&runID, "run", "", "show the steps of this run")
	flags.BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
