// Package app is the main cmd app
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/htol/bookstore/config"
	"github.com/htol/bookstore/journal"
	"github.com/htol/bookstore/logger"
	"github.com/htol/bookstore/repo"
	"github.com/htol/bookstore/report"
	"github.com/htol/bookstore/runner"
	"github.com/spf13/cobra"
)

// closeTimeout bounds disconnecting after the run context is gone.
const closeTimeout = 10 * time.Second

func CLI(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, args, os.Stdout, os.Stderr)
}

// execute runs the command line in args and maps the outcome to an exit
// code: 0 on success, 2 for usage errors and 1 for runtime errors.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := &appEnv{stdout: stdout}
	root := newRootCmd(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var rtErr *runtimeError
	if !errors.As(err, &rtErr) {
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.Name())
		return 2
	}

	// A failed query run has already been logged with its step.
	var stepErr *runner.StepError
	if !errors.As(err, &stepErr) {
		logger.Error("Runtime error", "error", rtErr.err)
	}
	return 1
}

// runtimeError marks failures that happen after the command line was
// accepted.
type runtimeError struct {
	err error
}

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

// runE adapts fn to cobra, tagging its errors as runtime errors.
func runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &runtimeError{err: err}
		}
		return nil
	}
}

type appEnv struct {
	config *config.Config
	stdout io.Writer
	out    *report.Printer
}

// globalFlags hold persistent flag values. They override configuration
// only when set on the command line.
type globalFlags struct {
	envFile    string
	uri        string
	database   string
	collection string
	logLevel   string
	journal    string
	lang       string
}

func newRootCmd(app *appEnv) *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:           "bookstore",
		Short:         "Run a fixed suite of MongoDB queries against a books collection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.configure(cmd, gf)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&gf.envFile, "env-file", "", "read configuration from this env file instead of .env")
	pf.StringVar(&gf.uri, "uri", "", "MongoDB connection string (MONGODB_URI)")
	pf.StringVar(&gf.database, "db", "", "database name (MONGODB_DATABASE)")
	pf.StringVar(&gf.collection, "collection", "", "collection name (MONGODB_COLLECTION)")
	pf.StringVar(&gf.logLevel, "log-level", "", "log level (LOG_LEVEL)")
	pf.StringVar(&gf.journal, "journal", "", `run journal path, "" disables it (JOURNAL_PATH)`)
	pf.StringVar(&gf.lang, "lang", "", "language for number formatting (REPORT_LANG)")

	root.AddCommand(
		newRunCmd(app),
		newSeedCmd(app),
		newIndexesCmd(app),
		newExplainCmd(app),
		newHistoryCmd(app),
	)
	return root
}

func (app *appEnv) configure(cmd *cobra.Command, gf globalFlags) error {
	cfg := config.Load()
	if gf.envFile != "" {
		var err error
		if cfg, err = config.LoadFile(gf.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("uri") {
		cfg.Mongo.URI = gf.uri
	}
	if flags.Changed("db") {
		cfg.Mongo.Database = gf.database
	}
	if flags.Changed("collection") {
		cfg.Mongo.Collection = gf.collection
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = gf.logLevel
	}
	if flags.Changed("journal") {
		cfg.Journal.Path = gf.journal
	}
	if flags.Changed("lang") {
		cfg.Report.Lang = gf.lang
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.LogLevel)
	app.config = cfg
	app.out = report.New(app.stdout, cfg.Report.Lang)
	return nil
}

// withRepo connects, calls fn and always disconnects, even when ctx has
// been canceled by a signal.
func (app *appEnv) withRepo(ctx context.Context, fn func(r repo.Repository) error) (err error) {
	r, err := repo.Open(ctx, app.config.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := r.Close(closeCtx); cerr != nil {
			logger.Error("Error closing MongoDB connection", "error", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(r)
}

// openJournal opens the configured journal. A nil Journal means journaling
// is disabled.
func (app *appEnv) openJournal() (*journal.Journal, error) {
	if app.config.Journal.Path == "" {
		return nil, nil
	}
	return journal.Open(app.config.Journal.Path, app.config.Journal)
}

func closeJournal(j *journal.Journal) {
	if j == nil {
		return
	}
	if err := j.Close(); err != nil {
		logger.Error("Error closing journal", "error", err)
	}
}
