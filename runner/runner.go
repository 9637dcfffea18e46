// Package runner executes the fixed sequence of bookstore queries, one
// operation at a time, reporting and journaling each result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/htol/bookstore/journal"
	"github.com/htol/bookstore/logger"
	"github.com/htol/bookstore/repo"
	"github.com/htol/bookstore/report"
)

// Recorder stores step outcomes. *journal.Journal implements it.
type Recorder interface {
	Begin(ctx context.Context) (string, error)
	Record(ctx context.Context, runID string, s journal.Step) error
	Finish(ctx context.Context, runID string, runErr error) error
}

// Options tune the queries the runner issues.
type Options struct {
	PageSize int
	// Genre, Author and year bounds for the filter steps.
	Genre          string
	Author         string
	PublishedAfter int
	RecentAfter    int
	NewPrice       float64
	// ExplainAuthor is matched against the compound author/year index.
	ExplainAuthor string
}

// DefaultOptions are the values the fixture catalogue is written for.
func DefaultOptions() Options {
	return Options{
		PageSize:       5,
		Genre:          "Fiction",
		Author:         "George Orwell",
		PublishedAfter: 1950,
		RecentAfter:    2010,
		NewPrice:       14.99,
		ExplainAuthor:  "J.R.R. Tolkien",
	}
}

// StepError identifies the step that stopped a run.
type StepError struct {
	Section string
	Step    string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s / %s: %v", e.Section, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type Runner struct {
	repo     repo.Repository
	out      *report.Printer
	recorder Recorder
	opts     Options

	runID string
	// section and step count are reset per section.
	section string
	stepNo  int
}

// New creates a Runner. recorder may be nil to disable journaling. Zero
// fields of opts take their value from DefaultOptions.
func New(r repo.Repository, out *report.Printer, recorder Recorder, opts Options) *Runner {
	def := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.Genre == "" {
		opts.Genre = def.Genre
	}
	if opts.Author == "" {
		opts.Author = def.Author
	}
	if opts.ExplainAuthor == "" {
		opts.ExplainAuthor = def.ExplainAuthor
	}
	if opts.PublishedAfter == 0 {
		opts.PublishedAfter = def.PublishedAfter
	}
	if opts.RecentAfter == 0 {
		opts.RecentAfter = def.RecentAfter
	}
	if opts.NewPrice <= 0 {
		opts.NewPrice = def.NewPrice
	}
	return &Runner{repo: r, out: out, recorder: recorder, opts: opts}
}

// section is one titled group of steps.
type section struct {
	name  string
	title string
	run   func(ctx context.Context) error
}

// Run executes every section in order and stops at the first failure. The
// failure is logged and returned; closing the connection is the caller's job.
func (r *Runner) Run(ctx context.Context) (err error) {
	r.begin(ctx)
	defer func() { r.finish(ctx, err) }()

	sections := []section{
		{"crud", "TASK 2: BASIC CRUD OPERATIONS", r.crud},
		{"advanced", "TASK 3: ADVANCED QUERIES", r.advanced},
		{"aggregation", "TASK 4: AGGREGATION PIPELINES", r.aggregation},
		{"indexing", "TASK 5: INDEXING & PERFORMANCE", r.indexing},
	}

	for _, s := range sections {
		r.section, r.stepNo = s.name, 0
		r.out.Section(s.title)
		if err := s.run(ctx); err != nil {
			var stepErr *StepError
			if errors.As(err, &stepErr) {
				logger.Error("Query run failed",
					"section", stepErr.Section, "step", stepErr.Step,
					"kind", repo.KindOf(err).String(), "error", stepErr.Err)
			} else {
				logger.Error("Query run failed", "section", s.name, "error", err)
			}
			r.out.Failed(err)
			return err
		}
	}

	r.out.Done()
	return nil
}

// step runs fn as a numbered step. fn returns the number of documents its
// result covers, which is journaled alongside the duration.
func (r *Runner) step(ctx context.Context, title string, fn func(ctx context.Context) (int64, error)) error {
	r.stepNo++
	r.out.Step(r.stepNo, title)

	start := time.Now()
	n, err := fn(ctx)
	elapsed := time.Since(start)

	logger.Debug("Step finished", "section", r.section, "step", title, "count", n, "duration", elapsed, "error", err)
	r.record(ctx, journal.Step{Section: r.section, Name: title, Count: n, Duration: elapsed, Error: errString(err)})

	if err != nil {
		return &StepError{Section: r.section, Step: title, Err: err}
	}
	return nil
}

func (r *Runner) begin(ctx context.Context) {
	if r.recorder == nil {
		return
	}
	id, err := r.recorder.Begin(context.WithoutCancel(ctx))
	if err != nil {
		logger.Warn("Failed to start journal run, continuing without journal", "error", err)
		r.recorder = nil
		return
	}
	r.runID = id
	logger.Debug("Journal run started", "run_id", id)
}

func (r *Runner) record(ctx context.Context, s journal.Step) {
	if r.recorder == nil {
		return
	}
	// A step that failed because ctx was canceled is still recorded.
	if err := r.recorder.Record(context.WithoutCancel(ctx), r.runID, s); err != nil {
		logger.Warn("Failed to journal step", "step", s.Name, "error", err)
	}
}

func (r *Runner) finish(ctx context.Context, runErr error) {
	if r.recorder == nil {
		return
	}
	// The run context may already be canceled; the journal write must still happen.
	if err := r.recorder.Finish(context.WithoutCancel(ctx), r.runID, runErr); err != nil {
		logger.Warn("Failed to finish journal run", "run_id", r.runID, "error", err)
	}
}

// RunID is the journal ID of the last run, or "" when journaling is off.
func (r *Runner) RunID() string {
	return r.runID
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
