package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/journal"
	"github.com/htol/bookstore/logger"
	"github.com/htol/bookstore/query"
	"github.com/htol/bookstore/repo"
	"github.com/htol/bookstore/report"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func init() {
	logger.Init("error")
}

// Mock repository for testing. It records the operations it receives and
// fails the one named in failOn.
type mockRepository struct {
	calls  []string
	failOn string
	err    error

	titleCount int64
	lastPrice  float64
}

func (m *mockRepository) call(op string) error {
	m.calls = append(m.calls, op)
	if op == m.failOn {
		return m.err
	}
	return nil
}

func (m *mockRepository) Close(ctx context.Context) error { return m.call("Close") }
func (m *mockRepository) Ping(ctx context.Context) error  { return m.call("Ping") }

func (m *mockRepository) Find(ctx context.Context, filter bson.D, opts query.Find) ([]book.Book, error) {
	if err := m.call("Find"); err != nil {
		return nil, err
	}
	return []book.Book{{Title: "1984", PublishedYear: 1949}, {Title: "Animal Farm", PublishedYear: 1945}}, nil
}

func (m *mockRepository) FindSummaries(ctx context.Context, filter bson.D, opts query.Find) ([]book.BookSummary, error) {
	if err := m.call("FindSummaries"); err != nil {
		return nil, err
	}
	n := int(opts.Limit)
	if n == 0 {
		n = 12
	}
	out := make([]book.BookSummary, n)
	for i := range out {
		out[i] = book.BookSummary{Title: string(rune('A' + int(opts.Skip) + i))}
	}
	return out, nil
}

func (m *mockRepository) FindByTitle(ctx context.Context, title string) (*book.Book, error) {
	if err := m.call("FindByTitle"); err != nil {
		return nil, err
	}
	return &book.Book{Title: title, Price: 14.99}, nil
}

func (m *mockRepository) Count(ctx context.Context, filter bson.D) (int64, error) {
	if err := m.call("Count"); err != nil {
		return 0, err
	}
	return m.titleCount, nil
}

func (m *mockRepository) UpdatePrice(ctx context.Context, title string, price float64) (repo.UpdateResult, error) {
	if err := m.call("UpdatePrice"); err != nil {
		return repo.UpdateResult{}, err
	}
	m.lastPrice = price
	return repo.UpdateResult{Matched: 1, Modified: 1}, nil
}

func (m *mockRepository) DeleteByTitle(ctx context.Context, title string) (int64, error) {
	if err := m.call("DeleteByTitle"); err != nil {
		return 0, err
	}
	m.titleCount--
	return 1, nil
}

func (m *mockRepository) Insert(ctx context.Context, b *book.Book) (primitive.ObjectID, error) {
	if err := m.call("Insert"); err != nil {
		return primitive.NilObjectID, err
	}
	m.titleCount++
	return primitive.NewObjectID(), nil
}

func (m *mockRepository) AvgPriceByGenre(ctx context.Context) ([]book.GenreStats, error) {
	if err := m.call("AvgPriceByGenre"); err != nil {
		return nil, err
	}
	return []book.GenreStats{{Genre: "Fantasy", AveragePrice: 17.49, Count: 2}}, nil
}

func (m *mockRepository) TopAuthors(ctx context.Context, n int) ([]book.AuthorStats, error) {
	if err := m.call("TopAuthors"); err != nil {
		return nil, err
	}
	return []book.AuthorStats{{Author: "George Orwell", BookCount: 2, Books: []string{"1984", "Animal Farm"}}}, nil
}

func (m *mockRepository) BooksByDecade(ctx context.Context) ([]book.DecadeBucket, error) {
	if err := m.call("BooksByDecade"); err != nil {
		return nil, err
	}
	return []book.DecadeBucket{{Key: 194, Decade: "1940s", Count: 2, Books: []string{"1984", "Animal Farm"}}}, nil
}

func (m *mockRepository) CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error) {
	if err := m.call("CreateIndex"); err != nil {
		return "", err
	}
	return query.IndexName(model.Keys.(bson.D)), nil
}

func (m *mockRepository) ListIndexes(ctx context.Context) ([]book.IndexInfo, error) {
	if err := m.call("ListIndexes"); err != nil {
		return nil, err
	}
	return []book.IndexInfo{{Name: "_id_", Keys: bson.D{{Key: "_id", Value: int32(1)}}}}, nil
}

func (m *mockRepository) Explain(ctx context.Context, filter bson.D) (book.PlanStats, error) {
	if err := m.call("Explain"); err != nil {
		return book.PlanStats{}, err
	}
	return book.PlanStats{DocsExamined: 1, KeysExamined: 1, Returned: 1, Stage: book.StageFetch,
		Stages: []string{book.StageFetch, book.StageIxScan}, IndexName: "title_1"}, nil
}

func (m *mockRepository) Reset(ctx context.Context, books []book.Book) error {
	return m.call("Reset")
}

// fakeRecorder keeps journal entries in memory.
type fakeRecorder struct {
	mu       sync.Mutex
	beginErr error
	steps    []journal.Step
	finished bool
	runErr   error
}

// Every method fails on a done context, as a database/sql backed journal would.
func (f *fakeRecorder) Begin(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.beginErr != nil {
		return "", f.beginErr
	}
	return "run-1", nil
}

func (f *fakeRecorder) Record(ctx context.Context, runID string, s journal.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, s)
	return nil
}

func (f *fakeRecorder) Finish(ctx context.Context, runID string, runErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.finished = true
	f.runErr = runErr
	return nil
}

func newRunner(m *mockRepository, rec Recorder) (*Runner, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(m, report.New(&buf, "en"), rec, DefaultOptions()), &buf
}

func TestRunCompletesAllSections(t *testing.T) {
	m := &mockRepository{titleCount: 1}
	rec := &fakeRecorder{}
	r, out := newRunner(m, rec)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"TASK 2: BASIC CRUD OPERATIONS",
		"TASK 3: ADVANCED QUERIES",
		"TASK 4: AGGREGATION PIPELINES",
		"TASK 5: INDEXING & PERFORMANCE",
		"New price: $14.99",
		`"Wuthering Heights" count: 1 → 0 → 1`,
		"Page 1:",
		"Page 2:",
		"Index created: title_1",
		"Index created: author_1_published_year_1",
		"ALL QUERIES COMPLETED SUCCESSFULLY",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}

	if len(rec.steps) != 18 {
		t.Errorf("recorded %d steps, want 18", len(rec.steps))
	}
	if !rec.finished || rec.runErr != nil {
		t.Errorf("journal finish = %v, %v; want finished without error", rec.finished, rec.runErr)
	}
	if r.RunID() != "run-1" {
		t.Errorf("RunID() = %q, want run-1", r.RunID())
	}

	// The runner never closes a connection it did not open.
	for _, c := range m.calls {
		if c == "Close" {
			t.Error("runner called Close")
		}
	}
}

func TestRunSectionOrder(t *testing.T) {
	m := &mockRepository{titleCount: 1}
	rec := &fakeRecorder{}
	r, _ := newRunner(m, rec)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var sections []string
	for _, s := range rec.steps {
		if len(sections) == 0 || sections[len(sections)-1] != s.Section {
			sections = append(sections, s.Section)
		}
	}
	want := []string{"crud", "advanced", "aggregation", "indexing"}
	if strings.Join(sections, ",") != strings.Join(want, ",") {
		t.Errorf("sections = %v, want %v", sections, want)
	}
}

func TestRunStopsAtFirstError(t *testing.T) {
	cause := &repo.OpError{Op: "aggregate", Kind: repo.KindConnection, Err: errors.New("no reachable servers")}
	m := &mockRepository{titleCount: 1, failOn: "AvgPriceByGenre", err: cause}
	rec := &fakeRecorder{}
	r, out := newRunner(m, rec)

	err := r.Run(context.Background())
	if err == nil {
		t.Fatal("Run() expected error")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error %T is not a *StepError", err)
	}
	if stepErr.Section != "aggregation" || stepErr.Step != "Average price by genre" {
		t.Errorf("failed at %s / %s", stepErr.Section, stepErr.Step)
	}
	if repo.KindOf(err) != repo.KindConnection {
		t.Errorf("KindOf() = %v, want connection", repo.KindOf(err))
	}

	// No repository call may follow the failure.
	if last := m.calls[len(m.calls)-1]; last != "AvgPriceByGenre" {
		t.Errorf("last call = %s, want AvgPriceByGenre", last)
	}

	if !strings.Contains(out.String(), "✗ Error occurred") {
		t.Error("output missing error line")
	}
	if strings.Contains(out.String(), "ALL QUERIES COMPLETED") {
		t.Error("success banner printed after failure")
	}

	failed := rec.steps[len(rec.steps)-1]
	if failed.Error == "" || failed.Name != "Average price by genre" {
		t.Errorf("last journaled step = %+v", failed)
	}
	if !errors.Is(rec.runErr, cause) {
		t.Errorf("journaled run error = %v, want %v", rec.runErr, cause)
	}
}

func TestRunUpdateWithoutMatch(t *testing.T) {
	m := &noMatchRepository{mockRepository{titleCount: 1}}
	var buf bytes.Buffer
	r := New(m, report.New(&buf, "en"), nil, DefaultOptions())

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Updated 0 document(s)") {
		t.Error("expected zero modified count")
	}
	for _, c := range m.calls {
		if c == "FindByTitle" {
			t.Error("FindByTitle called after an update that matched nothing")
		}
	}
}

type noMatchRepository struct {
	mockRepository
}

func (m *noMatchRepository) UpdatePrice(ctx context.Context, title string, price float64) (repo.UpdateResult, error) {
	m.calls = append(m.calls, "UpdatePrice")
	return repo.UpdateResult{}, nil
}

func TestRunWithoutJournal(t *testing.T) {
	r, _ := newRunner(&mockRepository{titleCount: 1}, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.RunID() != "" {
		t.Errorf("RunID() = %q, want empty", r.RunID())
	}
}

func TestRunJournalBeginFailure(t *testing.T) {
	rec := &fakeRecorder{beginErr: errors.New("database is locked")}
	r, _ := newRunner(&mockRepository{titleCount: 1}, rec)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.steps) != 0 || rec.finished {
		t.Error("journal used after Begin failed")
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &mockRepository{titleCount: 1, failOn: "Find", err: &repo.OpError{Op: "find", Kind: repo.KindCanceled, Err: context.Canceled}}
	rec := &fakeRecorder{}
	r, _ := newRunner(m, rec)

	err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if !rec.finished {
		t.Error("journal run not finished after cancellation")
	}
	if len(rec.steps) != 1 {
		t.Fatalf("recorded %d steps, want the canceled step", len(rec.steps))
	}
	if rec.steps[0].Section != "crud" || !strings.Contains(rec.steps[0].Error, "context canceled") {
		t.Errorf("recorded step = %+v", rec.steps[0])
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(&mockRepository{}, report.New(&bytes.Buffer{}, "en"), nil, Options{PageSize: 3})
	want := DefaultOptions()
	want.PageSize = 3
	if r.opts != want {
		t.Errorf("opts = %+v, want %+v", r.opts, want)
	}
}

func TestRunWithPartialOptions(t *testing.T) {
	m := &mockRepository{titleCount: 1}
	var buf bytes.Buffer
	r := New(m, report.New(&buf, "en"), nil, Options{PageSize: 5})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, want := range []string{"Find books published after 1950", "published after 2010"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}
	if m.lastPrice != 14.99 {
		t.Errorf("UpdatePrice got price %v, want 14.99", m.lastPrice)
	}
}
