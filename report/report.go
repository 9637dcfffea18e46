// Package report renders query results as human-readable console output.
// The format is for people; nothing should parse it.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/journal"
	"github.com/tidwall/pretty"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const bannerWidth = 52

type Printer struct {
	w io.Writer
	p *message.Printer
}

// New returns a Printer writing to w. Numbers are formatted for lang, a
// BCP 47 tag; unparsable tags fall back to English.
func New(w io.Writer, lang string) *Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return &Printer{w: w, p: message.NewPrinter(tag)}
}

func (r *Printer) printf(format string, args ...any) {
	r.p.Fprintf(r.w, format, args...)
}

func (r *Printer) Section(title string) {
	pad := bannerWidth - utf8.RuneCountInString(title) - 3
	if pad < 0 {
		pad = 0
	}
	r.printf("\n╔%s╗\n", strings.Repeat("═", bannerWidth))
	r.printf("║   %s%s║\n", title, strings.Repeat(" ", pad))
	r.printf("╚%s╝\n\n", strings.Repeat("═", bannerWidth))
}

func (r *Printer) Step(n int, title string) {
	r.printf("\n%d. %s\n", n, title)
}

func (r *Printer) Line(format string, args ...any) {
	r.printf("   "+format+"\n", args...)
}

func (r *Printer) Connected() {
	r.printf("✓ Connected to MongoDB server\n")
}

func (r *Printer) Closed() {
	r.printf("✓ MongoDB connection closed\n")
}

// Titles prints a count followed by the titles of books.
func (r *Printer) Titles(books []book.Book) {
	titles := make([]string, len(books))
	for i, b := range books {
		titles[i] = b.Title
	}
	r.printf("   Found %d books: [%s]\n", len(books), strings.Join(titles, ", "))
}

// TitlesWithYear is Titles with the publication year after each title.
func (r *Printer) TitlesWithYear(books []book.Book) {
	titles := make([]string, len(books))
	for i, b := range books {
		titles[i] = fmt.Sprintf("%s (%d)", b.Title, b.PublishedYear)
	}
	r.printf("   Found %d books: [%s]\n", len(books), strings.Join(titles, ", "))
}

func (r *Printer) Summaries(books []book.BookSummary) {
	for _, b := range books {
		if b.Author != "" {
			r.printf("   - %s by %s: $%.2f\n", b.Title, b.Author, b.Price)
			continue
		}
		r.printf("   - %s: $%.2f\n", b.Title, b.Price)
	}
}

// Page prints numbered titles, numbering from 1 within the page.
func (r *Printer) Page(n int, books []book.BookSummary) {
	r.printf("   Page %d:\n", n)
	for i, b := range books {
		r.printf("   %d. %s\n", i+1, b.Title)
	}
}

func (r *Printer) Updated(modified int64, b *book.Book) {
	r.printf("   Updated %d document(s)\n", modified)
	if b != nil {
		r.printf("   New price: $%.2f\n", b.Price)
	}
}

func (r *Printer) Deleted(deleted int64) {
	r.printf("   Deleted %d document(s)\n", deleted)
}

// Counts prints how many documents matched a title at each stage.
func (r *Printer) Counts(title string, counts ...int64) {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = r.p.Sprintf("%d", c)
	}
	r.printf("   %q count: %s\n", title, strings.Join(parts, " → "))
}

func (r *Printer) Genres(stats []book.GenreStats) {
	for _, g := range stats {
		r.printf("   %s: $%.2f (%d books)\n", g.Genre, g.AveragePrice, g.Count)
	}
}

func (r *Printer) TopAuthor(stats []book.AuthorStats) {
	if len(stats) == 0 {
		r.printf("   No authors found\n")
		return
	}
	top := stats[0]
	r.printf("   %s: %d books\n", top.Author, top.BookCount)
	r.printf("   Books: %s\n", strings.Join(top.Books, ", "))
}

func (r *Printer) Decades(buckets []book.DecadeBucket) {
	for _, d := range buckets {
		r.printf("   %s: %d book(s)\n", d.Decade, d.Count)
		r.printf("      → %s\n", strings.Join(d.Books, ", "))
	}
}

func (r *Printer) IndexCreated(name string) {
	r.printf("   ✓ Index created: %s\n", name)
}

func (r *Printer) Indexes(indexes []book.IndexInfo) {
	for _, idx := range indexes {
		unique := ""
		if idx.Unique {
			unique = " (unique)"
		}
		r.printf("   - %s: %s%s\n", idx.Name, KeysJSON(idx.Keys), unique)
	}
}

// KeysJSON renders an index key document as compact relaxed extended JSON.
func KeysJSON(keys bson.D) string {
	js, err := bson.MarshalExtJSON(keys, false, false)
	if err != nil {
		return fmt.Sprint(keys)
	}
	return string(pretty.Ugly(js))
}

func (r *Printer) Plan(description string, stats book.PlanStats) {
	r.printf("   Query: %s\n", description)
	r.printf("   Execution Stats:\n")
	r.printf("   - Documents examined: %d\n", stats.DocsExamined)
	r.printf("   - Keys examined: %d\n", stats.KeysExamined)
	r.printf("   - Documents returned: %d\n", stats.Returned)
	r.printf("   - Execution time: %dms\n", stats.ExecutionMillis)
	r.printf("   - Winning stage: %s\n", strings.Join(stats.Stages, " → "))
	if stats.UsesIndex() {
		name := stats.IndexName
		if name == "" {
			name = stats.Stage
		}
		r.printf("   - Using index: YES ✓ (%s)\n", name)
	} else {
		r.printf("   - Using index: NO\n")
	}
}

func (r *Printer) Done() {
	r.Section("✓ ALL QUERIES COMPLETED SUCCESSFULLY!")
}

func (r *Printer) Failed(err error) {
	r.printf("\n✗ Error occurred: %v\n", err)
}

// History prints journal runs as a table.
func (r *Printer) History(runs []journal.Run) {
	if len(runs) == 0 {
		r.printf("No runs recorded\n")
		return
	}
	for _, run := range runs {
		r.printf("%s  %s  %-7s  %d steps", run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.Status, run.Steps)
		if run.Error != "" {
			r.printf("  %s", run.Error)
		}
		r.printf("\n")
	}
}

func (r *Printer) RunSteps(steps []journal.Step) {
	for _, s := range steps {
		r.printf("%-12s %-40s %6d  %v", s.Section, s.Name, s.Count, s.Duration)
		if s.Error != "" {
			r.printf("  error: %s", s.Error)
		}
		r.printf("\n")
	}
}

// JSON writes v as indented JSON.
func (r *Printer) JSON(v any) error {
	js, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = r.w.Write(pretty.Pretty(js))
	return err
}
