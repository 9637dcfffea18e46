package repo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/config"
	"github.com/htol/bookstore/fixture"
	"github.com/htol/bookstore/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openFixture connects to BOOKSTORE_TEST_URI and loads the embedded catalogue
// into a collection private to the test. Tests are skipped without a server.
func openFixture(t *testing.T) *Repo {
	t.Helper()
	uri := os.Getenv("BOOKSTORE_TEST_URI")
	if uri == "" {
		t.Skip("BOOKSTORE_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r, err := Open(ctx, config.MongoConfig{
		URI:                    uri,
		Database:               "bookstore_test",
		Collection:             fmt.Sprintf("books_%d", time.Now().UnixNano()),
		ServerSelectionTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.coll.Drop(ctx)
		_ = r.Close(ctx)
	})

	require.NoError(t, r.Reset(ctx, fixture.Books()))
	return r
}

func TestPropertyGenreFilterIsExact(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()

	got, err := r.Find(ctx, query.ByGenre("Fiction"), query.Find{})
	require.NoError(t, err)

	want := 0
	for _, b := range fixture.Books() {
		if b.Genre == "Fiction" {
			want++
		}
	}
	require.Len(t, got, want)
	for _, b := range got {
		assert.Equal(t, "Fiction", b.Genre)
	}
}

func TestPropertyRangeExcludesBoundary(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()

	// 1951 is a fixture year; it must not match $gt 1951.
	got, err := r.Find(ctx, query.PublishedAfter(1951), query.Find{})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, b := range got {
		assert.Greater(t, b.PublishedYear, 1951, b.Title)
	}
}

func TestPropertyUpdateIsIdempotent(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()

	first, err := r.UpdatePrice(ctx, fixture.UpdatedTitle, 14.99)
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Matched: 1, Modified: 1}, first)

	b, err := r.FindByTitle(ctx, fixture.UpdatedTitle)
	require.NoError(t, err)
	assert.Equal(t, 14.99, b.Price)

	second, err := r.UpdatePrice(ctx, fixture.UpdatedTitle, 14.99)
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Matched: 1, Modified: 0}, second)

	missing, err := r.UpdatePrice(ctx, "No Such Book", 1)
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{}, missing)
}

func TestPropertyDeleteInsertRestoresCount(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()
	filter := query.ByTitle(fixture.RestoredTitle)

	counts := make([]int64, 0, 3)
	n, err := r.Count(ctx, filter)
	require.NoError(t, err)
	counts = append(counts, n)

	deleted, err := r.DeleteByTitle(ctx, fixture.RestoredTitle)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	n, err = r.Count(ctx, filter)
	require.NoError(t, err)
	counts = append(counts, n)

	restored := fixture.Restored()
	_, err = r.Insert(ctx, &restored)
	require.NoError(t, err)

	n, err = r.Count(ctx, filter)
	require.NoError(t, err)
	counts = append(counts, n)

	assert.Equal(t, []int64{1, 0, 1}, counts)
}

func TestPropertyPagesDoNotOverlap(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()

	find := query.Find{Projection: query.Fields("title"), Sort: &query.ByTitleOrder}
	page1, err := r.FindSummaries(ctx, query.All(), find.WithPage(query.Page{Number: 1, Size: 5}))
	require.NoError(t, err)
	page2, err := r.FindSummaries(ctx, query.All(), find.WithPage(query.Page{Number: 2, Size: 5}))
	require.NoError(t, err)

	require.Len(t, page1, 5)
	require.Len(t, page2, 5)

	seen := make(map[string]bool)
	for _, b := range append(page1, page2...) {
		assert.False(t, seen[b.Title], "duplicate %q", b.Title)
		seen[b.Title] = true
	}
	assert.Len(t, seen, 10)

	// Both pages together are the first ten titles in order.
	all, err := r.FindSummaries(ctx, query.All(), query.Find{Projection: query.Fields("title"), Sort: &query.ByTitleOrder, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, all, append(page1, page2...))
}

func TestPropertyAveragePriceByGenre(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()

	stats, err := r.AvgPriceByGenre(ctx)
	require.NoError(t, err)

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, b := range fixture.Books() {
		sums[b.Genre] += b.Price
		counts[b.Genre]++
	}
	require.Len(t, stats, len(counts))

	for i, s := range stats {
		assert.Equal(t, counts[s.Genre], s.Count, s.Genre)
		assert.InDelta(t, sums[s.Genre]/float64(counts[s.Genre]), s.AveragePrice, 1e-9, s.Genre)
		if i > 0 {
			assert.GreaterOrEqual(t, stats[i-1].AveragePrice, s.AveragePrice)
		}
	}
}

func TestPropertyTopAuthorAndDecades(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()

	top, err := r.TopAuthors(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	// Orwell and Tolkien both have two books; ties go to the smaller name.
	assert.Equal(t, "George Orwell", top[0].Author)
	assert.Equal(t, []string{"1984", "Animal Farm"}, top[0].Books)

	buckets, err := r.BooksByDecade(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, buckets)
	total := 0
	for i, bucket := range buckets {
		assert.Equal(t, fmt.Sprintf("%ds", bucket.Key*10), bucket.Decade)
		assert.Len(t, bucket.Books, bucket.Count)
		total += bucket.Count
		if i > 0 {
			assert.Less(t, buckets[i-1].Key, bucket.Key)
		}
	}
	assert.Equal(t, len(fixture.Books()), total)
}

func TestPropertyIndexCreationIsIdempotent(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()

	first, err := r.CreateIndex(ctx, query.TitleIndex())
	require.NoError(t, err)
	second, err := r.CreateIndex(ctx, query.TitleIndex())
	require.NoError(t, err)
	assert.Equal(t, "title_1", first)
	assert.Equal(t, first, second)

	indexes, err := r.ListIndexes(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		names = append(names, idx.Name)
	}
	assert.ElementsMatch(t, []string{"_id_", "title_1"}, names)

	plan, err := r.Explain(ctx, query.ByTitle(fixture.ExplainTitle))
	require.NoError(t, err)
	assert.EqualValues(t, 1, plan.Returned)
	assert.True(t, plan.UsesIndex(), "stages %v", plan.Stages)

	var unindexed book.PlanStats
	unindexed, err = r.Explain(ctx, query.ByGenre("Fiction"))
	require.NoError(t, err)
	assert.False(t, unindexed.UsesIndex())
	assert.EqualValues(t, len(fixture.Books()), unindexed.DocsExamined)
}
