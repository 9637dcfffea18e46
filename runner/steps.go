package runner

import (
	"context"
	"fmt"

	"github.com/htol/bookstore/fixture"
	"github.com/htol/bookstore/query"
)

func (r *Runner) crud(ctx context.Context) error {
	o := r.opts

	if err := r.step(ctx, fmt.Sprintf("Find all %s books", o.Genre), func(ctx context.Context) (int64, error) {
		books, err := r.repo.Find(ctx, query.ByGenre(o.Genre), query.Find{})
		if err != nil {
			return 0, err
		}
		r.out.Titles(books)
		return int64(len(books)), nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, fmt.Sprintf("Find books published after %d", o.PublishedAfter), func(ctx context.Context) (int64, error) {
		books, err := r.repo.Find(ctx, query.PublishedAfter(o.PublishedAfter), query.Find{})
		if err != nil {
			return 0, err
		}
		r.out.TitlesWithYear(books)
		return int64(len(books)), nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, fmt.Sprintf("Find books by %s", o.Author), func(ctx context.Context) (int64, error) {
		books, err := r.repo.Find(ctx, query.ByAuthor(o.Author), query.Find{})
		if err != nil {
			return 0, err
		}
		r.out.Titles(books)
		return int64(len(books)), nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, fmt.Sprintf("Update price of %q", fixture.UpdatedTitle), func(ctx context.Context) (int64, error) {
		res, err := r.repo.UpdatePrice(ctx, fixture.UpdatedTitle, o.NewPrice)
		if err != nil {
			return 0, err
		}
		if res.Matched == 0 {
			r.out.Updated(0, nil)
			return 0, nil
		}
		updated, err := r.repo.FindByTitle(ctx, fixture.UpdatedTitle)
		if err != nil {
			return res.Modified, err
		}
		r.out.Updated(res.Modified, updated)
		return res.Modified, nil
	}); err != nil {
		return err
	}

	return r.step(ctx, fmt.Sprintf("Delete and restore %q", fixture.RestoredTitle), func(ctx context.Context) (int64, error) {
		filter := query.ByTitle(fixture.RestoredTitle)
		before, err := r.repo.Count(ctx, filter)
		if err != nil {
			return 0, err
		}
		deleted, err := r.repo.DeleteByTitle(ctx, fixture.RestoredTitle)
		if err != nil {
			return 0, err
		}
		r.out.Deleted(deleted)
		after, err := r.repo.Count(ctx, filter)
		if err != nil {
			return deleted, err
		}

		restored := fixture.Restored()
		if _, err := r.repo.Insert(ctx, &restored); err != nil {
			return deleted, err
		}
		final, err := r.repo.Count(ctx, filter)
		if err != nil {
			return deleted, err
		}
		r.out.Counts(fixture.RestoredTitle, before, after, final)
		return deleted, nil
	})
}

func (r *Runner) advanced(ctx context.Context) error {
	o := r.opts

	if err := r.step(ctx, fmt.Sprintf("Find in-stock books published after %d", o.RecentAfter), func(ctx context.Context) (int64, error) {
		books, err := r.repo.Find(ctx, query.InStockPublishedAfter(o.RecentAfter), query.Find{})
		if err != nil {
			return 0, err
		}
		r.out.TitlesWithYear(books)
		return int64(len(books)), nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, "Projection: title, author and price only", func(ctx context.Context) (int64, error) {
		books, err := r.repo.FindSummaries(ctx, query.All(), query.Find{
			Projection: query.Fields("title", "author", "price"),
			Sort:       &query.ByTitleOrder,
			Limit:      3,
		})
		if err != nil {
			return 0, err
		}
		r.out.Summaries(books)
		return int64(len(books)), nil
	}); err != nil {
		return err
	}

	for _, s := range []struct {
		title string
		order query.Order
	}{
		{"Sort by price ascending", query.Asc},
		{"Sort by price descending", query.Desc},
	} {
		sort := query.Sort{Field: "price", Order: s.order}
		if err := r.step(ctx, s.title, func(ctx context.Context) (int64, error) {
			books, err := r.repo.FindSummaries(ctx, query.All(), query.Find{
				Projection: query.Fields("title", "price"),
				Sort:       &sort,
				Limit:      5,
			})
			if err != nil {
				return 0, err
			}
			r.out.Summaries(books)
			return int64(len(books)), nil
		}); err != nil {
			return err
		}
	}

	return r.step(ctx, fmt.Sprintf("Pagination: %d books per page", o.PageSize), func(ctx context.Context) (int64, error) {
		find := query.Find{Projection: query.Fields("title"), Sort: &query.ByTitleOrder}
		var total int64
		for n := 1; n <= 2; n++ {
			page := query.Page{Number: n, Size: o.PageSize}
			if err := page.Validate(); err != nil {
				return total, err
			}
			books, err := r.repo.FindSummaries(ctx, query.All(), find.WithPage(page))
			if err != nil {
				return total, err
			}
			r.out.Page(n, books)
			total += int64(len(books))
		}
		return total, nil
	})
}

func (r *Runner) aggregation(ctx context.Context) error {
	if err := r.step(ctx, "Average price by genre", func(ctx context.Context) (int64, error) {
		stats, err := r.repo.AvgPriceByGenre(ctx)
		if err != nil {
			return 0, err
		}
		r.out.Genres(stats)
		return int64(len(stats)), nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, "Author with the most books", func(ctx context.Context) (int64, error) {
		stats, err := r.repo.TopAuthors(ctx, 1)
		if err != nil {
			return 0, err
		}
		r.out.TopAuthor(stats)
		return int64(len(stats)), nil
	}); err != nil {
		return err
	}

	return r.step(ctx, "Books grouped by decade", func(ctx context.Context) (int64, error) {
		buckets, err := r.repo.BooksByDecade(ctx)
		if err != nil {
			return 0, err
		}
		r.out.Decades(buckets)
		return int64(len(buckets)), nil
	})
}

func (r *Runner) indexing(ctx context.Context) error {
	if err := r.step(ctx, "Create index on title", func(ctx context.Context) (int64, error) {
		name, err := r.repo.CreateIndex(ctx, query.TitleIndex())
		if err != nil {
			return 0, err
		}
		r.out.IndexCreated(name)
		return 1, nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, "Create compound index on author and published_year", func(ctx context.Context) (int64, error) {
		name, err := r.repo.CreateIndex(ctx, query.AuthorYearIndex())
		if err != nil {
			return 0, err
		}
		r.out.IndexCreated(name)
		return 1, nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, "List indexes", func(ctx context.Context) (int64, error) {
		indexes, err := r.repo.ListIndexes(ctx)
		if err != nil {
			return 0, err
		}
		r.out.Indexes(indexes)
		return int64(len(indexes)), nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, fmt.Sprintf("Explain title lookup %q", fixture.ExplainTitle), func(ctx context.Context) (int64, error) {
		plan, err := r.repo.Explain(ctx, query.ByTitle(fixture.ExplainTitle))
		if err != nil {
			return 0, err
		}
		r.out.Plan(fmt.Sprintf("title %q", fixture.ExplainTitle), plan)
		return plan.Returned, nil
	}); err != nil {
		return err
	}

	return r.step(ctx, "Explain compound index query", func(ctx context.Context) (int64, error) {
		author := r.opts.ExplainAuthor
		plan, err := r.repo.Explain(ctx, query.AuthorPublishedAfter(author, r.opts.PublishedAfter))
		if err != nil {
			return 0, err
		}
		r.out.Plan(fmt.Sprintf("author %q after %d", author, r.opts.PublishedAfter), plan)
		return plan.Returned, nil
	})
}
