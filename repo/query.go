package repo

import (
	"context"
	"fmt"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/query"
	"go.mongodb.org/mongo-driver/mongo"
)

func aggregateAll[T any](ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) ([]T, error) {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AvgPriceByGenre returns per-genre average prices, highest first.
func (r *Repo) AvgPriceByGenre(ctx context.Context) ([]book.GenreStats, error) {
	stats, err := aggregateAll[book.GenreStats](ctx, r.coll, query.AvgPriceByGenre())
	if err != nil {
		return nil, wrap("average price by genre", err)
	}
	return stats, nil
}

// TopAuthors returns the n authors with the most books.
func (r *Repo) TopAuthors(ctx context.Context, n int) ([]book.AuthorStats, error) {
	if n < 1 {
		return nil, fmt.Errorf("top authors: n must be positive, got %d", n)
	}
	stats, err := aggregateAll[book.AuthorStats](ctx, r.coll, query.TopAuthors(n))
	if err != nil {
		return nil, wrap("top authors", err)
	}
	return stats, nil
}

// BooksByDecade returns decade buckets in ascending order.
func (r *Repo) BooksByDecade(ctx context.Context) ([]book.DecadeBucket, error) {
	buckets, err := aggregateAll[book.DecadeBucket](ctx, r.coll, query.BooksByDecade())
	if err != nil {
		return nil, wrap("books by decade", err)
	}
	return buckets, nil
}
