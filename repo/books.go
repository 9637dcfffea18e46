package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.D, opts *options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Find returns every book matching filter.
func (r *Repo) Find(ctx context.Context, filter bson.D, opts query.Find) ([]book.Book, error) {
	books, err := findAll[book.Book](ctx, r.coll, filter, opts.Options())
	if err != nil {
		return nil, wrap("find books", err)
	}
	return books, nil
}

// FindSummaries is Find for projected reads.
func (r *Repo) FindSummaries(ctx context.Context, filter bson.D, opts query.Find) ([]book.BookSummary, error) {
	books, err := findAll[book.BookSummary](ctx, r.coll, filter, opts.Options())
	if err != nil {
		return nil, wrap("find summaries", err)
	}
	return books, nil
}

func (r *Repo) FindByTitle(ctx context.Context, title string) (*book.Book, error) {
	var b book.Book
	err := r.coll.FindOne(ctx, query.ByTitle(title)).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("book %q: %w", title, ErrNotFound)
	}
	if err != nil {
		return nil, wrap("find book by title", err)
	}
	return &b, nil
}

func (r *Repo) Count(ctx context.Context, filter bson.D) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, wrap("count books", err)
	}
	return n, nil
}

// UpdatePrice sets the price of the first book with the given title.
func (r *Repo) UpdatePrice(ctx context.Context, title string, price float64) (UpdateResult, error) {
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "price", Value: price}}}}
	res, err := r.coll.UpdateOne(ctx, query.ByTitle(title), update)
	if err != nil {
		return UpdateResult{}, wrap("update price", err)
	}
	return UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// DeleteByTitle removes the first book with the given title.
func (r *Repo) DeleteByTitle(ctx context.Context, title string) (int64, error) {
	res, err := r.coll.DeleteOne(ctx, query.ByTitle(title))
	if err != nil {
		return 0, wrap("delete book", err)
	}
	return res.DeletedCount, nil
}

// Insert adds b and records the assigned identifier on it.
func (r *Repo) Insert(ctx context.Context, b *book.Book) (primitive.ObjectID, error) {
	doc := *b
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return primitive.NilObjectID, wrap("insert book", err)
	}
	b.ID = doc.ID
	return doc.ID, nil
}
