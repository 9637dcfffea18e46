package repo

import (
	"context"
	"errors"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when a single-document lookup matches nothing
var ErrNotFound = errors.New("record not found")

// UpdateResult reports how many documents an update matched and changed.
// Modified is zero when the matched document already held the new value.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Repository defines the data access operations of the books collection
type Repository interface {
	// Close releases the connection
	Close(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error

	// Reads
	Find(ctx context.Context, filter bson.D, opts query.Find) ([]book.Book, error)
	FindSummaries(ctx context.Context, filter bson.D, opts query.Find) ([]book.BookSummary, error)
	FindByTitle(ctx context.Context, title string) (*book.Book, error)
	Count(ctx context.Context, filter bson.D) (int64, error)

	// Writes affect at most one document
	UpdatePrice(ctx context.Context, title string, price float64) (UpdateResult, error)
	DeleteByTitle(ctx context.Context, title string) (int64, error)
	Insert(ctx context.Context, b *book.Book) (primitive.ObjectID, error)

	// Aggregations
	AvgPriceByGenre(ctx context.Context) ([]book.GenreStats, error)
	TopAuthors(ctx context.Context, n int) ([]book.AuthorStats, error)
	BooksByDecade(ctx context.Context) ([]book.DecadeBucket, error)

	// Indexes and plans
	CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error)
	ListIndexes(ctx context.Context) ([]book.IndexInfo, error)
	Explain(ctx context.Context, filter bson.D) (book.PlanStats, error)

	// Reset replaces the collection contents with books
	Reset(ctx context.Context, books []book.Book) error
}

var _ Repository = (*Repo)(nil)
