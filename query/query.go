// Package query assembles the filter, projection, sort, pagination, pipeline
// and index documents sent to the server. Nothing here performs I/O.
package query

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrInvalidPage is returned for non-positive page numbers or sizes.
var ErrInvalidPage = errors.New("invalid page")

func ByGenre(genre string) bson.D {
	return bson.D{{Key: "genre", Value: genre}}
}

func ByAuthor(author string) bson.D {
	return bson.D{{Key: "author", Value: author}}
}

func ByTitle(title string) bson.D {
	return bson.D{{Key: "title", Value: title}}
}

// PublishedAfter matches books published strictly after year.
func PublishedAfter(year int) bson.D {
	return bson.D{{Key: "published_year", Value: bson.D{{Key: "$gt", Value: year}}}}
}

// InStockPublishedAfter combines two conditions; multiple keys in one filter are ANDed.
func InStockPublishedAfter(year int) bson.D {
	return append(bson.D{{Key: "in_stock", Value: true}}, PublishedAfter(year)...)
}

func AuthorPublishedAfter(author string, year int) bson.D {
	return append(ByAuthor(author), PublishedAfter(year)...)
}

// All matches every document.
func All() bson.D {
	return bson.D{}
}

// Fields builds an inclusion projection. _id is excluded unless named.
func Fields(names ...string) bson.D {
	proj := make(bson.D, 0, len(names)+1)
	withID := false
	for _, n := range names {
		if n == "_id" {
			withID = true
		}
		proj = append(proj, bson.E{Key: n, Value: 1})
	}
	if !withID {
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	return proj
}

// Order is a sort direction.
type Order int

const (
	Asc  Order = 1
	Desc Order = -1
)

// Sort orders by a single field. Ties are broken by title and then _id,
// both ascending, so results never depend on storage order.
type Sort struct {
	Field string
	Order Order
}

func (s Sort) Doc() bson.D {
	doc := bson.D{{Key: s.Field, Value: int(s.Order)}}
	if s.Field != "title" && s.Field != "_id" {
		doc = append(doc, bson.E{Key: "title", Value: int(Asc)})
	}
	if s.Field != "_id" {
		doc = append(doc, bson.E{Key: "_id", Value: int(Asc)})
	}
	return doc
}

// ByTitleOrder is the stable order used for pagination.
var ByTitleOrder = Sort{Field: "title", Order: Asc}

// Page is a 1-based page of Size documents.
type Page struct {
	Number int
	Size   int
}

func (p Page) Validate() error {
	if p.Number < 1 || p.Size < 1 {
		return fmt.Errorf("%w: number=%d size=%d", ErrInvalidPage, p.Number, p.Size)
	}
	return nil
}

func (p Page) Skip() int64 {
	return int64(p.Number-1) * int64(p.Size)
}

func (p Page) Limit() int64 {
	return int64(p.Size)
}

// Find collects the optional parts of a find into driver options.
type Find struct {
	Projection bson.D
	Sort       *Sort
	Skip       int64
	Limit      int64
}

// WithPage sets skip and limit from p.
func (f Find) WithPage(p Page) Find {
	f.Skip = p.Skip()
	f.Limit = p.Limit()
	return f
}

func (f Find) Options() *options.FindOptions {
	opts := options.Find()
	if f.Projection != nil {
		opts.SetProjection(f.Projection)
	}
	if f.Sort != nil {
		opts.SetSort(f.Sort.Doc())
	}
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	return opts
}
