// Package fixture provides the book catalogue the query runner is written
// against, and loads replacement catalogues from JSON files.
package fixture

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/validator"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

//go:embed books.json
var catalogue []byte

// Titles the runner relies on being present.
const (
	UpdatedTitle  = "To Kill a Mockingbird"
	RestoredTitle = "Wuthering Heights"
	ExplainTitle  = "1984"
)

// Books returns a fresh copy of the embedded catalogue.
func Books() []book.Book {
	books, err := decode(bytes.NewReader(catalogue))
	if err != nil {
		panic(fmt.Sprintf("embedded catalogue: %v", err))
	}
	return books
}

// Restored returns the catalogue entry re-inserted after the delete step.
func Restored() book.Book {
	for _, b := range Books() {
		if b.Title == RestoredTitle {
			return b
		}
	}
	panic("embedded catalogue has no " + RestoredTitle)
}

// Load reads JSON arrays of books from paths, decoding each file from the
// charset named by encoding (e.g. "utf-8", "latin1", "windows-1252").
// Files are decoded concurrently; the result keeps argument order.
func Load(ctx context.Context, encoding string, paths ...string) ([]book.Book, error) {
	if encoding == "" {
		encoding = "utf-8"
	}
	results := make([][]book.Book, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			books, err := loadFile(path, encoding)
			if err != nil {
				return fmt.Errorf("load fixture %s: %w", path, err)
			}
			results[i] = books
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []book.Book
	for _, books := range results {
		all = append(all, books...)
	}
	return all, nil
}

func loadFile(path, encoding string) ([]book.Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := charset.NewReaderLabel(encoding, f)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", encoding, err)
	}
	return decode(r)
}

func decode(r io.Reader) ([]book.Book, error) {
	var books []book.Book
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&books); err != nil {
		return nil, fmt.Errorf("decode books: %w", err)
	}
	for i := range books {
		if err := validator.ValidateBook(&books[i]); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return books, nil
}
