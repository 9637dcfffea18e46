// Package validator checks book documents before they are written
package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/htol/bookstore/book"
)

var (
	// ErrEmptyString is returned when a required string field is empty
	ErrEmptyString = errors.New("string cannot be empty")
	// ErrInvalidYear is returned when a publication year is out of range
	ErrInvalidYear = errors.New("invalid published year")
	// ErrInvalidPrice is returned for negative prices
	ErrInvalidPrice = errors.New("invalid price: must not be negative")
	// ErrInvalidPages is returned for negative page counts
	ErrInvalidPages = errors.New("invalid pages: must not be negative")
)

// ValidateNonEmpty validates that a string is not blank
func ValidateNonEmpty(field, s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s: %w", field, ErrEmptyString)
	}
	return nil
}

// ValidateYear accepts years from 0 up to next year
func ValidateYear(year int) error {
	maxYear := time.Now().Year() + 1
	if year < 0 || year > maxYear {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidYear, year, maxYear)
	}
	return nil
}

// ValidateBook validates every field of b and reports all problems at once
func ValidateBook(b *book.Book) error {
	if b == nil {
		return errors.New("book is nil")
	}
	errs := []error{
		ValidateNonEmpty("title", b.Title),
		ValidateNonEmpty("author", b.Author),
		ValidateNonEmpty("genre", b.Genre),
		ValidateYear(b.PublishedYear),
	}
	if b.Price < 0 {
		errs = append(errs, fmt.Errorf("%w: %.2f", ErrInvalidPrice, b.Price))
	}
	if b.Pages < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPages, b.Pages))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("book %q: %w", b.Title, err)
	}
	return nil
}
