package book

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Book is a document in the books collection.
type Book struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Title         string             `bson:"title" json:"title"`
	Author        string             `bson:"author" json:"author"`
	Genre         string             `bson:"genre" json:"genre"`
	PublishedYear int                `bson:"published_year" json:"published_year"`
	Price         float64            `bson:"price" json:"price"`
	InStock       bool               `bson:"in_stock" json:"in_stock"`
	Pages         int                `bson:"pages" json:"pages"`
	Publisher     string             `bson:"publisher" json:"publisher"`
}

// BookSummary holds the subset of fields returned by projected reads.
// Fields left out of the projection stay at their zero value.
type BookSummary struct {
	Title         string  `bson:"title"`
	Author        string  `bson:"author,omitempty"`
	Price         float64 `bson:"price,omitempty"`
	PublishedYear int     `bson:"published_year,omitempty"`
}

// GenreStats is one output document of the average-price-by-genre pipeline.
type GenreStats struct {
	Genre        string  `bson:"_id"`
	AveragePrice float64 `bson:"averagePrice"`
	Count        int     `bson:"count"`
}

// AuthorStats is one output document of the books-per-author pipeline.
type AuthorStats struct {
	Author    string   `bson:"_id"`
	BookCount int      `bson:"bookCount"`
	Books     []string `bson:"books"`
}

// DecadeBucket groups books by floor(published_year / 10).
type DecadeBucket struct {
	Key    int      `bson:"_id"`
	Decade string   `bson:"decade"`
	Count  int      `bson:"count"`
	Books  []string `bson:"books"`
}

// IndexInfo describes one index of the collection.
type IndexInfo struct {
	Name   string
	Keys   bson.D
	Unique bool
}

// Stage names reported by the query planner.
const (
	StageCollScan = "COLLSCAN"
	StageIxScan   = "IXSCAN"
	StageIDHack   = "IDHACK"
	StageFetch    = "FETCH"
)

// PlanStats summarises an explain("executionStats") response.
type PlanStats struct {
	DocsExamined    int64 `json:"docs_examined"`
	KeysExamined    int64 `json:"keys_examined"`
	Returned        int64 `json:"returned"`
	ExecutionMillis int64 `json:"execution_ms"`
	// Stage is the root stage of the winning plan.
	Stage string `json:"stage"`
	// Stages lists every stage of the winning plan, root first.
	Stages    []string `json:"stages"`
	IndexName string   `json:"index,omitempty"`
}

// UsesIndex reports whether the winning plan avoided a full collection scan.
func (p PlanStats) UsesIndex() bool {
	if p.Stage == "" || p.Stage == StageCollScan {
		return false
	}
	if p.IndexName != "" {
		return true
	}
	for _, s := range p.Stages {
		switch s {
		case StageCollScan:
			return false
		case StageIxScan, StageIDHack, "EXPRESS_IXSCAN", "EXPRESS_IDHACK", "COUNT_SCAN", "DISTINCT_SCAN":
			return true
		}
	}
	return false
}
