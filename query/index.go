package query

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TitleIndex() mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D{{Key: "title", Value: 1}}}
}

func AuthorYearIndex() mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D{
		{Key: "author", Value: 1},
		{Key: "published_year", Value: 1},
	}}
}

// IndexName derives the server's default index name, e.g. author_1_published_year_1.
func IndexName(keys bson.D) string {
	parts := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, k.Key, fmt.Sprint(k.Value))
	}
	return strings.Join(parts, "_")
}

// ExplainFind wraps a find on collection in an explain command that also
// executes the winning plan and reports its statistics.
func ExplainFind(collection string, filter bson.D) bson.D {
	return bson.D{
		{Key: "explain", Value: bson.D{
			{Key: "find", Value: collection},
			{Key: "filter", Value: filter},
		}},
		{Key: "verbosity", Value: "executionStats"},
	}
}
