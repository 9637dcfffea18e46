package query

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AvgPriceByGenre groups by genre, computes the average price and count,
// and orders genres by average price descending.
func AvgPriceByGenre() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$genre"},
			{Key: "averagePrice", Value: bson.D{{Key: "$avg", Value: "$price"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "averagePrice", Value: -1},
			{Key: "_id", Value: 1},
		}}},
	}
}

// TopAuthors returns the n authors with the most books. Titles are collected
// in title order.
func TopAuthors(n int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "title", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$author"},
			{Key: "bookCount", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "books", Value: bson.D{{Key: "$push", Value: "$title"}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "bookCount", Value: -1},
			{Key: "_id", Value: 1},
		}}},
		{{Key: "$limit", Value: n}},
	}
}

// decadeKey is floor(published_year / 10).
func decadeKey() bson.D {
	return bson.D{{Key: "$floor", Value: bson.D{{Key: "$divide", Value: bson.A{"$published_year", 10}}}}}
}

// BooksByDecade buckets books by decade with a "1950s" style label and the
// member titles in publication order.
func BooksByDecade() mongo.Pipeline {
	label := bson.D{{Key: "$concat", Value: bson.A{
		bson.D{{Key: "$toString", Value: bson.D{{Key: "$multiply", Value: bson.A{decadeKey(), 10}}}}},
		"s",
	}}}
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{
			{Key: "published_year", Value: 1},
			{Key: "title", Value: 1},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: decadeKey()},
			{Key: "decade", Value: bson.D{{Key: "$first", Value: label}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "books", Value: bson.D{{Key: "$push", Value: "$title"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}
