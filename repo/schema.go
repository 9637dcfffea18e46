package repo

import (
	"context"
	"fmt"

	"github.com/htol/bookstore/book"
	"github.com/htol/bookstore/logger"
	"github.com/htol/bookstore/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CreateIndex creates model if missing and returns its name. Creating an
// index that already exists with the same keys is a no-op on the server.
func (r *Repo) CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error) {
	name, err := r.coll.Indexes().CreateOne(ctx, model)
	if err != nil {
		return "", wrap("create index", err)
	}
	return name, nil
}

// ListIndexes returns all indexes of the collection, including _id_.
func (r *Repo) ListIndexes(ctx context.Context) ([]book.IndexInfo, error) {
	specs, err := r.coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, wrap("list indexes", err)
	}

	indexes := make([]book.IndexInfo, 0, len(specs))
	for _, spec := range specs {
		var keys bson.D
		if err := bson.Unmarshal(spec.KeysDocument, &keys); err != nil {
			return nil, fmt.Errorf("decode keys of index %s: %w", spec.Name, err)
		}
		indexes = append(indexes, book.IndexInfo{
			Name:   spec.Name,
			Keys:   keys,
			Unique: spec.Unique != nil && *spec.Unique,
		})
	}
	return indexes, nil
}

type planStage struct {
	Stage       string      `bson:"stage"`
	IndexName   string      `bson:"indexName"`
	InputStage  *planStage  `bson:"inputStage"`
	InputStages []planStage `bson:"inputStages"`
	// Shards is set on SINGLE_SHARD and SHARD_MERGE stages from mongos.
	Shards []shardPlan `bson:"shards"`
}

// shardPlan is one shard's part of a sharded explain. executionStages is
// present with executionStats verbosity, winningPlan otherwise.
type shardPlan struct {
	ExecutionStages planStage `bson:"executionStages"`
	WinningPlan     planStage `bson:"winningPlan"`
}

// walk visits stages depth first, root first.
func (s *planStage) walk(visit func(*planStage)) {
	if s == nil || s.Stage == "" {
		return
	}
	visit(s)
	s.InputStage.walk(visit)
	for i := range s.InputStages {
		s.InputStages[i].walk(visit)
	}
	for i := range s.Shards {
		shard := &s.Shards[i]
		if shard.ExecutionStages.Stage != "" {
			shard.ExecutionStages.walk(visit)
		} else {
			shard.WinningPlan.walk(visit)
		}
	}
}

type explainResponse struct {
	QueryPlanner struct {
		WinningPlan planStage `bson:"winningPlan"`
	} `bson:"queryPlanner"`
	ExecutionStats struct {
		NReturned           int64     `bson:"nReturned"`
		ExecutionTimeMillis int64     `bson:"executionTimeMillis"`
		TotalKeysExamined   int64     `bson:"totalKeysExamined"`
		TotalDocsExamined   int64     `bson:"totalDocsExamined"`
		ExecutionStages     planStage `bson:"executionStages"`
	} `bson:"executionStats"`
}

// Explain runs filter as a find with execution statistics and summarises
// the winning plan.
func (r *Repo) Explain(ctx context.Context, filter bson.D) (book.PlanStats, error) {
	var resp explainResponse
	cmd := query.ExplainFind(r.coll.Name(), filter)
	if err := r.db.RunCommand(ctx, cmd).Decode(&resp); err != nil {
		return book.PlanStats{}, wrap("explain", err)
	}

	root := &resp.ExecutionStats.ExecutionStages
	if root.Stage == "" {
		root = &resp.QueryPlanner.WinningPlan
	}

	stats := book.PlanStats{
		DocsExamined:    resp.ExecutionStats.TotalDocsExamined,
		KeysExamined:    resp.ExecutionStats.TotalKeysExamined,
		Returned:        resp.ExecutionStats.NReturned,
		ExecutionMillis: resp.ExecutionStats.ExecutionTimeMillis,
		Stage:           root.Stage,
	}
	root.walk(func(s *planStage) {
		stats.Stages = append(stats.Stages, s.Stage)
		if stats.IndexName == "" && s.IndexName != "" {
			stats.IndexName = s.IndexName
		}
	})
	return stats, nil
}

// Reset drops the collection, including its secondary indexes, and inserts books.
func (r *Repo) Reset(ctx context.Context, books []book.Book) error {
	if err := r.coll.Drop(ctx); err != nil {
		return wrap("drop collection", err)
	}
	if len(books) == 0 {
		return nil
	}

	docs := make([]interface{}, len(books))
	for i, b := range books {
		docs[i] = b
	}
	res, err := r.coll.InsertMany(ctx, docs)
	if err != nil {
		return wrap("insert fixture", err)
	}
	logger.Info("Collection reset", "collection", r.coll.Name(), "inserted", len(res.InsertedIDs))
	return nil
}
