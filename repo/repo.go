package repo

import (
	"context"
	"errors"
	"time"

	"github.com/htol/bookstore/config"
	"github.com/htol/bookstore/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Repo is the MongoDB-backed Repository for one books collection.
type Repo struct {
	client *mongo.Client
	db     *mongo.Database
	coll   *mongo.Collection
	// owned is set when Repo created the client and must disconnect it.
	owned bool
}

// Open connects to the deployment in cfg and verifies the primary is
// reachable. The returned Repo owns the client; call Close to release it.
func Open(ctx context.Context, cfg config.MongoConfig) (*Repo, error) {
	opts := clientOptions(cfg)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, &OpError{Op: "connect", Kind: KindConnection, Err: err}
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		if derr := client.Disconnect(context.Background()); derr != nil {
			logger.Warn("Failed to disconnect after ping failure", "error", derr)
		}
		kind := KindConnection
		if errors.Is(err, context.Canceled) {
			kind = KindCanceled
		}
		return nil, &OpError{Op: "ping", Kind: kind, Err: err}
	}

	logger.Info("Connected to MongoDB", "database", cfg.Database, "collection", cfg.Collection)

	db := client.Database(cfg.Database)
	return &Repo{
		client: client,
		db:     db,
		coll:   db.Collection(cfg.Collection),
		owned:  true,
	}, nil
}

// New wraps an existing collection. The caller keeps ownership of its client.
func New(coll *mongo.Collection) *Repo {
	return &Repo{
		client: coll.Database().Client(),
		db:     coll.Database(),
		coll:   coll,
	}
}

func clientOptions(cfg config.MongoConfig) *options.ClientOptions {
	opts := options.Client().ApplyURI(cfg.URI).SetAppName("bookstore")
	// Zero keeps whatever the URI or the driver defaults say.
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second)
	}
	if cfg.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(time.Duration(cfg.ServerSelectionTimeout) * time.Second)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if lo := loggerOptions(cfg.DriverLogLevel); lo != nil {
		opts.SetLoggerOptions(lo)
	}
	return opts
}

// loggerOptions routes driver command logs through the application logger.
func loggerOptions(level string) *options.LoggerOptions {
	var lvl options.LogLevel
	switch level {
	case "info":
		lvl = options.LogLevelInfo
	case "debug":
		lvl = options.LogLevelDebug
	default:
		return nil
	}
	return options.Logger().
		SetSink(logger.DriverSink()).
		SetMaxDocumentLength(256).
		SetComponentLevel(options.LogComponentCommand, lvl)
}

// Close disconnects the client if this Repo owns it.
func (r *Repo) Close(ctx context.Context) error {
	if r.client == nil || !r.owned {
		return nil
	}
	logger.Info("Closing MongoDB connection")
	return wrap("disconnect", r.client.Disconnect(ctx))
}

func (r *Repo) Ping(ctx context.Context) error {
	if r.client == nil {
		return &OpError{Op: "ping", Kind: KindConnection, Err: mongo.ErrClientDisconnected}
	}
	return wrap("ping", r.client.Ping(ctx, readpref.Primary()))
}

// Collection exposes the underlying collection name, mostly for messages.
func (r *Repo) Collection() string {
	return r.coll.Name()
}
