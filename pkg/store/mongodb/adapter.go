// Package mongodb is the read-only MongoDB client behind the document store.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nimburion/listing/pkg/observability/logger"
)

const (
	defaultConnectTimeout   = 5 * time.Second
	defaultOperationTimeout = 5 * time.Second
	healthCheckTimeout      = 2 * time.Second
	disconnectTimeout       = 5 * time.Second
)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("mongodb: adapter closed")

// Config holds connection settings.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	MaxPoolSize      uint64
}

func (c Config) validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("mongodb: URL is required"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("mongodb: database is required"))
	}
	return errors.Join(errs...)
}

// Adapter runs aggregations against one database. The service never
// writes, so reads prefer secondaries; a page may lag the primary by the
// replication delay, well inside the cache TTL.
type Adapter struct {
	client  *mongo.Client
	db      *mongo.Database
	log     logger.Logger
	timeout time.Duration
	closed  atomic.Bool
}

// NewAdapter connects and pings before returning. It creates no collections
// or indexes.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetReadPreference(readpref.SecondaryPreferred())
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping %s: %w", cfg.Database, err)
	}

	log.Info("mongodb connected", "database", cfg.Database, "max_pool_size", cfg.MaxPoolSize)
	return NewAdapterFromClient(client, cfg.Database, cfg.OperationTimeout, log), nil
}

// NewAdapterFromClient wraps a connected client. A non-positive timeout
// falls back to five seconds.
func NewAdapterFromClient(client *mongo.Client, database string, operationTimeout time.Duration, log logger.Logger) *Adapter {
	if operationTimeout <= 0 {
		operationTimeout = defaultOperationTimeout
	}
	a := &Adapter{client: client, log: log, timeout: operationTimeout}
	if client != nil {
		a.db = client.Database(database)
	}
	return a
}

// AggregateAll runs pipeline on collection and decodes the whole cursor into
// results. One deadline covers the command and the cursor drain; a caller
// deadline, when present, is kept as is.
func (a *Adapter) AggregateAll(ctx context.Context, collection string, pipeline interface{}, results interface{}) error {
	if a.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := a.bound(ctx)
	defer cancel()

	cursor, err := a.db.Collection(collection).Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, results)
}

// HealthCheck pings the deployment.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := a.client.Ping(ctx, nil); err != nil {
		a.log.Warn("mongodb health check failed", "error", err)
		return fmt.Errorf("mongodb: ping: %w", err)
	}
	return nil
}

// Close disconnects once; later calls return nil.
func (a *Adapter) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongodb: disconnect: %w", err)
	}
	a.log.Info("mongodb disconnected")
	return nil
}

func (a *Adapter) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
