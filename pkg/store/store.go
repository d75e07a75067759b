package store

import (
	"context"

	"github.com/nimburion/listing/pkg/repository/document"
)

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// DocumentStore pairs a pipeline executor with the lifecycle of the backend serving it.
type DocumentStore struct {
	document.Aggregator
	Adapter

	// System is the backend name used in spans and health checks.
	System string
}

type nopCloser struct {
	health func(ctx context.Context) error
}

func (n nopCloser) HealthCheck(ctx context.Context) error { return n.health(ctx) }
func (nopCloser) Close() error                            { return nil }
