package listing

import (
	"context"
	"time"

	"github.com/nimburion/listing/pkg/observability/tracing"
	"github.com/nimburion/listing/pkg/repository/document"
	"github.com/nimburion/listing/pkg/resilience"
)

// QueryExecutor runs a Plan against the document store.
type QueryExecutor struct {
	store   document.Aggregator
	system  string
	timeout time.Duration
	metrics *Metrics
}

// NewQueryExecutor creates an executor. system names the backend in spans;
// timeout bounds each of the two store calls and is disabled when non-positive.
func NewQueryExecutor(store document.Aggregator, system string, timeout time.Duration, metrics *Metrics) *QueryExecutor {
	return &QueryExecutor{store: store, system: system, timeout: timeout, metrics: metrics}
}

// Execute returns the page of documents and the total number of matches.
// Either failure is reported as a *QueryExecutionError and nothing partial is returned.
func (e *QueryExecutor) Execute(ctx context.Context, def Definition, plan Plan) ([]document.Document, int64, error) {
	var items []document.Document
	err := e.run(ctx, def, PhaseQuery, plan.Query, func(ctx context.Context) error {
		var err error
		items, err = e.store.Aggregate(ctx, def.Collection, plan.Query)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	var total int64
	err = e.run(ctx, def, PhaseCount, plan.Count, func(ctx context.Context) error {
		var err error
		total, err = e.store.Count(ctx, def.Collection, plan.Count)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (e *QueryExecutor) run(ctx context.Context, def Definition, phase string, p document.Pipeline, fn func(context.Context) error) error {
	ctx, span := tracing.StartQuery(ctx, tracing.QuerySpan{
		System:     e.system,
		Collection: def.Collection,
		Phase:      phase,
		Statement:  p.String(),
	})

	start := time.Now()
	err := resilience.WithTimeout(ctx, e.timeout, fn)
	e.metrics.observeQuery(def.Namespace, phase, time.Since(start).Seconds())
	tracing.End(span, err)
	if err != nil {
		return &QueryExecutionError{Entity: def.Namespace, Phase: phase, Err: err}
	}
	return nil
}
