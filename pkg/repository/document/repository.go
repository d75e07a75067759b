package document

import "context"

// Document is a single record returned by a document store.
type Document map[string]interface{}

// Filter represents field-based equality criteria for document stores.
type Filter map[string]interface{}

// Sort specifies field and direction for sorting results.
type Sort struct {
	Field string
	Order SortOrder
}

// SortOrder defines the direction of sorting.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Direction returns the numeric sort direction used by aggregation engines.
func (o SortOrder) Direction() int {
	if o == SortDesc {
		return -1
	}
	return 1
}

// Reverse returns the opposite order.
func (o SortOrder) Reverse() SortOrder {
	if o == SortDesc {
		return SortAsc
	}
	return SortDesc
}

// Aggregator runs store-neutral pipelines against a named collection.
// Implementations must not retain the pipeline after returning.
type Aggregator interface {
	// Aggregate returns the documents produced by the pipeline.
	Aggregate(ctx context.Context, collection string, pipeline Pipeline) ([]Document, error)

	// Count runs a pipeline terminated by a CountStage and returns the counted value.
	// A pipeline matching nothing yields 0 and no error.
	Count(ctx context.Context, collection string, pipeline Pipeline) (int64, error)
}
