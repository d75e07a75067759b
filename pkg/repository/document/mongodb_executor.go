package document

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoAggregateRunner runs a raw aggregation and decodes every result into results.
// *mongodb.Adapter satisfies it.
type MongoAggregateRunner interface {
	AggregateAll(ctx context.Context, collection string, pipeline interface{}, results interface{}) error
}

// MongoDBExecutor adapts store/mongodb adapter to the Aggregator contract.
type MongoDBExecutor struct {
	adapter MongoAggregateRunner
}

// NewMongoDBExecutor creates a new MongoDBExecutor instance.
func NewMongoDBExecutor(adapter MongoAggregateRunner) (*MongoDBExecutor, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	return &MongoDBExecutor{adapter: adapter}, nil
}

// Aggregate translates the pipeline to MongoDB stages and returns the decoded documents.
func (e *MongoDBExecutor) Aggregate(ctx context.Context, collection string, pipeline Pipeline) ([]Document, error) {
	stages, err := ToMongoPipeline(pipeline)
	if err != nil {
		return nil, err
	}

	var rows []bson.M
	if err := e.adapter.AggregateAll(ctx, collection, stages, &rows); err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, Document(row))
	}
	return docs, nil
}

// Count runs a pipeline terminated by a CountStage. MongoDB emits no document
// when nothing matches, which is reported as 0.
func (e *MongoDBExecutor) Count(ctx context.Context, collection string, pipeline Pipeline) (int64, error) {
	field, ok := pipeline.CountField()
	if !ok {
		return 0, fmt.Errorf("%w: count pipeline must end with a count stage", ErrInvalidPipeline)
	}
	stages, err := ToMongoPipeline(pipeline)
	if err != nil {
		return 0, err
	}

	var rows []bson.M
	if err := e.adapter.AggregateAll(ctx, collection, stages, &rows); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0][field])
}

// ToMongoPipeline converts a store-neutral pipeline into MongoDB aggregation stages.
func ToMongoPipeline(pipeline Pipeline) (mongo.Pipeline, error) {
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}

	out := make(mongo.Pipeline, 0, len(pipeline))
	for _, stage := range pipeline {
		switch s := stage.(type) {
		case MatchStage:
			out = append(out, bson.D{{Key: "$match", Value: filterToBSON(s.Filter)}})
		case LookupStage:
			out = append(out, bson.D{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: s.From},
				{Key: "localField", Value: s.LocalField},
				{Key: "foreignField", Value: s.ForeignField},
				{Key: "as", Value: s.As},
			}}})
		case UnwindStage:
			out = append(out, bson.D{{Key: "$unwind", Value: bson.D{
				{Key: "path", Value: "$" + s.Path},
				{Key: "preserveNullAndEmptyArrays", Value: s.PreserveEmpty},
			}}})
		case ProjectStage:
			out = append(out, bson.D{{Key: "$project", Value: projectionToBSON(s)}})
		case SearchStage:
			out = append(out, bson.D{{Key: "$match", Value: searchToBSON(s)}})
		case SortStage:
			keys := make(bson.D, 0, len(s.Keys))
			for _, key := range s.Keys {
				keys = append(keys, bson.E{Key: key.Field, Value: key.Order.Direction()})
			}
			out = append(out, bson.D{{Key: "$sort", Value: keys}})
		case SkipStage:
			out = append(out, bson.D{{Key: "$skip", Value: s.N}})
		case LimitStage:
			out = append(out, bson.D{{Key: "$limit", Value: s.N}})
		case CountStage:
			out = append(out, bson.D{{Key: "$count", Value: s.Field}})
		}
	}
	return out, nil
}

func filterToBSON(filter Filter) bson.D {
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make(bson.D, 0, len(fields))
	for _, field := range fields {
		out = append(out, bson.E{Key: field, Value: filter[field]})
	}
	return out
}

func projectionToBSON(s ProjectStage) bson.D {
	fields, flag := s.Include, 1
	if len(s.Exclude) > 0 {
		fields, flag = s.Exclude, 0
	}
	out := make(bson.D, 0, len(fields))
	for _, field := range fields {
		out = append(out, bson.E{Key: field, Value: flag})
	}
	return out
}

func searchToBSON(s SearchStage) bson.D {
	pattern := regexp.QuoteMeta(s.Text)
	clauses := make(bson.A, 0, len(s.Fields))
	for _, field := range s.Fields {
		clauses = append(clauses, bson.D{{Key: field, Value: primitive.Regex{Pattern: pattern, Options: "i"}}})
	}
	return bson.D{{Key: "$or", Value: clauses}}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected count value type %T", v)
	}
}
