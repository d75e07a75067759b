package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer every listing span comes from.
const InstrumentationName = "github.com/nimburion/listing"

func tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// ListingSpan describes one Engine.List call.
type ListingSpan struct {
	Entity    string
	Page      int
	Limit     int
	SortField string
	SortOrder string
	// Searching is set when a search term is present. The term itself is
	// user input and is not recorded.
	Searching bool
}

// StartListing starts the internal span wrapping a listing request. The
// cache and store spans of the request are its children.
func StartListing(ctx context.Context, s ListingSpan) (context.Context, trace.Span) {
	return tracer().Start(ctx, "listing "+s.Entity,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("listing.entity", s.Entity),
			attribute.Int("listing.page", s.Page),
			attribute.Int("listing.limit", s.Limit),
			attribute.String("listing.sort_field", s.SortField),
			attribute.String("listing.sort_order", s.SortOrder),
			attribute.Bool("listing.search", s.Searching),
		),
	)
}

// QuerySpan describes one document store call of a listing.
type QuerySpan struct {
	System     string // mongodb, memory
	Collection string
	Phase      string // query, count
	// Statement is a rendering of the pipeline stages, without values.
	Statement string
}

// StartQuery starts a client span named "<phase> <collection>".
func StartQuery(ctx context.Context, s QuerySpan) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", s.System),
		attribute.String("db.collection", s.Collection),
		attribute.String("db.operation", "aggregate"),
		attribute.String("listing.phase", s.Phase),
	}
	if s.Statement != "" {
		attrs = append(attrs, attribute.String("db.statement", s.Statement))
	}
	return tracer().Start(ctx, s.Phase+" "+s.Collection,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// CacheSpan describes one cache call.
type CacheSpan struct {
	System    string // redis, memory
	Operation string // get, set
	Key       string
}

// StartCache starts a client span named "cache <operation>". The key is an
// attribute, never part of the name, to keep span names low-cardinality.
func StartCache(ctx context.Context, s CacheSpan) (context.Context, trace.Span) {
	return tracer().Start(ctx, "cache "+s.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.system", s.System),
			attribute.String("cache.operation", s.Operation),
			attribute.String("cache.key", s.Key),
		),
	)
}

// SetCacheHit records a lookup outcome.
func SetCacheHit(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("cache.hit", hit))
}

// SetSource records whether a listing was served from the cache or the store.
func SetSource(span trace.Span, source string) {
	span.SetAttributes(attribute.String("listing.source", source))
}

// End closes span with an error status when err is non-nil, OK otherwise.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
