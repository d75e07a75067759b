package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/observability/tracing"
	"github.com/nimburion/listing/pkg/repository/document"
)

// DefaultCacheTTL bounds how stale a cached page may be.
const DefaultCacheTTL = 30 * time.Second

// Source tells where a page was served from.
type Source string

const (
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

// PageResult is one page of a listing.
type PageResult struct {
	Items       []document.Document `json:"items"`
	TotalCount  int64               `json:"totalCount"`
	TotalPages  int64               `json:"totalPages"`
	CurrentPage int                 `json:"currentPage"`
}

// Page is the outcome of Engine.List. Payload is the serialized Result, the
// exact bytes stored in and served from the cache.
type Page struct {
	Result  PageResult
	Payload []byte
	Source  Source
	Key     string
}

// TotalPages returns ceil(total/limit), and 0 when there is nothing to page.
func TotalPages(total int64, limit int) int64 {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	CacheTTL  time.Duration
	MaxLimit  int
	KeyPrefix string
}

// Engine serves listings: cache lookup first, then the store on a miss.
type Engine struct {
	registry *Registry
	executor *QueryExecutor
	cache    *CacheStore
	keys     KeyDeriver
	ttl      time.Duration
	maxLimit int
	log      logger.Logger
	metrics  *Metrics

	// loads coalesces concurrent misses on the same key into one store round trip.
	loads singleflight.Group
}

// NewEngine wires the engine. cache may be nil to disable caching.
func NewEngine(registry *Registry, executor *QueryExecutor, cache *CacheStore, cfg EngineConfig, log logger.Logger, metrics *Metrics) *Engine {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		registry: registry,
		executor: executor,
		cache:    cache,
		keys:     KeyDeriver{Prefix: cfg.KeyPrefix},
		ttl:      cfg.CacheTTL,
		maxLimit: cfg.MaxLimit,
		log:      log,
		metrics:  metrics,
	}
}

// Registry returns the entity definitions served by the engine.
func (e *Engine) Registry() *Registry { return e.registry }

// KeyDeriver returns the key layout used by the engine.
func (e *Engine) KeyDeriver() KeyDeriver { return e.keys }

// List serves one page of entity.
func (e *Engine) List(ctx context.Context, entity string, p Params) (*Page, error) {
	start := time.Now()
	def, err := e.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}

	req := Normalize(p, def, e.maxLimit)
	if !def.IsSortable(req.SortField) {
		return nil, fmt.Errorf("%w: %q is not sortable for %s", ErrInvalidSortField, req.SortField, def.Namespace)
	}
	key := e.keys.Derive(def.Namespace, req)

	ctx, span := tracing.StartListing(ctx, tracing.ListingSpan{
		Entity:    def.Namespace,
		Page:      req.Page,
		Limit:     req.Limit,
		SortField: req.SortField,
		SortOrder: string(req.SortOrder),
		Searching: req.Search != "",
	})
	page := e.lookup(ctx, key)
	if page == nil {
		page, err = e.loadShared(ctx, def, req, key)
		if err != nil {
			tracing.End(span, err)
			return nil, err
		}
	}
	tracing.SetSource(span, string(page.Source))
	tracing.End(span, nil)

	e.metrics.incRequest(def.Namespace, page.Source)
	e.log.WithContext(ctx).Debug("listing served",
		"entity", def.Namespace,
		"key", key,
		"source", string(page.Source),
		"total", page.Result.TotalCount,
		"duration", time.Since(start),
	)
	return page, nil
}

// lookup returns the cached page for key, or nil on a miss. A payload that
// no longer decodes is a miss.
func (e *Engine) lookup(ctx context.Context, key string) *Page {
	if e.cache == nil {
		return nil
	}
	payload, ok := e.cache.Get(ctx, key)
	if !ok {
		return nil
	}
	var result PageResult
	if err := json.Unmarshal(payload, &result); err != nil {
		e.log.WithContext(ctx).Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil
	}
	return &Page{Result: result, Payload: payload, Source: SourceCache, Key: key}
}

// loadShared collapses concurrent misses for key into one load. The load does
// not inherit the cancellation of whichever caller started it; every caller
// stops waiting when its own context is done.
func (e *Engine) loadShared(ctx context.Context, def Definition, req Request, key string) (*Page, error) {
	results := e.loads.DoChan(key, func() (interface{}, error) {
		return e.load(context.WithoutCancel(ctx), def, req, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.(*Page)
		return &Page{Result: shared.Result, Payload: shared.Payload, Source: shared.Source, Key: key}, nil
	}
}

func (e *Engine) load(ctx context.Context, def Definition, req Request, key string) (*Page, error) {
	plan, err := BuildPlan(def, req)
	if err != nil {
		return nil, err
	}

	items, total, err := e.executor.Execute(ctx, def, plan)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []document.Document{}
	}

	result := PageResult{
		Items:       items,
		TotalCount:  total,
		TotalPages:  TotalPages(total, req.Limit),
		CurrentPage: req.Page,
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s page: %w", def.Namespace, err)
	}

	if e.cache != nil {
		e.cache.Set(ctx, key, payload, e.ttl)
	}
	return &Page{Result: result, Payload: payload, Source: SourceStore, Key: key}, nil
}
