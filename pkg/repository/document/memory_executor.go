package document

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryExecutor evaluates pipelines over in-process collections.
// It follows MongoDB semantics for the stages it supports and is used for
// local development and tests.
type MemoryExecutor struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

// NewMemoryExecutor creates an empty in-memory executor.
func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{collections: make(map[string][]Document)}
}

// Insert appends copies of docs to a collection.
func (e *MemoryExecutor) Insert(collection string, docs ...Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, doc := range docs {
		e.collections[collection] = append(e.collections[collection], cloneDocument(doc))
	}
}

// Collections returns the names of all non-empty collections, sorted.
func (e *MemoryExecutor) Collections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.collections))
	for name, docs := range e.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HealthCheck always succeeds.
func (e *MemoryExecutor) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Aggregate runs the pipeline against a snapshot of the collection.
func (e *MemoryExecutor) Aggregate(ctx context.Context, collection string, pipeline Pipeline) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	docs := e.snapshot(collection)
	for _, stage := range pipeline {
		var err error
		docs, err = e.apply(stage, docs)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = Document(doc)
	}
	return out, nil
}

// Count runs a pipeline terminated by a CountStage.
func (e *MemoryExecutor) Count(ctx context.Context, collection string, pipeline Pipeline) (int64, error) {
	field, ok := pipeline.CountField()
	if !ok {
		return 0, fmt.Errorf("%w: count pipeline must end with a count stage", ErrInvalidPipeline)
	}
	docs, err := e.Aggregate(ctx, collection, pipeline)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	return toInt64(docs[0][field])
}

func (e *MemoryExecutor) snapshot(collection string) []map[string]interface{} {
	src := e.collections[collection]
	out := make([]map[string]interface{}, len(src))
	for i, doc := range src {
		out[i] = cloneMap(doc)
	}
	return out
}

func (e *MemoryExecutor) apply(stage Stage, docs []map[string]interface{}) ([]map[string]interface{}, error) {
	switch s := stage.(type) {
	case MatchStage:
		return filterDocs(docs, func(doc map[string]interface{}) bool {
			for field, want := range s.Filter {
				if !anyEqual(pathValues(doc, field), want) {
					return false
				}
			}
			return true
		}), nil

	case LookupStage:
		foreign := e.collections[s.From]
		for _, doc := range docs {
			locals := pathValues(doc, s.LocalField)
			joined := make([]interface{}, 0)
			for _, candidate := range foreign {
				for _, local := range locals {
					if anyEqual(pathValues(candidate, s.ForeignField), local) {
						joined = append(joined, cloneMap(candidate))
						break
					}
				}
			}
			setField(doc, s.As, joined)
		}
		return docs, nil

	case UnwindStage:
		out := make([]map[string]interface{}, 0, len(docs))
		for _, doc := range docs {
			value, ok := getField(doc, s.Path)
			items, isArray := value.([]interface{})
			switch {
			case ok && isArray && len(items) > 0:
				for _, item := range items {
					clone := cloneMap(doc)
					setField(clone, s.Path, cloneValue(item))
					out = append(out, clone)
				}
			case ok && value != nil && !isArray:
				out = append(out, doc)
			case s.PreserveEmpty:
				if isArray {
					deleteField(doc, s.Path)
				}
				out = append(out, doc)
			}
		}
		return out, nil

	case ProjectStage:
		out := make([]map[string]interface{}, len(docs))
		for i, doc := range docs {
			if len(s.Include) > 0 {
				paths := append([]string{IDField}, s.Include...)
				out[i] = includeFields(doc, paths)
				continue
			}
			for _, path := range s.Exclude {
				excludeField(doc, path)
			}
			out[i] = doc
		}
		return out, nil

	case SearchStage:
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(s.Text))
		if err != nil {
			return nil, fmt.Errorf("compile search: %w", err)
		}
		return filterDocs(docs, func(doc map[string]interface{}) bool {
			for _, field := range s.Fields {
				for _, v := range pathValues(doc, field) {
					if str, ok := v.(string); ok && re.MatchString(str) {
						return true
					}
				}
			}
			return false
		}), nil

	case SortStage:
		sort.SliceStable(docs, func(i, j int) bool {
			for _, key := range s.Keys {
				c := compareValues(firstValue(docs[i], key.Field), firstValue(docs[j], key.Field))
				if c == 0 {
					continue
				}
				if key.Order == SortDesc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		return docs, nil

	case SkipStage:
		if s.N >= int64(len(docs)) {
			return docs[:0], nil
		}
		return docs[s.N:], nil

	case LimitStage:
		if s.N < int64(len(docs)) {
			return docs[:s.N], nil
		}
		return docs, nil

	case CountStage:
		if len(docs) == 0 {
			return docs[:0], nil
		}
		return []map[string]interface{}{{s.Field: int64(len(docs))}}, nil
	}
	return nil, fmt.Errorf("%w: unsupported stage %T", ErrInvalidPipeline, stage)
}

func filterDocs(docs []map[string]interface{}, keep func(map[string]interface{}) bool) []map[string]interface{} {
	out := docs[:0]
	for _, doc := range docs {
		if keep(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// pathValues resolves a dotted path, fanning out through arrays.
func pathValues(v interface{}, path string) []interface{} {
	head, rest, nested := strings.Cut(path, ".")
	switch t := v.(type) {
	case map[string]interface{}:
		child, ok := t[head]
		if !ok {
			return nil
		}
		if !nested {
			if arr, isArray := child.([]interface{}); isArray {
				return append([]interface{}{}, arr...)
			}
			return []interface{}{child}
		}
		return pathValues(child, rest)
	case Document:
		return pathValues(map[string]interface{}(t), path)
	case []interface{}:
		var out []interface{}
		for _, item := range t {
			out = append(out, pathValues(item, path)...)
		}
		return out
	}
	return nil
}

func firstValue(doc map[string]interface{}, path string) interface{} {
	values := pathValues(doc, path)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

func getField(doc map[string]interface{}, path string) (interface{}, bool) {
	head, rest, nested := strings.Cut(path, ".")
	child, ok := doc[head]
	if !ok || !nested {
		return child, ok
	}
	next, isMap := child.(map[string]interface{})
	if !isMap {
		return nil, false
	}
	return getField(next, rest)
}

func setField(doc map[string]interface{}, path string, value interface{}) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		doc[head] = value
		return
	}
	next, isMap := doc[head].(map[string]interface{})
	if !isMap {
		next = make(map[string]interface{})
		doc[head] = next
	}
	setField(next, rest, value)
}

func deleteField(doc map[string]interface{}, path string) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		delete(doc, head)
		return
	}
	if next, isMap := doc[head].(map[string]interface{}); isMap {
		deleteField(next, rest)
	}
}

func excludeField(v interface{}, path string) {
	switch t := v.(type) {
	case map[string]interface{}:
		head, rest, nested := strings.Cut(path, ".")
		if !nested {
			delete(t, head)
			return
		}
		excludeField(t[head], rest)
	case []interface{}:
		for _, item := range t {
			excludeField(item, path)
		}
	}
}

func includeFields(doc map[string]interface{}, paths []string) map[string]interface{} {
	groups := make(map[string][]string)
	whole := make(map[string]bool)
	for _, path := range paths {
		head, rest, nested := strings.Cut(path, ".")
		if !nested {
			whole[head] = true
			continue
		}
		groups[head] = append(groups[head], rest)
	}

	out := make(map[string]interface{})
	for head := range whole {
		if v, ok := doc[head]; ok {
			out[head] = v
		}
	}
	for head, rests := range groups {
		if whole[head] {
			continue
		}
		switch t := doc[head].(type) {
		case map[string]interface{}:
			out[head] = includeFields(t, rests)
		case []interface{}:
			items := make([]interface{}, 0, len(t))
			for _, item := range t {
				if m, ok := item.(map[string]interface{}); ok {
					items = append(items, includeFields(m, rests))
				}
			}
			out[head] = items
		}
	}
	return out
}

func anyEqual(values []interface{}, want interface{}) bool {
	for _, v := range values {
		if valuesEqual(v, want) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// typeRank approximates the BSON comparison order between types.
func typeRank(v interface{}) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case map[string]interface{}:
		return 3
	case []interface{}:
		return 4
	case bool:
		return 5
	case time.Time:
		return 6
	}
	return 7
}

func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 5:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	case 6:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cloneDocument(doc Document) Document {
	return Document(cloneMap(doc))
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case Document:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneMap(item)
		}
		return out
	}
	return v
}
