package document

import (
	"errors"
	"fmt"
	"strings"
)

// IDField is the primary key field of every document.
const IDField = "_id"

// Stage is one step of an aggregation pipeline.
type Stage interface {
	// Name returns the stage name used in logs and errors.
	Name() string
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// MatchStage keeps documents whose fields equal the given values.
type MatchStage struct {
	Filter Filter
}

// LookupStage joins documents of another collection into an array field.
// Documents without a related record receive an empty array.
type LookupStage struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

// UnwindStage flattens an array field into one document per element.
// With PreserveEmpty set, documents whose array is missing or empty are kept
// with the field removed.
type UnwindStage struct {
	Path          string
	PreserveEmpty bool
}

// ProjectStage restricts the visible fields. Exactly one of Include or Exclude is set.
type ProjectStage struct {
	Include []string
	Exclude []string
}

// SearchStage keeps documents where any of Fields contains Text,
// compared case-insensitively. Text is always matched literally.
type SearchStage struct {
	Fields []string
	Text   string
}

// SortStage orders documents by the listed keys, first key first.
type SortStage struct {
	Keys []Sort
}

// SkipStage drops the first N documents.
type SkipStage struct {
	N int64
}

// LimitStage keeps at most N documents.
type LimitStage struct {
	N int64
}

// CountStage replaces the stream with a single document holding the count under Field.
type CountStage struct {
	Field string
}

func (MatchStage) Name() string   { return "match" }
func (LookupStage) Name() string  { return "lookup" }
func (UnwindStage) Name() string  { return "unwind" }
func (ProjectStage) Name() string { return "project" }
func (SearchStage) Name() string  { return "search" }
func (SortStage) Name() string    { return "sort" }
func (SkipStage) Name() string    { return "skip" }
func (LimitStage) Name() string   { return "limit" }
func (CountStage) Name() string   { return "count" }

// ErrInvalidPipeline is returned when a pipeline cannot be executed.
var ErrInvalidPipeline = errors.New("invalid pipeline")

// Validate checks structural rules shared by every executor.
func (p Pipeline) Validate() error {
	for i, stage := range p {
		if err := validateStage(stage); err != nil {
			return fmt.Errorf("%w: stage %d (%s): %v", ErrInvalidPipeline, i, stageName(stage), err)
		}
		if _, ok := stage.(CountStage); ok && i != len(p)-1 {
			return fmt.Errorf("%w: count stage must be last", ErrInvalidPipeline)
		}
	}
	return nil
}

// CountField returns the field name of the terminal count stage, if any.
func (p Pipeline) CountField() (string, bool) {
	if len(p) == 0 {
		return "", false
	}
	count, ok := p[len(p)-1].(CountStage)
	if !ok {
		return "", false
	}
	return count.Field, true
}

// String renders the stage names, e.g. "lookup>unwind>sort>skip>limit".
func (p Pipeline) String() string {
	names := make([]string, 0, len(p))
	for _, stage := range p {
		names = append(names, stageName(stage))
	}
	return strings.Join(names, ">")
}

func stageName(stage Stage) string {
	if stage == nil {
		return "nil"
	}
	return stage.Name()
}

func validateStage(stage Stage) error {
	switch s := stage.(type) {
	case nil:
		return errors.New("stage is nil")
	case MatchStage:
		if len(s.Filter) == 0 {
			return errors.New("filter is empty")
		}
	case LookupStage:
		if s.From == "" || s.LocalField == "" || s.ForeignField == "" || s.As == "" {
			return errors.New("from, localField, foreignField and as are required")
		}
	case UnwindStage:
		if s.Path == "" {
			return errors.New("path is required")
		}
	case ProjectStage:
		if len(s.Include) > 0 && len(s.Exclude) > 0 {
			return errors.New("include and exclude cannot be combined")
		}
		if len(s.Include) == 0 && len(s.Exclude) == 0 {
			return errors.New("projection is empty")
		}
	case SearchStage:
		if len(s.Fields) == 0 {
			return errors.New("at least one field is required")
		}
	case SortStage:
		if len(s.Keys) == 0 {
			return errors.New("at least one key is required")
		}
		for _, key := range s.Keys {
			if key.Field == "" {
				return errors.New("sort field is empty")
			}
		}
	case SkipStage:
		if s.N < 0 {
			return errors.New("skip must not be negative")
		}
	case LimitStage:
		if s.N <= 0 {
			return errors.New("limit must be positive")
		}
	case CountStage:
		if s.Field == "" {
			return errors.New("count field is required")
		}
	default:
		return fmt.Errorf("unsupported stage %T", stage)
	}
	return nil
}
