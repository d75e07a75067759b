package listing

import (
	"fmt"

	"github.com/nimburion/listing/pkg/repository/document"
)

// CountField names the field carrying the total in a count pipeline result.
const CountField = "totalCount"

// Plan holds the page pipeline and its count pipeline. Count shares every
// stage of Query up to pagination, so the total describes exactly the set the
// page is drawn from.
type Plan struct {
	Query document.Pipeline
	Count document.Pipeline
}

// BuildPlan builds the pipelines serving r. It returns ErrInvalidSortField when
// r.SortField is not sortable for def.
func BuildPlan(def Definition, r Request) (Plan, error) {
	if !def.IsSortable(r.SortField) {
		return Plan{}, fmt.Errorf("%w: %q is not sortable for %s", ErrInvalidSortField, r.SortField, def.Namespace)
	}

	var filtered document.Pipeline
	if len(def.BaseFilter) > 0 {
		filtered = append(filtered, document.MatchStage{Filter: def.BaseFilter})
	}
	for _, j := range def.Joins {
		filtered = append(filtered, document.LookupStage{
			From:         j.From,
			LocalField:   j.LocalField,
			ForeignField: j.ForeignField,
			As:           j.As,
		})
		if j.Flatten {
			filtered = append(filtered, document.UnwindStage{Path: j.As, PreserveEmpty: true})
		}
	}
	if len(def.Include) > 0 || len(def.Exclude) > 0 {
		filtered = append(filtered, document.ProjectStage{Include: def.Include, Exclude: def.Exclude})
	}
	if r.Search != "" && len(def.Searchable) > 0 {
		filtered = append(filtered, document.SearchStage{Fields: def.Searchable, Text: r.Search})
	}

	keys := []document.Sort{{Field: r.SortField, Order: r.SortOrder}}
	if r.SortField != document.IDField {
		keys = append(keys, document.Sort{Field: document.IDField, Order: r.SortOrder})
	}
	filtered = append(filtered, document.SortStage{Keys: keys})

	query := make(document.Pipeline, 0, len(filtered)+2)
	query = append(query, filtered...)
	query = append(query,
		document.SkipStage{N: r.Skip()},
		document.LimitStage{N: int64(r.Limit)},
	)

	count := make(document.Pipeline, 0, len(filtered)+1)
	count = append(count, filtered...)
	count = append(count, document.CountStage{Field: CountField})

	return Plan{Query: query, Count: count}, nil
}
