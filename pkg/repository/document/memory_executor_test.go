package document

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func seedTasks(e *MemoryExecutor) {
	e.Insert("projects",
		Document{"_id": "p1", "name": "Apollo"},
		Document{"_id": "p2", "name": "Gemini"},
	)
	e.Insert("users",
		Document{"_id": "u1", "userName": "alice", "password": "secret"},
	)
	e.Insert("tasks",
		Document{"_id": "t1", "title": "Write docs", "projectId": "p1", "assignedTo": "u1"},
		Document{"_id": "t2", "title": "Fix bug (urgent)", "projectId": "p2"},
		Document{"_id": "t3", "title": "alpha review", "projectId": "missing"},
		Document{"_id": "t4", "title": "Beta release"},
	)
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i] = fmt.Sprint(doc[IDField])
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMemoryExecutor_Match(t *testing.T) {
	e := NewMemoryExecutor()
	e.Insert("users",
		Document{"_id": "u1", "role": "employee"},
		Document{"_id": "u2", "role": "admin"},
		Document{"_id": "u3", "role": "employee"},
	)

	docs, err := e.Aggregate(context.Background(), "users", Pipeline{MatchStage{Filter: Filter{"role": "employee"}}})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got := ids(docs); !equalStrings(got, []string{"u1", "u3"}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestMemoryExecutor_LookupUnwindPreservesUnmatched(t *testing.T) {
	e := NewMemoryExecutor()
	seedTasks(e)

	docs, err := e.Aggregate(context.Background(), "tasks", Pipeline{
		LookupStage{From: "projects", LocalField: "projectId", ForeignField: IDField, As: "project"},
		UnwindStage{Path: "project", PreserveEmpty: true},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(docs) != 4 {
		t.Fatalf("expected all 4 tasks, got %d", len(docs))
	}

	project, ok := docs[0]["project"].(map[string]interface{})
	if !ok || project["name"] != "Apollo" {
		t.Fatalf("expected joined project Apollo, got %v", docs[0]["project"])
	}
	for _, doc := range docs[2:] {
		if _, present := doc["project"]; present {
			t.Fatalf("unmatched task %v should have no project field", doc[IDField])
		}
	}
}

func TestMemoryExecutor_UnwindWithoutPreserveDropsUnmatched(t *testing.T) {
	e := NewMemoryExecutor()
	seedTasks(e)

	docs, err := e.Aggregate(context.Background(), "tasks", Pipeline{
		LookupStage{From: "projects", LocalField: "projectId", ForeignField: IDField, As: "project"},
		UnwindStage{Path: "project"},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got := ids(docs); !equalStrings(got, []string{"t1", "t2"}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestMemoryExecutor_Search(t *testing.T) {
	e := NewMemoryExecutor()
	seedTasks(e)
	join := Pipeline{
		LookupStage{From: "projects", LocalField: "projectId", ForeignField: IDField, As: "project"},
		UnwindStage{Path: "project", PreserveEmpty: true},
	}

	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "case insensitive", text: "ALPHA", want: []string{"t3"}},
		{name: "substring", text: "re", want: []string{"t3", "t4"}},
		{name: "metacharacters are literal", text: "(urgent)", want: []string{"t2"}},
		{name: "dot is literal", text: ".", want: []string{}},
		{name: "joined field", text: "gemini", want: []string{"t2"}},
		{name: "no match", text: "zzz", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := append(append(Pipeline{}, join...), SearchStage{Fields: []string{"title", "project.name"}, Text: tt.text})
			docs, err := e.Aggregate(context.Background(), "tasks", p)
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}
			if got := ids(docs); !equalStrings(got, tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryExecutor_SortSkipLimit(t *testing.T) {
	e := NewMemoryExecutor()
	seedTasks(e)

	asc := Pipeline{SortStage{Keys: []Sort{{Field: "title", Order: SortAsc}, {Field: IDField, Order: SortAsc}}}}
	docs, err := e.Aggregate(context.Background(), "tasks", asc)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	// byte-wise ordering puts upper case first
	if got := ids(docs); !equalStrings(got, []string{"t4", "t2", "t1", "t3"}) {
		t.Fatalf("asc ids = %v", got)
	}

	desc := Pipeline{
		SortStage{Keys: []Sort{{Field: "title", Order: SortDesc}, {Field: IDField, Order: SortDesc}}},
		SkipStage{N: 1},
		LimitStage{N: 2},
	}
	docs, err = e.Aggregate(context.Background(), "tasks", desc)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got := ids(docs); !equalStrings(got, []string{"t1", "t2"}) {
		t.Fatalf("desc page ids = %v", got)
	}

	docs, err = e.Aggregate(context.Background(), "tasks", Pipeline{SkipStage{N: 10}})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("skip past end should be empty, got %d", len(docs))
	}
}

func TestMemoryExecutor_Project(t *testing.T) {
	e := NewMemoryExecutor()
	seedTasks(e)

	docs, err := e.Aggregate(context.Background(), "tasks", Pipeline{
		MatchStage{Filter: Filter{IDField: "t1"}},
		LookupStage{From: "users", LocalField: "assignedTo", ForeignField: IDField, As: "assignee"},
		UnwindStage{Path: "assignee", PreserveEmpty: true},
		ProjectStage{Exclude: []string{"assignee.password"}},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	assignee := docs[0]["assignee"].(map[string]interface{})
	if _, leaked := assignee["password"]; leaked {
		t.Fatal("excluded nested field must be removed")
	}
	if assignee["userName"] != "alice" {
		t.Fatalf("unexpected assignee %v", assignee)
	}

	docs, err = e.Aggregate(context.Background(), "tasks", Pipeline{
		MatchStage{Filter: Filter{IDField: "t2"}},
		ProjectStage{Include: []string{"title"}},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(docs[0]) != 2 || docs[0][IDField] != "t2" || docs[0]["title"] == nil {
		t.Fatalf("include projection should keep only _id and title, got %v", docs[0])
	}
}

func TestMemoryExecutor_Count(t *testing.T) {
	e := NewMemoryExecutor()
	seedTasks(e)

	n, err := e.Count(context.Background(), "tasks", Pipeline{
		SearchStage{Fields: []string{"title"}, Text: "re"},
		CountStage{Field: "totalCount"},
	})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Count() = %d, want 2", n)
	}

	n, err = e.Count(context.Background(), "tasks", Pipeline{
		SearchStage{Fields: []string{"title"}, Text: "nothing"},
		CountStage{Field: "totalCount"},
	})
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v; want 0, nil", n, err)
	}

	if _, err := e.Count(context.Background(), "tasks", Pipeline{}); err == nil {
		t.Fatal("expected error without count stage")
	}
}

func TestMemoryExecutor_DoesNotMutateStoredDocuments(t *testing.T) {
	e := NewMemoryExecutor()
	seedTasks(e)

	if _, err := e.Aggregate(context.Background(), "tasks", Pipeline{ProjectStage{Exclude: []string{"title"}}}); err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	docs, _ := e.Aggregate(context.Background(), "tasks", Pipeline{MatchStage{Filter: Filter{IDField: "t1"}}})
	if docs[0]["title"] != "Write docs" {
		t.Fatal("stored document was modified by a previous pipeline")
	}
}

func TestMemoryExecutor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryExecutor().Aggregate(ctx, "tasks", nil); err == nil {
		t.Fatal("expected context error")
	}
}

// Property: consecutive skip/limit windows partition the sorted collection.
func TestProperty_PagesPartitionCollection(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("pages cover every document exactly once", prop.ForAll(
		func(total, limit int) bool {
			e := NewMemoryExecutor()
			for i := 0; i < total; i++ {
				e.Insert("items", Document{IDField: i, "rank": i % 3})
			}

			seen := make(map[interface{}]int)
			sortStage := SortStage{Keys: []Sort{{Field: "rank", Order: SortAsc}, {Field: IDField, Order: SortAsc}}}
			for skip := 0; skip < total; skip += limit {
				docs, err := e.Aggregate(context.Background(), "items", Pipeline{
					sortStage,
					SkipStage{N: int64(skip)},
					LimitStage{N: int64(limit)},
				})
				if err != nil || len(docs) > limit {
					return false
				}
				for _, doc := range docs {
					seen[doc[IDField]]++
				}
			}
			if len(seen) != total {
				return false
			}
			for _, n := range seen {
				if n != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 60),
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}
