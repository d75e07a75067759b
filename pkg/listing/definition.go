package listing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/repository/document"
)

var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Join attaches documents of another collection whose ForeignField equals LocalField.
// With Flatten the joined array is unwound into a single embedded document and
// documents without a match are kept.
type Join struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	Flatten      bool
}

// Definition describes one listable entity.
type Definition struct {
	Namespace  string
	Collection string
	// Searchable fields are matched by free-text search, OR-ed together.
	Searchable []string
	// Sortable is the allow-list of sort fields.
	Sortable    []string
	DefaultSort string
	// Include and Exclude shape the returned documents. At most one may be set.
	Include    []string
	Exclude    []string
	BaseFilter document.Filter
	Joins      []Join
}

// Validate reports inconsistencies that would make generated plans wrong.
func (d Definition) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, d.Namespace, fmt.Sprintf(format, args...))
	}

	if !namespacePattern.MatchString(d.Namespace) {
		return fmt.Errorf("%w: namespace %q must match %s", ErrInvalidDefinition, d.Namespace, namespacePattern)
	}
	if strings.TrimSpace(d.Collection) == "" {
		return fail("collection is required")
	}
	if len(d.Include) > 0 && len(d.Exclude) > 0 {
		return fail("include and exclude projections cannot be combined")
	}
	if len(d.Sortable) == 0 {
		return fail("at least one sortable field is required")
	}
	if !d.IsSortable(d.DefaultSort) {
		return fail("default sort %q is not sortable", d.DefaultSort)
	}

	aliases := make(map[string]bool, len(d.Joins))
	for i, j := range d.Joins {
		if j.From == "" || j.LocalField == "" || j.ForeignField == "" || j.As == "" {
			return fail("join %d requires from, local field, foreign field and alias", i)
		}
		if aliases[j.As] {
			return fail("duplicate join alias %q", j.As)
		}
		aliases[j.As] = true
	}

	for _, field := range d.Searchable {
		if strings.TrimSpace(field) == "" {
			return fail("empty searchable field")
		}
		if !d.projects(field) {
			return fail("searchable field %q is removed by the projection", field)
		}
	}
	for _, field := range d.Sortable {
		if strings.TrimSpace(field) == "" {
			return fail("empty sortable field")
		}
		if !d.projects(field) {
			return fail("sortable field %q is removed by the projection", field)
		}
	}
	return nil
}

// IsSortable reports whether field is in the sort allow-list.
func (d Definition) IsSortable(field string) bool {
	for _, f := range d.Sortable {
		if f == field {
			return true
		}
	}
	return false
}

// projects reports whether field survives the projection stage. Search and sort
// run after projection, so a field they use must be kept.
func (d Definition) projects(field string) bool {
	if len(d.Include) > 0 {
		if field == document.IDField {
			return true
		}
		for _, inc := range d.Include {
			if coversPath(inc, field) {
				return true
			}
		}
		return false
	}
	for _, exc := range d.Exclude {
		if coversPath(exc, field) {
			return false
		}
	}
	return true
}

func coversPath(parent, field string) bool {
	return parent == field || strings.HasPrefix(field, parent+".")
}

// Registry holds the entity definitions served by the engine.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry validates and registers defs. A later definition replaces an
// earlier one with the same namespace.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		r.defs[def.Namespace] = def
	}
	return r, nil
}

// Lookup returns the definition registered for namespace.
func (r *Registry) Lookup(namespace string) (Definition, error) {
	def, ok := r.defs[namespace]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownEntity, namespace)
	}
	return def, nil
}

// Names returns the registered namespaces, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryFromConfig registers the built-in catalog, then the entities declared in
// configuration, which override built-ins of the same name.
func RegistryFromConfig(cfg config.ListingConfig) (*Registry, error) {
	defs := Catalog()
	names := make([]string, 0, len(cfg.Entities))
	for name := range cfg.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		defs = append(defs, DefinitionFromConfig(name, cfg.Entities[name]))
	}
	return NewRegistry(defs...)
}

// DefinitionFromConfig converts a configured entity into a Definition.
func DefinitionFromConfig(namespace string, ec config.EntityConfig) Definition {
	def := Definition{
		Namespace:   namespace,
		Collection:  ec.Collection,
		Searchable:  ec.Searchable,
		Sortable:    ec.Sortable,
		DefaultSort: ec.DefaultSort,
		Include:     ec.Include,
		Exclude:     ec.Exclude,
	}
	if def.DefaultSort == "" && len(def.Sortable) > 0 {
		def.DefaultSort = def.Sortable[0]
	}
	if len(ec.BaseFilter) > 0 {
		def.BaseFilter = make(document.Filter, len(ec.BaseFilter))
		for _, f := range ec.BaseFilter {
			def.BaseFilter[f.Field] = f.Value
		}
	}
	for _, j := range ec.Joins {
		def.Joins = append(def.Joins, Join{
			From:         j.From,
			LocalField:   j.LocalField,
			ForeignField: j.ForeignField,
			As:           j.As,
			Flatten:      j.Flatten,
		})
	}
	return def
}
