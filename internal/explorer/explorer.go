// Package explorer implements the filter → sort → paginate pipeline behind
// the books, music and library browsers.
//
// An Explorer is built once per record type from a list of fields. A field
// may expose facet values (making it filterable), a comparison (making it
// sortable), or both. Run never mutates the slice it is given.
package explorer

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 200
)

// ErrUnknownField is returned when a query names a field the explorer does
// not define, or uses a field in a role it does not support.
var ErrUnknownField = errors.New("unknown field")

// Field describes one attribute of a record.
type Field[T any] struct {
	Name  string
	Label string

	// Values returns the facet values of a record. Nil means the field
	// cannot be filtered on.
	Values func(T) []string

	// Canon maps a filter value onto the form Values returns, for fields
	// whose values are normalized. Nil compares case-insensitively.
	Canon func(string) string

	// Compare orders two records by this field. Nil means the field cannot
	// be sorted on.
	Compare func(a, b T) int
}

// Explorer runs queries over records of type T.
type Explorer[T any] struct {
	fields      []Field[T]
	byName      map[string]int
	text        func(T) string
	defaultSort string
	defaultDesc bool
}

// New creates an explorer. text returns the searchable text of a record.
func New[T any](text func(T) string, fields ...Field[T]) *Explorer[T] {
	e := &Explorer[T]{
		fields: fields,
		byName: make(map[string]int, len(fields)),
		text:   text,
	}
	for i, f := range fields {
		e.byName[f.Name] = i
	}
	return e
}

// WithDefaultSort sets the ordering used when a query names no sort field.
func (e *Explorer[T]) WithDefaultSort(field string, desc bool) *Explorer[T] {
	e.defaultSort = field
	e.defaultDesc = desc
	return e
}

// Fields returns the field definitions in declaration order.
func (e *Explorer[T]) Fields() []Field[T] {
	return e.fields
}

// SortFields returns the names of the sortable fields.
func (e *Explorer[T]) SortFields() []string {
	var names []string
	for _, f := range e.fields {
		if f.Compare != nil {
			names = append(names, f.Name)
		}
	}
	return names
}

// FilterFields returns the names of the filterable fields.
func (e *Explorer[T]) FilterFields() []string {
	var names []string
	for _, f := range e.fields {
		if f.Values != nil {
			names = append(names, f.Name)
		}
	}
	return names
}

// DefaultSort returns the default sort field and direction.
func (e *Explorer[T]) DefaultSort() (string, bool) {
	return e.defaultSort, e.defaultDesc
}

// Query selects, orders and pages records.
type Query struct {
	Search   string              `json:"search,omitempty"`
	Fuzzy    bool                `json:"fuzzy,omitempty"`
	Filters  map[string][]string `json:"filters,omitempty"`
	Sort     string              `json:"sort,omitempty"`
	Desc     bool                `json:"desc,omitempty"`
	Page     int                 `json:"page,omitempty"`
	PageSize int                 `json:"page_size,omitempty"`
}

// Result is one page of a query.
type Result[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
}

// Run filters, sorts and paginates items.
func (e *Explorer[T]) Run(items []T, q Query) (Result[T], error) {
	matched, err := e.Select(items, q)
	if err != nil {
		return Result[T]{}, err
	}
	return Paginate(matched, q.Page, q.PageSize), nil
}

// Select filters and sorts items without paginating. The page fields of q
// are ignored.
func (e *Explorer[T]) Select(items []T, q Query) ([]T, error) {
	matched, err := e.Filter(items, q)
	if err != nil {
		return nil, err
	}

	// Fuzzy matches come back ranked; the ranking replaces the sort.
	if !(q.Fuzzy && strings.TrimSpace(q.Search) != "") {
		if err := e.sort(matched, q); err != nil {
			return nil, err
		}
	}
	return matched, nil
}

// Filter returns the records matching the query's search and filters, in
// input order (or fuzzy rank order). The result is a new slice.
func (e *Explorer[T]) Filter(items []T, q Query) ([]T, error) {
	filters, err := e.compileFilters(q.Filters)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		if matchFilters(it, filters) {
			out = append(out, it)
		}
	}

	search := strings.TrimSpace(q.Search)
	if search == "" {
		return out, nil
	}
	if q.Fuzzy {
		return e.fuzzySearch(out, search), nil
	}

	terms := strings.Fields(strings.ToLower(search))
	kept := out[:0]
	for _, it := range out {
		if containsAll(strings.ToLower(e.text(it)), terms) {
			kept = append(kept, it)
		}
	}
	return kept, nil
}

// FacetCount is the number of matching records carrying a facet value.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facets counts the values of field among records matching the query,
// ignoring the query's own filter on that field so that alternative values
// remain visible. Counts are sorted by descending count, then value.
func (e *Explorer[T]) Facets(items []T, q Query, field string) ([]FacetCount, error) {
	i, ok := e.byName[field]
	if !ok || e.fields[i].Values == nil {
		return nil, fmt.Errorf("facet %q: %w", field, ErrUnknownField)
	}

	others := make(map[string][]string, len(q.Filters))
	for k, v := range q.Filters {
		if k != field {
			others[k] = v
		}
	}
	sub := q
	sub.Filters = others
	matched, err := e.Filter(items, sub)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, it := range matched {
		seen := make(map[string]bool)
		for _, v := range e.fields[i].Values(it) {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			counts[v]++
		}
	}

	out := make([]FacetCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, FacetCount{Value: v, Count: n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Value < out[b].Value
	})
	return out, nil
}

// Paginate slices items into the requested page. The page number is clamped
// into [1, TotalPages]; an empty input yields a single empty page.
func Paginate[T any](items []T, page, size int) Result[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	totalPages := (len(items) + size - 1) / size
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * size
	end := min(start+size, len(items))
	pageItems := make([]T, end-start)
	copy(pageItems, items[start:end])

	return Result[T]{
		Items:      pageItems,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
		TotalItems: len(items),
	}
}

type compiledFilter[T any] struct {
	values func(T) []string
	want   map[string]bool
}

func (e *Explorer[T]) compileFilters(filters map[string][]string) ([]compiledFilter[T], error) {
	var out []compiledFilter[T]
	for name, values := range filters {
		if len(values) == 0 {
			continue
		}
		i, ok := e.byName[name]
		if !ok || e.fields[i].Values == nil {
			return nil, fmt.Errorf("filter %q: %w", name, ErrUnknownField)
		}
		canon := e.fields[i].Canon
		want := make(map[string]bool, len(values))
		for _, v := range values {
			if canon != nil {
				v = canon(v)
			}
			want[strings.ToLower(v)] = true
		}
		out = append(out, compiledFilter[T]{values: e.fields[i].Values, want: want})
	}
	return out, nil
}

// matchFilters is an AND across fields and an OR within a field.
func matchFilters[T any](it T, filters []compiledFilter[T]) bool {
	for _, f := range filters {
		hit := false
		for _, v := range f.values(it) {
			if f.want[strings.ToLower(v)] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func (e *Explorer[T]) sort(items []T, q Query) error {
	name, desc := q.Sort, q.Desc
	if name == "" {
		name, desc = e.defaultSort, e.defaultDesc
	}
	if name == "" {
		return nil
	}

	i, ok := e.byName[name]
	if !ok || e.fields[i].Compare == nil {
		return fmt.Errorf("sort %q: %w", name, ErrUnknownField)
	}
	compare := e.fields[i].Compare
	slices.SortStableFunc(items, func(a, b T) int {
		if desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
	return nil
}

// textSource adapts records to fuzzy.Source.
type textSource []string

func (s textSource) String(i int) string { return s[i] }
func (s textSource) Len() int            { return len(s) }

func (e *Explorer[T]) fuzzySearch(items []T, pattern string) []T {
	src := make(textSource, len(items))
	for i, it := range items {
		src[i] = e.text(it)
	}
	matches := fuzzy.FindFrom(pattern, src)
	out := make([]T, 0, len(matches))
	for _, m := range matches {
		out = append(out, items[m.Index])
	}
	return out
}
