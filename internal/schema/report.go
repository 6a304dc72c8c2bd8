// Package schema checks an ontology for structural and referential problems
// against the entity type registry. Validation is advisory: it reports, it
// never blocks edits or move computation.
package schema

import "fmt"

// Category classifies a schema problem. Categories are reported in the order
// declared here.
type Category string

const (
	CategoryDanglingReference Category = "dangling_reference"
	CategoryRoleMismatch      Category = "role_mismatch"
	CategoryPropertyMismatch  Category = "property_mismatch"
	CategoryInvalidExpression Category = "invalid_expression"
	CategoryMissingBinding    Category = "missing_binding"
)

var categoryOrder = []Category{
	CategoryDanglingReference,
	CategoryRoleMismatch,
	CategoryPropertyMismatch,
	CategoryInvalidExpression,
	CategoryMissingBinding,
}

// Severity says whether a problem makes the schema invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Severity returns the severity attached to the category.
func (c Category) Severity() Severity {
	if c == CategoryMissingBinding {
		return SeverityWarning
	}
	return SeverityError
}

// Error is one reported problem. Source names the offending item as
// "<kind>:<id>", e.g. "binding:b-17".
type Error struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Source   string   `json:"source_reference"`
}

// Validation is the full report of one validation pass.
type Validation struct {
	Errors []Error `json:"errors"`
	Valid  bool    `json:"is_valid"`
}

// Count returns how many entries have the given category.
func (v Validation) Count(c Category) int {
	n := 0
	for _, e := range v.Errors {
		if e.Category == c {
			n++
		}
	}
	return n
}

// report accumulates entries per category and assembles them in order.
type report struct {
	byCategory map[Category][]Error
}

func newReport() *report {
	return &report{byCategory: make(map[Category][]Error)}
}

func (r *report) add(c Category, source string, format string, args ...any) {
	r.byCategory[c] = append(r.byCategory[c], Error{
		Category: c,
		Severity: c.Severity(),
		Message:  fmt.Sprintf(format, args...),
		Source:   source,
	})
}

func (r *report) build() Validation {
	v := Validation{Errors: []Error{}, Valid: true}
	for _, c := range categoryOrder {
		for _, e := range r.byCategory[c] {
			v.Errors = append(v.Errors, e)
			if e.Severity == SeverityError {
				v.Valid = false
			}
		}
	}
	return v
}
