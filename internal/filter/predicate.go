// Package filter turns request-level filters into per-field predicates over records.
package filter

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/cordsearch/internal/models"
)

// Spec is the request-level filter. Nil bounds and an empty language impose no constraint.
type Spec struct {
	DateMin  *int   `json:"date_min,omitempty"`
	DateMax  *int   `json:"date_max,omitempty"`
	Language string `json:"language,omitempty"`
}

// Predicate reports whether a field value is acceptable.
type Predicate func(value string) bool

// PredicateSet maps record field names to predicates.
type PredicateSet map[string]Predicate

// Build converts spec into a predicate set.
func Build(spec Spec) PredicateSet {
	set := make(PredicateSet, 2)
	if spec.DateMin != nil || spec.DateMax != nil {
		set[models.FieldPublishedAt] = yearRange(spec.DateMin, spec.DateMax)
	}
	if lang := strings.TrimSpace(spec.Language); lang != "" {
		set[models.FieldLanguage] = equals(lang)
	}
	return set
}

// Admits reports whether every predicate whose field is present on r accepts the value.
// A record missing a field is not constrained by that field's predicate.
func (s PredicateSet) Admits(r *models.Record) bool {
	for field, pred := range s {
		value, ok := r.Field(field)
		if !ok {
			continue
		}
		if !pred(value) {
			return false
		}
	}
	return true
}

// Keys returns the constrained field names in sorted order.
func (s PredicateSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Year extracts the year from the leading four characters of a published date.
func Year(publishedAt string) (int, bool) {
	v := strings.TrimSpace(publishedAt)
	if len(v) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(v[:4])
	if err != nil {
		return 0, false
	}
	return year, true
}

func yearRange(min, max *int) Predicate {
	return func(value string) bool {
		year, ok := Year(value)
		if !ok {
			return false
		}
		if min != nil && year < *min {
			return false
		}
		if max != nil && year > *max {
			return false
		}
		return true
	}
}

func equals(want string) Predicate {
	return func(value string) bool {
		return strings.EqualFold(strings.TrimSpace(value), want)
	}
}
