package models

import (
	"fmt"
	"strings"
)

// Default request bounds, used when a SearchQuery is validated against a zero QueryLimits.
const (
	DefaultK       = 5
	DefaultMaxK    = 2000
	DefaultMinYear = 1951
	DefaultMaxYear = 2020
)

// DefaultLanguages is the set of language codes a request may filter on.
var DefaultLanguages = []string{"de", "en", "es", "fr", "it", "ja", "pt", "zh"}

// SearchQuery is a search request as received from a caller (HTTP body, CLI flags).
type SearchQuery struct {
	Query    string `json:"query"`
	K        *int   `json:"k,omitempty"`
	DateMin  *int   `json:"date_min,omitempty"`
	DateMax  *int   `json:"date_max,omitempty"`
	Language string `json:"language,omitempty"`
}

// QueryLimits are the caller-facing validation rules for a SearchQuery.
type QueryLimits struct {
	DefaultK  int
	MaxK      int
	MinYear   int
	MaxYear   int
	Languages []string
}

func (l QueryLimits) withDefaults() QueryLimits {
	if l.DefaultK <= 0 {
		l.DefaultK = DefaultK
	}
	if l.MaxK <= 0 {
		l.MaxK = DefaultMaxK
	}
	if l.MinYear == 0 {
		l.MinYear = DefaultMinYear
	}
	if l.MaxYear == 0 {
		l.MaxYear = DefaultMaxYear
	}
	if len(l.Languages) == 0 {
		l.Languages = DefaultLanguages
	}
	return l
}

// Validate checks the request against limits and fills in the default K.
// Errors wrap ErrValidation.
func (q *SearchQuery) Validate(limits QueryLimits) error {
	limits = limits.withDefaults()
	if q.K == nil {
		k := limits.DefaultK
		q.K = &k
	}
	if *q.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrValidation, *q.K)
	}
	if *q.K > limits.MaxK {
		return fmt.Errorf("%w: k must be at most %d, got %d", ErrValidation, limits.MaxK, *q.K)
	}
	if err := checkYear("date_min", q.DateMin, limits); err != nil {
		return err
	}
	if err := checkYear("date_max", q.DateMax, limits); err != nil {
		return err
	}
	if q.DateMin != nil && q.DateMax != nil && *q.DateMax < *q.DateMin {
		return fmt.Errorf("%w: date_max %d is before date_min %d", ErrValidation, *q.DateMax, *q.DateMin)
	}
	q.Language = strings.ToLower(strings.TrimSpace(q.Language))
	if q.Language != "" && !contains(limits.Languages, q.Language) {
		return fmt.Errorf("%w: language %q not one of %s", ErrValidation, q.Language, strings.Join(limits.Languages, ", "))
	}
	return nil
}

func checkYear(name string, year *int, limits QueryLimits) error {
	if year == nil {
		return nil
	}
	if *year < limits.MinYear || *year > limits.MaxYear {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrValidation, name, limits.MinYear, limits.MaxYear, *year)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
