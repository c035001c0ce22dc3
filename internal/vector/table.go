// Package vector holds the read-only vector table aligned with the record store,
// and its on-disk cache format.
package vector

import (
	"fmt"

	"github.com/hyperjump/cordsearch/internal/models"
)

// Table is an immutable, positionally ordered set of fixed-dimension vectors.
// Row i belongs to record i of the store built from the same cache generation.
type Table struct {
	generation string
	dimensions int
	ids        []string
	vectors    [][]float32
}

// NewTable builds a table from vectors. ids is optional; when given it must have one
// entry per vector and is used to verify alignment with the record store.
// All vectors must share one dimension. Vectors are copied.
func NewTable(generation string, ids []string, vectors [][]float32) (*Table, error) {
	if ids != nil && len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d ids for %d vectors", models.ErrData, len(ids), len(vectors))
	}
	t := &Table{generation: generation}
	if len(vectors) > 0 {
		t.dimensions = len(vectors[0])
		if t.dimensions == 0 {
			return nil, fmt.Errorf("%w: vectors must have positive dimension", models.ErrData)
		}
	}
	t.vectors = make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != t.dimensions {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", models.ErrData, i, len(v), t.dimensions)
		}
		vec := make([]float32, t.dimensions)
		copy(vec, v)
		t.vectors[i] = vec
	}
	if ids != nil {
		t.ids = append([]string(nil), ids...)
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.vectors)
}

// Dimensions returns the vector dimension (0 for an empty table).
func (t *Table) Dimensions() int {
	return t.dimensions
}

// Generation returns the cache generation the table was written under, or "".
func (t *Table) Generation() string {
	return t.generation
}

// HasIDs reports whether the table carries a record ID per row.
func (t *Table) HasIDs() bool {
	return t.ids != nil
}

// ID returns the record ID stored for row i, or "" when the table has no IDs.
func (t *Table) ID(i int) string {
	if t.ids == nil || i < 0 || i >= len(t.ids) {
		return ""
	}
	return t.ids[i]
}

// Row returns vector i. The returned slice must not be modified.
func (t *Table) Row(i int) []float32 {
	return t.vectors[i]
}
