// Package ranking orders vector table rows by cosine distance to a query vector.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/internal/vector"
	"github.com/hyperjump/cordsearch/pkg/utils"
)

const (
	// Scale maps similarity in [-1, 1] to a score in [-10, 10].
	Scale = 10
	// Precision is the number of decimal places kept in a score.
	Precision = 3
)

// Candidate is a ranked table row.
type Candidate struct {
	Index    int
	Distance float64
}

// Rows is the view of a vector table the ranker reads.
type Rows interface {
	Len() int
	Dimensions() int
	Row(i int) []float32
}

var _ Rows = (*vector.Table)(nil)

// CosineDistance returns 1 - cos(a, b) clipped to [0, 2]. If either vector has zero
// norm the similarity is taken as 0. Vectors of different length yield ErrDimension.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", models.ErrDimension, len(a), len(b))
	}
	return distance(a, b, vector.L2Norm(a)), nil
}

func distance(query, row []float32, queryNorm float64) float64 {
	rowNorm := vector.L2Norm(row)
	if queryNorm == 0 || rowNorm == 0 {
		return 1
	}
	d := 1 - vector.InnerProduct(query, row)/(queryNorm*rowNorm)
	switch {
	case math.IsNaN(d):
		return 2
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// Rank scores every row of rows against query and returns all rows sorted by
// ascending distance. Equal distances keep ascending row order.
func Rank(query []float32, rows Rows) ([]Candidate, error) {
	n := rows.Len()
	if n == 0 {
		return []Candidate{}, nil
	}
	if len(query) != rows.Dimensions() {
		return nil, fmt.Errorf("%w: query has %d dimensions, table has %d", models.ErrDimension, len(query), rows.Dimensions())
	}

	queryNorm := vector.L2Norm(query)
	candidates := make([]Candidate, n)
	for i := 0; i < n; i++ {
		candidates[i] = Candidate{Index: i, Distance: distance(query, rows.Row(i), queryNorm)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	return candidates, nil
}

// Score converts a cosine distance to the reported similarity score.
func Score(distance float64) float64 {
	return utils.Round((1-distance)*Scale, Precision)
}
