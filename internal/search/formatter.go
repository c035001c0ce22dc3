package search

import "github.com/hyperjump/cordsearch/internal/models"

// Shape builds the response for ranked items: a count of items per language plus
// the items themselves in the given order. Items without a language are not counted.
func Shape(items []models.ResultItem) *models.SearchResponse {
	resp := &models.SearchResponse{
		AggregateStats: make(map[string]int),
		Items:          make([]models.ResultItem, len(items)),
	}
	copy(resp.Items, items)
	for _, it := range items {
		if it.Language != "" {
			resp.AggregateStats[it.Language]++
		}
	}
	return resp
}
