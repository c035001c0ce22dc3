package models

// ResultItem is a single ranked hit. Optional fields are omitted when the source value is missing.
type ResultItem struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
	Text        string  `json:"text,omitempty"`
	PublishedAt string  `json:"published_at,omitempty"`
	Language    string  `json:"language,omitempty"`
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url,omitempty"`
	Topic       string  `json:"topic,omitempty"`
	Subtopic    string  `json:"subtopic,omitempty"`
}

// SearchResponse is the engine's answer: a per-language tally and the items in rank order.
// AggregateStats and Items are never nil so an empty answer encodes as {} and [].
type SearchResponse struct {
	AggregateStats map[string]int `json:"aggregate_stats"`
	Items          []ResultItem   `json:"items"`
}
