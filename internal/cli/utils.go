// Package cli provides terminal output and the interactive prompt for cordsearch.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is the SearchResponse as structured JSON.
	OutputJSON SearchOutputFormat = "json"
	// OutputRanked is a JSON object keyed by rank holding abstract, score, date and language.
	OutputRanked SearchOutputFormat = "ranked"
	// OutputCompact prints one line per result.
	OutputCompact SearchOutputFormat = "compact"
)

// AbstractWidth is the column at which abstracts are wrapped in text output.
const AbstractWidth = 75

const separator = "─────────────────────────────────────────────────────────────────────────────"

// ParseOutputFormat returns the format named by s (case-insensitive). Empty means text.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputText, nil
	case OutputText, OutputJSON, OutputRanked, OutputCompact:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, ranked or compact)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputRanked:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		enc.SetEscapeHTML(false)
		return enc.Encode(rankedAnswers(response))
	case OutputCompact:
		writeSearchResultsCompact(w, response)
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

// RankedAnswer is one entry of the ranked output.
type RankedAnswer struct {
	Abstract string  `json:"abstract"`
	Score    float64 `json:"score"`
	Date     string  `json:"date"`
	Language string  `json:"language"`
}

func rankedAnswers(response *models.SearchResponse) map[string]RankedAnswer {
	out := make(map[string]RankedAnswer, len(response.Items))
	for _, item := range response.Items {
		out[strconv.Itoa(item.Rank)] = RankedAnswer{
			Abstract: item.Text,
			Score:    item.Score,
			Date:     item.PublishedAt,
			Language: item.Language,
		}
	}
	return out
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results", len(response.Items))
	if langs := formatTally(response.AggregateStats); langs != "" {
		fmt.Fprintf(w, " (%s)", langs)
	}
	fmt.Fprint(w, "\n\n")
	for _, item := range response.Items {
		writeOneResult(w, item)
	}
}

func writeOneResult(w io.Writer, item models.ResultItem) {
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "Rank: %d | Score: %.3f | Date: %s | Language: %s\n",
		item.Rank, item.Score, orDash(item.PublishedAt), orDash(item.Language))
	fmt.Fprintf(w, "ID: %s\n", item.ID)
	if item.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", item.Title)
	}
	if item.URL != "" {
		fmt.Fprintf(w, "URL: %s\n", item.URL)
	}
	fmt.Fprintln(w)
	for _, line := range utils.Wrap(item.Text, AbstractWidth) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for _, item := range response.Items {
		fmt.Fprintf(w, "%d\t%.3f\t%s\t%s\t%s\t%s\n",
			item.Rank, item.Score, item.ID, orDash(item.PublishedAt), orDash(item.Language),
			Truncate(item.Text, 80))
	}
}

// formatTally renders the language tally as "en: 3, fr: 1" in language order.
func formatTally(stats map[string]int) string {
	if len(stats) == 0 {
		return ""
	}
	parts := make([]string, 0, len(stats))
	for _, lang := range sortedKeys(stats) {
		parts = append(parts, fmt.Sprintf("%s: %d", lang, stats[lang]))
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
