package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/cordsearch/internal/models"
)

// ColumnMap names the source columns holding each record field.
type ColumnMap struct {
	Text        string
	PublishedAt string
	Language    string
	Title       string
	URL         string
	Topic       string
	Subtopic    string
	ID          string
}

// DefaultColumns matches the CORD-19 metadata export.
func DefaultColumns() ColumnMap {
	return ColumnMap{
		Text:        "abstract",
		PublishedAt: "publish_time",
		Language:    "language",
		Title:       "title",
		URL:         "url",
		Topic:       "main_topic",
		Subtopic:    "main_subtopic",
		ID:          "cord_uid",
	}
}

// withDefaults fills unset column names from DefaultColumns.
func (c ColumnMap) withDefaults() ColumnMap {
	d := DefaultColumns()
	set := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	set(&c.Text, d.Text)
	set(&c.PublishedAt, d.PublishedAt)
	set(&c.Language, d.Language)
	set(&c.Title, d.Title)
	set(&c.URL, d.URL)
	set(&c.Topic, d.Topic)
	set(&c.Subtopic, d.Subtopic)
	set(&c.ID, d.ID)
	return c
}

// ReadSource reads raw corpus rows from a .csv or .xlsx file with a header row.
// Rows are returned unvalidated and in file order; pass them to Load.
func ReadSource(path string, cols ColumnMap) ([]models.Record, error) {
	cols = cols.withDefaults()
	var (
		table [][]string
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		table, err = readXLSX(path)
	case ".csv", "":
		table, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%w: unsupported corpus source %q (use .csv or .xlsx)", models.ErrData, path)
	}
	if err != nil {
		return nil, err
	}
	return mapRows(table, cols)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open corpus source: %v", models.ErrData, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var table [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read corpus source: %v", models.ErrData, err)
		}
		table = append(table, row)
	}
	return table, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open corpus workbook: %v", models.ErrData, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: corpus workbook has no sheets", models.ErrData)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: get rows for sheet %q: %v", models.ErrData, sheets[0], err)
	}
	return rows, nil
}

func mapRows(table [][]string, cols ColumnMap) ([]models.Record, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: corpus source is empty", models.ErrData)
	}
	index := make(map[string]int, len(table[0]))
	for i, name := range table[0] {
		name = strings.TrimPrefix(name, "\ufeff")
		index[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{cols.Text, cols.ID} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: corpus source has no %q column", models.ErrData, required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	records := make([]models.Record, 0, len(table)-1)
	for _, row := range table[1:] {
		records = append(records, models.Record{
			ID:          cell(row, cols.ID),
			Text:        cell(row, cols.Text),
			PublishedAt: cell(row, cols.PublishedAt),
			Language:    cell(row, cols.Language),
			Title:       cell(row, cols.Title),
			URL:         cell(row, cols.URL),
			Topic:       cell(row, cols.Topic),
			Subtopic:    cell(row, cols.Subtopic),
		})
	}
	return records, nil
}
