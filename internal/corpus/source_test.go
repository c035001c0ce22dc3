package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/cordsearch/internal/models"
)

const sampleCSV = "\ufeffcord_uid,title,abstract,publish_time,language,url,main_topic,main_subtopic\n" +
	"aaaaaaaa,Masks,\"Masks reduce, transmission\",2020-05-01,en,https://a.example,Prevention,Masks\n" +
	"bbbbbbbb,Short row,Some abstract\n" +
	"cccccccc,Unknown abstract,Unknown,2019,fr,,,\n"

func TestReadSourceCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := ReadSource(path, ColumnMap{})
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	want := models.Record{
		ID:          "aaaaaaaa",
		Text:        "Masks reduce, transmission",
		PublishedAt: "2020-05-01",
		Language:    "en",
		Title:       "Masks",
		URL:         "https://a.example",
		Topic:       "Prevention",
		Subtopic:    "Masks",
	}
	if rows[0] != want {
		t.Errorf("row 0 = %+v, want %+v", rows[0], want)
	}
	if rows[1].ID != "bbbbbbbb" || rows[1].PublishedAt != "" {
		t.Errorf("short row not padded: %+v", rows[1])
	}

	store, report, err := Load("", rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.Len() != 2 || report.EmptyText != 1 {
		t.Errorf("Len = %d, report = %+v", store.Len(), report)
	}
}

func TestReadSourceCustomColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.csv")
	content := "doc,body\naaaaaaaa,hello world\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := ReadSource(path, ColumnMap{ID: "doc", Text: "body"})
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "aaaaaaaa" || rows[0].Text != "hello world" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestReadSourceXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	data := [][]interface{}{
		{"cord_uid", "abstract", "language"},
		{"aaaaaaaa", "first abstract", "en"},
		{"bbbbbbbb", "second abstract", "es"},
	}
	for i, row := range data {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	rows, err := ReadSource(path, DefaultColumns())
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1].Language != "es" || rows[1].Text != "second abstract" {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestReadSourceErrors(t *testing.T) {
	dir := t.TempDir()
	noText := filepath.Join(dir, "notext.csv")
	_ = os.WriteFile(noText, []byte("cord_uid,title\naaaaaaaa,x\n"), 0o644)
	empty := filepath.Join(dir, "empty.csv")
	_ = os.WriteFile(empty, nil, 0o644)
	pdf := filepath.Join(dir, "paper.pdf")
	_ = os.WriteFile(pdf, []byte("%PDF"), 0o644)

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "nope.csv")},
		{"missing text column", noText},
		{"empty file", empty},
		{"unsupported extension", pdf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSource(tt.path, DefaultColumns())
			if !errors.Is(err, models.ErrData) {
				t.Fatalf("expected ErrData, got %v", err)
			}
		})
	}
}
