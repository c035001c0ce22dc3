package corpus

import (
	"errors"
	"testing"

	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/internal/vector"
)

func TestLoad(t *testing.T) {
	rows := []models.Record{
		{ID: "aaaaaaaa", Text: "  masks   reduce\ttransmission ", Language: "en"},
		{ID: "bbbbbbbb", Text: "Unknown"},
		{ID: "cccccccc", Text: ""},
		{ID: "short", Text: "bad id"},
		{ID: "aaaaaaaa", Text: "duplicate"},
		{ID: " dddddddd ", Text: "vaccine trial", PublishedAt: "2020-03-01"},
	}
	store, report, err := Load("gen-1", rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("Len = %d, want 2", store.Len())
	}
	if store.Generation() != "gen-1" {
		t.Errorf("Generation = %q", store.Generation())
	}
	first, _ := store.Get(0)
	if first.Text != "masks reduce transmission" {
		t.Errorf("text not normalized: %q", first.Text)
	}
	second, _ := store.Get(1)
	if second.ID != "dddddddd" {
		t.Errorf("id not trimmed: %q", second.ID)
	}
	want := LoadReport{Rows: 6, Kept: 2, EmptyText: 2, InvalidID: 1, DuplicateIDs: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}
	if report.Dropped() != 4 {
		t.Errorf("Dropped = %d, want 4", report.Dropped())
	}
}

func TestLoadNoSurvivors(t *testing.T) {
	_, _, err := Load("", []models.Record{{ID: "aaaaaaaa", Text: "unknown"}})
	if !errors.Is(err, models.ErrData) {
		t.Fatalf("expected ErrData, got %v", err)
	}
	_, _, err = Load("", nil)
	if !errors.Is(err, models.ErrData) {
		t.Fatalf("expected ErrData for empty input, got %v", err)
	}
}

func TestStoreGet(t *testing.T) {
	store := NewStore("", []models.Record{{ID: "aaaaaaaa", Text: "a"}})
	if _, err := store.Get(0); err != nil {
		t.Fatalf("Get(0): %v", err)
	}
	for _, i := range []int{-1, 1, 100} {
		if _, err := store.Get(i); !errors.Is(err, models.ErrIndexOutOfRange) {
			t.Errorf("Get(%d) error = %v, want ErrIndexOutOfRange", i, err)
		}
	}
}

func TestNewStoreCopiesInput(t *testing.T) {
	records := []models.Record{{ID: "aaaaaaaa", Text: "a"}}
	store := NewStore("", records)
	records[0].Text = "changed"
	got, _ := store.Get(0)
	if got.Text != "a" {
		t.Errorf("store shares caller slice")
	}
	out := store.Records()
	out[0].Text = "changed"
	got, _ = store.Get(0)
	if got.Text != "a" {
		t.Errorf("Records leaks internal slice")
	}
}

func TestStoreValid(t *testing.T) {
	store := NewStore("", []models.Record{{ID: "aaaaaaaa"}, {ID: "bad"}})
	tests := []struct {
		i    int
		want bool
	}{
		{0, true},
		{1, false},
		{2, false},
		{-1, false},
	}
	for _, tt := range tests {
		if got := store.Valid(tt.i); got != tt.want {
			t.Errorf("Valid(%d) = %v, want %v", tt.i, got, tt.want)
		}
	}
}

func mustTable(t *testing.T, gen string, ids []string, n int) *vector.Table {
	t.Helper()
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = []float32{1, 0}
	}
	table, err := vector.NewTable(gen, ids, vecs)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestValidateAlignment(t *testing.T) {
	records := []models.Record{{ID: "aaaaaaaa"}, {ID: "bbbbbbbb"}}
	tests := []struct {
		name    string
		store   *Store
		table   *vector.Table
		wantErr bool
	}{
		{"aligned without ids", NewStore("", records), mustTable(t, "", nil, 2), false},
		{"aligned with ids", NewStore("g", records), mustTable(t, "g", []string{"aaaaaaaa", "bbbbbbbb"}, 2), false},
		{"empty both", NewStore("", nil), mustTable(t, "", nil, 0), false},
		{"length mismatch", NewStore("", records), mustTable(t, "", nil, 3), true},
		{"generation mismatch", NewStore("g1", records), mustTable(t, "g2", nil, 2), true},
		{"id mismatch", NewStore("", records), mustTable(t, "", []string{"aaaaaaaa", "cccccccc"}, 2), true},
		{"malformed first id", NewStore("", []models.Record{{ID: "x"}}), mustTable(t, "", nil, 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.store.ValidateAlignment(tt.table)
			if tt.wantErr {
				if !errors.Is(err, models.ErrAlignment) {
					t.Fatalf("expected ErrAlignment, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateAlignmentNilTable(t *testing.T) {
	store := NewStore("", nil)
	if err := store.ValidateAlignment(nil); !errors.Is(err, models.ErrAlignment) {
		t.Fatalf("expected ErrAlignment, got %v", err)
	}
}
