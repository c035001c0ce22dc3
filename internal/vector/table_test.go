package vector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/cordsearch/internal/models"
)

func TestNewTable(t *testing.T) {
	tbl, err := NewTable("gen-1", []string{"aaaaaaaa", "bbbbbbbb"}, [][]float32{{1, 0, 0}, {0, 1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 2 || tbl.Dimensions() != 3 {
		t.Errorf("Len=%d Dimensions=%d", tbl.Len(), tbl.Dimensions())
	}
	if tbl.ID(1) != "bbbbbbbb" || tbl.ID(5) != "" {
		t.Errorf("ID lookups wrong: %q %q", tbl.ID(1), tbl.ID(5))
	}
	if tbl.Generation() != "gen-1" {
		t.Errorf("Generation=%q", tbl.Generation())
	}
}

func TestNewTable_CopiesInput(t *testing.T) {
	src := [][]float32{{1, 2}}
	tbl, err := NewTable("", nil, src)
	if err != nil {
		t.Fatal(err)
	}
	src[0][0] = 99
	if tbl.Row(0)[0] != 1 {
		t.Error("table should not alias caller's vectors")
	}
	if tbl.HasIDs() {
		t.Error("table built without ids should report HasIDs false")
	}
}

func TestNewTable_Errors(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		vectors [][]float32
	}{
		{"ragged dimensions", nil, [][]float32{{1, 0}, {1, 0, 0}}},
		{"id count mismatch", []string{"a"}, [][]float32{{1}, {2}}},
		{"zero dimension", nil, [][]float32{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable("", tt.ids, tt.vectors)
			if !errors.Is(err, models.ErrData) {
				t.Errorf("expected ErrData, got %v", err)
			}
		})
	}
}

func TestNewTable_Empty(t *testing.T) {
	tbl, err := NewTable("", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 0 || tbl.Dimensions() != 0 {
		t.Errorf("empty table: Len=%d Dimensions=%d", tbl.Len(), tbl.Dimensions())
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "embeddings.bin")
	orig, err := NewTable("gen-42", []string{"aaaaaaaa", "bbbbbbbb"}, [][]float32{{0.5, -0.25}, {1e-3, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if err := orig.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away")
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Generation() != "gen-42" || got.Len() != 2 || got.Dimensions() != 2 {
		t.Fatalf("loaded header mismatch: gen=%q len=%d dim=%d", got.Generation(), got.Len(), got.Dimensions())
	}
	if !got.HasIDs() || got.ID(0) != "aaaaaaaa" {
		t.Errorf("ids not restored: %q", got.ID(0))
	}
	if got.Row(1)[1] != 3 || got.Row(0)[1] != -0.25 {
		t.Errorf("vectors not restored: %v %v", got.Row(0), got.Row(1))
	}
}

func TestSaveLoad_WithoutIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.bin")
	orig, _ := NewTable("", nil, [][]float32{{1, 2, 3}})
	if err := orig.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.HasIDs() {
		t.Error("table saved without ids should load without ids")
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.bin")); !errors.Is(err, models.ErrData) {
		t.Errorf("missing file: expected ErrData, got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.bin")
	_ = os.WriteFile(garbage, []byte("not a table at all"), 0600)
	if _, err := Load(garbage); !errors.Is(err, models.ErrData) {
		t.Errorf("garbage file: expected ErrData, got %v", err)
	}

	full := filepath.Join(dir, "full.bin")
	tbl, _ := NewTable("g", []string{"aaaaaaaa"}, [][]float32{{1, 2, 3, 4}})
	if err := tbl.Save(full); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(full)
	truncated := filepath.Join(dir, "truncated.bin")
	_ = os.WriteFile(truncated, data[:len(data)-3], 0600)
	if _, err := Load(truncated); !errors.Is(err, models.ErrData) {
		t.Errorf("truncated file: expected ErrData, got %v", err)
	}
}

func corruptHeader(dim, n uint32) []byte {
	var b bytes.Buffer
	b.WriteString(fileMagic)
	_ = binary.Write(&b, binary.LittleEndian, fileVersion)
	_ = binary.Write(&b, binary.LittleEndian, uint32(0)) // empty generation
	_ = binary.Write(&b, binary.LittleEndian, dim)
	_ = binary.Write(&b, binary.LittleEndian, n)
	return b.Bytes()
}

func TestLoad_CorruptHeader(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		dim  uint32
		n    uint32
	}{
		{"huge dimension", 0xFFFFFFF0, 1},
		{"dimension above limit", maxDimensions + 1, 1},
		{"count larger than file", 384, 0xFFFFFFFF},
		{"rows missing", 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "corrupt.bin")
			if err := os.WriteFile(path, corruptHeader(tt.dim, tt.n), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); !errors.Is(err, models.ErrData) {
				t.Errorf("expected ErrData, got %v", err)
			}
		})
	}
}

func TestSave_RenameFailureRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "vectors.bin")
	// A non-empty directory at the target path makes the rename fail.
	if err := os.MkdirAll(filepath.Join(target, "child"), 0755); err != nil {
		t.Fatal(err)
	}
	tbl, _ := NewTable("g", nil, [][]float32{{1, 2}})
	if err := tbl.Save(target); err == nil {
		t.Fatal("expected rename error")
	}
	if _, err := os.Stat(target + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestInnerProductAndNorm(t *testing.T) {
	if got := InnerProduct([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Errorf("InnerProduct = %v", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("length mismatch should be 0, got %v", got)
	}
	if got := L2Norm([]float32{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("L2Norm = %v", got)
	}
}
