// Package corpus provides the record store: the ordered, read-only set of corpus
// records that the vector table is aligned with.
package corpus

import (
	"fmt"
	"strings"

	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/pkg/utils"
)

// unknownText is the sentinel the source uses for a missing abstract.
const unknownText = "unknown"

// Store is an immutable ordered collection of records. Index i corresponds to row i
// of the vector table built from the same generation.
type Store struct {
	generation string
	records    []models.Record
}

// LoadReport counts the rows dropped while loading a corpus source.
type LoadReport struct {
	Rows         int
	Kept         int
	EmptyText    int
	InvalidID    int
	DuplicateIDs int
}

// Dropped returns the total number of rejected rows.
func (r LoadReport) Dropped() int {
	return r.EmptyText + r.InvalidID + r.DuplicateIDs
}

// Load builds a store from raw source rows. Rows with empty or "Unknown" text, an ID
// that fails the fixed-shape check, or an ID already seen are dropped; text is
// whitespace-normalized. A source with no surviving rows fails with ErrData.
func Load(generation string, rows []models.Record) (*Store, LoadReport, error) {
	report := LoadReport{Rows: len(rows)}
	seen := make(map[string]struct{}, len(rows))
	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		text := utils.CollapseWhitespace(row.Text)
		if text == "" || strings.EqualFold(text, unknownText) {
			report.EmptyText++
			continue
		}
		id := strings.TrimSpace(row.ID)
		if !models.ValidID(id) {
			report.InvalidID++
			continue
		}
		if _, dup := seen[id]; dup {
			report.DuplicateIDs++
			continue
		}
		seen[id] = struct{}{}
		row.ID = id
		row.Text = text
		records = append(records, row)
	}
	report.Kept = len(records)
	if len(records) == 0 {
		return nil, report, fmt.Errorf("%w: corpus has no valid records (%d rows read)", models.ErrData, report.Rows)
	}
	return &Store{generation: generation, records: records}, report, nil
}

// NewStore wraps records restored from the corpus cache. Records are kept exactly as
// given, in order, so that positional alignment with the vector table is preserved.
func NewStore(generation string, records []models.Record) *Store {
	return &Store{
		generation: generation,
		records:    append([]models.Record(nil), records...),
	}
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Generation returns the cache generation the store belongs to, or "".
func (s *Store) Generation() string {
	return s.generation
}

// Get returns record i.
func (s *Store) Get(i int) (models.Record, error) {
	if i < 0 || i >= len(s.records) {
		return models.Record{}, fmt.Errorf("%w: record %d of %d", models.ErrIndexOutOfRange, i, len(s.records))
	}
	return s.records[i], nil
}

// Valid reports whether record i exists and has a well-formed ID.
func (s *Store) Valid(i int) bool {
	return i >= 0 && i < len(s.records) && models.ValidID(s.records[i].ID)
}

// Records returns a copy of the records in store order.
func (s *Store) Records() []models.Record {
	return append([]models.Record(nil), s.records...)
}

// Vectors is the view of a vector table needed for the alignment check.
type Vectors interface {
	Len() int
	Generation() string
	HasIDs() bool
	ID(i int) string
}

// ValidateAlignment checks that vectors can serve this store: equal lengths, a
// well-formed first record ID, matching generations when both are known, and
// matching IDs row by row when the table carries them. Failures wrap ErrAlignment.
func (s *Store) ValidateAlignment(v Vectors) error {
	if v == nil {
		return fmt.Errorf("%w: no vector table", models.ErrAlignment)
	}
	if s.Len() != v.Len() {
		return fmt.Errorf("%w: %d records but %d vectors", models.ErrAlignment, s.Len(), v.Len())
	}
	if s.Len() == 0 {
		return nil
	}
	if !models.ValidID(s.records[0].ID) {
		return fmt.Errorf("%w: first record id %q is malformed", models.ErrAlignment, s.records[0].ID)
	}
	if s.generation != "" && v.Generation() != "" && s.generation != v.Generation() {
		return fmt.Errorf("%w: corpus generation %s, vector generation %s", models.ErrAlignment, s.generation, v.Generation())
	}
	if v.HasIDs() {
		for i := range s.records {
			if s.records[i].ID != v.ID(i) {
				return fmt.Errorf("%w: row %d is record %q but vector %q", models.ErrAlignment, i, s.records[i].ID, v.ID(i))
			}
		}
	}
	return nil
}
