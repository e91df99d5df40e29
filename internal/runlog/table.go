// Package runlog maintains the run-level audit log: one row per
// (keyword, search ID, start date, end date) tuple, upserted after every run.
package runlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
)

// Column names of the audit log, in file order.
const (
	ColKeyword      = "Keyword"
	ColSearchID     = "SearchID"
	ColStartDate    = "StartDate"
	ColEndDate      = "EndDate"
	ColTotalRecords = "TotalRecords"
	ColCaptureTime  = "CaptureTime"
)

// Header is the column layout of a freshly created log.
var Header = []string{ColKeyword, ColSearchID, ColStartDate, ColEndDate, ColTotalRecords, ColCaptureTime}

var keyColumns = []string{ColKeyword, ColSearchID, ColStartDate, ColEndDate}

// ErrMalformed is returned by ParseCSV when the data is not a usable log.
var ErrMalformed = errors.New("malformed run log")

// Entry is one run's audit row.
type Entry struct {
	Keyword      string
	SearchID     string
	StartDate    string
	EndDate      string
	TotalRecords int
	CaptureTime  string
}

func (e Entry) values() map[string]string {
	return map[string]string{
		ColKeyword:      e.Keyword,
		ColSearchID:     e.SearchID,
		ColStartDate:    e.StartDate,
		ColEndDate:      e.EndDate,
		ColTotalRecords: strconv.Itoa(e.TotalRecords),
		ColCaptureTime:  e.CaptureTime,
	}
}

// Table is an in-memory copy of the log. Columns beyond Header are carried
// through untouched.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// NewTable returns an empty log with the standard header.
func NewTable() *Table {
	t := &Table{Header: append([]string(nil), Header...)}
	t.reindex()
	return t
}

// ParseCSV reads a log. The header must contain every key column.
func ParseCSV(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	t := &Table{Header: records[0]}
	t.reindex()
	for _, col := range keyColumns {
		if _, ok := t.index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformed, col)
		}
	}
	width := len(t.Header)
	for _, rec := range records[1:] {
		width = max(width, len(rec))
	}
	// Rows wider than the header get placeholder column names so no cell is dropped.
	for i := len(t.Header); i < width; i++ {
		t.Header = append(t.Header, fmt.Sprintf("Unnamed: %d", i))
	}
	t.reindex()
	for _, rec := range records[1:] {
		row := make([]string, width)
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, name := range t.Header {
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
}

// Upsert overwrites the non-key columns of every row whose key columns equal
// e's, or appends a new row when none match. It reports whether an existing
// row was updated. Log columns missing from the header are appended to it.
func (t *Table) Upsert(e Entry) bool {
	if t.index == nil {
		t.reindex()
	}
	for _, col := range Header {
		if _, ok := t.index[col]; !ok {
			t.Header = append(t.Header, col)
			t.index[col] = len(t.Header) - 1
			for i := range t.Rows {
				t.Rows[i] = append(t.Rows[i], "")
			}
		}
	}

	vals := e.values()
	updated := false
	for _, row := range t.Rows {
		if !t.matches(row, vals) {
			continue
		}
		for col, v := range vals {
			row[t.index[col]] = v
		}
		updated = true
	}
	if updated {
		return true
	}

	row := make([]string, len(t.Header))
	for col, v := range vals {
		row[t.index[col]] = v
	}
	t.Rows = append(t.Rows, row)
	return false
}

func (t *Table) matches(row []string, vals map[string]string) bool {
	for _, col := range keyColumns {
		if row[t.index[col]] != vals[col] {
			return false
		}
	}
	return true
}

// Lookup returns the first row matching the key of e as an Entry-shaped map.
func (t *Table) Lookup(e Entry) (map[string]string, bool) {
	vals := e.values()
	for _, row := range t.Rows {
		if t.matches(row, vals) {
			out := make(map[string]string, len(t.Header))
			for i, name := range t.Header {
				out[name] = row[i]
			}
			return out, true
		}
	}
	return nil, false
}

// Encode renders the table as CSV with a header line.
func (t *Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	return buf.Bytes(), nil
}
