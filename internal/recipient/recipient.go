// Package recipient reads mail-merge recipients from a CSV file with a header
// row. Columns are located by header name; row order is preserved.
package recipient

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column headers the source must expose.
const (
	ColumnName    = "name"
	ColumnEmail   = "email"
	ColumnCompany = "company"
)

// ErrMissingColumn is returned when the header row lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Record is one recipient row. Empty fields are absent values.
type Record struct {
	// Row is the 1-based data row number, not counting the header.
	Row     int
	Name    string
	Email   string
	Company string
}

// RowError reports a malformed data row. The reader stays usable after it.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Reader yields Records in file order.
type Reader struct {
	csv     *csv.Reader
	closer  io.Closer
	columns map[string]int
	row     int
}

// Open opens a CSV file and reads its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipients file: %w", err)
	}

	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header from r and prepares header-based lookup.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("recipients file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}

	for _, required := range []string{ColumnName, ColumnEmail, ColumnCompany} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, required)
		}
	}

	return &Reader{csv: cr, columns: columns}, nil
}

// Next returns the next Record. It returns io.EOF after the last row and a
// *RowError for a malformed row, after which reading may continue. Any other
// error means the source cannot be read further.
func (r *Reader) Next() (Record, error) {
	fields, err := r.csv.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	}

	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		r.row++
		return Record{}, &RowError{Row: r.row, Err: parseErr.Err}
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read recipients: %w", err)
	}

	// encoding/csv drops empty lines; a row of blank cells is still a row.
	r.row++
	return Record{
		Row:     r.row,
		Name:    r.field(fields, ColumnName),
		Email:   r.field(fields, ColumnEmail),
		Company: r.field(fields, ColumnCompany),
	}, nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// field returns the trimmed cell for column, or "" if the row is too short.
func (r *Reader) field(fields []string, column string) string {
	idx := r.columns[column]
	if idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}
