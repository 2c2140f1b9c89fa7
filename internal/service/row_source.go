package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// dropReplacementChars removes the U+FFFD the UTF-8 decoder puts in place of
// each invalid byte.
var dropReplacementChars = runes.Remove(runes.Predicate(func(r rune) bool {
	return r == utf8.RuneError
}))

// ErrSourceFetch marks an input record stream that could not be opened or read.
var ErrSourceFetch = errors.New("source fetch failed")

// SourceFetchError wraps the cause of an unreadable input stream.
// It matches ErrSourceFetch with errors.Is.
type SourceFetchError struct {
	Op  string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSourceFetch, e.Op, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

func (e *SourceFetchError) Is(target error) bool { return target == ErrSourceFetch }

// Row is one input record keyed by lower-cased column name.
type Row struct {
	values map[string]string
}

// NewRow builds a Row from column/value pairs. Column names are matched
// case-insensitively.
func NewRow(values map[string]string) Row {
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[columnKey(k)] = v
	}
	return Row{values: m}
}

// Get returns the value of column, or "" when the row has no such column.
func (r Row) Get(column string) string {
	return r.values[columnKey(column)]
}

// RowSource yields input rows in order. Next returns io.EOF after the last row.
type RowSource interface {
	Next() (Row, error)
}

// CSVRowSource reads rows from a CSV stream whose first line is the header.
type CSVRowSource struct {
	r      *csv.Reader
	header []string
	line   int
}

var _ RowSource = (*CSVRowSource)(nil)

// NewCSVRowSource reads the header from r. Input is decoded as UTF-8 with a
// leading byte order mark removed and invalid bytes dropped, so "Jo\xffhn"
// reads as "John". An empty stream yields a source without rows.
func NewCSVRowSource(r io.Reader) (*CSVRowSource, error) {
	decoded := transform.NewReader(r, transform.Chain(
		unicode.BOMOverride(unicode.UTF8.NewDecoder()),
		dropReplacementChars,
	))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	src := &CSVRowSource{r: cr}
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return src, nil
	}
	if err != nil {
		return nil, &SourceFetchError{Op: "read csv header", Err: err}
	}
	src.header = make([]string, len(header))
	for i, h := range header {
		src.header[i] = columnKey(h)
	}
	src.line = 1
	return src, nil
}

// Next returns the next row. Rows shorter than the header leave the missing
// columns empty; extra fields are ignored.
func (s *CSVRowSource) Next() (Row, error) {
	if s.header == nil {
		return Row{}, io.EOF
	}
	rec, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return Row{}, io.EOF
	}
	if err != nil {
		return Row{}, &SourceFetchError{Op: fmt.Sprintf("read csv row after line %d", s.line), Err: err}
	}
	s.line, _ = s.r.FieldPos(0)

	values := make(map[string]string, len(s.header))
	for i, col := range s.header {
		if col == "" {
			continue
		}
		if _, seen := values[col]; seen {
			continue
		}
		if i < len(rec) {
			values[col] = rec[i]
		} else {
			values[col] = ""
		}
	}
	return Row{values: values}, nil
}

func columnKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
