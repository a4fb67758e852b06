package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is a header plus string rows, the unit every backend stores.
type Table struct {
	Columns []string
	Rows    [][]string
}

func NewTable(columns ...string) Table {
	return Table{Columns: append([]string(nil), columns...)}
}

func (t *Table) Append(row ...string) {
	t.Rows = append(t.Rows, row)
}

// Index maps lower-cased, trimmed column names to their position.
func (t Table) Index() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, name := range t.Columns {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return idx
}

// HasColumns reports whether the header is exactly want, in order.
func (t Table) HasColumns(want []string) bool {
	if len(t.Columns) != len(want) {
		return false
	}
	for i, c := range t.Columns {
		if strings.TrimSpace(strings.ToLower(c)) != want[i] {
			return false
		}
	}
	return true
}

// DecodeCSV reads a table whose first record is the header. Rows may be
// ragged; callers decide what a short or long row means.
func DecodeCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := Table{Columns: header}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row: %w", err)
		}
		if len(row) == 1 && row[0] == "" {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func EncodeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func MarshalCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func UnmarshalCSV(b []byte) (Table, error) {
	return DecodeCSV(bytes.NewReader(b))
}
