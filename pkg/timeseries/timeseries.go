// Package timeseries reads named numeric columns from CSV files.
package timeseries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrColumnNotFound is returned by Column for an unknown name.
var ErrColumnNotFound = errors.New("column not found")

// Table holds the float columns of a CSV file, one row per step.
type Table struct {
	names   []string
	columns map[string][]float64
	rows    int
}

// ReadCSV parses r. The first row names the columns; every other row must
// hold one number per column. Empty cells are read as zero.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &Table{columns: make(map[string][]float64, len(header))}
	for _, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, errors.New("empty column name")
		}
		if _, dup := t.columns[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		t.names = append(t.names, name)
		t.columns[name] = nil
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", t.rows+2, err)
		}
		for i, cell := range rec {
			v := 0.0
			if cell = strings.TrimSpace(cell); cell != "" {
				v, err = strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d column %q: %w", t.rows+2, t.names[i], err)
				}
			}
			t.columns[t.names[i]] = append(t.columns[t.names[i]], v)
		}
		t.rows++
	}
	return t, nil
}

// ReadFile opens and parses the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	col, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return append([]float64(nil), col...), nil
}

// Names lists the columns in file order.
func (t *Table) Names() []string { return append([]string(nil), t.names...) }

// Len is the number of data rows.
func (t *Table) Len() int { return t.rows }
