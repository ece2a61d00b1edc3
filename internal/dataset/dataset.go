// Package dataset holds the in-memory tabular data passed between pipeline
// stages.
package dataset

import (
	"fmt"
	"strconv"
)

// Type is the declared element type of a column
type Type string

const (
	String  Type = "string"
	Int64   Type = "int64"
	Float64 Type = "float64"
	Bool    Type = "bool"
)

// Column is a named, typed sequence of values. A nil value is missing.
// Non-nil values hold the Go type matching Type: string, int64, float64
// or bool.
type Column struct {
	Name   string
	Type   Type
	Values []any
}

// Dataset is an ordered set of columns sharing one row count
type Dataset struct {
	Columns []Column
}

// New builds a dataset and checks that every column has the same length
func New(columns ...Column) (*Dataset, error) {
	ds := &Dataset{Columns: columns}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks the row-count and unique-name invariants
func (d *Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Columns))
	for i, col := range d.Columns {
		if seen[col.Name] {
			return fmt.Errorf("duplicate column name '%s'", col.Name)
		}
		seen[col.Name] = true
		if i > 0 && len(col.Values) != len(d.Columns[0].Values) {
			return fmt.Errorf("column '%s' has %d rows, expected %d", col.Name, len(col.Values), len(d.Columns[0].Values))
		}
	}
	return nil
}

// Rows returns the shared row count
func (d *Dataset) Rows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// Names returns the column names in order
func (d *Dataset) Names() []string {
	names := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		names[i] = col.Name
	}
	return names
}

// Index returns the position of the named column, or -1
func (d *Dataset) Index(name string) int {
	for i, col := range d.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column
func (d *Dataset) Column(name string) (*Column, bool) {
	i := d.Index(name)
	if i < 0 {
		return nil, false
	}
	return &d.Columns[i], true
}

// Clone returns a deep copy. Cell values are immutable scalars, so copying
// the slices is enough.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Columns: make([]Column, len(d.Columns))}
	for i, col := range d.Columns {
		values := make([]any, len(col.Values))
		copy(values, col.Values)
		out.Columns[i] = Column{Name: col.Name, Type: col.Type, Values: values}
	}
	return out
}

// Text renders a cell for a text column in the warehouse. Missing values
// report ok=false.
func Text(v any) (s string, ok bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return fmt.Sprint(val), true
	}
}
