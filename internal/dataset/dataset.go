package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is the inferred type of a whole column.
type Type int

const (
	// TypeNumeric columns hold numbers and nulls only. A column of nulls is numeric.
	TypeNumeric Type = iota
	// TypeText columns hold strings and nulls only.
	TypeText
	// TypeBool columns hold booleans and nulls only.
	TypeBool
	// TypeTime columns hold timestamps and nulls only.
	TypeTime
	// TypeMixed columns hold more than one non-null kind.
	TypeMixed
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	case TypeMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// IsObject reports whether the column stores loosely typed values
// (text or mixed), as opposed to a single typed scalar kind.
func (t Type) IsObject() bool {
	return t == TypeText || t == TypeMixed
}

// InferType returns the column type implied by values.
func InferType(values []Value) Type {
	seen := Kind(-1)
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if seen == -1 {
			seen = v.Kind()
			continue
		}
		if v.Kind() != seen {
			return TypeMixed
		}
	}

	switch seen {
	case KindText:
		return TypeText
	case KindBool:
		return TypeBool
	case KindTime:
		return TypeTime
	default:
		return TypeNumeric
	}
}

// Column is one named, typed column.
type Column struct {
	name   string
	typ    Type
	values []Value
}

// NewColumn creates a column and infers its type. values is copied.
func NewColumn(name string, values []Value) *Column {
	cp := make([]Value, len(values))
	copy(cp, values)
	return &Column{name: name, typ: InferType(cp), values: cp}
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the inferred column type.
func (c *Column) Type() Type { return c.typ }

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.values) }

// At returns the cell at row i.
func (c *Column) At(i int) Value { return c.values[i] }

// Values returns a copy of the cells.
func (c *Column) Values() []Value {
	cp := make([]Value, len(c.values))
	copy(cp, c.values)
	return cp
}

// Floats returns the cells as float64 with NaN for anything that is not a number.
func (c *Column) Floats() []float64 {
	out := make([]float64, len(c.values))
	for i, v := range c.values {
		if f, ok := v.Float(); ok {
			out[i] = f
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// NonNull returns the number of non-null cells.
func (c *Column) NonNull() int {
	n := 0
	for _, v := range c.values {
		if !v.IsNull() {
			n++
		}
	}
	return n
}

// Distinct returns the number of distinct non-null cells.
func (c *Column) Distinct() int {
	seen := make(map[string]struct{}, len(c.values))
	for _, v := range c.values {
		if v.IsNull() {
			continue
		}
		seen[v.key()] = struct{}{}
	}
	return len(seen)
}

// Dataset is an immutable, column-oriented table.
type Dataset struct {
	name    string
	columns []*Column
	index   map[string]int
	rows    int
}

// New builds a dataset from columns. All columns must have the same length
// and distinct names.
func New(name string, columns ...*Column) (*Dataset, error) {
	ds := &Dataset{
		name:    name,
		columns: make([]*Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}

	for i, c := range columns {
		if _, ok := ds.index[c.name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, c.name)
		}
		if i == 0 {
			ds.rows = c.Len()
		} else if c.Len() != ds.rows {
			return nil, fmt.Errorf("%w: %s has %d rows, want %d", ErrRaggedColumns, c.name, c.Len(), ds.rows)
		}
		ds.index[c.name] = len(ds.columns)
		ds.columns = append(ds.columns, c)
	}

	return ds, nil
}

// FromRecords builds a dataset from row records. columns fixes the column
// order; a key missing from a record is null.
func FromRecords(name string, columns []string, records []map[string]Value) (*Dataset, error) {
	cols := make([]*Column, len(columns))
	for j, col := range columns {
		values := make([]Value, len(records))
		for i, rec := range records {
			values[i] = rec[col]
		}
		cols[j] = &Column{name: col, typ: InferType(values), values: values}
	}
	return New(name, cols...)
}

// MustFromRecords is FromRecords that panics on error. Intended for tests and fixtures.
func MustFromRecords(name string, columns []string, records []map[string]Value) *Dataset {
	ds, err := FromRecords(name, columns, records)
	if err != nil {
		panic(err)
	}
	return ds
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.rows }

// Width returns the number of columns.
func (d *Dataset) Width() int { return len(d.columns) }

// Empty reports whether the dataset has no rows.
func (d *Dataset) Empty() bool { return d.rows == 0 }

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.name
	}
	return names
}

// Columns returns the columns in order.
func (d *Dataset) Columns() []*Column {
	cp := make([]*Column, len(d.columns))
	copy(cp, d.columns)
	return cp
}

// Column returns the named column.
func (d *Dataset) Column(name string) (*Column, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	return d.columns[i], nil
}

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// NumericColumns returns the numeric columns in order.
func (d *Dataset) NumericColumns() []*Column {
	return d.filter(func(c *Column) bool { return c.typ == TypeNumeric })
}

// ObjectColumns returns the text and mixed columns in order.
func (d *Dataset) ObjectColumns() []*Column {
	return d.filter(func(c *Column) bool { return c.typ.IsObject() })
}

func (d *Dataset) filter(keep func(*Column) bool) []*Column {
	var out []*Column
	for _, c := range d.columns {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// Row returns row i as a map of column name to value.
func (d *Dataset) Row(i int) map[string]Value {
	row := make(map[string]Value, len(d.columns))
	for _, c := range d.columns {
		row[c.name] = c.values[i]
	}
	return row
}

// RowKey returns a canonical key for row i restricted to columns.
// An empty columns slice uses every column. Nulls compare equal.
// Each cell key is length prefixed, so no cell content can imitate a
// column boundary.
func (d *Dataset) RowKey(i int, columns []*Column) string {
	if len(columns) == 0 {
		columns = d.columns
	}
	var sb strings.Builder
	for _, c := range columns {
		k := c.values[i].key()
		sb.WriteString(strconv.Itoa(len(k)))
		sb.WriteByte(':')
		sb.WriteString(k)
	}
	return sb.String()
}

// Select returns the named columns, failing on the first unknown name.
func (d *Dataset) Select(names []string) ([]*Column, error) {
	out := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := d.Column(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
