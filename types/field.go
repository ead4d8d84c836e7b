package types

import (
	"maps"
	"slices"
)

// CrudField describes one persisted column of a record.
type CrudField struct {
	Name          string `json:"name" yaml:"name"`
	Kind          Kind   `json:"kind" yaml:"kind"`
	Nullable      bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	PrimaryKey    bool   `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	AutoIncrement bool   `json:"auto_increment,omitempty" yaml:"auto_increment,omitempty"`
}

// FieldMap holds one row keyed by column name.
type FieldMap map[string]Value

// Columns returns the column names in sorted order.
func (m FieldMap) Columns() []string {
	return slices.Sorted(maps.Keys(m))
}

// Clone returns a shallow copy; Values are immutable so this is a full copy.
func (m FieldMap) Clone() FieldMap {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Equal reports whether both maps hold the same columns with equal values.
func (m FieldMap) Equal(o FieldMap) bool {
	return maps.EqualFunc(m, o, Value.Equal)
}

// Without returns a copy of m minus the named column.
func (m FieldMap) Without(column string) FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		if k != column {
			out[k] = v
		}
	}
	return out
}

// ColumnNames projects descriptors onto their names, preserving order.
func ColumnNames(fields []CrudField) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
