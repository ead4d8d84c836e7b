package record

import (
	"github.com/BaSui01/tymigrawr/types"
)

// Record is a persistable, versioned value type.
type Record interface {
	// TableName is the storage location of this record version.
	TableName() string
	// Fields lists the persisted columns in declaration order.
	Fields() []types.CrudField
	// FieldMap captures the current field values.
	FieldMap() types.FieldMap
}

// Ptr constrains *R to be a Record that can be rebuilt from a field map.
type Ptr[R any] interface {
	*R
	Record
	SetFieldMap(types.FieldMap) error
}

// PrimaryKeyed lets a record override the default key selection.
type PrimaryKeyed interface {
	PrimaryKeyName() string
	PrimaryKeyValue() types.Value
}

// TableName returns the table of record type R.
func TableName[R any, P Ptr[R]]() string {
	var r R
	return P(&r).TableName()
}

// Fields returns the descriptors of record type R.
func Fields[R any, P Ptr[R]]() []types.CrudField {
	var r R
	return P(&r).Fields()
}

// FromFieldMap rebuilds an R from a stored row.
func FromFieldMap[R any, P Ptr[R]](m types.FieldMap) (R, error) {
	var r R
	if err := P(&r).SetFieldMap(m); err != nil {
		var zero R
		return zero, err
	}
	return r, nil
}

// PrimaryKeyName picks the field flagged as primary key, or the first
// declared field when none is flagged. It returns "" for an empty list.
func PrimaryKeyName(fields []types.CrudField) string {
	for _, f := range fields {
		if f.PrimaryKey {
			return f.Name
		}
	}
	if len(fields) == 0 {
		return ""
	}
	return fields[0].Name
}

// KeyOf returns the key column and its current value.
func KeyOf(r Record) (string, types.Value, error) {
	if pk, ok := r.(PrimaryKeyed); ok {
		return pk.PrimaryKeyName(), pk.PrimaryKeyValue(), nil
	}
	name := PrimaryKeyName(r.Fields())
	if name == "" {
		return "", types.Null(), types.MissingPrimaryKey(r.TableName())
	}
	v, ok := r.FieldMap()[name]
	if !ok {
		return "", types.Null(), types.MissingPrimaryKey(r.TableName()).WithField(name)
	}
	return name, v, nil
}
