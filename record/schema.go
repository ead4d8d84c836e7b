package record

import (
	"github.com/BaSui01/tymigrawr/field"
	"github.com/BaSui01/tymigrawr/types"
)

// FieldOption adjusts a bound column's descriptor.
type FieldOption func(*types.CrudField)

// PrimaryKey flags the column as the record's key.
func PrimaryKey() FieldOption {
	return func(f *types.CrudField) { f.PrimaryKey = true }
}

// AutoIncrement asks the backend to assign the column on insert.
func AutoIncrement() FieldOption {
	return func(f *types.CrudField) { f.AutoIncrement = true }
}

type binding[R any] struct {
	desc types.CrudField
	get  func(*R) types.Value
	set  func(*R, types.Value) error
}

// Schema is the hand-written glue between a struct and its columns. A record
// type usually keeps one package-level Schema and forwards its Record methods
// to it.
//
//	var playerSchema = record.NewSchema[Player]("player")
//
//	func init() {
//	    record.Bind(playerSchema, "id", field.Int64, func(p *Player) *int64 { return &p.ID }, record.PrimaryKey())
//	    record.Bind(playerSchema, "name", field.String, func(p *Player) *string { return &p.Name })
//	}
type Schema[R any] struct {
	table    string
	bindings []binding[R]
}

// NewSchema starts an empty schema for table.
func NewSchema[R any](table string) *Schema[R] {
	return &Schema[R]{table: table}
}

// Bind appends a column backed by the field ref points at.
func Bind[R, F any](s *Schema[R], name string, codec field.Codec[F], ref func(*R) *F, opts ...FieldOption) *Schema[R] {
	desc := codec.Descriptor()
	desc.Name = name
	for _, opt := range opts {
		opt(&desc)
	}
	s.bindings = append(s.bindings, binding[R]{
		desc: desc,
		get:  func(r *R) types.Value { return codec.ToValue(*ref(r)) },
		set: func(r *R, v types.Value) error {
			out, err := codec.FromValue(v)
			if err != nil {
				return err
			}
			*ref(r) = out
			return nil
		},
	})
	return s
}

// TableName returns the schema's table.
func (s *Schema[R]) TableName() string { return s.table }

// Fields returns a fresh copy of the descriptors in bind order.
func (s *Schema[R]) Fields() []types.CrudField {
	out := make([]types.CrudField, len(s.bindings))
	for i, b := range s.bindings {
		out[i] = b.desc
	}
	return out
}

// Encode captures every bound column of r.
func (s *Schema[R]) Encode(r *R) types.FieldMap {
	m := make(types.FieldMap, len(s.bindings))
	for _, b := range s.bindings {
		m[b.desc.Name] = b.get(r)
	}
	return m
}

// Decode fills r from m. Every bound column must be present, nullable ones
// included; a present Null decodes to nil for nullable columns.
func (s *Schema[R]) Decode(m types.FieldMap, r *R) error {
	for _, b := range s.bindings {
		v, ok := m[b.desc.Name]
		if !ok {
			return types.MissingField(b.desc.Name)
		}
		if err := b.set(r, v); err != nil {
			return types.FieldConversion(b.desc.Name, err)
		}
	}
	return nil
}
