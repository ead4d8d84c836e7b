package migrate

import (
	"fmt"

	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// Step binds one record version into a chain. Its closures erase the
// version's concrete type so a chain can hold heterogeneous versions.
type Step struct {
	name   string
	table  string
	fields []types.CrudField

	// advance converts the previous version's payload into this version.
	// A payload of any other type is a chain construction bug and panics.
	advance func(prev any) any
	// extract captures a payload of this version; foreign payloads yield an empty map.
	extract func(payload any) types.FieldMap
	// reconstruct rebuilds a payload of this version from a stored row.
	reconstruct func(types.FieldMap) (any, error)
}

// TableName returns the table this version lives in.
func (s Step) TableName() string { return s.table }

// Fields returns a copy of this version's descriptors.
func (s Step) Fields() []types.CrudField { return append([]types.CrudField(nil), s.fields...) }

// Columns returns this version's column names.
func (s Step) Columns() []string { return types.ColumnNames(s.fields) }

// Name returns the Go type name of this version.
func (s Step) Name() string { return s.name }

// Advance runs the conversion from the previous version.
func (s Step) Advance(prev any) any { return s.advance(prev) }

// Extract captures payload as a field map.
func (s Step) Extract(payload any) types.FieldMap { return s.extract(payload) }

// Reconstruct decodes a stored row.
func (s Step) Reconstruct(m types.FieldMap) (any, error) { return s.reconstruct(m) }

// NewStep builds the step for version V reached from Prev through convert.
func NewStep[Prev, V any, P record.Ptr[V]](convert func(Prev) V) Step {
	var zero V
	p := P(&zero)
	return Step{
		name:   fmt.Sprintf("%T", zero),
		table:  p.TableName(),
		fields: p.Fields(),
		advance: func(prev any) any {
			typed, ok := prev.(Prev)
			if !ok {
				panic(fmt.Sprintf("migrate: step %T received %T, want %T", zero, prev, *new(Prev)))
			}
			return convert(typed)
		},
		extract: func(payload any) types.FieldMap {
			typed, ok := payload.(V)
			if !ok {
				return types.FieldMap{}
			}
			return P(&typed).FieldMap()
		},
		reconstruct: func(m types.FieldMap) (any, error) {
			v, err := record.FromFieldMap[V, P](m)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

func identity[T any](v T) T { return v }
