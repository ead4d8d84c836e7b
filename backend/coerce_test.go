package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/tymigrawr/types"
)

func TestKindForSQLType(t *testing.T) {
	tests := map[string]types.Kind{
		"INTEGER":          types.KindInteger,
		"bigint":           types.KindInteger,
		"BIGSERIAL":        types.KindInteger,
		"FLOAT":            types.KindFloat,
		"DOUBLE PRECISION": types.KindFloat,
		"REAL":             types.KindFloat,
		"NUMERIC":          types.KindFloat,
		"BLOB":             types.KindBytes,
		"LONGBLOB":         types.KindBytes,
		"VARBINARY":        types.KindBytes,
		"BYTEA":            types.KindBytes,
		"TEXT":             types.KindText,
		"VARCHAR":          types.KindText,
		"":                 types.KindNull,
		"JSON":             types.KindNull,
	}
	for in, want := range tests {
		assert.Equal(t, want, KindForSQLType(in), in)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   types.Value
		kind types.Kind
		want types.Value
	}{
		{"int to float", types.Integer(3), types.KindFloat, types.Float(3)},
		{"whole float to int", types.Float(4), types.KindInteger, types.Integer(4)},
		{"fractional float stays", types.Float(4.5), types.KindInteger, types.Float(4.5)},
		{"bytes to text", types.Bytes([]byte("abc")), types.KindText, types.Text("abc")},
		{"text to bytes", types.Text("abc"), types.KindBytes, types.Bytes([]byte("abc"))},
		{"null untouched", types.Null(), types.KindInteger, types.Null()},
		{"unknown column kind", types.Integer(1), types.KindNull, types.Integer(1)},
		{"same kind", types.Text("x"), types.KindText, types.Text("x")},
		{"text never becomes int", types.Text("7"), types.KindInteger, types.Text("7")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(tt.in, tt.kind)
			assert.True(t, tt.want.Equal(got), "got %v", got)
			assert.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestSQLType(t *testing.T) {
	assert.Equal(t, "INTEGER", SQLType(types.KindInteger))
	assert.Equal(t, "FLOAT", SQLType(types.KindFloat))
	assert.Equal(t, "TEXT", SQLType(types.KindText))
	assert.Equal(t, "BLOB", SQLType(types.KindBytes))
}
