package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/tymigrawr/types"
)

func TestParseComparator(t *testing.T) {
	for in, want := range map[string]Comparator{
		"=": Eq, "==": Eq, "!=": Ne, "<>": Ne, "<": Lt, "<=": Le, ">": Gt, ">=": Ge,
	} {
		got, err := ParseComparator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
		assert.True(t, got.Valid())
	}

	_, err := ParseComparator("LIKE")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))
	assert.False(t, Comparator("==").Valid())
}

func TestComparator_Match(t *testing.T) {
	tests := []struct {
		name string
		a    types.Value
		op   Comparator
		b    types.Value
		want bool
	}{
		{"int eq", types.Integer(3), Eq, types.Integer(3), true},
		{"int lt", types.Integer(2), Lt, types.Integer(3), true},
		{"int ge", types.Integer(2), Ge, types.Integer(3), false},
		{"mixed numeric", types.Integer(2), Lt, types.Float(2.5), true},
		{"float eq int", types.Float(3), Eq, types.Integer(3), true},
		{"large ints stay exact", types.Integer(1<<62 + 1), Gt, types.Integer(1 << 62), true},
		{"text order", types.Text("a"), Lt, types.Text("b"), true},
		{"bytes order", types.Bytes([]byte{1}), Le, types.Bytes([]byte{1}), true},
		{"text vs int", types.Text("1"), Eq, types.Integer(1), false},
		{"text ne int", types.Text("1"), Ne, types.Integer(1), true},
		{"null eq null", types.Null(), Eq, types.Null(), true},
		{"null lt int", types.Null(), Lt, types.Integer(1), false},
		{"int ne null", types.Integer(1), Ne, types.Null(), true},
		{"unknown op", types.Integer(1), Comparator("~"), types.Integer(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Match(tt.a, tt.b))
		})
	}
}

func TestCondition(t *testing.T) {
	var zero Condition
	assert.True(t, zero.IsZero())
	assert.True(t, zero.Matches(types.FieldMap{}))
	assert.NoError(t, zero.Validate())

	c := Where("age", Ge, types.Integer(18))
	assert.True(t, c.Matches(types.FieldMap{"age": types.Integer(21)}))
	assert.False(t, c.Matches(types.FieldMap{"name": types.Text("x")}))

	assert.Error(t, Where("age; DROP TABLE x", Eq, types.Null()).Validate())
	assert.Error(t, Where("age", Comparator("LIKE"), types.Null()).Validate())
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("playerv1"))
	assert.NoError(t, ValidateIdentifier("_x9"))
	assert.Error(t, ValidateIdentifier(""))
	assert.Error(t, ValidateIdentifier("1abc"))
	assert.Error(t, ValidateIdentifier(`a"b`))

	assert.Error(t, ValidateRow("ok", types.FieldMap{"bad col": types.Null()}))
}

func TestProject(t *testing.T) {
	row := types.FieldMap{"id": types.Integer(1), "name": types.Text("a")}

	got, err := Project("t", row, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, types.FieldMap{"name": types.Text("a")}, got)

	all, err := Project("t", row, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = Project("t", row, []string{"age"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRowDecode))
	assert.True(t, types.IsCode(err, types.ErrMissingField))
}
