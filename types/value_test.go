package types

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestValue_ZeroIsNull(t *testing.T) {
	var v Value
	assert.True(t, v.IsNull())
	assert.Equal(t, KindNull, v.Kind())
	assert.True(t, v.Equal(Null()))
	assert.Nil(t, v.Any())
}

func TestValue_Accessors(t *testing.T) {
	i, ok := Integer(42).AsInteger()
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	_, ok = Integer(42).AsText()
	assert.False(t, ok)

	f, ok := Float(1.5).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)

	s, ok := Text("tymigrawr_0").AsText()
	assert.True(t, ok)
	assert.Equal(t, "tymigrawr_0", s)

	raw := []byte{1, 2, 3}
	b := Bytes(raw)
	raw[0] = 9
	got, ok := b.AsBytes()
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got, "Bytes must own its payload")
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Float(math.NaN()).Equal(Float(math.NaN())))
	assert.False(t, Integer(1).Equal(Float(1)))
	assert.False(t, Text("a").Equal(Text("b")))
	assert.True(t, Bytes(nil).Equal(Bytes([]byte{})))
}

func TestFromAny(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"int", 7, Integer(7)},
		{"int32", int32(-3), Integer(-3)},
		{"uint32", uint32(4000000000), Integer(4000000000)},
		{"huge uint64", uint64(math.MaxUint64), Float(float64(uint64(math.MaxUint64)))},
		{"float32", float32(0.5), Float(0.5)},
		{"bool", true, Integer(1)},
		{"string", "x", Text("x")},
		{"bytes", []byte("x"), Bytes([]byte("x"))},
		{"time", ts, Text("2024-05-01T12:00:00Z")},
		{"unknown", struct{}{}, Null()},
		{"nil pointer", (*int64)(nil), Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAny(tt.in)
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}
}

func TestValue_JSON(t *testing.T) {
	row := FieldMap{
		"id":    Integer(3),
		"ratio": Float(600.0),
		"name":  Text("tymigrawr_3"),
		"blob":  Bytes([]byte{0, 255}),
		"note":  Null(),
	}
	data, err := json.Marshal(row)
	require.NoError(t, err)

	var back FieldMap
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, row.Equal(back), "round trip mismatch: %s", data)

	_, err = json.Marshal(Float(math.Inf(1)))
	assert.Error(t, err)

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"other":1}`), &v))
}

func TestValue_AnyRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var v Value
		switch rapid.IntRange(0, 4).Draw(t, "kind") {
		case 0:
			v = Integer(rapid.Int64().Draw(t, "i"))
		case 1:
			v = Float(rapid.Float64().Draw(t, "f"))
		case 2:
			v = Text(rapid.String().Draw(t, "s"))
		case 3:
			v = Bytes(rapid.SliceOf(rapid.Byte()).Draw(t, "b"))
		default:
			v = Null()
		}
		if got := FromAny(v.Any()); !got.Equal(v) {
			t.Fatalf("FromAny(Any()) changed %v into %v", v, got)
		}
	})
}

func TestFieldMap_Helpers(t *testing.T) {
	m := FieldMap{"b": Integer(1), "a": Text("x")}
	assert.Equal(t, []string{"a", "b"}, m.Columns())

	c := m.Clone()
	c["c"] = Null()
	assert.Len(t, m, 2)

	assert.Equal(t, FieldMap{"a": Text("x")}, m.Without("b"))
	assert.Equal(t, []string{"id", "name"}, ColumnNames([]CrudField{{Name: "id"}, {Name: "name"}}))
}
