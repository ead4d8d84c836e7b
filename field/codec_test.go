package field

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/tymigrawr/types"
)

func TestDescriptors(t *testing.T) {
	assert.Equal(t, types.KindInteger, Int64.Descriptor().Kind)
	assert.Equal(t, types.KindInteger, Uint32.Descriptor().Kind)
	assert.Equal(t, types.KindFloat, Float32.Descriptor().Kind)
	assert.Equal(t, types.KindText, String.Descriptor().Kind)
	assert.Equal(t, types.KindBytes, Bytes.Descriptor().Kind)
	assert.False(t, String.Descriptor().Nullable)

	d := Nullable(String).Descriptor()
	assert.True(t, d.Nullable)
	assert.Equal(t, types.KindText, d.Kind)
}

func TestUint32_Narrowing(t *testing.T) {
	_, err := Uint32.FromValue(types.Integer(-1))
	require.Error(t, err)
	assert.Equal(t, types.ErrFieldConversion, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "-1 out of range for uint32")

	_, err = Uint32.FromValue(types.Integer(math.MaxUint32 + 1))
	require.Error(t, err)

	v, err := Uint32.FromValue(types.Integer(math.MaxUint32))
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), v)
}

func TestKindMismatch(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"int64 from text", func() error { _, err := Int64.FromValue(types.Text("1")); return err }},
		{"float from integer", func() error { _, err := Float64.FromValue(types.Integer(1)); return err }},
		{"string from null", func() error { _, err := String.FromValue(types.Null()); return err }},
		{"bytes from text", func() error { _, err := Bytes.FromValue(types.Text("x")); return err }},
		{"bool from float", func() error { _, err := Bool.FromValue(types.Float(1)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrKindMismatch))
		})
	}
}

func TestNullable(t *testing.T) {
	c := Nullable(Uint32)

	assert.True(t, c.ToValue(nil).IsNull())

	got, err := c.FromValue(types.Null())
	require.NoError(t, err)
	assert.Nil(t, got)

	age := uint32(30)
	v := c.ToValue(&age)
	back, err := c.FromValue(v)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.Equal(t, age, *back)

	_, err = c.FromValue(types.Integer(-5))
	assert.Error(t, err)
}

func TestBool(t *testing.T) {
	_, err := Bool.FromValue(types.Integer(2))
	assert.Error(t, err)
	b, err := Bool.FromValue(Bool.ToValue(true))
	require.NoError(t, err)
	assert.True(t, b)
}

// =============================================================================
// 属性测试
// =============================================================================

func checkRoundTrip[F any](t *rapid.T, c Codec[F], v F, eq func(a, b F) bool) {
	got, err := c.FromValue(c.ToValue(v))
	if err != nil {
		t.Fatalf("round trip of %v failed: %v", v, err)
	}
	if !eq(v, got) {
		t.Fatalf("round trip changed %v into %v", v, got)
	}
}

func same[F comparable](a, b F) bool { return a == b }

func TestCodecRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		checkRoundTrip(t, Int64, rapid.Int64().Draw(t, "i64"), same[int64])
		checkRoundTrip(t, Int, rapid.Int().Draw(t, "int"), same[int])
		checkRoundTrip(t, Int32, rapid.Int32().Draw(t, "i32"), same[int32])
		checkRoundTrip(t, Uint32, rapid.Uint32().Draw(t, "u32"), same[uint32])
		checkRoundTrip(t, Bool, rapid.Bool().Draw(t, "bool"), same[bool])
		checkRoundTrip(t, String, rapid.String().Draw(t, "s"), same[string])
		checkRoundTrip(t, Bytes, rapid.SliceOf(rapid.Byte()).Draw(t, "b"), func(a, b []byte) bool {
			return string(a) == string(b)
		})
		checkRoundTrip(t, Float64, rapid.Float64().Draw(t, "f64"), func(a, b float64) bool {
			return a == b || (math.IsNaN(a) && math.IsNaN(b))
		})
		checkRoundTrip(t, Float32, rapid.Float32().Draw(t, "f32"), func(a, b float32) bool {
			return a == b || (a != a && b != b)
		})
	})
}

func TestNarrowingNeverPanicsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		i := rapid.Int64().Draw(t, "i")
		v := types.Integer(i)

		u, err := Uint32.FromValue(v)
		if i >= 0 && i <= math.MaxUint32 {
			if err != nil || int64(u) != i {
				t.Fatalf("in-range %d rejected: %v", i, err)
			}
		} else if err == nil {
			t.Fatalf("out-of-range %d accepted", i)
		}

		n, err := Int32.FromValue(v)
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			if err != nil || int64(n) != i {
				t.Fatalf("in-range %d rejected: %v", i, err)
			}
		} else if err == nil {
			t.Fatalf("out-of-range %d accepted", i)
		}
	})
}
