package field

import (
	"errors"
	"fmt"
	"math"

	"github.com/BaSui01/tymigrawr/types"
)

// ErrKindMismatch is returned when a stored value has a variant the codec
// cannot read at all.
var ErrKindMismatch = errors.New("field: value kind mismatch")

// Codec converts one Go field type to and from the storage Value.
// FromValue is partial: it reports failure instead of panicking.
type Codec[F any] interface {
	Descriptor() types.CrudField
	ToValue(F) types.Value
	FromValue(types.Value) (F, error)
}

func mismatch(want types.Kind, got types.Value) error {
	return fmt.Errorf("%w: want %s, got %s", ErrKindMismatch, want, got.Kind())
}

func outOfRange(v any, target string) error {
	return types.NewError(types.ErrFieldConversion, fmt.Sprintf("%v out of range for %s", v, target))
}

// =============================================================================
// 整数
// =============================================================================

type int64Codec struct{}

func (int64Codec) Descriptor() types.CrudField { return types.CrudField{Kind: types.KindInteger} }
func (int64Codec) ToValue(v int64) types.Value { return types.Integer(v) }
func (int64Codec) FromValue(v types.Value) (int64, error) {
	i, ok := v.AsInteger()
	if !ok {
		return 0, mismatch(types.KindInteger, v)
	}
	return i, nil
}

type intCodec struct{}

func (intCodec) Descriptor() types.CrudField { return types.CrudField{Kind: types.KindInteger} }
func (intCodec) ToValue(v int) types.Value   { return types.Integer(int64(v)) }
func (intCodec) FromValue(v types.Value) (int, error) {
	i, ok := v.AsInteger()
	if !ok {
		return 0, mismatch(types.KindInteger, v)
	}
	if i < math.MinInt || i > math.MaxInt {
		return 0, outOfRange(i, "int")
	}
	return int(i), nil
}

type int32Codec struct{}

func (int32Codec) Descriptor() types.CrudField { return types.CrudField{Kind: types.KindInteger} }
func (int32Codec) ToValue(v int32) types.Value { return types.Integer(int64(v)) }
func (int32Codec) FromValue(v types.Value) (int32, error) {
	i, ok := v.AsInteger()
	if !ok {
		return 0, mismatch(types.KindInteger, v)
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, outOfRange(i, "int32")
	}
	return int32(i), nil
}

type uint32Codec struct{}

func (uint32Codec) Descriptor() types.CrudField  { return types.CrudField{Kind: types.KindInteger} }
func (uint32Codec) ToValue(v uint32) types.Value { return types.Integer(int64(v)) }
func (uint32Codec) FromValue(v types.Value) (uint32, error) {
	i, ok := v.AsInteger()
	if !ok {
		return 0, mismatch(types.KindInteger, v)
	}
	if i < 0 || i > math.MaxUint32 {
		return 0, outOfRange(i, "uint32")
	}
	return uint32(i), nil
}

type boolCodec struct{}

func (boolCodec) Descriptor() types.CrudField { return types.CrudField{Kind: types.KindInteger} }
func (boolCodec) ToValue(v bool) types.Value {
	if v {
		return types.Integer(1)
	}
	return types.Integer(0)
}
func (boolCodec) FromValue(v types.Value) (bool, error) {
	i, ok := v.AsInteger()
	if !ok {
		return false, mismatch(types.KindInteger, v)
	}
	switch i {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, outOfRange(i, "bool")
	}
}

// =============================================================================
// 浮点
// =============================================================================

type float64Codec struct{}

func (float64Codec) Descriptor() types.CrudField   { return types.CrudField{Kind: types.KindFloat} }
func (float64Codec) ToValue(v float64) types.Value { return types.Float(v) }
func (float64Codec) FromValue(v types.Value) (float64, error) {
	f, ok := v.AsFloat()
	if !ok {
		return 0, mismatch(types.KindFloat, v)
	}
	return f, nil
}

type float32Codec struct{}

func (float32Codec) Descriptor() types.CrudField   { return types.CrudField{Kind: types.KindFloat} }
func (float32Codec) ToValue(v float32) types.Value { return types.Float(float64(v)) }
func (float32Codec) FromValue(v types.Value) (float32, error) {
	f, ok := v.AsFloat()
	if !ok {
		return 0, mismatch(types.KindFloat, v)
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return 0, outOfRange(f, "float32")
	}
	return float32(f), nil
}

// =============================================================================
// 文本与字节
// =============================================================================

type stringCodec struct{}

func (stringCodec) Descriptor() types.CrudField  { return types.CrudField{Kind: types.KindText} }
func (stringCodec) ToValue(v string) types.Value { return types.Text(v) }
func (stringCodec) FromValue(v types.Value) (string, error) {
	s, ok := v.AsText()
	if !ok {
		return "", mismatch(types.KindText, v)
	}
	return s, nil
}

type bytesCodec struct{}

func (bytesCodec) Descriptor() types.CrudField  { return types.CrudField{Kind: types.KindBytes} }
func (bytesCodec) ToValue(v []byte) types.Value { return types.Bytes(v) }
func (bytesCodec) FromValue(v types.Value) ([]byte, error) {
	b, ok := v.AsBytes()
	if !ok {
		return nil, mismatch(types.KindBytes, v)
	}
	return b, nil
}

// Built-in codecs.
var (
	Int64   Codec[int64]   = int64Codec{}
	Int     Codec[int]     = intCodec{}
	Int32   Codec[int32]   = int32Codec{}
	Uint32  Codec[uint32]  = uint32Codec{}
	Bool    Codec[bool]    = boolCodec{}
	Float64 Codec[float64] = float64Codec{}
	Float32 Codec[float32] = float32Codec{}
	String  Codec[string]  = stringCodec{}
	Bytes   Codec[[]byte]  = bytesCodec{}
)
