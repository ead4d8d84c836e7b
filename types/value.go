package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind 标识 Value 承载的存储类型
type Kind uint8

const (
	// KindNull 空值（Value 的零值）
	KindNull Kind = iota
	// KindInteger 64 位有符号整数
	KindInteger
	// KindFloat 64 位浮点数
	KindFloat
	// KindText UTF-8 文本
	KindText
	// KindBytes 原始字节
	KindBytes
)

// String 返回 Kind 的名称
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the closed set of storage-level values every backend can hold.
// The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

// Integer wraps an int64.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float wraps a float64.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Bytes wraps a copy of b. A nil slice becomes an empty Bytes value, not Null.
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, b: cp}
}

// Null returns the absent value.
func Null() Value { return Value{} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInteger returns the integer payload.
func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// AsText returns the text payload.
func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.s, true
}

// AsBytes returns a copy of the bytes payload.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	cp := make([]byte, len(v.b))
	copy(cp, v.b)
	return cp, true
}

// Equal compares variant and payload. NaN equals NaN so that stored rows
// compare stable across a round trip.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		if math.IsNaN(v.f) && math.IsNaN(o.f) {
			return true
		}
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.b, o.b)
	default:
		return true
	}
}

// String renders v for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.s)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.b))
	default:
		return "null"
	}
}

// Any returns the driver-native form of v: int64, float64, string, []byte or nil.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBytes:
		cp, _ := v.AsBytes()
		return cp
	default:
		return nil
	}
}

// FromAny maps a driver-native value onto exactly one Value variant.
// The mapping is total: anything unrecognised becomes Null.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case int64:
		return Integer(t)
	case int:
		return Integer(int64(t))
	case int32:
		return Integer(int64(t))
	case int16:
		return Integer(int64(t))
	case int8:
		return Integer(int64(t))
	case uint8:
		return Integer(int64(t))
	case uint16:
		return Integer(int64(t))
	case uint32:
		return Integer(int64(t))
	case uint:
		return fromUint64(uint64(t))
	case uint64:
		return fromUint64(t)
	case float64:
		return Float(t)
	case float32:
		return Float(float64(t))
	case bool:
		if t {
			return Integer(1)
		}
		return Integer(0)
	case string:
		return Text(t)
	case []byte:
		return Bytes(t)
	case time.Time:
		return Text(t.UTC().Format(time.RFC3339Nano))
	case *int64:
		if t == nil {
			return Null()
		}
		return Integer(*t)
	case *float64:
		if t == nil {
			return Null()
		}
		return Float(*t)
	case *string:
		if t == nil {
			return Null()
		}
		return Text(*t)
	default:
		return Null()
	}
}

func fromUint64(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Integer(int64(u))
}

// =============================================================================
// JSON 编码（键值型后端使用）
// =============================================================================

type valueEnvelope struct {
	Integer *int64   `json:"integer,omitempty"`
	Float   *float64 `json:"float,omitempty"`
	Text    *string  `json:"text,omitempty"`
	Bytes   *string  `json:"bytes,omitempty"`
}

// MarshalJSON encodes v as a single-key object naming its variant, or null.
func (v Value) MarshalJSON() ([]byte, error) {
	var env valueEnvelope
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInteger:
		env.Integer = &v.i
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("value: cannot encode non-finite float %v", v.f)
		}
		env.Float = &v.f
	case KindText:
		env.Text = &v.s
	case KindBytes:
		enc := base64.StdEncoding.EncodeToString(v.b)
		env.Bytes = &enc
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Null()
		return nil
	}
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch {
	case env.Integer != nil:
		*v = Integer(*env.Integer)
	case env.Float != nil:
		*v = Float(*env.Float)
	case env.Text != nil:
		*v = Text(*env.Text)
	case env.Bytes != nil:
		raw, err := base64.StdEncoding.DecodeString(*env.Bytes)
		if err != nil {
			return fmt.Errorf("value: decode bytes: %w", err)
		}
		*v = Value{kind: KindBytes, b: raw}
	default:
		return fmt.Errorf("value: unknown encoding %s", string(data))
	}
	return nil
}
