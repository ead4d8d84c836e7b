package bolt

import (
	"encoding/binary"
	"math"

	"github.com/BaSui01/tymigrawr/types"
)

// 键前缀按类型区分，不同类型的值永远不会得到相同的键
const (
	tagNull byte = iota
	tagInteger
	tagFloat
	tagText
	tagBytes
)

// EncodeKey encodes a primary key value so that byte order matches value
// order within a kind. Integers are big-endian with the sign bit flipped;
// floats use the IEEE 754 total-order trick.
func EncodeKey(v types.Value) []byte {
	switch v.Kind() {
	case types.KindInteger:
		i, _ := v.AsInteger()
		buf := make([]byte, 9)
		buf[0] = tagInteger
		binary.BigEndian.PutUint64(buf[1:], uint64(i)^(1<<63))
		return buf
	case types.KindFloat:
		f, _ := v.AsFloat()
		bits := math.Float64bits(f)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		buf := make([]byte, 9)
		buf[0] = tagFloat
		binary.BigEndian.PutUint64(buf[1:], bits)
		return buf
	case types.KindText:
		s, _ := v.AsText()
		return append([]byte{tagText}, s...)
	case types.KindBytes:
		b, _ := v.AsBytes()
		return append([]byte{tagBytes}, b...)
	default:
		return []byte{tagNull}
	}
}

// seqKey is the key of a row in a table without a known primary key.
func seqKey(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}
