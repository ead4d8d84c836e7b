package backend

import (
	"math"
	"strings"

	"github.com/BaSui01/tymigrawr/types"
)

// KindForSQLType maps a declared SQL column type to the value kind it stores.
// Unknown types map to KindNull, which Coerce treats as "leave as scanned".
func KindForSQLType(dbType string) types.Kind {
	t := strings.ToUpper(dbType)
	switch {
	case t == "":
		return types.KindNull
	case strings.Contains(t, "INT"), t == "SERIAL", t == "BIGSERIAL":
		return types.KindInteger
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"),
		strings.Contains(t, "DOUB"), strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return types.KindFloat
	case strings.Contains(t, "BLOB"), strings.Contains(t, "BINARY"), t == "BYTEA":
		return types.KindBytes
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), strings.Contains(t, "CLOB"):
		return types.KindText
	}
	return types.KindNull
}

// Coerce adjusts a scanned value to the column's declared kind. Drivers
// disagree on what they hand back: MySQL returns TEXT as []byte and SQLite
// returns whole REAL values from some expressions as integers.
func Coerce(v types.Value, kind types.Kind) types.Value {
	if v.IsNull() || kind == types.KindNull || v.Kind() == kind {
		return v
	}
	switch kind {
	case types.KindFloat:
		if i, ok := v.AsInteger(); ok {
			return types.Float(float64(i))
		}
	case types.KindInteger:
		if f, ok := v.AsFloat(); ok && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return types.Integer(int64(f))
		}
	case types.KindText:
		if b, ok := v.AsBytes(); ok {
			return types.Text(string(b))
		}
	case types.KindBytes:
		if s, ok := v.AsText(); ok {
			return types.Bytes([]byte(s))
		}
	}
	return v
}

// SQLType returns the column type used when creating a table of kind k.
func SQLType(k types.Kind) string {
	switch k {
	case types.KindInteger:
		return "INTEGER"
	case types.KindFloat:
		return "FLOAT"
	case types.KindBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}
