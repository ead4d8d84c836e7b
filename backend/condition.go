package backend

import (
	"bytes"
	"cmp"
	"fmt"

	"github.com/BaSui01/tymigrawr/types"
)

// Comparator is a binary row predicate operator.
type Comparator string

const (
	Eq Comparator = "="
	Ne Comparator = "!="
	Lt Comparator = "<"
	Le Comparator = "<="
	Gt Comparator = ">"
	Ge Comparator = ">="
)

// ParseComparator accepts the six operators plus "==" and "<>".
func ParseComparator(s string) (Comparator, error) {
	switch s {
	case "=", "==":
		return Eq, nil
	case "!=", "<>":
		return Ne, nil
	case "<":
		return Lt, nil
	case "<=":
		return Le, nil
	case ">":
		return Gt, nil
	case ">=":
		return Ge, nil
	}
	return "", types.NewError(types.ErrInvalidInput, fmt.Sprintf("unknown comparator %q", s))
}

// Valid reports whether c is one of the six operators.
func (c Comparator) Valid() bool {
	_, err := ParseComparator(string(c))
	return err == nil && c != "==" && c != "<>"
}

// Match evaluates "a c b" for backends that filter rows themselves.
// Integer and Float compare numerically, Text lexically and Bytes bytewise.
// Null equals only Null and is unordered against everything.
func (c Comparator) Match(a, b types.Value) bool {
	order, ok := compareValues(a, b)
	switch c {
	case Eq:
		return ok && order == 0
	case Ne:
		return !ok || order != 0
	case Lt:
		return ok && !a.IsNull() && order < 0
	case Le:
		return ok && !a.IsNull() && order <= 0
	case Gt:
		return ok && !a.IsNull() && order > 0
	case Ge:
		return ok && !a.IsNull() && order >= 0
	}
	return false
}

func compareValues(a, b types.Value) (int, bool) {
	if a.IsNull() || b.IsNull() {
		return 0, a.IsNull() && b.IsNull()
	}
	if af, ok := numeric(a); ok {
		bf, ok := numeric(b)
		if !ok {
			return 0, false
		}
		if ai, aok := a.AsInteger(); aok {
			if bi, bok := b.AsInteger(); bok {
				return cmp.Compare(ai, bi), true
			}
		}
		return cmp.Compare(af, bf), true
	}
	if as, ok := a.AsText(); ok {
		bs, ok := b.AsText()
		return cmp.Compare(as, bs), ok
	}
	if ab, ok := a.AsBytes(); ok {
		bb, ok := b.AsBytes()
		return bytes.Compare(ab, bb), ok
	}
	return 0, false
}

func numeric(v types.Value) (float64, bool) {
	if i, ok := v.AsInteger(); ok {
		return float64(i), true
	}
	return v.AsFloat()
}

// Condition filters rows by one column. The zero Condition matches everything.
type Condition struct {
	Column string
	Op     Comparator
	Value  types.Value
}

// Where builds a Condition.
func Where(column string, op Comparator, value types.Value) Condition {
	return Condition{Column: column, Op: op, Value: value}
}

// IsZero reports whether cond filters nothing.
func (cond Condition) IsZero() bool { return cond.Column == "" }

// Matches evaluates cond against a stored row.
func (cond Condition) Matches(row types.FieldMap) bool {
	if cond.IsZero() {
		return true
	}
	v, ok := row[cond.Column]
	if !ok {
		v = types.Null()
	}
	return cond.Op.Match(v, cond.Value)
}

// Validate checks the column name and operator.
func (cond Condition) Validate() error {
	if cond.IsZero() {
		return nil
	}
	if err := ValidateIdentifier(cond.Column); err != nil {
		return err
	}
	if !cond.Op.Valid() {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("unknown comparator %q", string(cond.Op)))
	}
	return nil
}
