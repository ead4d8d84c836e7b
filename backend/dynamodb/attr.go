package dynamodb

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/BaSui01/tymigrawr/types"
)

// ToAttribute converts a value to its DynamoDB attribute. Integers and floats
// both become N; floats always carry a decimal point or exponent so they read
// back as floats. NaN and infinities have no DynamoDB form.
func ToAttribute(v types.Value) (dbtypes.AttributeValue, error) {
	switch v.Kind() {
	case types.KindInteger:
		i, _ := v.AsInteger()
		return &dbtypes.AttributeValueMemberN{Value: strconv.FormatInt(i, 10)}, nil
	case types.KindFloat:
		f, _ := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, types.NewError(types.ErrFieldConversion, fmt.Sprintf("%v has no dynamodb number form", f))
		}
		return &dbtypes.AttributeValueMemberN{Value: FormatFloat(f)}, nil
	case types.KindText:
		s, _ := v.AsText()
		return &dbtypes.AttributeValueMemberS{Value: s}, nil
	case types.KindBytes:
		b, _ := v.AsBytes()
		return &dbtypes.AttributeValueMemberB{Value: b}, nil
	default:
		return &dbtypes.AttributeValueMemberNULL{Value: true}, nil
	}
}

// FormatFloat renders f as a DynamoDB number that does not parse as an
// integer.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// FromAttribute converts an attribute back to a value. Numbers parse as an
// integer first, then as a float; anything unparseable or of an unsupported
// attribute type is Null.
func FromAttribute(av dbtypes.AttributeValue) types.Value {
	switch a := av.(type) {
	case *dbtypes.AttributeValueMemberN:
		if i, err := strconv.ParseInt(a.Value, 10, 64); err == nil {
			return types.Integer(i)
		}
		if f, err := strconv.ParseFloat(a.Value, 64); err == nil {
			return types.Float(f)
		}
		return types.Null()
	case *dbtypes.AttributeValueMemberS:
		return types.Text(a.Value)
	case *dbtypes.AttributeValueMemberB:
		return types.Bytes(a.Value)
	case *dbtypes.AttributeValueMemberBOOL:
		return types.FromAny(a.Value)
	default:
		return types.Null()
	}
}

// ToItem converts a field map to an item.
func ToItem(fields types.FieldMap) (map[string]dbtypes.AttributeValue, error) {
	item := make(map[string]dbtypes.AttributeValue, len(fields))
	for name, v := range fields {
		av, err := ToAttribute(v)
		if err != nil {
			return nil, types.FieldConversion(name, err)
		}
		item[name] = av
	}
	return item, nil
}

// FromItem converts an item to a field map.
func FromItem(item map[string]dbtypes.AttributeValue) types.FieldMap {
	fields := make(types.FieldMap, len(item))
	for name, av := range item {
		fields[name] = FromAttribute(av)
	}
	return fields
}

// scalarType is the key attribute type for a field kind.
func scalarType(k types.Kind) dbtypes.ScalarAttributeType {
	switch k {
	case types.KindInteger, types.KindFloat:
		return dbtypes.ScalarAttributeTypeN
	case types.KindBytes:
		return dbtypes.ScalarAttributeTypeB
	default:
		return dbtypes.ScalarAttributeTypeS
	}
}
