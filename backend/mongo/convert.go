package mongo

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/types"
)

// idField is MongoDB's document key. It mirrors the primary key so the
// server enforces uniqueness.
const idField = "_id"

// ToDocument converts a field map to a document with columns in sorted order.
// When key is non-empty its value is also stored under _id.
func ToDocument(fields types.FieldMap, key string) bson.D {
	doc := make(bson.D, 0, len(fields)+1)
	if key != "" {
		if v, ok := fields[key]; ok {
			doc = append(doc, bson.E{Key: idField, Value: v.Any()})
		}
	}
	for _, name := range fields.Columns() {
		doc = append(doc, bson.E{Key: name, Value: fields[name].Any()})
	}
	return doc
}

// FromDocument converts a decoded document back to a field map, dropping _id.
func FromDocument(doc bson.M) types.FieldMap {
	fields := make(types.FieldMap, len(doc))
	for name, raw := range doc {
		if name == idField {
			continue
		}
		fields[name] = FromBSON(raw)
	}
	return fields
}

// FromBSON converts a decoded BSON value. Binary data becomes Bytes; other
// values go through types.FromAny.
func FromBSON(raw any) types.Value {
	switch x := raw.(type) {
	case bson.Binary:
		return types.Bytes(x.Data)
	case bson.Null, bson.Undefined:
		return types.Null()
	default:
		return types.FromAny(x)
	}
}

var operators = map[backend.Comparator]string{
	backend.Ne: "$ne",
	backend.Lt: "$lt",
	backend.Le: "$lte",
	backend.Gt: "$gt",
	backend.Ge: "$gte",
}

// Filter renders cond as a query document. Null only compares with = and !=;
// any other comparison against Null matches nothing.
func Filter(cond backend.Condition) bson.D {
	if cond.IsZero() {
		return bson.D{}
	}
	if cond.Op == backend.Eq {
		return bson.D{{Key: cond.Column, Value: cond.Value.Any()}}
	}
	if cond.Value.IsNull() && cond.Op != backend.Ne {
		return bson.D{{Key: idField, Value: bson.D{{Key: "$exists", Value: false}}}}
	}
	return bson.D{{Key: cond.Column, Value: bson.D{{Key: operators[cond.Op], Value: cond.Value.Any()}}}}
}
