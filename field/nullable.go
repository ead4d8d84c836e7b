package field

import "github.com/BaSui01/tymigrawr/types"

type nullable[F any] struct {
	inner Codec[F]
}

// Nullable lifts a codec over an optional field. A nil pointer stores Null
// and a stored Null reads back as nil.
func Nullable[F any](inner Codec[F]) Codec[*F] {
	return nullable[F]{inner: inner}
}

func (n nullable[F]) Descriptor() types.CrudField {
	d := n.inner.Descriptor()
	d.Nullable = true
	return d
}

func (n nullable[F]) ToValue(v *F) types.Value {
	if v == nil {
		return types.Null()
	}
	return n.inner.ToValue(*v)
}

func (n nullable[F]) FromValue(v types.Value) (*F, error) {
	if v.IsNull() {
		return nil, nil
	}
	out, err := n.inner.FromValue(v)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
