package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/testutil"
	"github.com/BaSui01/tymigrawr/testutil/backendtest"
	"github.com/BaSui01/tymigrawr/types"
)

func TestStore_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Driver {
		return New(zap.NewNop())
	}, backendtest.Options{Ordered: true})
}

func TestStore_AutoIncrement(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New(nil)
	require.NoError(t, s.CreateTable(ctx, "seq", []types.CrudField{
		{Name: "id", Kind: types.KindInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Kind: types.KindText},
	}))

	require.NoError(t, s.InsertFields(ctx, "seq", types.FieldMap{"name": types.Text("a")}))
	require.NoError(t, s.InsertFields(ctx, "seq", types.FieldMap{"id": types.Integer(10), "name": types.Text("b")}))
	require.NoError(t, s.InsertFields(ctx, "seq", types.FieldMap{"id": types.Null(), "name": types.Text("c")}))

	rows := testutil.MustCollect(t, must(s.ReadAllValues(ctx, "seq", []string{"id", "name"})))
	testutil.AssertRowsEqual(t, []types.FieldMap{
		{"id": types.Integer(1), "name": types.Text("a")},
		{"id": types.Integer(10), "name": types.Text("b")},
		{"id": types.Integer(11), "name": types.Text("c")},
	}, rows)
}

func TestStore_UnknownTableIsEmpty(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New(nil)
	rows := testutil.MustCollect(t, must(s.ReadAllValues(ctx, "nope", []string{"id"})))
	assert.Empty(t, rows)
	assert.NoError(t, s.DeleteAll(ctx, "nope"))
	assert.Equal(t, 0, s.Len("nope"))
}

func TestStore_Closed(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New(nil)
	require.NoError(t, s.Close())

	assert.True(t, errors.Is(s.Ping(ctx), backend.ErrClosed))
	assert.True(t, errors.Is(s.InsertFields(ctx, "t", types.FieldMap{}), backend.ErrClosed))
	_, err := s.ReadAllValues(ctx, "t", nil)
	assert.True(t, errors.Is(err, backend.ErrClosed))
}

func TestStore_WritesDuringIteration(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New(nil)
	for i := range 3 {
		require.NoError(t, s.InsertFields(ctx, "src", types.FieldMap{"n": types.Integer(int64(i))}))
	}

	cur := must(s.ReadAllValues(ctx, "src", []string{"n"}))
	for row, err := range cur.All() {
		require.NoError(t, err)
		require.NoError(t, s.InsertFields(ctx, "dst", row))
		require.NoError(t, s.InsertFields(ctx, "src", types.FieldMap{"n": types.Integer(100)}))
	}
	assert.Equal(t, 3, s.Len("dst"))
	assert.Equal(t, 6, s.Len("src"))
}

func must[T any](c *backend.Cursor[T], err error) *backend.Cursor[T] {
	if err != nil {
		panic(err)
	}
	return c
}
