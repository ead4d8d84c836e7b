// Package backendtest is the conformance suite every backend.Driver runs.
package backendtest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/testutil"
	"github.com/BaSui01/tymigrawr/testutil/fixtures"
	"github.com/BaSui01/tymigrawr/types"
)

// Factory returns a fresh, empty driver for one subtest.
type Factory func(t *testing.T) backend.Driver

// Options toggles checks a backend cannot honour.
type Options struct {
	// Ordered asserts ReadAll returns rows in insertion order.
	Ordered bool
}

// Run executes the conformance suite against drivers built by newDriver.
func Run(t *testing.T, newDriver Factory, opts Options) {
	t.Run("create table is idempotent", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := backend.NewTable[fixtures.Widget](newDriver(t))
		require.NoError(t, tbl.CreateTable(ctx))
		require.NoError(t, tbl.CreateTable(ctx))
		require.NoError(t, tbl.Insert(ctx, fixtures.NewWidget(1)))
		require.NoError(t, tbl.CreateTable(ctx))

		got := testutil.MustCollect(t, mustCursor(tbl.ReadAll(ctx)))
		assert.Len(t, got, 1, "recreating must not drop rows")
	})

	t.Run("insert and read all", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := seeded(t, newDriver(t), 10)

		got := testutil.MustCollect(t, mustCursor(tbl.ReadAll(ctx)))
		if opts.Ordered {
			assert.Equal(t, fixtures.Widgets(10), got)
		} else {
			assert.ElementsMatch(t, fixtures.Widgets(10), got)
		}
	})

	t.Run("read where", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := seeded(t, newDriver(t), 10)

		cases := []struct {
			op   backend.Comparator
			want []int
		}{
			{backend.Eq, []int{4}},
			{backend.Ne, []int{0, 1, 2, 3, 5, 6, 7, 8, 9}},
			{backend.Lt, []int{0, 1, 2, 3}},
			{backend.Le, []int{0, 1, 2, 3, 4}},
			{backend.Gt, []int{5, 6, 7, 8, 9}},
			{backend.Ge, []int{4, 5, 6, 7, 8, 9}},
		}
		for _, c := range cases {
			got := testutil.MustCollect(t, mustCursor(tbl.ReadWhere(ctx, "id", c.op, types.Integer(4))))
			want := make([]fixtures.Widget, len(c.want))
			for i, id := range c.want {
				want[i] = fixtures.NewWidget(id)
			}
			assert.ElementsMatch(t, want, got, "id %s 4", c.op)
		}

		got := testutil.MustCollect(t, mustCursor(tbl.ReadWhere(ctx, "label", backend.Eq, types.Text("widget_7"))))
		assert.Equal(t, []fixtures.Widget{fixtures.NewWidget(7)}, got)
	})

	t.Run("read by primary key", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := seeded(t, newDriver(t), 5)

		got := testutil.MustCollect(t, mustCursor(tbl.Read(ctx, types.Integer(3))))
		assert.Equal(t, []fixtures.Widget{fixtures.NewWidget(3)}, got)

		none := testutil.MustCollect(t, mustCursor(tbl.Read(ctx, types.Integer(99))))
		assert.Empty(t, none)
	})

	t.Run("update by primary key", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := seeded(t, newDriver(t), 3)

		w := fixtures.NewWidget(1)
		w.Label = "renamed"
		w.Weight = 42.25
		note := "updated"
		w.Note = &note
		require.NoError(t, tbl.Update(ctx, w))

		got := testutil.MustCollect(t, mustCursor(tbl.Read(ctx, types.Integer(1))))
		require.Len(t, got, 1)
		assert.Equal(t, w, got[0])

		others := testutil.MustCollect(t, mustCursor(tbl.Read(ctx, types.Integer(2))))
		assert.Equal(t, []fixtures.Widget{fixtures.NewWidget(2)}, others)

		// 不存在的主键不是错误
		require.NoError(t, tbl.Update(ctx, fixtures.NewWidget(77)))
	})

	t.Run("delete by primary key", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := seeded(t, newDriver(t), 3)

		require.NoError(t, tbl.Delete(ctx, fixtures.NewWidget(0)))
		got := testutil.MustCollect(t, mustCursor(tbl.ReadAll(ctx)))
		assert.ElementsMatch(t, []fixtures.Widget{fixtures.NewWidget(1), fixtures.NewWidget(2)}, got)
	})

	t.Run("duplicate key is rejected", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := seeded(t, newDriver(t), 2)
		assert.ErrorIs(t, tbl.Insert(ctx, fixtures.NewWidget(1)), backend.ErrDuplicateKey)
	})

	t.Run("first declared field keys unmarked records", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := backend.NewTable[fixtures.Memo](newDriver(t))
		require.NoError(t, tbl.CreateTable(ctx))
		for _, m := range []fixtures.Memo{{Slug: "a", Body: "alpha"}, {Slug: "b", Body: "beta"}, {Slug: "c", Body: "gamma"}} {
			require.NoError(t, tbl.Insert(ctx, m))
		}

		require.NoError(t, tbl.Update(ctx, fixtures.Memo{Slug: "a", Body: "rewritten"}))
		require.NoError(t, tbl.Delete(ctx, fixtures.Memo{Slug: "b"}))

		got := testutil.MustCollect(t, mustCursor(tbl.ReadAll(ctx)))
		want := []fixtures.Memo{{Slug: "a", Body: "rewritten"}, {Slug: "c", Body: "gamma"}}
		if opts.Ordered {
			assert.Equal(t, want, got)
		} else {
			assert.ElementsMatch(t, want, got)
		}

		one := testutil.MustCollect(t, mustCursor(tbl.Read(ctx, types.Text("a"))))
		assert.Equal(t, []fixtures.Memo{{Slug: "a", Body: "rewritten"}}, one)

		err := tbl.Insert(ctx, fixtures.Memo{Slug: "a", Body: "again"})
		assert.ErrorIs(t, err, backend.ErrDuplicateKey)
	})

	t.Run("bulk read insert and delete all", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		d := newDriver(t)
		seeded(t, d, 4)

		columns := types.ColumnNames(fixtures.Widget{}.Fields())
		rows := testutil.MustCollect(t, mustCursor(d.ReadAllValues(ctx, fixtures.WidgetTable, columns)))
		testutil.AssertRowsMatch(t, fixtures.WidgetRows(4), rows)

		require.NoError(t, d.InsertFields(ctx, fixtures.WidgetTable, fixtures.NewWidget(9).FieldMap()))
		rows = testutil.MustCollect(t, mustCursor(d.ReadAllValues(ctx, fixtures.WidgetTable, columns)))
		assert.Len(t, rows, 5)

		require.NoError(t, d.DeleteAll(ctx, fixtures.WidgetTable))
		rows = testutil.MustCollect(t, mustCursor(d.ReadAllValues(ctx, fixtures.WidgetTable, columns)))
		assert.Empty(t, rows)

		// 清空后表仍然可用
		require.NoError(t, d.InsertFields(ctx, fixtures.WidgetTable, fixtures.NewWidget(1).FieldMap()))
		rows = testutil.MustCollect(t, mustCursor(d.ReadAllValues(ctx, fixtures.WidgetTable, columns)))
		assert.Len(t, rows, 1)
	})

	t.Run("missing column is a per-row error", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		d := newDriver(t)
		seeded(t, d, 3)

		cur, err := d.ReadAllValues(ctx, fixtures.WidgetTable, []string{"id", "not_yet_added"})
		require.NoError(t, err)
		items, errs := testutil.CollectErrors(cur)
		assert.Empty(t, items)
		require.Len(t, errs, 3)
		for _, e := range errs {
			assert.True(t, types.IsCode(e, types.ErrRowDecode), "got %v", e)
		}
	})

	t.Run("cursor is one shot", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		tbl := seeded(t, newDriver(t), 2)

		cur := mustCursor(tbl.ReadAll(ctx))
		first := testutil.MustCollect(t, cur)
		assert.Len(t, first, 2)
		_, err := cur.Collect()
		assert.True(t, errors.Is(err, backend.ErrCursorConsumed))
	})

	t.Run("ping and close", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		d := newDriver(t)
		require.NoError(t, d.Ping(ctx))
		require.NoError(t, d.Close())
	})
}

func seeded(t *testing.T, d backend.Driver, n int) *backend.Table[fixtures.Widget, *fixtures.Widget] {
	t.Helper()
	ctx := testutil.TestContext(t)
	tbl := backend.NewTable[fixtures.Widget](d)
	require.NoError(t, tbl.CreateTable(ctx))
	for _, w := range fixtures.Widgets(n) {
		require.NoError(t, tbl.Insert(ctx, w))
	}
	return tbl
}

func mustCursor[T any](c *backend.Cursor[T], err error) *backend.Cursor[T] {
	if err != nil {
		panic(err)
	}
	return c
}
