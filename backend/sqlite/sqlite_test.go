package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/testutil"
	"github.com/BaSui01/tymigrawr/testutil/backendtest"
	"github.com/BaSui01/tymigrawr/testutil/fixtures"
	"github.com/BaSui01/tymigrawr/types"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	cfg := config.DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "tymigrawr.db")
	s, err := Open(testutil.TestContext(t), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Driver { return openTemp(t) }, backendtest.Options{Ordered: true})
}

// =============================================================================
// DDL
// =============================================================================

func TestCreateTableSQL(t *testing.T) {
	stmt, err := CreateTableSQL(fixtures.WidgetTable, fixtures.Widget{}.Fields())
	require.NoError(t, err)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "widget" ("id" INTEGER PRIMARY KEY NOT NULL, "label" TEXT NOT NULL, `+
			`"weight" FLOAT NOT NULL, "blob" BLOB NOT NULL, "note" TEXT)`,
		stmt)
}

func TestCreateTableSQL_ImplicitKeyAndAutoIncrement(t *testing.T) {
	stmt, err := CreateTableSQL("player", []types.CrudField{
		{Name: "id", Kind: types.KindInteger, AutoIncrement: true},
		{Name: "name", Kind: types.KindText},
	})
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "player" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT NOT NULL)`, stmt)
}

func TestCreateTableSQL_RejectsBadInput(t *testing.T) {
	_, err := CreateTableSQL("bad name", fixtures.Widget{}.Fields())
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))

	_, err = CreateTableSQL("empty", nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))

	_, err = CreateTableSQL("t", []types.CrudField{{Name: "x; DROP", Kind: types.KindText}})
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "plain.db", DSN(config.SQLiteConfig{Path: "plain.db"}))

	dsn := DSN(config.SQLiteConfig{Path: "x.db", JournalMode: "wal", BusyTimeout: 2 * time.Second})
	assert.Contains(t, dsn, "x.db?")
	assert.Contains(t, dsn, "busy_timeout%282000%29")
	assert.Contains(t, dsn, "journal_mode%28WAL%29")
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(testutil.TestContext(t), config.SQLiteConfig{}, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}

// =============================================================================
// 行为
// =============================================================================

func TestStore_AutoIncrementAssignsKeys(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := openTemp(t)
	fields := []types.CrudField{
		{Name: "id", Kind: types.KindInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Kind: types.KindText},
	}
	require.NoError(t, s.CreateTable(ctx, "counter", fields))
	require.NoError(t, s.InsertFields(ctx, "counter", types.FieldMap{"name": types.Text("a")}))
	require.NoError(t, s.InsertFields(ctx, "counter", types.FieldMap{"id": types.Null(), "name": types.Text("b")}))

	rows := testutil.MustCollect(t, mustCursor(s.ReadAllValues(ctx, "counter", []string{"id", "name"})))
	testutil.AssertRowsEqual(t, []types.FieldMap{
		{"id": types.Integer(1), "name": types.Text("a")},
		{"id": types.Integer(2), "name": types.Text("b")},
	}, rows)
}

func TestStore_NullPredicates(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := openTemp(t)
	tbl := backend.NewTable[fixtures.Widget](s)
	require.NoError(t, tbl.CreateTable(ctx))
	for _, w := range fixtures.Widgets(4) {
		require.NoError(t, tbl.Insert(ctx, w))
	}

	isNull := testutil.MustCollect(t, mustCursor(tbl.ReadWhere(ctx, "note", backend.Eq, types.Null())))
	assert.Equal(t, []fixtures.Widget{fixtures.NewWidget(1), fixtures.NewWidget(3)}, isNull)

	notNull := testutil.MustCollect(t, mustCursor(tbl.ReadWhere(ctx, "note", backend.Ne, types.Null())))
	assert.Equal(t, []fixtures.Widget{fixtures.NewWidget(0), fixtures.NewWidget(2)}, notNull)

	// != 匹配 NULL 单元格，与 Comparator.Match 一致
	ne := testutil.MustCollect(t, mustCursor(tbl.ReadWhere(ctx, "note", backend.Ne, types.Text("note 0"))))
	assert.Equal(t, []fixtures.Widget{fixtures.NewWidget(1), fixtures.NewWidget(2), fixtures.NewWidget(3)}, ne)

	none := testutil.MustCollect(t, mustCursor(tbl.ReadWhere(ctx, "note", backend.Lt, types.Null())))
	assert.Empty(t, none)
}

func TestStore_ReadMissingTableFails(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := openTemp(t)
	_, err := s.ReadAllValues(ctx, "never_created", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never_created")
}

func TestStore_RejectsUnsafeIdentifiers(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := openTemp(t)

	err := s.InsertFields(ctx, "widget; DROP TABLE x", types.FieldMap{"id": types.Integer(1)})
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))

	err = s.InsertFields(ctx, "widget", types.FieldMap{`id" = 1 --`: types.Integer(1)})
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))

	_, err = s.SelectWhere(ctx, "widget", nil, backend.Where("1=1 OR id", backend.Eq, types.Integer(1)))
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}

func TestStore_UpdateWithoutKeyFails(t *testing.T) {
	s := openTemp(t)
	err := s.UpdateFields(testutil.TestContext(t), "widget", backend.Condition{}, types.FieldMap{"label": types.Text("x")})
	assert.True(t, types.IsCode(err, types.ErrMissingPrimaryKey))
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(testutil.TestContext(t)))
}

// =============================================================================
// sqlmock: 语句形状与错误映射
// =============================================================================

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, DriverName), nil), mock
}

func TestStore_InsertStatement(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO "widget" ("id","label") VALUES (?,?)`).
		WithArgs(int64(7), "seven").
		WillReturnResult(sqlmock.NewResult(7, 1))

	err := s.InsertFields(testutil.TestContext(t), "widget", types.FieldMap{
		"id":    types.Integer(7),
		"label": types.Text("seven"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertMapsUniqueViolation(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO "widget" ("id") VALUES (?)`).
		WithArgs(int64(1)).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: widget.id (1555)"))

	err := s.InsertFields(testutil.TestContext(t), "widget", types.FieldMap{"id": types.Integer(1)})
	assert.ErrorIs(t, err, backend.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateStatement(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE "widget" SET "label" = ?, "note" = ? WHERE "id" = ?`).
		WithArgs("renamed", nil, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateFields(testutil.TestContext(t), "widget",
		backend.Where("id", backend.Eq, types.Integer(3)),
		types.FieldMap{"label": types.Text("renamed"), "note": types.Null()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteAllError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM "widget"`).WillReturnError(errors.New("disk I/O error"))

	err := s.DeleteAll(testutil.TestContext(t), "widget")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete from widget")
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReadAllKeepsRowsAroundScanError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT * FROM "widget"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "label"}).
			AddRow(int64(1), "one").
			AddRow(int64(2), "two").
			AddRow(int64(3), "three").
			RowError(2, errors.New("database disk image is malformed")))

	cur, err := s.ReadAllValues(testutil.TestContext(t), "widget", []string{"id", "label"})
	require.NoError(t, err, "a bad row must not fail the whole read")

	var seq []string
	for row, err := range cur.All() {
		if err != nil {
			assert.True(t, types.IsCode(err, types.ErrRowDecode), "got %v", err)
			assert.Contains(t, err.Error(), "malformed")
			seq = append(seq, "error")
			continue
		}
		label, _ := row["label"].AsText()
		seq = append(seq, label)
	}
	assert.Equal(t, []string{"one", "two", "error"}, seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SelectWhereYieldsScanErrorAsItem(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT * FROM "widget" WHERE "id" > ?`).
		WithArgs(int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			AddRow(int64(2)).
			RowError(1, errors.New("interrupted")))

	cur, err := s.SelectWhere(testutil.TestContext(t), "widget", []string{"id"},
		backend.Where("id", backend.Gt, types.Integer(0)))
	require.NoError(t, err)
	items, errs := testutil.CollectErrors(cur)
	assert.Len(t, items, 1)
	require.Len(t, errs, 1)
	assert.True(t, types.IsCode(errs[0], types.ErrRowDecode))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func mustCursor[T any](c *backend.Cursor[T], err error) *backend.Cursor[T] {
	if err != nil {
		panic(err)
	}
	return c
}
