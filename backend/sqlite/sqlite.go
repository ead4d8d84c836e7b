// Package sqlite provides a backend.Driver over SQLite, using sqlx for
// scanning and squirrel for statement building.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/glebarez/go-sqlite" // registers the pure-Go "sqlite" driver
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// DriverName is the database/sql driver the store opens.
const DriverName = "sqlite"

// Store implements backend.Driver on a SQLite database.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// DSN builds the connection string for cfg, passing pragmas as query options.
func DSN(cfg config.SQLiteConfig) string {
	q := url.Values{}
	if cfg.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	}
	if cfg.JournalMode != "" {
		q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", strings.ToUpper(cfg.JournalMode)))
	}
	if len(q) == 0 {
		return cfg.Path
	}
	return cfg.Path + "?" + q.Encode()
}

// Open opens and pings the database described by cfg.
func Open(ctx context.Context, cfg config.SQLiteConfig, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, types.NewError(types.ErrInvalidInput, "sqlite: path is required")
	}
	db, err := sqlx.Open(DriverName, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", cfg.Path, err)
	}
	s := New(db, logger)
	s.logger.Info("sqlite opened",
		zap.String("path", cfg.Path),
		zap.String("journal_mode", cfg.JournalMode),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return s, nil
}

// New wraps an open database.
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite_backend")),
	}
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the database. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// DDL
// =============================================================================

// CreateTableSQL renders the CREATE TABLE IF NOT EXISTS statement for fields.
// The flagged primary key, or the first field, becomes the PRIMARY KEY.
func CreateTableSQL(table string, fields []types.CrudField) (string, error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", types.NewError(types.ErrInvalidInput, "create table "+table+": no fields")
	}
	key := record.PrimaryKeyName(fields)
	defs := make([]string, 0, len(fields))
	for _, f := range fields {
		if err := backend.ValidateIdentifier(f.Name); err != nil {
			return "", err
		}
		def := quote(f.Name) + " " + backend.SQLType(f.Kind)
		isKey := f.Name == key
		if isKey {
			def += " PRIMARY KEY"
		}
		autoinc := isKey && f.AutoIncrement && f.Kind == types.KindInteger
		if autoinc {
			def += " AUTOINCREMENT"
		}
		if !f.Nullable && !autoinc {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", ")), nil
}

// CreateTable creates table if it does not exist.
func (s *Store) CreateTable(ctx context.Context, table string, fields []types.CrudField) error {
	stmt, err := CreateTableSQL(table, fields)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", table, err)
	}
	s.logger.Debug("table ensured", zap.String("table", table), zap.Int("fields", len(fields)))
	return nil
}

// =============================================================================
// 读取
// =============================================================================

// ReadAllValues reads every row of table. The result set is buffered before
// the cursor is returned so the connection is free for writes during a
// migration pass.
func (s *Store) ReadAllValues(ctx context.Context, table string, columns []string) (*backend.Cursor[types.FieldMap], error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	query, args, err := sq.Select("*").From(quote(table)).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read %s: %w", table, err)
	}
	defer rows.Close()

	// 扫描失败的行作为错误条目按原位置保留，不中断整表读取
	var buffered []scannedRow
	for row, err := range scanRows(rows) {
		if err != nil {
			err = types.RowDecode(table, err)
		}
		buffered = append(buffered, scannedRow{row: row, err: err})
	}

	return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
		for _, r := range buffered {
			if r.err != nil {
				if !yield(nil, r.err) {
					return
				}
				continue
			}
			if !yield(backend.Project(table, r.row, columns)) {
				return
			}
		}
	}, nil), nil
}

type scannedRow struct {
	row types.FieldMap
	err error
}

// SelectWhere streams rows matching cond from an open result set.
func (s *Store) SelectWhere(ctx context.Context, table string, columns []string, cond backend.Condition) (*backend.Cursor[types.FieldMap], error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	b := sq.Select("*").From(quote(table))
	if !cond.IsZero() {
		pred, err := predicate(cond)
		if err != nil {
			return nil, err
		}
		b = b.Where(pred)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select %s: %w", table, err)
	}
	return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
		for row, err := range scanRows(rows) {
			if err != nil {
				if !yield(nil, types.RowDecode(table, err)) {
					return
				}
				continue
			}
			if !yield(backend.Project(table, row, columns)) {
				return
			}
		}
	}, rows.Close), nil
}

// =============================================================================
// 写入
// =============================================================================

// InsertFields inserts one row. A primary key collision wraps backend.ErrDuplicateKey.
func (s *Store) InsertFields(ctx context.Context, table string, fields types.FieldMap) error {
	if err := backend.ValidateRow(table, fields); err != nil {
		return err
	}
	query, args, err := sq.Insert(quote(table)).SetMap(setMap(fields)).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s: %v", backend.ErrDuplicateKey, table, err)
		}
		return fmt.Errorf("sqlite: insert %s: %w", table, err)
	}
	return nil
}

// UpdateFields sets fields on rows matching key.
func (s *Store) UpdateFields(ctx context.Context, table string, key backend.Condition, fields types.FieldMap) error {
	if key.IsZero() {
		return types.MissingPrimaryKey("update " + table)
	}
	if err := backend.ValidateRow(table, fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	pred, err := predicate(key)
	if err != nil {
		return err
	}
	query, args, err := sq.Update(quote(table)).SetMap(setMap(fields)).Where(pred).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: update %s: %w", table, err)
	}
	return nil
}

// DeleteWhere removes rows matching cond. A zero condition removes every row.
func (s *Store) DeleteWhere(ctx context.Context, table string, cond backend.Condition) error {
	if err := backend.ValidateIdentifier(table); err != nil {
		return err
	}
	b := sq.Delete(quote(table))
	if !cond.IsZero() {
		pred, err := predicate(cond)
		if err != nil {
			return err
		}
		b = b.Where(pred)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: delete from %s: %w", table, err)
	}
	return nil
}

// DeleteAll empties table.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	return s.DeleteWhere(ctx, table, backend.Condition{})
}

// =============================================================================
// 辅助函数
// =============================================================================

// IsUniqueViolation reports whether err is a SQLite uniqueness failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY must be unique")
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func setMap(fields types.FieldMap) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[quote(k)] = v.Any()
	}
	return out
}

// predicate renders cond the way backend.Comparator.Match evaluates it:
// Null compares with IS, and != also matches NULL cells.
func predicate(cond backend.Condition) (sq.Sqlizer, error) {
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	if err := backend.ValidateIdentifier(cond.Column); err != nil {
		return nil, err
	}
	col := quote(cond.Column)
	if cond.Value.IsNull() {
		switch cond.Op {
		case backend.Eq:
			return sq.Expr(col + " IS NULL"), nil
		case backend.Ne:
			return sq.Expr(col + " IS NOT NULL"), nil
		default:
			return sq.Expr("1 = 0"), nil
		}
	}
	if cond.Op == backend.Ne {
		return sq.Or{sq.Expr(col+" != ?", cond.Value.Any()), sq.Expr(col + " IS NULL")}, nil
	}
	return sq.Expr(col+" "+string(cond.Op)+" ?", cond.Value.Any()), nil
}

var errNoColumns = errors.New("result set has no columns")

// scanRows decodes each row of rows, coercing values to the declared column type.
func scanRows(rows *sqlx.Rows) func(yield func(types.FieldMap, error) bool) {
	return func(yield func(types.FieldMap, error) bool) {
		kinds, err := columnKinds(rows)
		if err != nil {
			yield(nil, err)
			return
		}
		for rows.Next() {
			raw := make(map[string]any, len(kinds))
			if err := rows.MapScan(raw); err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			row := make(types.FieldMap, len(raw))
			for name, v := range raw {
				row[name] = backend.Coerce(types.FromAny(v), kinds[name])
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func columnKinds(rows *sqlx.Rows) (map[string]types.Kind, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	if len(cts) == 0 {
		return nil, errNoColumns
	}
	kinds := make(map[string]types.Kind, len(cts))
	for _, ct := range cts {
		kinds[ct.Name()] = backend.KindForSQLType(ct.DatabaseTypeName())
	}
	return kinds, nil
}

var _ backend.Driver = (*Store)(nil)
