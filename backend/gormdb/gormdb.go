// Package gormdb provides a backend.Driver over any database GORM can open:
// PostgreSQL, MySQL and SQLite. Writes run in transactions that are retried
// on deadlocks and other transient failures.
package gormdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/internal/database"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// Store implements backend.Driver through GORM.
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger

	// 已知表的字段描述，用于在插入时省略自增主键
	fields sync.Map
}

// Open connects to the database described by cfg.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	pool, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(pool, logger), nil
}

// New wraps an existing pool.
func New(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With(zap.String("component", "gorm_backend"), zap.String("dialect", pool.Dialect())),
	}
}

// Pool returns the underlying pool manager.
func (s *Store) Pool() *database.PoolManager { return s.pool }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close closes the pool. It is safe to call more than once.
func (s *Store) Close() error { return s.pool.Close() }

// =============================================================================
// DDL
// =============================================================================

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for db's dialect. The
// flagged primary key, or the first field, becomes the PRIMARY KEY.
func CreateTableSQL(db *gorm.DB, table string, fields []types.CrudField) (string, error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", types.NewError(types.ErrInvalidInput, "create table "+table+": no fields")
	}
	dialect := db.Dialector.Name()
	key := record.PrimaryKeyName(fields)
	defs := make([]string, 0, len(fields))
	for _, f := range fields {
		if err := backend.ValidateIdentifier(f.Name); err != nil {
			return "", err
		}
		isKey := f.Name == key
		autoinc := isKey && f.AutoIncrement && f.Kind == types.KindInteger
		def := quote(db, f.Name) + " " + columnType(dialect, f.Kind, isKey, autoinc)
		if isKey {
			def += " PRIMARY KEY"
			if autoinc && dialect == "sqlite" {
				def += " AUTOINCREMENT"
			}
		}
		if !f.Nullable && !autoinc {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(db, table), strings.Join(defs, ", ")), nil
}

func columnType(dialect string, kind types.Kind, isKey, autoinc bool) string {
	switch dialect {
	case "postgres":
		switch kind {
		case types.KindInteger:
			if autoinc {
				return "BIGSERIAL"
			}
			return "BIGINT"
		case types.KindFloat:
			return "DOUBLE PRECISION"
		case types.KindBytes:
			return "BYTEA"
		default:
			return "TEXT"
		}
	case "mysql":
		switch kind {
		case types.KindInteger:
			if autoinc {
				return "BIGINT AUTO_INCREMENT"
			}
			return "BIGINT"
		case types.KindFloat:
			return "DOUBLE"
		case types.KindBytes:
			if isKey {
				return "VARBINARY(255)"
			}
			return "LONGBLOB"
		default:
			// MySQL 不能用 TEXT 作主键
			if isKey {
				return "VARCHAR(191)"
			}
			return "TEXT"
		}
	default:
		return backend.SQLType(kind)
	}
}

// CreateTable creates table if it does not exist.
func (s *Store) CreateTable(ctx context.Context, table string, fields []types.CrudField) error {
	stmt, err := CreateTableSQL(s.pool.DB(), table, fields)
	if err != nil {
		return err
	}
	err = s.pool.WithTransactionRetry(ctx, func(tx *gorm.DB) error {
		return tx.Exec(stmt).Error
	})
	if err != nil {
		return fmt.Errorf("gorm: create table %s: %w", table, err)
	}
	s.fields.Store(table, append([]types.CrudField(nil), fields...))
	s.logger.Debug("table ensured", zap.String("table", table), zap.Int("fields", len(fields)))
	return nil
}

// =============================================================================
// 读取
// =============================================================================

// ReadAllValues reads every row of table, buffering the result set so the
// pool is free for inserts while the caller iterates.
func (s *Store) ReadAllValues(ctx context.Context, table string, columns []string) (*backend.Cursor[types.FieldMap], error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	rows, err := s.pool.DB().WithContext(ctx).Table(table).Rows()
	if err != nil {
		return nil, fmt.Errorf("gorm: read %s: %w", table, err)
	}
	defer rows.Close()

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

// scannedRow 是缓冲的一行扫描结果，失败的行保留错误
type scannedRow struct {
	row types.FieldMap
	err error
}

// SelectWhere streams rows matching cond.
func (s *Store) SelectWhere(ctx context.Context, table string, columns []string, cond backend.Condition) (*backend.Cursor[types.FieldMap], error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	q := s.pool.DB().WithContext(ctx).Table(table)
	q, err := where(q, cond)
	if err != nil {
		return nil, err
	}
	rows, err := q.Rows()
	if err != nil {
		return nil, fmt.Errorf("gorm: select %s: %w", table, err)
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

// InsertFields inserts one row. A key collision wraps backend.ErrDuplicateKey.
func (s *Store) InsertFields(ctx context.Context, table string, fields types.FieldMap) error {
	if err := backend.ValidateRow(table, fields); err != nil {
		return err
	}
	values := s.insertValues(table, fields)
	err := s.pool.WithTransactionRetry(ctx, func(tx *gorm.DB) error {
		return tx.Table(table).Create(values).Error
	})
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("%w: %s: %v", backend.ErrDuplicateKey, table, err)
		}
		return fmt.Errorf("gorm: insert %s: %w", table, err)
	}
	return nil
}

// insertValues converts fields for GORM, leaving out Null auto-increment keys
// so the database assigns them.
func (s *Store) insertValues(table string, fields types.FieldMap) map[string]any {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v.Any()
	}
	if known, ok := s.fields.Load(table); ok {
		for _, f := range known.([]types.CrudField) {
			if v, present := fields[f.Name]; f.AutoIncrement && (!present || v.IsNull()) {
				delete(values, f.Name)
			}
		}
	}
	return values
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
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v.Any()
	}
	err := s.pool.WithTransactionRetry(ctx, func(tx *gorm.DB) error {
		q, err := where(tx.Table(table), key)
		if err != nil {
			return err
		}
		return q.Updates(values).Error
	})
	if err != nil {
		return fmt.Errorf("gorm: update %s: %w", table, err)
	}
	return nil
}

// DeleteWhere removes rows matching cond. A zero condition removes every row.
func (s *Store) DeleteWhere(ctx context.Context, table string, cond backend.Condition) error {
	if err := backend.ValidateIdentifier(table); err != nil {
		return err
	}
	var pred clause.Expr
	if !cond.IsZero() {
		var err error
		if pred, err = predicate(cond); err != nil {
			return err
		}
	}
	err := s.pool.WithTransactionRetry(ctx, func(tx *gorm.DB) error {
		stmt := "DELETE FROM " + quote(tx, table)
		if cond.IsZero() {
			return tx.Exec(stmt).Error
		}
		return tx.Exec(stmt+" WHERE "+pred.SQL, pred.Vars...).Error
	})
	if err != nil {
		return fmt.Errorf("gorm: delete from %s: %w", table, err)
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

// IsDuplicateKey reports whether err is a unique-key violation on any dialect.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func quote(db *gorm.DB, ident string) string {
	var b strings.Builder
	db.Dialector.QuoteTo(&b, ident)
	return b.String()
}

func where(q *gorm.DB, cond backend.Condition) (*gorm.DB, error) {
	if cond.IsZero() {
		return q, nil
	}
	pred, err := predicate(cond)
	if err != nil {
		return nil, err
	}
	return q.Where(pred.SQL, pred.Vars...), nil
}

// predicate renders cond with backend.Comparator.Match semantics: Null
// compares with IS, and != also matches NULL cells.
func predicate(cond backend.Condition) (clause.Expr, error) {
	if err := cond.Validate(); err != nil {
		return clause.Expr{}, err
	}
	if err := backend.ValidateIdentifier(cond.Column); err != nil {
		return clause.Expr{}, err
	}
	col := clause.Column{Name: cond.Column}
	if cond.Value.IsNull() {
		switch cond.Op {
		case backend.Eq:
			return clause.Expr{SQL: "? IS NULL", Vars: []any{col}}, nil
		case backend.Ne:
			return clause.Expr{SQL: "? IS NOT NULL", Vars: []any{col}}, nil
		default:
			return clause.Expr{SQL: "1 = 0"}, nil
		}
	}
	if cond.Op == backend.Ne {
		return clause.Expr{SQL: "(? <> ? OR ? IS NULL)", Vars: []any{col, cond.Value.Any(), col}}, nil
	}
	return clause.Expr{SQL: "? " + string(cond.Op) + " ?", Vars: []any{col, cond.Value.Any()}}, nil
}

// scanRows decodes each row, coercing values to the declared column type.
func scanRows(rows *sql.Rows) func(yield func(types.FieldMap, error) bool) {
	return func(yield func(types.FieldMap, error) bool) {
		cts, err := rows.ColumnTypes()
		if err != nil {
			yield(nil, err)
			return
		}
		kinds := make([]types.Kind, len(cts))
		for i, ct := range cts {
			kinds[i] = backend.KindForSQLType(ct.DatabaseTypeName())
		}
		for rows.Next() {
			vals := make([]any, len(cts))
			ptrs := make([]any, len(cts))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			row := make(types.FieldMap, len(cts))
			for i, ct := range cts {
				row[ct.Name()] = backend.Coerce(types.FromAny(vals[i]), kinds[i])
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

var _ backend.Driver = (*Store)(nil)
