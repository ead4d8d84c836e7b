package backend

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/BaSui01/tymigrawr/types"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("backend: closed")

// ErrDuplicateKey is returned when an insert collides with an existing key.
var ErrDuplicateKey = errors.New("backend: duplicate primary key")

// Type 后端类型
type Type string

const (
	TypeMemory   Type = "memory"
	TypeSQLite   Type = "sqlite"
	TypeGorm     Type = "gorm"
	TypeRedis    Type = "redis"
	TypeBolt     Type = "bolt"
	TypeDynamoDB Type = "dynamodb"
	TypeMongo    Type = "mongo"
)

// Bulk is the untyped surface a migration pass needs.
type Bulk interface {
	// ReadAllValues scans every row of table, projecting columns. A row
	// missing a requested column is yielded as a ROW_DECODE error item.
	ReadAllValues(ctx context.Context, table string, columns []string) (*Cursor[types.FieldMap], error)
	// InsertFields inserts one row.
	InsertFields(ctx context.Context, table string, fields types.FieldMap) error
	// DeleteAll removes every row of table, keeping the table itself.
	DeleteAll(ctx context.Context, table string) error
}

// TableCreator is implemented by backends that need tables created ahead of use.
type TableCreator interface {
	// CreateTable is idempotent.
	CreateTable(ctx context.Context, table string, fields []types.CrudField) error
}

// Driver is the full storage contract behind Table.
type Driver interface {
	Bulk
	TableCreator

	// SelectWhere streams rows matching cond. A zero Condition matches every row.
	SelectWhere(ctx context.Context, table string, columns []string, cond Condition) (*Cursor[types.FieldMap], error)
	// UpdateFields overwrites fields on rows matching key. Matching nothing is not an error.
	UpdateFields(ctx context.Context, table string, key Condition, fields types.FieldMap) error
	// DeleteWhere removes rows matching cond.
	DeleteWhere(ctx context.Context, table string, cond Condition) error

	Ping(ctx context.Context) error
	Close() error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects names unsafe to splice into a statement.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("invalid identifier %q", name))
	}
	return nil
}

// ValidateRow checks the table name and every column of fields.
func ValidateRow(table string, fields types.FieldMap) error {
	if err := ValidateIdentifier(table); err != nil {
		return err
	}
	for name := range fields {
		if err := ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// Project picks columns out of a stored row. A missing column yields a
// ROW_DECODE error. Nil columns selects the whole row.
func Project(table string, row types.FieldMap, columns []string) (types.FieldMap, error) {
	if columns == nil {
		return row.Clone(), nil
	}
	out := make(types.FieldMap, len(columns))
	for _, c := range columns {
		v, ok := row[c]
		if !ok {
			return nil, types.RowDecode(table, types.MissingField(c))
		}
		out[c] = v
	}
	return out, nil
}
