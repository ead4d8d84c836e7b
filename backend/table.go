package backend

import (
	"context"

	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// Table is the typed CRUD surface for one record version over a Driver.
type Table[R any, P record.Ptr[R]] struct {
	driver  Driver
	name    string
	fields  []types.CrudField
	columns []string
}

// NewTable binds record type R to driver.
func NewTable[R any, P record.Ptr[R]](driver Driver) *Table[R, P] {
	fields := record.Fields[R, P]()
	return &Table[R, P]{
		driver:  driver,
		name:    record.TableName[R, P](),
		fields:  fields,
		columns: types.ColumnNames(fields),
	}
}

// Name returns the bound table name.
func (t *Table[R, P]) Name() string { return t.name }

// CreateTable creates the table if it does not exist.
func (t *Table[R, P]) CreateTable(ctx context.Context) error {
	return t.driver.CreateTable(ctx, t.name, t.fields)
}

// Insert stores one record.
func (t *Table[R, P]) Insert(ctx context.Context, r R) error {
	return t.driver.InsertFields(ctx, t.name, P(&r).FieldMap())
}

// ReadAll streams every stored record.
func (t *Table[R, P]) ReadAll(ctx context.Context) (*Cursor[R], error) {
	return t.ReadWhere(ctx, "", "", types.Null())
}

// ReadWhere streams records whose column compares to value. Rows that fail to
// decode are yielded as ROW_DECODE items.
func (t *Table[R, P]) ReadWhere(ctx context.Context, column string, op Comparator, value types.Value) (*Cursor[R], error) {
	rows, err := t.driver.SelectWhere(ctx, t.name, t.columns, Where(column, op, value))
	if err != nil {
		return nil, err
	}
	return MapCursor(rows, func(m types.FieldMap) (R, error) {
		r, err := record.FromFieldMap[R, P](m)
		if err != nil {
			return r, types.RowDecode(t.name, err)
		}
		return r, nil
	}), nil
}

// Read streams records whose primary key equals key.
func (t *Table[R, P]) Read(ctx context.Context, key types.Value) (*Cursor[R], error) {
	name := record.PrimaryKeyName(t.fields)
	if name == "" {
		return nil, types.MissingPrimaryKey("read " + t.name)
	}
	return t.ReadWhere(ctx, name, Eq, key)
}

// Update rewrites the non-key columns of the row sharing r's primary key.
func (t *Table[R, P]) Update(ctx context.Context, r R) error {
	p := P(&r)
	name, key, err := record.KeyOf(p)
	if err != nil {
		return err
	}
	return t.driver.UpdateFields(ctx, t.name, Where(name, Eq, key), p.FieldMap().Without(name))
}

// Delete removes the row sharing r's primary key.
func (t *Table[R, P]) Delete(ctx context.Context, r R) error {
	p := P(&r)
	name, key, err := record.KeyOf(p)
	if err != nil {
		return err
	}
	return t.driver.DeleteWhere(ctx, t.name, Where(name, Eq, key))
}
