package fixtures

import (
	"github.com/BaSui01/tymigrawr/field"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// MemoTable 是 Memo 的表名
const MemoTable = "memo"

// Memo 不标记主键，按声明顺序以 slug 作为键
type Memo struct {
	Slug string
	Body string
}

var memoSchema = func() *record.Schema[Memo] {
	s := record.NewSchema[Memo](MemoTable)
	record.Bind(s, "slug", field.String, func(m *Memo) *string { return &m.Slug })
	record.Bind(s, "body", field.String, func(m *Memo) *string { return &m.Body })
	return s
}()

func (m Memo) TableName() string                    { return memoSchema.TableName() }
func (m Memo) Fields() []types.CrudField            { return memoSchema.Fields() }
func (m Memo) FieldMap() types.FieldMap             { return memoSchema.Encode(&m) }
func (m *Memo) SetFieldMap(fm types.FieldMap) error { return memoSchema.Decode(fm, m) }
