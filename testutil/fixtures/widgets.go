// =============================================================================
// 📦 测试数据工厂 - Widget 记录
// =============================================================================
// 覆盖 Integer / Float / Text / Bytes / Null 全部值类型的测试记录
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/BaSui01/tymigrawr/field"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// WidgetTable 是 Widget 的表名
const WidgetTable = "widget"

// Widget 是后端一致性测试使用的记录类型
type Widget struct {
	ID     int64
	Label  string
	Weight float64
	Blob   []byte
	Note   *string
}

var widgetSchema = func() *record.Schema[Widget] {
	s := record.NewSchema[Widget](WidgetTable)
	record.Bind(s, "id", field.Int64, func(w *Widget) *int64 { return &w.ID }, record.PrimaryKey())
	record.Bind(s, "label", field.String, func(w *Widget) *string { return &w.Label })
	record.Bind(s, "weight", field.Float64, func(w *Widget) *float64 { return &w.Weight })
	record.Bind(s, "blob", field.Bytes, func(w *Widget) *[]byte { return &w.Blob })
	record.Bind(s, "note", field.Nullable(field.String), func(w *Widget) **string { return &w.Note })
	return s
}()

func (w Widget) TableName() string                   { return widgetSchema.TableName() }
func (w Widget) Fields() []types.CrudField           { return widgetSchema.Fields() }
func (w Widget) FieldMap() types.FieldMap            { return widgetSchema.Encode(&w) }
func (w *Widget) SetFieldMap(m types.FieldMap) error { return widgetSchema.Decode(m, w) }

// NewWidget 构造第 i 个测试 Widget，偶数行带备注
func NewWidget(i int) Widget {
	w := Widget{
		ID:     int64(i),
		Label:  fmt.Sprintf("widget_%d", i),
		Weight: float64(i) * 1.5,
		Blob:   []byte{byte(i), byte(i >> 8)},
	}
	if i%2 == 0 {
		note := fmt.Sprintf("note %d", i)
		w.Note = &note
	}
	return w
}

// Widgets 构造 n 个测试 Widget
func Widgets(n int) []Widget {
	out := make([]Widget, n)
	for i := range out {
		out[i] = NewWidget(i)
	}
	return out
}

// WidgetRows 返回 Widgets(n) 对应的字段映射
func WidgetRows(n int) []types.FieldMap {
	out := make([]types.FieldMap, n)
	for i, w := range Widgets(n) {
		out[i] = w.FieldMap()
	}
	return out
}
