// =============================================================================
// 🗄️ MockBulk - 批量后端模拟实现
// =============================================================================
// 用于迁移链测试的批量后端模拟，记录所有调用并支持错误注入
//
// 使用方法:
//
//	bulk := mocks.NewMockBulk().
//	    WithRows("playerv1", rows).
//	    WithInsertError("playerv3", errors.New("disk full"))
//
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/types"
)

// Call 记录一次后端调用
type Call struct {
	Op     string
	Table  string
	Fields types.FieldMap
}

// MockBulk 是 backend.Bulk 的模拟实现
type MockBulk struct {
	mu sync.Mutex

	tables      map[string][]types.FieldMap
	calls       []Call
	readErrs    map[string]error
	insertErrs  map[string]error
	deleteErrs  map[string]error
	failAfterN  map[string]int
	insertCount map[string]int
}

// NewMockBulk 创建空的 MockBulk
func NewMockBulk() *MockBulk {
	return &MockBulk{
		tables:      make(map[string][]types.FieldMap),
		readErrs:    make(map[string]error),
		insertErrs:  make(map[string]error),
		deleteErrs:  make(map[string]error),
		failAfterN:  make(map[string]int),
		insertCount: make(map[string]int),
	}
}

// WithRows 预置表数据
func (m *MockBulk) WithRows(table string, rows []types.FieldMap) *MockBulk {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], r.Clone())
	}
	return m
}

// WithReadError 使对 table 的读取失败
func (m *MockBulk) WithReadError(table string, err error) *MockBulk {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrs[table] = err
	return m
}

// WithInsertError 使对 table 的插入失败
func (m *MockBulk) WithInsertError(table string, err error) *MockBulk {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErrs[table] = err
	return m
}

// WithInsertErrorAfter 在成功插入 n 行后使插入失败
func (m *MockBulk) WithInsertErrorAfter(table string, n int, err error) *MockBulk {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErrs[table] = err
	m.failAfterN[table] = n
	return m
}

// WithDeleteError 使对 table 的清空失败
func (m *MockBulk) WithDeleteError(table string, err error) *MockBulk {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErrs[table] = err
	return m
}

// ReadAllValues 实现 backend.Bulk
func (m *MockBulk) ReadAllValues(ctx context.Context, table string, columns []string) (*backend.Cursor[types.FieldMap], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "read", Table: table})
	if err := m.readErrs[table]; err != nil {
		return nil, err
	}
	rows := make([]types.FieldMap, len(m.tables[table]))
	copy(rows, m.tables[table])
	return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
		for _, r := range rows {
			if !yield(backend.Project(table, r, columns)) {
				return
			}
		}
	}, nil), nil
}

// InsertFields 实现 backend.Bulk
func (m *MockBulk) InsertFields(ctx context.Context, table string, fields types.FieldMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "insert", Table: table, Fields: fields.Clone()})
	if err := m.insertErrs[table]; err != nil && m.insertCount[table] >= m.failAfterN[table] {
		return err
	}
	m.insertCount[table]++
	m.tables[table] = append(m.tables[table], fields.Clone())
	return nil
}

// DeleteAll 实现 backend.Bulk
func (m *MockBulk) DeleteAll(ctx context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "delete_all", Table: table})
	if err := m.deleteErrs[table]; err != nil {
		return err
	}
	delete(m.tables, table)
	return nil
}

// Rows 返回表的当前数据
func (m *MockBulk) Rows(table string) []types.FieldMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.FieldMap, len(m.tables[table]))
	copy(out, m.tables[table])
	return out
}

// Calls 返回调用记录
func (m *MockBulk) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CountOps 统计某类调用次数
func (m *MockBulk) CountOps(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

var _ backend.Bulk = (*MockBulk)(nil)
