// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	rows := testutil.MustCollect(t, cursor)
//	testutil.AssertRowsMatch(t, expected, rows)
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 游标与行断言
// =============================================================================

// MustCollect 读完游标，任何条目出错即失败
func MustCollect[T any](t testing.TB, c *backend.Cursor[T]) []T {
	t.Helper()
	out, err := c.Collect()
	if err != nil {
		t.Fatalf("collect cursor: %v", err)
	}
	return out
}

// CollectErrors 读完游标，分别返回成功条目与错误条目
func CollectErrors[T any](c *backend.Cursor[T]) ([]T, []error) {
	var (
		items []T
		errs  []error
	)
	for v, err := range c.All() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, v)
	}
	return items, errs
}

var valueComparer = cmp.Comparer(func(a, b types.Value) bool { return a.Equal(b) })

// AssertRowsMatch 比较两组行，忽略顺序
func AssertRowsMatch(t testing.TB, expected, actual []types.FieldMap) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Fatalf("row count mismatch: expected %d, got %d", len(expected), len(actual))
	}
	used := make([]bool, len(actual))
outer:
	for _, want := range expected {
		for i, got := range actual {
			if !used[i] && want.Equal(got) {
				used[i] = true
				continue outer
			}
		}
		t.Fatalf("row %v not found in result:\n%s", want, cmp.Diff(expected, actual, valueComparer))
	}
}

// AssertRowsEqual 按顺序比较两组行
func AssertRowsEqual(t testing.TB, expected, actual []types.FieldMap) {
	t.Helper()
	if diff := cmp.Diff(expected, actual, valueComparer); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// 🔄 异步与数据工具
// =============================================================================

// WaitFor 轮询直到条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// MustJSON 将值序列化为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
