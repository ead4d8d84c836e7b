// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 tymigrawr 测试的共享工具和辅助函数。

# 概述

testutil 包为各后端与迁移链的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 游标辅助: MustCollect / CollectErrors
  - 行断言: AssertRowsMatch（忽略顺序）/ AssertRowsEqual（go-cmp 差异输出）

# 子包

  - testutil/fixtures: 测试记录类型 Widget，覆盖全部值类型与可空列
  - testutil/mocks: MockBulk，记录调用并支持错误注入
  - testutil/backendtest: 后端一致性测试套件，每个 Driver 实现都应通过

# 使用示例

	ctx := testutil.TestContext(t)
	backendtest.Run(t, func(t *testing.T) backend.Driver { return memory.New(nil) })
*/
package testutil
