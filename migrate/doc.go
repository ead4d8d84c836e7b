// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package migrate 提供记录版本之间的数据迁移链。

# 概述

一条迁移链是若干记录版本的有序序列，每个版本都可以由前一个版本
通过编译期检查的转换函数得到。运行迁移链时，依次读取每个较早版本
的表，将每一行解码为该版本、沿链逐步转换到最终版本、写入最终版本
的表，最后清空已读完的源表。

	chain := migrate.Then(migrate.Then(migrate.Start[PlayerV1](), PlayerV2FromV1), PlayerV3FromV2)
	err := chain.RunWith(ctx, migrate.Routes(db, map[string]backend.Bulk{"playerv3": other}))

反向迁移只需按相反顺序构建另一条链。

# 核心类型

  - Step：类型擦除的单个版本（表名、列描述、advance / extract / reconstruct）
  - Chain[T]：以 T 结尾的迁移链（Start / Then / Run / RunWith / Prepare）
  - Resolver：表名 → 后端，支持不同版本位于不同存储
  - Observer：迁移进度观察者（NopObserver、LogObserver、Observers 组合）

# 语义

  - 长度为 1 的链不执行任何操作
  - 源表与目标表同名时不插入、不清空
  - 任一行失败即中止本次迁移；已插入的行保留，源表不清空，
    重跑可能产生重复行（至少一次语义）
  - 每次迁移与每个源表均生成 OpenTelemetry span
*/
package migrate
