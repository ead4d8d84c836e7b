// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package record 定义可持久化、可版本化记录的契约。

# 概述

一个记录类型（例如 PlayerV1）通过 Record 接口声明表名与列描述，
并能在字段映射与自身之间互相转换。迁移链与泛型 CRUD 都只依赖
这一契约，不关心具体结构体。

# 核心类型

  - Record：TableName / Fields / FieldMap
  - Ptr[R]：*R 约束，附加可失败的 SetFieldMap
  - PrimaryKeyed：可选的主键覆盖
  - Schema[R]：手写绑定构建器（Bind + Encode / Decode）

# 主键规则

未显式标记主键时，第一个声明的字段即为主键；没有任何字段时，
需要主键的操作返回 MISSING_PRIMARY_KEY。
*/
package record
