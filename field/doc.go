// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package field 定义单个记录字段与存储值之间的编解码契约。

# 概述

每种可持久化的 Go 字段类型都对应一个 Codec：Descriptor 给出列描述，
ToValue 将字段写为 types.Value，FromValue 则在类型不符或窄化越界时
返回错误而不是 panic。

# 核心类型

  - Codec[F]：字段编解码接口
  - Int64 / Int / Int32 / Uint32 / Bool
  - Float64 / Float32 / String / Bytes
  - Nullable[F]：可空字段，nil ↔ Null

# 错误语义

  - 类型不符：包装 ErrKindMismatch
  - 窄化越界：types.Error（FIELD_CONVERSION），消息说明原因
*/
package field
