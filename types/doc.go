// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 tymigrawr 的全局共享类型定义。

# 概述

types 是模块最底层的公共包，不依赖任何内部包，为 field、record、
backend、migrate 等上层模块提供统一的值模型与错误契约。

# 核心类型

  - Value / Kind：存储层封闭值集合（Integer、Float、Text、Bytes、Null）
  - CrudField：列描述（名称、类型、可空、主键、自增）
  - FieldMap：一行数据（列名 → Value）
  - Error / ErrorCode：结构化错误体系（FIELD_CONVERSION、MISSING_FIELD 等）

# 主要能力

  - 驱动值转换：FromAny 将任意驱动原生值映射为唯一的 Value 变体
  - JSON 编码：键值型后端以 {"integer":1} 形式持久化 Value
  - 错误工具链：GetErrorCode / IsCode 沿 Unwrap 链查找错误码
*/
package types
