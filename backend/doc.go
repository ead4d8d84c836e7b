// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package backend 定义存储后端的统一契约与泛型 CRUD 外观。

# 概述

迁移链只需要 Bulk（按列读取全部行、插入字段映射、清空表）；
面向应用的类型化 CRUD 则由 Table[R,P] 在任意 Driver 之上提供。
具体实现位于子包：memory、sqlite、gormdb、redis、bolt、dynamodb、mongo，
registry 负责按配置打开后端并把表名路由到连接。

# 核心类型

  - Bulk / TableCreator / Driver：存储契约
  - Cursor[T]：单次消费、可关闭的行序列（range-over-func）
  - Condition / Comparator：单列比较谓词（= != < <= > >=）
  - Table[R,P]：CreateTable / Insert / ReadAll / ReadWhere / Read / Update / Delete

# 错误语义

  - 行解码失败作为游标中的 ROW_DECODE 条目出现，不中断扫描
  - 存储层失败以 BACKEND_IO 返回
  - Update / Delete 需要主键，缺失时返回 MISSING_PRIMARY_KEY
*/
package backend
