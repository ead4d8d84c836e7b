// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为 GORM 后端提供连接池管理、方言选择与事务重试。

# 概述

本包通过 PoolManager 封装 GORM 与 database/sql 的连接池配置，
统一管理连接生命周期与最大连接数限制。Dialector 按
config.DatabaseConfig 选择 postgres、mysql 或 SQLite 方言；
SQLite 默认使用纯 Go 驱动，sqlite3 使用 cgo 驱动。
后台健康检查定时探活，异常时通过 zap 日志输出诊断信息。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Dialect()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲/打开连接数、连接最大生命周期、
    健康检查间隔与写事务重试策略。
  - GormLogger：把 GORM 日志转发到 zap。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 方言选择：Open 根据配置构建 Dialector 并应用连接池参数。
  - 健康检查：后台定时 PingContext 探活。
  - 事务管理：WithTransaction 提供单次事务执行，
    WithTransactionRetry 对死锁、序列化失败与 SQLITE_BUSY 按指数退避重试。
*/
package database
