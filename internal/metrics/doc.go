// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的迁移与后端指标采集能力。

# 概述

本包的 Collector 实现 migrate.Observer，可直接通过
migrate.WithObserver 挂到迁移链上。指标注册在 Collector 自己的
prometheus.Registry 中（promauto.With），同一进程内多个收集器互不冲突。
迁移通常是一次性批处理任务，结束时通过 Push 推送到 Pushgateway。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 向量指标。

# 主要能力

  - 迁移指标：迁移次数（按 chain/status）、耗时、进行中的迁移数、
    每个源表迁移的行数、被清空的源表数。
  - 后端指标：后端操作次数与耗时，按 backend/operation 分组。
  - Pushgateway：Push 与 PushConfigured 按 config.MetricsConfig 推送。
*/
package metrics
