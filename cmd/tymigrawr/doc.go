// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 tymigrawr 命令行程序入口。

# 概述

cmd/tymigrawr 按 YAML 配置打开命名后端，对示例 Player 记录运行
正向与反向迁移链，并提供后端连通性检查与清表等运维子命令。
程序使用 zap 结构化日志，迁移结束时可将 Prometheus 指标推送到
Pushgateway，也可通过 OTLP 导出追踪与指标。

# 核心类型

  - app：一次命令执行的运行环境（配置、日志、后端注册表、观测组件）

# 主要能力

  - 子命令：ping、demo seed|forward|backward|dump、clear、version
  - 迁移观测：Prometheus Collector、OTel Observer 与日志同时挂到迁移链
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
