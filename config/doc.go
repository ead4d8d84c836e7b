// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package config 提供 tymigrawr 的配置管理功能。

# 概述

配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加。环境变量统一使用
TYMIGRAWR 前缀，例如 TYMIGRAWR_LOG_LEVEL、TYMIGRAWR_ROUTING_DEFAULT。

# 后端与路由

Backends 是命名后端实例的集合，每个实例通过 Type 选择实现
（memory、sqlite、gorm、redis、bolt、dynamodb、mongo），并只读取对应的
子配置。Routing 决定每张表落在哪个后端，未配置的表使用 Routing.Default。
后端与路由只能在 YAML 中声明，加载后会为每个后端补齐默认值。
*/
package config
