// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、会话、
推送通知、检查点存储与数据库连接五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。NewCollector
使用默认注册表，NewCollectorWithRegisterer 允许注入独立注册表，
便于测试隔离与多实例部署。所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等向量指标。
    nil *Collector 上的记录方法为空操作。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：活跃会话数、会话结束计数与耗时、事件处理计数与耗时、
    任务状态转换计数。
  - 推送通知指标：成功/失败计数与投递耗时。
  - 检查点指标：按 backend/operation 统计的操作计数与耗时，
    TTL 清理次数、过期删除行数、解码失败跳过行数。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
