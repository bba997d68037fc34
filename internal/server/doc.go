// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供运维 HTTP 服务器的生命周期管理，以及 /health 与
/metrics 两个运维端点。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
NewHandler 构造运维路由：/health 依次执行注册的健康检查（存储连通性等），
/metrics 通过 promhttp 暴露 Prometheus 指标。

# 核心类型

  - Manager：HTTP 服务器管理器，提供 Start/Shutdown/Wait 等生命周期方法。
  - Config：服务器配置，包含监听地址、读写超时与优雅关闭超时。
  - HandlerOptions：健康检查项、指标来源与运行时信息。
  - HealthResponse：/health 响应体。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空。
  - 健康检查：任一检查失败返回 503，响应中列出每项检查结果。
  - 请求指标：按路由模式记录请求数与耗时。
*/
package server
