// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 a2aengine 服务端程序入口。

# 概述

cmd/a2aengine 装配 A2A 会话引擎的全部组件：任务/消息/推送配置存储、
检查点存储、会话管理器与 Webhook 推送发送器，并通过运维端口暴露
/health 与 /metrics。程序支持 YAML 配置文件与环境变量加载、
结构化日志（zap）、Prometheus 指标以及 OpenTelemetry 追踪。

# 核心类型

  - Server: 组件装配与生命周期管理，负责启动与优雅关闭
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（检查点表迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger
  - 后台任务：检查点定期清理、数据库连接池指标采集
  - 优雅关闭：信号监听 → 关闭 HTTP → 停止会话并等待推送 → 关闭存储 → 关闭遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
