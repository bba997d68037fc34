// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 A2A 执行引擎的全局共享领域模型。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 persistence、checkpoint、
session 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Task / TaskStatus / TaskState: 任务及其状态机（submitted → working →
    input-required ↔ working → completed | failed | canceled | rejected）
  - Message / Part / Role: 对话消息与有序内容片段
  - Artifact: 任务产出物，以 ArtifactID 为身份标识
  - TaskStatusUpdateEvent: 状态更新事件，Final 标志决定通知与清理
  - TaskArtifactUpdateEvent: 产出物更新事件（追加或替换）
  - PushNotificationConfig: 任务级 Webhook 配置
  - Value / Metadata: 半结构化标签联合值与浅合并语义

# 主要能力

  - 深拷贝：Task、Message、Artifact、Metadata 均提供 Clone，存储层据此隔离调用方
  - 浅合并：Metadata.Merge 右侧优先，不做递归合并
  - JSON 往返：Value 实现 json.Marshaler / json.Unmarshaler
*/
package types
