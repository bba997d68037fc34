// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 session 将运行中 Agent 上报的事件流落地为持久化的任务状态，
并管理多个并发会话的生命周期与推送通知。

# 概述

一个 Session 包装一段延迟执行的 Agent 工作（Work），工作通过绑定的
EventProcessor 上报 Task 快照、状态更新、产物更新与消息。处理器在
keyedmutex 的任务级临界区内写入 TaskStore，同一任务的读改写永不交错，
不同任务完全并行。Manager 负责登记会话、按任务 ID 检索会话，并在
final 状态事件到达时把通知投递交给后台协程池。

# 核心类型

  - Session：NotStarted → Running → Completed 三态的延迟工作单元，
    支持 Start、Join、StartAndJoin、Cancel 与完成回调。
  - EventProcessor：绑定 contextID（可选 taskID）的事件处理器，
    每个事件产生一个 OpenTelemetry span 并记录 Prometheus 指标。
  - Manager：会话注册表与通知调度器，Shutdown 时取消并等待全部会话，
    再排空未完成的通知任务。
  - PushNotificationSender / WebhookSender：推送通知投递接口与
    基于 HTTP 的实现，支持令牌头、HS256 JWT 签名与限流。

# 并发语义

  - 取得任务锁之后的写入使用不可取消的 context，取消会话不会留下半写状态。
  - 会话完成后的清理严格发生在工作函数返回之后。
  - 通知投递与会话完成解耦，需要等待投递的调用方显式调用
    WaitNotifications。
*/
package session
