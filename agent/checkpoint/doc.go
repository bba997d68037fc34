// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 checkpoint 提供 Agent 完整状态的持久化检查点存储，支持版本化、
TTL 过期与条件清理，用于进程重启后的恢复与续跑。

# 概述

检查点与任务/消息存储相互独立，由 Agent 运行时直接调用。每条检查点
以 (persistence_id, checkpoint_id) 为主键，(persistence_id, version)
唯一，同一 Agent 的两个检查点不会共享版本号，并发写入者之间不会发生
静默覆盖。

# 核心类型

  - Store：检查点存储接口，定义保存、查询、删除与清理操作。
  - SQLStore：基于 GORM 的通用实现，与具体数据库方言无关；
    构造时执行 Migrator 建表，失败即返回错误。
  - MemoryStore：内存实现，语义与 SQLStore 一致，用于测试与单机部署。
  - Data / Record：检查点内容与其持久化行。
  - Filter：自定义查询条件，SQL 实现通过 Query 构造查询，
    内存实现通过 Match 判定。

# 主要能力

  - 版本冲突：(persistence_id, version) 冲突返回 ErrVersionConflict。
  - TTL：配置 TTL 后 ttl_timestamp = created_at + TTL，过期行不参与
    查询，并由 CleanupExpired 删除。
  - 条件清理：ConditionalCleanup 在开启清理且距上次成功清理超过
    CleanupInterval 时执行，保存成功后自动触发。
  - 容错：单行解码失败只跳过该行并记录日志，不影响其余结果。
*/
package checkpoint
