// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供 A2A 任务、消息与推送通知配置的持久化存储抽象及多后端实现。

# 概述

本包负责保存 A2A 协议中任务（Task）的最新快照、按上下文（context）
追加的消息日志，以及每个任务的 Webhook 推送配置。上层的事件处理器
只需面向接口编程，即可在内存、Redis 与关系型数据库之间切换。

# 核心接口

  - Store: 所有存储的基础接口，提供 Close 和 Ping 健康检查。
  - TaskStore: 任务快照存储，支持保存、按投影查询、状态更新、
    产物（Artifact）更新、删除以及按上下文列举。
  - MessageStore: 按上下文追加的消息日志，保持插入顺序。
  - PushConfigStore: 每个任务的推送配置集合，按注册顺序返回。

# 更新语义

  - 状态更新: 旧状态中的消息移入历史末尾，新状态整体替换，
    元数据做浅合并（右侧优先）。
  - 产物更新: 未知 artifactId 直接追加；已知 artifactId 在
    append=true 时追加 parts，否则整体替换 parts，位置不变。
  - 对不存在的任务执行更新返回 *TaskOperationError，存储保持不变。

# 后端实现

  - Memory: 内存实现，深拷贝进出，适合开发与测试。
  - Redis: 基于 WATCH/MULTI 的乐观事务，Sorted Set 维护上下文索引，
    适合分布式部署。
  - Database: 基于 GORM，支持 PostgreSQL、MySQL 与 SQLite，
    更新在带行锁的事务中完成。

# 使用方式

通过工厂函数按配置创建一组存储：

	stores, err := persistence.NewStores(config, db)
	defer stores.Close()
*/
package persistence
