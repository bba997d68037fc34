// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理智能体检查点表 agent_checkpoints 的 Schema 迁移，
支持 PostgreSQL、MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中。每种数据库
对应一个迁移器实例，检查点存储在构造时调用 Up，迁移失败即构造失败。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 等完整操作集。
  - DefaultMigrator：默认实现，持有独立的数据库连接，操作串行执行，
    ctx 取消时在当前迁移结束后优雅停止。
  - Config：数据库类型、连接串、版本表名、锁超时与日志。
  - CLI：面向终端的格式化输出层，供 migrate 子命令使用。

# 表结构

  - 主键 (persistence_id, checkpoint_id)
  - 索引 (persistence_id, created_at)
  - 唯一索引 (persistence_id, version)
  - 索引 (ttl_timestamp)
*/
package migration
