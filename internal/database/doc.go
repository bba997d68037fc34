// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接打开与连接池管理，
供检查点存储与任务存储共享使用。

# 概述

Open 根据配置选择 PostgreSQL、MySQL 或 SQLite 方言并开启错误翻译，
使各方言的唯一键冲突统一表现为 gorm.ErrDuplicatedKey。PoolManager
封装 database/sql 的连接池参数，提供健康检查、统计与事务重试。

# 核心类型

  - Open / Dialector：按驱动名打开连接。
  - PoolManager：连接池管理器，提供 DB()、Ping()、GetStats()、Close()。
  - PoolConfig：连接池配置，支持 Validate 与 PoolConfigFrom。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 健康检查：后台定时 PingContext 探活，Close 时停止。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry
    在死锁、序列化失败、database is locked 等场景指数退避重试。
*/
package database
