// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，供知识库存储使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB/Ping/Close/GetStats。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。
  - Dialector/Open：按驱动名（sqlite、postgres、mysql）打开数据库；
    sqlite 使用纯 Go 的 github.com/glebarez/sqlite，内存库自动限制为单连接。

# 事务

WithTransaction 执行单次事务；WithTransactionRetry 对死锁、SQLITE_BUSY、
连接中断等可重试错误按指数退避重试。
*/
package database
