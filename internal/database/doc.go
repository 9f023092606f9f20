// 版权所有 2026 AgentDesk Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为交互审计库提供基于 GORM 的连接打开与连接池管理。

# 概述

Open 按驱动名（sqlite / postgres / mysql）选择 GORM 方言打开连接，
PoolManager 统一配置连接池、定时探活，并把连接数上报给指标收集器。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。
  - StatsRecorder：接收连接池统计的指标接口。
*/
package database
