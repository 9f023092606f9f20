// Copyright (c) AgentDesk Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentDesk 交互台的命令行入口。

# 概述

cmd/agentdesk 同时服务两侧：serve 启动交互台服务供 Agent 挂起请求，
attend 在终端中运行投递循环供操作员逐个作答，ask 供脚本化的 Agent
创建请求并阻塞等待结果。

# 子命令

  - serve: HTTP API 与独立 Metrics 端口，配置文件变更时热更新日志级别
  - attend: 轮询挂起集合，websocket 推送用于提前唤醒
  - ask: 创建请求并输出终态结果 JSON，超时或中断时取消请求
  - health: 查询 /ready
  - version: 构建信息，Version、BuildTime、GitCommit 通过 ldflags 注入

# 中间件链

Recovery → RequestID → OTelTracing → SecurityHeaders → RequestLogger →
Metrics → CORS → RateLimiter（基于 IP）。包装后的 ResponseWriter 保留
Hijack，websocket 升级可以穿过整条链。
*/
package main
