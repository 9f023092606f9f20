// Copyright (c) AgentDesk Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentDesk HTTP API 的请求处理器实现。

# 概述

handlers 包实现交互台的全部 HTTP 端点：面向交付端的待处理列表、
响应与取消，面向 Agent 的创建与结果长轮询，推送流、审计历史，
以及健康检查和统一的响应/错误处理。

# 核心类型

  - InteractionHandler: /api/interaction/* 端点
  - HealthHandler: /health、/ready、/version
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo: 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck: 可插拔就绪检查接口

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - DecodeJSONBody：1 MB 限制 + 严格模式
  - 存储错误映射：ErrNotFound → 404 NOT_FOUND，其余 → 503 STORE_UNAVAILABLE
  - websocket 推送：待处理集合变化时发送 pending_changed
*/
package handlers
