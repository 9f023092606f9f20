// Copyright (c) AgentDesk Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentDesk 的全局共享错误类型。

types 是最底层的公共包，不依赖任何内部包。hitl、delivery、client 与
api/handlers 通过同一套错误码交换失败原因，HTTP 层据此决定状态码，
客户端据此区分可重试的传输错误与"请求已不再挂起"。

  - Error / ErrorCode: 结构化错误，含 HTTP 状态码、Retryable 与 Cause
  - NewTransportError: 网络或 5xx 失败，Retryable
  - NewNotFoundError: 请求不存在或已处理，HTTP 404
  - IsErrorCode / GetErrorCode / IsRetryable: 沿错误链判断
*/
package types
