// Copyright (c) AgentDesk Authors.
// Licensed under the MIT License.

/*
Package client 是交互台 HTTP 协议的客户端。

Client 实现 delivery.Transport，供终端投递循环访问远端服务；
同时提供 Agent 侧的 Create、Outcome、Await，以及 Watch 推送订阅。

错误约定：网络故障与 5xx 返回可重试的 types.ErrTransport；
请求已不再挂起时返回同时满足 errors.Is(err, hitl.ErrNotFound)
与 types.ErrNotFound 错误码的错误。客户端本身不做重试。
*/
package client
