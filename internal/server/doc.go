// 版权所有 2026 AgentDesk Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
阻塞运行与优雅关闭。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
agentdesk serve 为 API 与 /metrics 各创建一个 Manager，
并在 errgroup 中用 Run 运行，信号到来时 ctx 结束触发优雅关闭。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与关闭超时。
*/
package server
