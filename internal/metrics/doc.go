// 版权所有 2026 AgentDesk Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、交互请求、投递循环与审计数据库四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，所有指标按 namespace 隔离。Collector 直接实现
hitl.MetricsRecorder 与 delivery.LoopMetrics，由服务端与终端分别注入。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 交互请求指标：按 kind 统计创建数，按 kind/status 统计终态数
    与等待时长，以及本进程登记且仍挂起的请求数。
  - 投递循环指标：拉取结果与应答/取消结果计数。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
