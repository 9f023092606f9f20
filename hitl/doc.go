// 版权所有 2026 AgentDesk Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package hitl 提供 Human-in-the-Loop 交互请求的存储与协调能力。

# 概述

当 Agent 无法在没有人工输入的情况下继续执行时（登录凭据、确认、
自由文本、选项选择），它通过本包登记一个交互请求并挂起等待。
浏览器或终端前端轮询挂起集合，逐个渲染、提交应答或取消，
本包负责把结果唤醒回原先阻塞的 Agent 调用。

# 核心类型

  - Kind / Status：请求类型（text_input、login、confirmation、selection，
    未知类型保留原值）与生命周期状态（pending → answered | cancelled）。
  - Request / Response / Outcome：请求记录、前端应答与 Agent 侧最终结果。
  - Store：create / list_pending / resolve / cancel / await 存储契约，
    所有变更对并发调用者原子。
  - MemoryStore：进程内实现。
  - RedisStore：基于 Redis ZSET + Lua 脚本 + Pub/Sub 的分布式实现。
  - Manager：Agent 侧门面，叠加指标、历史记录、追踪与监听回调。
  - GormHistory：终态结果审计记录（GORM）。

# 设计约束

  - 没有自动超时：人工响应时间无上限，只有显式取消或调用方 context
    结束才会终止等待。
  - resolve / cancel 是每个请求 ID 唯一的线性化决策点，重复调用返回
    ErrNotFound 且不改变已存储的值。
*/
package hitl
