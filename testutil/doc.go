// Copyright (c) AgentDesk Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 AgentDesk 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue
  - 等待工具: WaitFor / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockTransport（可编排挂起集合并注入错误的
    delivery.Transport）与 RecordingRenderer（记录渲染调用）
  - testutil/fixtures: 各请求类型的 CreateOptions 与 Request 样例

由于 mocks 依赖 delivery，delivery 包自身的内部测试不能导入它，
只能在外部测试包（delivery_test）中使用。

# 使用示例

	transport := mocks.NewMockTransport().WithPending(fixtures.PendingRequest("r1", fixtures.Confirmation()))
	loop := delivery.NewLoop(transport, mocks.NewRecordingRenderer(), cfg, nil)
*/
package testutil
