// 版权所有 2026 AgentDesk Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package delivery 实现前端侧的交互投递循环。

投递循环周期性拉取挂起请求，一次只展示一个请求，并把用户输入按请求类型
转换为应答取值后提交回服务端。

# 状态机

循环状态是一个显式值（State），由纯函数 Reduce 推进：

	Idle ──poll 发现未见过的请求──▶ Displaying
	Displaying ──用户提交/取消──▶ Submitting
	Submitting ──成功或 NotFound──▶ Idle（请求 ID 被标记为已退役）
	Submitting ──传输失败──▶ Displaying（保留请求，允许用户重试）

副作用（拉取、渲染、提交）以 Effect 数据的形式返回，由 Loop 执行，
执行结果再以事件形式送回 Reduce。

# 类型分派

Affordance 与 ExtractValue 定义每种请求类型的输入形式与取值规则，
未识别的类型一律退化为确认表单，取值为 "acknowledged"。
*/
package delivery
