package delivery

import "github.com/BaSui01/agentdesk/hitl"

// Renderer 展示投递循环的当前状态。所有方法都在循环协程中调用。
type Renderer interface {
	// Show 展示请求及其输入形式。提交失败后会以同一请求再次调用。
	Show(req *hitl.Request, affordance Affordance)
	// Clear 撤下当前展示的请求。
	Clear()
	// Status 展示状态提示。
	Status(msg StatusMessage)
}

// NopRenderer 丢弃所有渲染调用。
type NopRenderer struct{}

func (NopRenderer) Show(*hitl.Request, Affordance) {}
func (NopRenderer) Clear()                         {}
func (NopRenderer) Status(StatusMessage)           {}
