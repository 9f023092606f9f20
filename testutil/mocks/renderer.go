package mocks

import (
	"sync"

	"github.com/BaSui01/agentdesk/delivery"
	"github.com/BaSui01/agentdesk/hitl"
)

var _ delivery.Renderer = (*RecordingRenderer)(nil)

// RecordingRenderer 记录投递循环的渲染调用
type RecordingRenderer struct {
	mu       sync.Mutex
	shown    []string
	statuses []delivery.StatusMessage
	clears   int
	current  *hitl.Request
}

// NewRecordingRenderer 创建 RecordingRenderer
func NewRecordingRenderer() *RecordingRenderer {
	return &RecordingRenderer{}
}

func (r *RecordingRenderer) Show(req *hitl.Request, _ delivery.Affordance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, req.ID)
	r.current = req.Clone()
}

func (r *RecordingRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	r.current = nil
}

func (r *RecordingRenderer) Status(msg delivery.StatusMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, msg)
}

// Shown 返回依次展示过的请求 ID（重复展示会重复记录）
func (r *RecordingRenderer) Shown() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.shown...)
}

// Current 返回当前展示的请求，没有时为 nil
func (r *RecordingRenderer) Current() *hitl.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// Statuses 返回全部状态提示
func (r *RecordingRenderer) Statuses() []delivery.StatusMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery.StatusMessage(nil), r.statuses...)
}

// HasStatus 报告是否出现过指定文本的状态提示
func (r *RecordingRenderer) HasStatus(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s.Text == text {
			return true
		}
	}
	return false
}
