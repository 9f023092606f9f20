// MockTransport 的投递传输测试模拟实现。
//
// 支持编排挂起集合、记录调用与错误注入场景。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentdesk/delivery"
	"github.com/BaSui01/agentdesk/hitl"
	"github.com/BaSui01/agentdesk/types"
)

var _ delivery.Transport = (*MockTransport)(nil)

// MockTransport 是 delivery.Transport 的模拟实现。
// 成功的 Respond / Cancel 会把请求移出挂起集合，行为与真实存储一致。
type MockTransport struct {
	mu sync.Mutex

	pending []*hitl.Request

	listErr    error
	respondErr error
	cancelErr  error

	responses []hitl.Response
	cancels   []string
	listCalls int
}

// NewMockTransport 创建空挂起集合的 MockTransport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// WithPending 追加挂起请求
func (m *MockTransport) WithPending(reqs ...*hitl.Request) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, reqs...)
	return m
}

// WithListError 设置 ListPending 返回的错误，nil 表示恢复正常
func (m *MockTransport) WithListError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	return m
}

// WithRespondError 设置 Respond 返回的错误，nil 表示恢复正常
func (m *MockTransport) WithRespondError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respondErr = err
	return m
}

// WithCancelError 设置 Cancel 返回的错误，nil 表示恢复正常
func (m *MockTransport) WithCancelError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr = err
	return m
}

// Retire 模拟请求被其他前端处理
func (m *MockTransport) Retire(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(requestID)
}

// ListPending 返回当前挂起集合的副本
func (m *MockTransport) ListPending(ctx context.Context) ([]*hitl.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*hitl.Request, 0, len(m.pending))
	for _, r := range m.pending {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Respond 记录应答并移出挂起集合
func (m *MockTransport) Respond(ctx context.Context, resp hitl.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.respondErr != nil {
		return m.respondErr
	}
	if !m.remove(resp.RequestID) {
		return types.NewNotFoundError(resp.RequestID)
	}
	m.responses = append(m.responses, resp)
	return nil
}

// Cancel 记录取消并移出挂起集合
func (m *MockTransport) Cancel(ctx context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	if !m.remove(requestID) {
		return types.NewNotFoundError(requestID)
	}
	m.cancels = append(m.cancels, requestID)
	return nil
}

// Responses 返回已记录的应答
func (m *MockTransport) Responses() []hitl.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]hitl.Response(nil), m.responses...)
}

// Cancels 返回已取消的请求 ID
func (m *MockTransport) Cancels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancels...)
}

// ListCalls 返回 ListPending 被调用的次数
func (m *MockTransport) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// PendingCount 返回剩余挂起请求数
func (m *MockTransport) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *MockTransport) remove(requestID string) bool {
	for i, r := range m.pending {
		if r.ID == requestID {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}
