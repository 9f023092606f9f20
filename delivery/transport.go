package delivery

import (
	"context"
	"errors"

	"github.com/BaSui01/agentdesk/hitl"
	"github.com/BaSui01/agentdesk/types"
)

// Transport 是投递循环访问请求存储的通道。
//
// Respond 与 Cancel 在请求已不再挂起时返回满足 IsNotFound 的错误。
type Transport interface {
	ListPending(ctx context.Context) ([]*hitl.Request, error)
	Respond(ctx context.Context, resp hitl.Response) error
	Cancel(ctx context.Context, requestID string) error
}

// IsNotFound 判断错误是否表示请求已不再挂起。
func IsNotFound(err error) bool {
	return errors.Is(err, hitl.ErrNotFound) || types.IsErrorCode(err, types.ErrNotFound)
}

// StoreTransport 在进程内直接访问 hitl.Store。
type StoreTransport struct {
	Store hitl.Store
}

// NewStoreTransport 创建进程内传输。
func NewStoreTransport(store hitl.Store) *StoreTransport {
	return &StoreTransport{Store: store}
}

// ListPending 返回挂起请求。
func (t *StoreTransport) ListPending(ctx context.Context) ([]*hitl.Request, error) {
	return t.Store.ListPending(ctx)
}

// Respond 提交应答；Cancelled 为 true 时按取消处理。
func (t *StoreTransport) Respond(ctx context.Context, resp hitl.Response) error {
	if resp.Cancelled {
		return t.Cancel(ctx, resp.RequestID)
	}
	_, err := t.Store.Resolve(ctx, resp.RequestID, resp.Value)
	return err
}

// Cancel 取消请求。
func (t *StoreTransport) Cancel(ctx context.Context, requestID string) error {
	_, err := t.Store.Cancel(ctx, requestID)
	return err
}
