package hitl

import (
	"errors"
	"strings"
	"time"
)

// 通用错误
var (
	ErrNotFound       = errors.New("interaction request not found or no longer pending")
	ErrStoreClosed    = errors.New("interaction store is closed")
	ErrInvalidRequest = errors.New("invalid interaction request")
	ErrCancelled      = errors.New("interaction cancelled")
)

// Request 是 Agent 需要人工输入时登记的交互请求。
type Request struct {
	ID          string         `json:"request_id"`
	Kind        Kind           `json:"type"`
	Prompt      string         `json:"prompt"`
	Description string         `json:"description"`
	Options     []string       `json:"options"`
	Status      Status         `json:"status"`
	Sequence    uint64         `json:"sequence"`
	Required    bool           `json:"required"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Clone 返回请求的深拷贝，存储实现对外只暴露副本。
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Options = append([]string{}, r.Options...)
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Response 是前端提交的应答。Cancelled 为 true 时忽略 Value。
type Response struct {
	RequestID string `json:"request_id"`
	Value     any    `json:"response"`
	Cancelled bool   `json:"cancelled"`
}

// Outcome 是交互请求到达终态后交给等待方的结果.
type Outcome struct {
	RequestID  string    `json:"request_id"`
	Kind       Kind      `json:"type"`
	Prompt     string    `json:"prompt"`
	Status     Status    `json:"status"`
	Value      any       `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Cancelled 报告请求是否以取消结束。
func (o *Outcome) Cancelled() bool {
	return o != nil && o.Status == StatusCancelled
}

// WaitDuration 返回请求从创建到终态经过的时间。
func (o *Outcome) WaitDuration() time.Duration {
	if o == nil || o.CreatedAt.IsZero() || o.ResolvedAt.IsZero() {
		return 0
	}
	return o.ResolvedAt.Sub(o.CreatedAt)
}

// CreateOptions 配置交互请求的创建。
type CreateOptions struct {
	Kind        Kind
	Prompt      string
	Description string
	Options     []string
	Metadata    map[string]any
	// Optional 为 true 时请求标记为非必需（Required=false）。
	Optional bool
}

// Validate 校验创建参数。
func (o CreateOptions) Validate() error {
	if strings.TrimSpace(string(o.Kind)) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("kind is required"))
	}
	if strings.TrimSpace(o.Prompt) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("prompt is required"))
	}
	return nil
}

// newRequest 按创建参数构造挂起请求。非 selection 类型的选项被清空。
func newRequest(id string, seq uint64, opts CreateOptions, now time.Time) *Request {
	options := []string{}
	if opts.Kind == KindSelection {
		options = append(options, opts.Options...)
	}
	req := &Request{
		ID:          id,
		Kind:        opts.Kind,
		Prompt:      opts.Prompt,
		Description: opts.Description,
		Options:     options,
		Status:      StatusPending,
		Sequence:    seq,
		Required:    !opts.Optional,
		CreatedAt:   now,
	}
	if len(opts.Metadata) > 0 {
		req.Metadata = make(map[string]any, len(opts.Metadata))
		for k, v := range opts.Metadata {
			req.Metadata[k] = v
		}
	}
	return req
}

func newOutcome(req *Request, status Status, value any, now time.Time) *Outcome {
	if status == StatusCancelled {
		value = nil
	}
	return &Outcome{
		RequestID:  req.ID,
		Kind:       req.Kind,
		Prompt:     req.Prompt,
		Status:     status,
		Value:      value,
		CreatedAt:  req.CreatedAt,
		ResolvedAt: now,
	}
}
