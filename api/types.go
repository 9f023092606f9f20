package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/agentdesk/hitl"
)

// =============================================================================
// 交互请求类型
// =============================================================================

// PendingRequest 是挂起请求的线上表示。
type PendingRequest struct {
	RequestID   string         `json:"request_id"`
	Type        string         `json:"type"`
	Prompt      string         `json:"prompt"`
	Description string         `json:"description"`
	Options     []string       `json:"options,omitempty"`
	Sequence    uint64         `json:"sequence,omitempty"`
	Required    bool           `json:"required"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// FromRequest 把存储中的请求转换为线上表示。
func FromRequest(req *hitl.Request) PendingRequest {
	return PendingRequest{
		RequestID:   req.ID,
		Type:        string(req.Kind),
		Prompt:      req.Prompt,
		Description: req.Description,
		Options:     req.Options,
		Sequence:    req.Sequence,
		Required:    req.Required,
		Metadata:    req.Metadata,
		CreatedAt:   req.CreatedAt,
	}
}

// ToRequest 把线上表示还原为请求。未识别的类型被原样保留。
func (p PendingRequest) ToRequest() *hitl.Request {
	options := p.Options
	if options == nil {
		options = []string{}
	}
	return &hitl.Request{
		ID:          p.RequestID,
		Kind:        hitl.Kind(p.Type),
		Prompt:      p.Prompt,
		Description: p.Description,
		Options:     options,
		Status:      hitl.StatusPending,
		Sequence:    p.Sequence,
		Required:    p.Required,
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt,
	}
}

// PendingSet 是按创建顺序排列的挂起请求集合。
// 序列化为以 request_id 为键的 JSON 对象，键的顺序即创建顺序。
type PendingSet []PendingRequest

// NewPendingSet 从存储结果构造集合。
func NewPendingSet(reqs []*hitl.Request) PendingSet {
	set := make(PendingSet, 0, len(reqs))
	for _, req := range reqs {
		set = append(set, FromRequest(req))
	}
	return set
}

// Requests 返回集合中的请求。
func (s PendingSet) Requests() []*hitl.Request {
	reqs := make([]*hitl.Request, 0, len(s))
	for _, p := range s {
		reqs = append(reqs, p.ToRequest())
	}
	return reqs
}

// MarshalJSON 按集合顺序输出对象键。
func (s PendingSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.RequestID)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 按对象键出现的顺序读取集合。
// 值中缺少 request_id 时以键补齐。
func (s *PendingSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("pending set: expected JSON object, got %v", tok)
	}

	set := PendingSet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("pending set: unexpected key %v", tok)
		}
		var p PendingRequest
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("pending set: decode %q: %w", key, err)
		}
		if p.RequestID == "" {
			p.RequestID = key
		}
		set = append(set, p)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = set
	return nil
}

// ResponseRequest 是 POST /api/interaction/response 的请求体。
type ResponseRequest struct {
	RequestID string `json:"request_id"`
	Response  any    `json:"response"`
	Cancelled bool   `json:"cancelled"`
}

// CancelRequest 是 POST /api/interaction/cancel 的请求体。
type CancelRequest struct {
	RequestID string `json:"request_id"`
}

// ResolveResult 是应答与取消成功后的响应数据。
type ResolveResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// CreateRequest 是 POST /api/interaction/request 的请求体。
type CreateRequest struct {
	Type        string         `json:"type"`
	Prompt      string         `json:"prompt"`
	Description string         `json:"description,omitempty"`
	Options     []string       `json:"options,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Optional    bool           `json:"optional,omitempty"`
}

// ToOptions 转换为存储层的创建参数。
func (c CreateRequest) ToOptions() hitl.CreateOptions {
	return hitl.CreateOptions{
		Kind:        hitl.Kind(c.Type),
		Prompt:      c.Prompt,
		Description: c.Description,
		Options:     c.Options,
		Metadata:    c.Metadata,
		Optional:    c.Optional,
	}
}

// CreateResponse 是创建成功后的响应数据。
type CreateResponse struct {
	RequestID string `json:"request_id"`
}

// OutcomeResponse 是 GET /api/interaction/outcome 的响应数据。
// 请求仍挂起时 Status 为 "pending"，其余字段为空。
type OutcomeResponse struct {
	RequestID  string     `json:"request_id"`
	Status     string     `json:"status"`
	Type       string     `json:"type,omitempty"`
	Value      any        `json:"value"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// FromOutcome 转换终态结果。
func FromOutcome(o *hitl.Outcome) OutcomeResponse {
	resolved := o.ResolvedAt
	return OutcomeResponse{
		RequestID:  o.RequestID,
		Status:     string(o.Status),
		Type:       string(o.Kind),
		Value:      o.Value,
		ResolvedAt: &resolved,
	}
}

// StreamEventPendingChanged 通知挂起集合发生变化。
const StreamEventPendingChanged = "pending_changed"

// StreamEvent 是 /api/interaction/stream 推送的消息。
type StreamEvent struct {
	Type string `json:"type"`
}
