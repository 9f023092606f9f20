package hitl

import (
	"context"
	"time"
)

// Store 定义挂起交互请求集合的存储契约。
//
// Create / Resolve / Cancel 对并发调用者必须是原子的：同一请求 ID 只有
// 一次 Resolve 或 Cancel 能成功，其余调用返回 ErrNotFound 且不产生副作用。
type Store interface {
	// Create 插入一个 pending 记录并返回其 ID。
	Create(ctx context.Context, opts CreateOptions) (string, error)
	// ListPending 按创建顺序返回当前所有 pending 请求。
	ListPending(ctx context.Context) ([]*Request, error)
	// Resolve 将 pending 请求转为 answered 并唤醒等待方。
	Resolve(ctx context.Context, requestID string, value any) (*Outcome, error)
	// Cancel 将 pending 请求转为 cancelled 并唤醒等待方。
	Cancel(ctx context.Context, requestID string) (*Outcome, error)
	// Await 阻塞直到请求到达终态或 ctx 结束。结果只交付一次。
	Await(ctx context.Context, requestID string) (*Outcome, error)
	// Changes 返回挂起集合变化通知，ctx 结束时通道关闭。
	Changes(ctx context.Context) (<-chan struct{}, error)
	// Ping 检查存储是否可用。
	Ping(ctx context.Context) error
	// Close 释放存储资源。
	Close() error
}

// StoreType 存储后端类型
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// DefaultOutcomeRetention 是终态结果在无人领取时的保留时长。
const DefaultOutcomeRetention = 10 * time.Minute
