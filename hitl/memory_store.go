package hitl

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 是进程内的交互请求存储，适用于单进程部署与测试。
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*memoryRecord
	order     []string
	seq       uint64
	watchers  map[chan struct{}]struct{}
	closed    bool
	closedCh  chan struct{}
	retention time.Duration
	now       func() time.Time
	newID     func() string
}

type memoryRecord struct {
	req     *Request
	outcome *Outcome
	done    chan struct{}
	expires time.Time
}

// MemoryStoreOption 配置 MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithOutcomeRetention 设置终态结果无人领取时的保留时长。
func WithOutcomeRetention(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithClock 替换时间源（测试用）。
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator 替换请求 ID 生成器。
func WithIDGenerator(gen func() string) MemoryStoreOption {
	return func(s *MemoryStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		records:   make(map[string]*memoryRecord),
		watchers:  make(map[chan struct{}]struct{}),
		closedCh:  make(chan struct{}),
		retention: DefaultOutcomeRetention,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 插入新的 pending 请求。
func (s *MemoryStore) Create(ctx context.Context, opts CreateOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	now := s.now()
	s.sweepLocked(now)

	s.seq++
	id := s.newID()
	s.records[id] = &memoryRecord{
		req:  newRequest(id, s.seq, opts, now),
		done: make(chan struct{}),
	}
	s.order = append(s.order, id)
	s.notifyLocked()
	return id, nil
}

// ListPending 按创建顺序返回 pending 请求的副本。
func (s *MemoryStore) ListPending(ctx context.Context) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	results := make([]*Request, 0, len(s.order))
	for _, id := range s.order {
		results = append(results, s.records[id].req.Clone())
	}
	return results, nil
}

// Resolve 将请求转为 answered。
func (s *MemoryStore) Resolve(ctx context.Context, requestID string, value any) (*Outcome, error) {
	return s.finish(requestID, StatusAnswered, value)
}

// Cancel 将请求转为 cancelled。
func (s *MemoryStore) Cancel(ctx context.Context, requestID string) (*Outcome, error) {
	return s.finish(requestID, StatusCancelled, nil)
}

func (s *MemoryStore) finish(requestID string, status Status, value any) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rec, ok := s.records[requestID]
	if !ok || rec.req.Status != StatusPending {
		return nil, ErrNotFound
	}

	now := s.now()
	rec.req.Status = status
	rec.outcome = newOutcome(rec.req, status, value, now)
	rec.expires = now.Add(s.retention)
	s.removeFromOrderLocked(requestID)
	close(rec.done)
	s.notifyLocked()

	out := *rec.outcome
	return &out, nil
}

// Await 等待请求到达终态。结果交付后记录被删除。
func (s *MemoryStore) Await(ctx context.Context, requestID string) (*Outcome, error) {
	s.mu.Lock()
	rec, ok := s.records[requestID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	done := rec.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closedCh:
		return nil, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok = s.records[requestID]
	if !ok || rec.outcome == nil {
		return nil, ErrNotFound
	}
	delete(s.records, requestID)
	return rec.outcome, nil
}

// Changes 订阅挂起集合变化。
func (s *MemoryStore) Changes(ctx context.Context) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	ch := make(chan struct{}, 1)
	s.watchers[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.closedCh:
		}
		s.mu.Lock()
		if _, ok := s.watchers[ch]; ok {
			delete(s.watchers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}()

	return ch, nil
}

// Ping 内存存储在未关闭时始终可用。
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close 关闭存储，唤醒所有等待方。
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closedCh)
	for ch := range s.watchers {
		delete(s.watchers, ch)
		close(ch)
	}
	return nil
}

func (s *MemoryStore) removeFromOrderLocked(requestID string) {
	for i, id := range s.order {
		if id == requestID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// sweepLocked 清理超过保留期仍无人领取的终态记录。
func (s *MemoryStore) sweepLocked(now time.Time) {
	for id, rec := range s.records {
		if rec.outcome != nil && now.After(rec.expires) {
			delete(s.records, id)
		}
	}
}

func (s *MemoryStore) notifyLocked() {
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
