package hitl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/agentdesk/hitl"

// MetricsRecorder 记录交互请求的生命周期指标。
type MetricsRecorder interface {
	RecordCreated(kind string)
	RecordFinished(kind, status string, wait time.Duration)
}

// HistoryRecorder 持久化终态结果，用于审计。
type HistoryRecorder interface {
	Record(ctx context.Context, outcome *Outcome) error
}

// CreatedListener 在请求登记后调用。
type CreatedListener func(ctx context.Context, requestID string, opts CreateOptions)

// ResolvedListener 在请求到达终态后调用。
type ResolvedListener func(ctx context.Context, outcome *Outcome)

// Manager 在 Store 之上增加日志、指标、审计、追踪与监听器。
// Manager 自身也实现 Store，可直接交给 HTTP 层使用。
type Manager struct {
	store   Store
	logger  *zap.Logger
	metrics MetricsRecorder
	history HistoryRecorder
	tracer  trace.Tracer

	mu        sync.RWMutex
	onCreated []CreatedListener
	onResolve []ResolvedListener
}

// ManagerOption 配置 Manager.
type ManagerOption func(*Manager)

// WithMetrics 设置指标记录器。
func WithMetrics(m MetricsRecorder) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithHistory 设置审计记录器。
func WithHistory(h HistoryRecorder) ManagerOption {
	return func(mgr *Manager) { mgr.history = h }
}

// NewManager 创建交互管理器。
func NewManager(store Store, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:  store,
		logger: logger.With(zap.String("component", "interaction_manager")),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnCreated 注册请求登记监听器。
func (m *Manager) OnCreated(l CreatedListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCreated = append(m.onCreated, l)
}

// OnResolved 注册终态监听器。
func (m *Manager) OnResolved(l ResolvedListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResolve = append(m.onResolve, l)
}

// Create 登记新请求。
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (string, error) {
	ctx, span := m.tracer.Start(ctx, "interaction.create",
		trace.WithAttributes(attribute.String("interaction.kind", string(opts.Kind))))
	defer span.End()

	id, err := m.store.Create(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("create interaction failed", zap.String("type", string(opts.Kind)), zap.Error(err))
		return "", err
	}
	span.SetAttributes(attribute.String("interaction.id", id))

	if !opts.Kind.Known() {
		m.logger.Debug("interaction kind has no dedicated form", zap.String("type", string(opts.Kind)))
	}
	m.logger.Info("interaction requested",
		zap.String("id", id),
		zap.String("type", string(opts.Kind)),
		zap.String("prompt", opts.Prompt),
	)
	if m.metrics != nil {
		m.metrics.RecordCreated(string(opts.Kind))
	}

	m.mu.RLock()
	listeners := append([]CreatedListener(nil), m.onCreated...)
	m.mu.RUnlock()
	for _, l := range listeners {
		m.safeCall(func() { l(ctx, id, opts) })
	}
	return id, nil
}

// ListPending 透传到底层存储。
func (m *Manager) ListPending(ctx context.Context) ([]*Request, error) {
	return m.store.ListPending(ctx)
}

// Resolve 以给定取值完成请求。
func (m *Manager) Resolve(ctx context.Context, requestID string, value any) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "interaction.resolve",
		trace.WithAttributes(attribute.String("interaction.id", requestID)))
	defer span.End()

	out, err := m.store.Resolve(ctx, requestID, value)
	return m.finished(ctx, span, requestID, out, err)
}

// Cancel 取消请求。
func (m *Manager) Cancel(ctx context.Context, requestID string) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "interaction.cancel",
		trace.WithAttributes(attribute.String("interaction.id", requestID)))
	defer span.End()

	out, err := m.store.Cancel(ctx, requestID)
	return m.finished(ctx, span, requestID, out, err)
}

func (m *Manager) finished(ctx context.Context, span trace.Span, requestID string, out *Outcome, err error) (*Outcome, error) {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// 竞争失败属于正常情况
			m.logger.Debug("interaction no longer pending", zap.String("id", requestID))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.logger.Error("finish interaction failed", zap.String("id", requestID), zap.Error(err))
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("interaction.status", string(out.Status)))

	m.logger.Info("interaction finished",
		zap.String("id", requestID),
		zap.String("status", string(out.Status)),
		zap.Duration("wait", out.WaitDuration()),
	)
	if m.metrics != nil {
		m.metrics.RecordFinished(string(out.Kind), string(out.Status), out.WaitDuration())
	}
	if m.history != nil {
		// 审计失败不影响主流程
		if err := m.history.Record(context.WithoutCancel(ctx), out); err != nil {
			m.logger.Warn("record interaction history failed", zap.String("id", requestID), zap.Error(err))
		}
	}

	m.mu.RLock()
	listeners := append([]ResolvedListener(nil), m.onResolve...)
	m.mu.RUnlock()
	for _, l := range listeners {
		m.safeCall(func() { l(ctx, out) })
	}
	return out, nil
}

// Await 等待请求终态。
func (m *Manager) Await(ctx context.Context, requestID string) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "interaction.await",
		trace.WithAttributes(attribute.String("interaction.id", requestID)))
	defer span.End()

	out, err := m.store.Await(ctx, requestID)
	if err != nil && ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// Changes 透传到底层存储。
func (m *Manager) Changes(ctx context.Context) (<-chan struct{}, error) {
	return m.store.Changes(ctx)
}

// Ping 透传到底层存储。
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Close 关闭底层存储。
func (m *Manager) Close() error {
	return m.store.Close()
}

// ===== Agent 侧阻塞调用 =====

// Request 登记请求并阻塞等待结果。ctx 结束时请求被取消，不会残留在挂起集合中。
//
// 结果由解决方的调用唤醒；该调用上的指标、审计与 OnResolved 监听器
// 可能在 Request 返回之后才执行完。
func (m *Manager) Request(ctx context.Context, opts CreateOptions) (*Outcome, error) {
	id, err := m.Create(ctx, opts)
	if err != nil {
		return nil, err
	}

	out, err := m.Await(ctx, id)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		if _, cerr := m.Cancel(context.WithoutCancel(ctx), id); cerr != nil && !errors.Is(cerr, ErrNotFound) {
			m.logger.Warn("cancel abandoned interaction failed", zap.String("id", id), zap.Error(cerr))
		}
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("await interaction %s: %w", id, err)
}

// AskText 请求自由文本输入。
func (m *Manager) AskText(ctx context.Context, prompt, description string) (string, error) {
	out, err := m.requestAnswered(ctx, CreateOptions{Kind: KindTextInput, Prompt: prompt, Description: description})
	if err != nil {
		return "", err
	}
	text, _ := out.Value.(string)
	return text, nil
}

// Confirm 请求是/否确认。
func (m *Manager) Confirm(ctx context.Context, prompt, description string) (bool, error) {
	out, err := m.requestAnswered(ctx, CreateOptions{Kind: KindConfirmation, Prompt: prompt, Description: description})
	if err != nil {
		return false, err
	}
	ok, _ := out.Value.(bool)
	return ok, nil
}

// Select 请求单选；用户未选择时 ok 为 false。
func (m *Manager) Select(ctx context.Context, prompt, description string, options []string) (string, bool, error) {
	out, err := m.requestAnswered(ctx, CreateOptions{
		Kind:        KindSelection,
		Prompt:      prompt,
		Description: description,
		Options:     options,
	})
	if err != nil {
		return "", false, err
	}
	choice, ok := out.Value.(string)
	return choice, ok, nil
}

// RequestLogin 请求用户在外部完成登录，返回用户是否确认完成。
func (m *Manager) RequestLogin(ctx context.Context, service, loginURL string) (bool, error) {
	if service == "" {
		service = "this service"
	}
	opts := CreateOptions{
		Kind:   KindLogin,
		Prompt: fmt.Sprintf("Please login to %s", service),
		Description: fmt.Sprintf("The agent needs you to sign in to %s to continue.\n\n"+
			"Steps:\n"+
			"1. Enter your credentials in the browser window\n"+
			"2. Complete the login process\n"+
			"3. Confirm below when you've finished logging in", service),
		Metadata: map[string]any{"service": service},
	}
	if loginURL != "" {
		opts.Metadata["url"] = loginURL
	}

	out, err := m.requestAnswered(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return false, nil
		}
		return false, err
	}
	return out.Value == ValueCompleted, nil
}

func (m *Manager) requestAnswered(ctx context.Context, opts CreateOptions) (*Outcome, error) {
	out, err := m.Request(ctx, opts)
	if err != nil {
		return nil, err
	}
	if out.Cancelled() {
		return nil, ErrCancelled
	}
	return out, nil
}

func (m *Manager) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("interaction listener panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
