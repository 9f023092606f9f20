package delivery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval 默认拉取间隔
const DefaultPollInterval = 2 * time.Second

// LoopMetrics 记录投递循环指标。
type LoopMetrics interface {
	RecordPoll(result string)
	RecordSend(action, result string)
}

// LoopConfig 投递循环配置
type LoopConfig struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Metrics        LoopMetrics
}

// Loop 执行 Reduce 产生的副作用。
// 状态只在 Run 所在的协程中推进，传输调用在独立协程中执行并以事件形式回送。
type Loop struct {
	transport Transport
	renderer  Renderer
	cfg       LoopConfig
	logger    *zap.Logger

	inbox chan input
	wake  chan struct{}
	done  chan struct{}

	mu    sync.RWMutex
	state State
	wg    sync.WaitGroup
}

// NewLoop 创建投递循环。
func NewLoop(transport Transport, renderer Renderer, cfg LoopConfig, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Loop{
		transport: transport,
		renderer:  renderer,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "delivery_loop")),
		inbox:     make(chan input, 64),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Run 运行循环直到 ctx 结束。启动时立即拉取一次。
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.wg.Wait()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	l.logger.Info("delivery loop started", zap.Duration("poll_interval", l.cfg.PollInterval))
	l.dispatch(ctx, evTick{})

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("delivery loop stopped")
			return nil
		case <-ticker.C:
			l.dispatch(ctx, evTick{})
		case <-l.wake:
			l.dispatch(ctx, evTick{})
		case in := <-l.inbox:
			l.dispatch(ctx, in)
		}
	}
}

// Submit 提交当前展示请求的用户输入。请求 ID 与当前展示不符时被忽略。
func (l *Loop) Submit(requestID string, in Input) bool {
	return l.enqueue(cmdSubmit{RequestID: requestID, Input: in})
}

// Cancel 取消当前展示的请求。
func (l *Loop) Cancel(requestID string) bool {
	return l.enqueue(cmdCancel{RequestID: requestID})
}

// Wake 请求尽快拉取，供推送通知使用。
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Snapshot 返回当前状态的副本。
func (l *Loop) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) enqueue(in input) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.inbox <- in:
		return true
	case <-l.done:
		return false
	}
}

func (l *Loop) dispatch(ctx context.Context, in input) {
	l.mu.Lock()
	next, effects := Reduce(l.state, in)
	l.state = next
	l.mu.Unlock()

	for _, eff := range effects {
		l.execute(ctx, eff)
	}
}

func (l *Loop) execute(ctx context.Context, eff effect) {
	switch e := eff.(type) {
	case effStartPoll:
		l.spawn(ctx, func(callCtx context.Context) input {
			reqs, err := l.transport.ListPending(callCtx)
			if err != nil {
				l.recordPoll("error")
				return evPollFailed{Seq: e.Seq, Err: err}
			}
			l.recordPoll("ok")
			return evPollSucceeded{Seq: e.Seq, Requests: reqs}
		})
	case effSend:
		l.spawn(ctx, func(callCtx context.Context) input {
			return l.send(callCtx, e)
		})
	case effRender:
		if !e.Request.Kind.Known() {
			l.logger.Debug("rendering acknowledgement for unrecognised kind",
				zap.String("id", e.Request.ID), zap.String("type", string(e.Request.Kind)))
		}
		l.renderer.Show(e.Request, e.Affordance)
	case effClear:
		l.renderer.Clear()
	case effStatus:
		l.renderer.Status(e.Message)
	case effLogPollError:
		l.logger.Warn("poll pending requests failed", zap.Error(e.Err))
	}
}

func (l *Loop) send(ctx context.Context, e effSend) input {
	action := "submit"
	var err error
	if e.Response.Cancelled {
		action = "cancel"
		err = l.transport.Cancel(ctx, e.Response.RequestID)
	} else {
		err = l.transport.Respond(ctx, e.Response)
	}

	id := e.Response.RequestID
	switch {
	case err == nil:
		l.recordSend(action, "ok")
		return evSendSucceeded{RequestID: id}
	case IsNotFound(err):
		l.recordSend(action, "not_found")
		l.logger.Info("request already resolved elsewhere", zap.String("id", id))
		return evSendNotFound{RequestID: id}
	default:
		l.recordSend(action, "error")
		l.logger.Warn("send failed", zap.String("id", id), zap.String("action", action), zap.Error(err))
		return evSendFailed{RequestID: id, Err: err}
	}
}

// spawn 在独立协程中执行传输调用，并把结果事件送回循环。
func (l *Loop) spawn(ctx context.Context, call func(context.Context) input) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
		defer cancel()
		result := call(callCtx)
		select {
		case l.inbox <- result:
		case <-ctx.Done():
		}
	}()
}

func (l *Loop) recordPoll(result string) {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordPoll(result)
	}
}

func (l *Loop) recordSend(action, result string) {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordSend(action, result)
	}
}
