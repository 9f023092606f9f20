package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdesk/api"
	"github.com/BaSui01/agentdesk/hitl"
	"github.com/BaSui01/agentdesk/types"
)

// =============================================================================
// 🙋 交互请求 Handler
// =============================================================================

const (
	defaultOutcomeWait = 30 * time.Second
	maxOutcomeWait     = 5 * time.Minute
	minOutcomeWait     = 100 * time.Millisecond
)

// HistoryReader 读取终态审计记录。
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]hitl.InteractionRecord, error)
}

// InteractionHandler 交互请求处理器
type InteractionHandler struct {
	store          hitl.Store
	history        HistoryReader
	originPatterns []string
	logger         *zap.Logger
}

// InteractionHandlerOption 配置 InteractionHandler.
type InteractionHandlerOption func(*InteractionHandler)

// WithHistoryReader 启用 /api/interaction/history。
func WithHistoryReader(h HistoryReader) InteractionHandlerOption {
	return func(ih *InteractionHandler) { ih.history = h }
}

// WithOriginPatterns 设置 websocket 允许的跨域来源。
func WithOriginPatterns(patterns []string) InteractionHandlerOption {
	return func(ih *InteractionHandler) { ih.originPatterns = patterns }
}

// NewInteractionHandler 创建交互请求处理器
func NewInteractionHandler(store hitl.Store, logger *zap.Logger, opts ...InteractionHandlerOption) *InteractionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &InteractionHandler{
		store:  store,
		logger: logger.With(zap.String("component", "interaction_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 注册交互相关路由
func (h *InteractionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/interaction/pending", h.HandlePending)
	mux.HandleFunc("/api/interaction/response", h.HandleResponse)
	mux.HandleFunc("/api/interaction/cancel", h.HandleCancel)
	mux.HandleFunc("/api/interaction/request", h.HandleCreate)
	mux.HandleFunc("/api/interaction/outcome", h.HandleOutcome)
	mux.HandleFunc("/api/interaction/stream", h.HandleStream)
	mux.HandleFunc("/api/interaction/history", h.HandleHistory)
}

// HandlePending 处理 GET /api/interaction/pending
// 返回以 request_id 为键、按创建顺序排列的 JSON 对象；没有挂起请求时为 {}。
func (h *InteractionHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	reqs, err := h.store.ListPending(r.Context())
	if err != nil {
		h.writeStoreError(w, "list pending requests", err)
		return
	}
	WriteJSON(w, http.StatusOK, api.NewPendingSet(reqs))
}

// HandleResponse 处理 POST /api/interaction/response
func (h *InteractionHandler) HandleResponse(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var body api.ResponseRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}
	if !requireRequestID(w, body.RequestID, h.logger) {
		return
	}

	var (
		out *hitl.Outcome
		err error
	)
	if body.Cancelled {
		out, err = h.store.Cancel(r.Context(), body.RequestID)
	} else {
		out, err = h.store.Resolve(r.Context(), body.RequestID, body.Response)
	}
	if err != nil {
		h.writeFinishError(w, body.RequestID, err)
		return
	}
	WriteSuccess(w, api.ResolveResult{RequestID: out.RequestID, Status: string(out.Status)})
}

// HandleCancel 处理 POST /api/interaction/cancel
func (h *InteractionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var body api.CancelRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}
	if !requireRequestID(w, body.RequestID, h.logger) {
		return
	}

	out, err := h.store.Cancel(r.Context(), body.RequestID)
	if err != nil {
		h.writeFinishError(w, body.RequestID, err)
		return
	}
	WriteSuccess(w, api.ResolveResult{RequestID: out.RequestID, Status: string(out.Status)})
}

// HandleCreate 处理 POST /api/interaction/request（Agent 侧登记请求）
func (h *InteractionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var body api.CreateRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	id, err := h.store.Create(r.Context(), body.ToOptions())
	if err != nil {
		if errors.Is(err, hitl.ErrInvalidRequest) {
			WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()).
				WithHTTPStatus(http.StatusBadRequest), h.logger)
			return
		}
		h.writeStoreError(w, "create request", err)
		return
	}
	WriteSuccess(w, api.CreateResponse{RequestID: id})
}

// HandleOutcome 处理 GET /api/interaction/outcome?request_id=...&wait=30s
// 在 wait 内等待请求终态；超时返回 202 与 status=pending。
func (h *InteractionHandler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	id := r.URL.Query().Get("request_id")
	if !requireRequestID(w, id, h.logger) {
		return
	}
	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "invalid wait duration").
			WithCause(err).WithHTTPStatus(http.StatusBadRequest), h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	out, err := h.store.Await(ctx, id)
	switch {
	case err == nil:
		WriteSuccess(w, api.FromOutcome(out))
	case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
		WriteJSON(w, http.StatusAccepted, Response{
			Success:   true,
			Data:      api.OutcomeResponse{RequestID: id, Status: string(hitl.StatusPending)},
			Timestamp: time.Now(),
		})
	case r.Context().Err() != nil:
		// 调用方已断开
	default:
		h.writeFinishError(w, id, err)
	}
}

// HandleHistory 处理 GET /api/interaction/history?limit=N
func (h *InteractionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	if h.history == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrHistoryDisabled, "interaction history is not enabled", h.logger)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
			return
		}
		limit = n
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.writeStoreError(w, "query history", err)
		return
	}
	WriteSuccess(w, records)
}

// HandleStream 处理 GET /api/interaction/stream（websocket）
// 连接建立后立即推送一次 pending_changed，之后每次挂起集合变化推送一次。
func (h *InteractionHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端不发送消息；CloseRead 在对端关闭时结束 ctx
	ctx := conn.CloseRead(r.Context())

	changes, err := h.store.Changes(ctx)
	if err != nil {
		h.logger.Warn("subscribe changes failed", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "store unavailable")
		return
	}

	event, _ := json.Marshal(api.StreamEvent{Type: api.StreamEventPendingChanged})
	if err := conn.Write(ctx, websocket.MessageText, event); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case _, ok := <-changes:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "store closed")
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, event); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func (h *InteractionHandler) writeFinishError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, hitl.ErrNotFound) {
		WriteError(w, types.NewNotFoundError(id).WithHTTPStatus(http.StatusNotFound), nil)
		return
	}
	h.writeStoreError(w, "finish request", err)
}

func (h *InteractionHandler) writeStoreError(w http.ResponseWriter, op string, err error) {
	WriteError(w, types.NewError(types.ErrStoreUnavailable, op+" failed").
		WithCause(err).
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithRetryable(true), h.logger)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string, logger *zap.Logger) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", logger)
	return false
}

func requireRequestID(w http.ResponseWriter, id string, logger *zap.Logger) bool {
	if strings.TrimSpace(id) != "" {
		return true
	}
	WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "request_id is required", logger)
	return false
}

func parseWait(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultOutcomeWait, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < minOutcomeWait {
		d = minOutcomeWait
	}
	if d > maxOutcomeWait {
		d = maxOutcomeWait
	}
	return d, nil
}
