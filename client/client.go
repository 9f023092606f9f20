package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdesk/api"
	"github.com/BaSui01/agentdesk/delivery"
	"github.com/BaSui01/agentdesk/hitl"
	"github.com/BaSui01/agentdesk/internal/tlsutil"
	"github.com/BaSui01/agentdesk/types"
)

const (
	pendingPath  = "/api/interaction/pending"
	responsePath = "/api/interaction/response"
	cancelPath   = "/api/interaction/cancel"
	requestPath  = "/api/interaction/request"
	outcomePath  = "/api/interaction/outcome"
	historyPath  = "/api/interaction/history"
	streamPath   = "/api/interaction/stream"
	readyPath    = "/ready"
)

var _ delivery.Transport = (*Client)(nil)

// Config 客户端配置
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// HTTPClient 为空时使用默认客户端。
	HTTPClient *http.Client `json:"-" yaml:"-"`
}

// Client 交互台 HTTP 客户端
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// New 创建客户端
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// 超时由每次调用的 ctx 控制，长轮询需要比 Timeout 更长的时间
		httpClient = &http.Client{Transport: tlsutil.SecureTransport()}
	}
	return &Client{
		baseURL: baseURL,
		timeout: cfg.Timeout,
		http:    httpClient,
		logger:  logger.With(zap.String("component", "interaction_client")),
	}
}

// =============================================================================
// 🔁 交付端（delivery.Transport）
// =============================================================================

// ListPending 拉取挂起请求，按创建顺序返回。
func (c *Client) ListPending(ctx context.Context) ([]*hitl.Request, error) {
	var set api.PendingSet
	if err := c.do(ctx, http.MethodGet, pendingPath, nil, &set, c.timeout, ""); err != nil {
		return nil, err
	}
	return set.Requests(), nil
}

// Respond 提交应答。
func (c *Client) Respond(ctx context.Context, resp hitl.Response) error {
	body := api.ResponseRequest{
		RequestID: resp.RequestID,
		Response:  resp.Value,
		Cancelled: resp.Cancelled,
	}
	return c.doEnvelope(ctx, http.MethodPost, responsePath, body, nil, c.timeout, resp.RequestID)
}

// Cancel 取消请求。
func (c *Client) Cancel(ctx context.Context, requestID string) error {
	body := api.CancelRequest{RequestID: requestID}
	return c.doEnvelope(ctx, http.MethodPost, cancelPath, body, nil, c.timeout, requestID)
}

// =============================================================================
// 🤖 Agent 端
// =============================================================================

// Create 登记交互请求，返回 request_id。
func (c *Client) Create(ctx context.Context, opts hitl.CreateOptions) (string, error) {
	body := api.CreateRequest{
		Type:        string(opts.Kind),
		Prompt:      opts.Prompt,
		Description: opts.Description,
		Options:     opts.Options,
		Metadata:    opts.Metadata,
		Optional:    opts.Optional,
	}
	var created api.CreateResponse
	if err := c.doEnvelope(ctx, http.MethodPost, requestPath, body, &created, c.timeout, ""); err != nil {
		return "", err
	}
	return created.RequestID, nil
}

// Outcome 在服务端等待最多 wait 时长；请求仍挂起时返回 Status 为 "pending" 的结果。
func (c *Client) Outcome(ctx context.Context, requestID string, wait time.Duration) (*api.OutcomeResponse, error) {
	q := url.Values{}
	q.Set("request_id", requestID)
	if wait > 0 {
		q.Set("wait", wait.String())
	}
	var out api.OutcomeResponse
	if err := c.doEnvelope(ctx, http.MethodGet, outcomePath+"?"+q.Encode(), nil, &out, wait+c.timeout, requestID); err != nil {
		return nil, err
	}
	return &out, nil
}

// Await 反复长轮询直到请求到达终态或 ctx 结束。
func (c *Client) Await(ctx context.Context, requestID string, wait time.Duration) (*api.OutcomeResponse, error) {
	for {
		out, err := c.Outcome(ctx, requestID, wait)
		if err != nil {
			return nil, err
		}
		if out.Status != string(hitl.StatusPending) {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// History 读取最近的终态记录。
func (c *Client) History(ctx context.Context, limit int) ([]hitl.InteractionRecord, error) {
	path := historyPath
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var records []hitl.InteractionRecord
	if err := c.doEnvelope(ctx, http.MethodGet, path, nil, &records, c.timeout, ""); err != nil {
		return nil, err
	}
	return records, nil
}

// Ready 检查服务端就绪状态。
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, readyPath, nil, nil, c.timeout, "")
}

// =============================================================================
// 📡 推送
// =============================================================================

// Watch 订阅挂起集合变化，每收到一次通知调用一次 onChange。
// ctx 结束时返回 nil；连接失败或中断时返回传输错误。
func (c *Client) Watch(ctx context.Context, onChange func()) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + streamPath

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPClient: c.http})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return types.NewTransportError("connect interaction stream", err)
	}
	defer conn.CloseNow()

	c.logger.Debug("interaction stream connected", zap.String("url", wsURL))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			return types.NewTransportError("read interaction stream", err)
		}
		var ev api.StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("ignore malformed stream event", zap.Error(err))
			continue
		}
		if ev.Type == api.StreamEventPendingChanged {
			onChange()
		}
	}
}

// =============================================================================
// 🔧 请求辅助
// =============================================================================

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func (c *Client) doEnvelope(ctx context.Context, method, path string, in, out any, timeout time.Duration, requestID string) error {
	var env envelope
	if err := c.do(ctx, method, path, in, &env, timeout, requestID); err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return types.NewTransportError("decode response data", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, timeout time.Duration, requestID string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return types.NewTransportError(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewTransportError("read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(method, path, resp.StatusCode, raw, requestID)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return types.NewTransportError("decode response", err)
	}
	return nil
}

// statusError 把非 2xx 响应映射为结构化错误。
func (c *Client) statusError(method, path string, status int, raw []byte, requestID string) error {
	var env envelope
	_ = json.Unmarshal(raw, &env)

	code := types.ErrTransport
	message := fmt.Sprintf("%s %s: status %d", method, path, status)
	retryable := status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
	if env.Error != nil {
		code = types.ErrorCode(env.Error.Code)
		message = env.Error.Message
		retryable = retryable || env.Error.Retryable
	}

	if status == http.StatusNotFound && code == types.ErrNotFound {
		return types.NewNotFoundError(requestID).
			WithHTTPStatus(status).
			WithCause(hitl.ErrNotFound)
	}
	if retryable {
		// 服务端故障对投递循环而言等同传输失败
		return types.NewTransportError(message, errors.New(string(code))).WithHTTPStatus(status)
	}

	c.logger.Debug("interaction request rejected",
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("code", string(code)),
	)
	return types.NewError(code, message).WithHTTPStatus(status)
}
