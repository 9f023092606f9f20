package hitl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore 基于 Redis 的交互请求存储，适用于多实例部署。
//
// 数据布局（均以 keyPrefix 开头）：
//
//	seq               INCR 序号，决定创建顺序
//	pending           ZSET，score 为序号，member 为请求 ID
//	req:<id>          请求 JSON
//	outcome:<id>      终态结果 JSON，带保留期
//	events            Pub/Sub 频道，挂起集合变化
//	wake:<id>         Pub/Sub 频道，唤醒 Await
type RedisStore struct {
	client       *redis.Client
	keyPrefix    string
	retention    time.Duration
	recheckEvery time.Duration
	logger       *zap.Logger
}

// DefaultAwaitRecheck 是 Await 在未收到唤醒消息时主动检查结果的间隔。
const DefaultAwaitRecheck = time.Second

// RedisStoreConfig Redis 存储配置
type RedisStoreConfig struct {
	KeyPrefix        string        `json:"key_prefix" yaml:"key_prefix"`
	OutcomeRetention time.Duration `json:"outcome_retention" yaml:"outcome_retention"`
	// AwaitRecheck 兜底检查间隔，唤醒消息丢失时仍能取到结果
	AwaitRecheck time.Duration `json:"await_recheck" yaml:"await_recheck"`
}

// finishScript 原子地把请求移出挂起集合并写入终态结果。
// ZREM 的返回值是唯一的决策点：返回 0 表示请求已不在挂起状态。
var finishScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('DEL', KEYS[2])
redis.call('SET', KEYS[3], ARGV[2], 'PX', ARGV[3])
return 1
`)

// NewRedisStore 使用已有客户端创建 Redis 存储。
func NewRedisStore(client *redis.Client, cfg RedisStoreConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "agentdesk:interaction:"
	}
	retention := cfg.OutcomeRetention
	if retention <= 0 {
		retention = DefaultOutcomeRetention
	}
	recheck := cfg.AwaitRecheck
	if recheck <= 0 {
		recheck = DefaultAwaitRecheck
	}
	return &RedisStore{
		client:       client,
		keyPrefix:    prefix,
		retention:    retention,
		recheckEvery: recheck,
		logger:       logger.With(zap.String("component", "redis_interaction_store")),
	}
}

func (s *RedisStore) seqKey() string               { return s.keyPrefix + "seq" }
func (s *RedisStore) pendingKey() string           { return s.keyPrefix + "pending" }
func (s *RedisStore) requestKey(id string) string  { return s.keyPrefix + "req:" + id }
func (s *RedisStore) outcomeKey(id string) string  { return s.keyPrefix + "outcome:" + id }
func (s *RedisStore) eventsChannel() string        { return s.keyPrefix + "events" }
func (s *RedisStore) wakeChannel(id string) string { return s.keyPrefix + "wake:" + id }

// Create 插入新的 pending 请求。
func (s *RedisStore) Create(ctx context.Context, opts CreateOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("allocate sequence: %w", err)
	}

	req := newRequest(uuid.New().String(), uint64(seq), opts, time.Now())
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.requestKey(req.ID), data, 0)
	pipe.ZAdd(ctx, s.pendingKey(), redis.Z{Score: float64(req.Sequence), Member: req.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store request: %w", err)
	}

	s.publishChange(ctx)
	return req.ID, nil
}

// ListPending 按序号返回 pending 请求。
func (s *RedisStore) ListPending(ctx context.Context) ([]*Request, error) {
	ids, err := s.client.ZRange(ctx, s.pendingKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending ids: %w", err)
	}
	if len(ids) == 0 {
		return []*Request{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.requestKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load pending requests: %w", err)
	}

	results := make([]*Request, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// 请求在 ZRANGE 与 MGET 之间被解决
			continue
		}
		var req Request
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			s.logger.Warn("skip malformed request", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		results = append(results, &req)
	}
	return results, nil
}

// Resolve 将请求转为 answered。
func (s *RedisStore) Resolve(ctx context.Context, requestID string, value any) (*Outcome, error) {
	return s.finish(ctx, requestID, StatusAnswered, value)
}

// Cancel 将请求转为 cancelled。
func (s *RedisStore) Cancel(ctx context.Context, requestID string) (*Outcome, error) {
	return s.finish(ctx, requestID, StatusCancelled, nil)
}

func (s *RedisStore) finish(ctx context.Context, requestID string, status Status, value any) (*Outcome, error) {
	data, err := s.client.Get(ctx, s.requestKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	req.Status = status
	out := newOutcome(&req, status, value, time.Now())
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal outcome: %w", err)
	}

	keys := []string{s.pendingKey(), s.requestKey(requestID), s.outcomeKey(requestID)}
	ok, err := finishScript.Run(ctx, s.client, keys, requestID, payload, s.retention.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("finish request: %w", err)
	}
	if ok == 0 {
		return nil, ErrNotFound
	}

	// 统一经 JSON 往返，保证与 Await 读到的取值类型一致
	var decoded Outcome
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	s.publishChange(ctx)

	// 终态已落库；唤醒失败时等待方仍会在兜底检查中取到结果
	if err := s.client.Publish(ctx, s.wakeChannel(requestID), string(status)).Err(); err != nil {
		s.logger.Warn("publish wake failed", zap.String("id", requestID), zap.Error(err))
	}
	return &decoded, nil
}

// Await 订阅唤醒频道并等待终态结果。
func (s *RedisStore) Await(ctx context.Context, requestID string) (*Outcome, error) {
	pubsub := s.client.Subscribe(ctx, s.wakeChannel(requestID))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe wake channel: %w", err)
	}

	// 订阅之后再检查，避免错过订阅前完成的终态
	out, err := s.takeOutcome(ctx, requestID)
	if err != nil || out != nil {
		return out, err
	}

	if err := s.client.ZScore(ctx, s.pendingKey(), requestID).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			// 两次读取之间可能刚好完成
			return s.takeOutcomeOrNotFound(ctx, requestID)
		}
		return nil, fmt.Errorf("check pending: %w", err)
	}

	ticker := time.NewTicker(s.recheckEvery)
	defer ticker.Stop()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil, ErrStoreClosed
			}
			return s.takeOutcomeOrNotFound(ctx, requestID)
		case <-ticker.C:
			out, err := s.takeOutcome(ctx, requestID)
			if err != nil || out != nil {
				return out, err
			}
			if err := s.client.ZScore(ctx, s.pendingKey(), requestID).Err(); errors.Is(err, redis.Nil) {
				return s.takeOutcomeOrNotFound(ctx, requestID)
			}
		}
	}
}

func (s *RedisStore) takeOutcomeOrNotFound(ctx context.Context, requestID string) (*Outcome, error) {
	out, err := s.takeOutcome(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

// takeOutcome 原子地读取并删除终态结果；不存在时返回 nil, nil。
func (s *RedisStore) takeOutcome(ctx context.Context, requestID string) (*Outcome, error) {
	data, err := s.client.GetDel(ctx, s.outcomeKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load outcome: %w", err)
	}
	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &out, nil
}

// Changes 订阅挂起集合变化频道。
func (s *RedisStore) Changes(ctx context.Context) (<-chan struct{}, error) {
	pubsub := s.client.Subscribe(ctx, s.eventsChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe events: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Ping 检查 Redis 连接。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭 Redis 客户端。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) publishChange(ctx context.Context) {
	if err := s.client.Publish(ctx, s.eventsChannel(), "changed").Err(); err != nil {
		s.logger.Warn("publish change failed", zap.Error(err))
	}
}
