package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/constants"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// RedisStore 基于Redis的会话存储。
// 会话以JSON快照整体存取，Apply 用 WATCH 事务做乐观CAS：
// 快照在事务外演算，提交时键被并发修改则重试。
// 进程内再按会话ID加锁，减少同实例内的无谓事务冲突。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Store = (*RedisStore)(nil)

// 并发冲突时的事务重试次数
const redisApplyRetries = 3

// NewRedisStore 创建Redis会话存储
func NewRedisStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "session_redis_store").Logger(),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (r *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf(constants.KeyInterviewSession, id)
}

func (r *RedisStore) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// releaseLock 会话终结后丢弃对应的进程内锁，避免锁表随会话数无限增长。
// 丢弃后的竞争者会拿到新锁实例，正确性仍由WATCH事务保证。
func (r *RedisStore) releaseLock(id string) {
	r.mu.Lock()
	delete(r.locks, id)
	r.mu.Unlock()
}

// Create 实现 Store 接口。SetNX 保证ID不被覆盖。
func (r *RedisStore) Create(ctx context.Context, s *types.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session: 会话或会话ID为空")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: 序列化会话失败: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.sessionKey(s.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("session: 写入Redis失败: %w", err)
	}
	if !ok {
		return fmt.Errorf("session: 会话 %s 已存在", s.ID)
	}
	r.logger.Debug().Str("session_id", s.ID).Msg("会话已创建")
	return nil
}

// Get 实现 Store 接口
func (r *RedisStore) Get(ctx context.Context, id string) (*types.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: 读取Redis失败: %w", err)
	}
	var s types.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: 反序列化会话失败: %w", err)
	}
	return &s, nil
}

// Apply 实现 Store 接口。WATCH键 -> 读快照 -> 演算变更 -> MULTI提交。
// 提交期间键被他人改写则事务失败并重试；
// 重试耗尽仍冲突按版本冲突上抛，业务层决定是否重放。
func (r *RedisStore) Apply(ctx context.Context, id string, expectedVersion int64, mutations ...Mutation) (*types.Session, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	key := r.sessionKey(id)
	var applied *types.Session

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("session: 读取Redis失败: %w", err)
		}

		var draft types.Session
		if err := json.Unmarshal(data, &draft); err != nil {
			return fmt.Errorf("session: 反序列化会话失败: %w", err)
		}

		if expectedVersion != VersionAny && draft.Version != expectedVersion {
			return fmt.Errorf("%w: 期望 %d, 实际 %d", ErrVersionConflict, expectedVersion, draft.Version)
		}

		for _, mutate := range mutations {
			if err := mutate(&draft); err != nil {
				return err
			}
		}
		draft.Version++
		draft.UpdatedAt = time.Now()

		out, err := json.Marshal(&draft)
		if err != nil {
			return fmt.Errorf("session: 序列化会话失败: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		applied = &draft
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < redisApplyRetries; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			if applied.IsTerminal() {
				r.releaseLock(id)
			}
			return applied, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Warn().Str("session_id", id).Int("attempt", attempt+1).Msg("会话提交遇到并发修改，重试")
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: 事务重试耗尽: %v", ErrVersionConflict, lastErr)
}

// Close 实现 Store 接口。Redis客户端由外层storage统一管理，这里不关闭连接。
func (r *RedisStore) Close() error {
	return nil
}
