package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/constants"
	"github.com/JaySingh79/Agentic-Recruiter/internal/embedder"
)

// ErrNotFound 键不存在。包装 redis.Nil 以便上层做抽象判断。
var ErrNotFound = redis.Nil

// Redis 键值存储适配器：承载会话快照与技能向量缓存
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// Redis实现了技能向量缓存接口
var _ embedder.VectorCache = (*Redis)(nil)

// NewRedisAdapter 创建Redis客户端连接
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis配置不能为空")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis地址不能为空")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,     // 默认10
		MinIdleConns: cfg.MinIdleConns, // 默认2

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,  // 默认5秒
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,  // 默认3秒
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second, // 默认3秒

		// 重试设置
		MaxRetries:      cfg.MaxRetries,                                          // 默认3次
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond, // 默认8毫秒
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond, // 默认512毫秒
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("为Redis添加OpenTelemetry钩子失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 (%s): %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查Redis连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Ping(ctx).Err()
}

// SessionTTL 活跃会话快照的过期时间，0表示不过期
func (r *Redis) SessionTTL() time.Duration {
	hours := r.config.SessionTTLHours
	if hours <= 0 {
		return 0
	}
	return time.Duration(hours) * time.Hour
}

// vectorCacheTTL 技能向量缓存的过期时间
func (r *Redis) vectorCacheTTL() time.Duration {
	hours := r.config.VectorCacheTTLHours
	if hours <= 0 {
		hours = 24 * 7 // 默认7天
	}
	return time.Duration(hours) * time.Hour
}

// SetSkillVector 缓存技能词的嵌入向量
func (r *Redis) SetSkillVector(ctx context.Context, key string, vector []float64) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	cacheKey := fmt.Sprintf(constants.KeySkillVector, key)
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("序列化向量失败: %w", err)
	}
	if err := r.Client.Set(ctx, cacheKey, vectorJSON, r.vectorCacheTTL()).Err(); err != nil {
		return fmt.Errorf("写入技能向量缓存失败: %w", err)
	}
	return nil
}

// GetSkillVector 读取技能词的嵌入向量缓存，未命中返回 embedder.ErrCacheMiss
func (r *Redis) GetSkillVector(ctx context.Context, key string) ([]float64, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}

	cacheKey := fmt.Sprintf(constants.KeySkillVector, key)
	vectorJSON, err := r.Client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, embedder.ErrCacheMiss
		}
		return nil, fmt.Errorf("读取技能向量缓存失败: %w", err)
	}

	var vector []float64
	if err := json.Unmarshal(vectorJSON, &vector); err != nil {
		return nil, fmt.Errorf("反序列化向量失败: %w", err)
	}
	return vector, nil
}
