package embedder

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("embedder: vector cache miss")

// VectorCache 技能向量缓存接口，由Redis适配器实现。
// 未命中返回 ErrCacheMiss。
type VectorCache interface {
	GetSkillVector(ctx context.Context, key string) ([]float64, error)
	SetSkillVector(ctx context.Context, key string, vector []float64) error
}

// CachedEmbedder 在底层Embedder之上加一层向量缓存。
// 技能词在不同会话间高度重复，缓存可以避免反复调用嵌入服务。
// 缓存故障只降级为直连，不影响嵌入结果。
type CachedEmbedder struct {
	inner  Embedder
	cache  VectorCache
	logger zerolog.Logger
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder 创建带缓存的Embedder
func NewCachedEmbedder(inner Embedder, cache VectorCache, logger zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		logger: logger.With().Str("component", "cached_embedder").Logger(),
	}
}

// GetDimensions 返回底层Embedder的维度
func (c *CachedEmbedder) GetDimensions() int {
	return c.inner.GetDimensions()
}

// CacheKey 归一化缓存键：小写并压缩空白
func CacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// EmbedStrings 先查缓存，只有未命中的文本才交给底层Embedder
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if c.cache == nil {
		return c.inner.EmbedStrings(ctx, texts, opts...)
	}

	result := make([][]float64, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		vec, err := c.cache.GetSkillVector(ctx, CacheKey(text))
		if err == nil && len(vec) > 0 {
			result[i] = vec
			continue
		}
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("text", text).Msg("读取向量缓存失败，回退到直连嵌入")
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	embedded, err := c.inner.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missTexts) {
		c.logger.Warn().
			Int("expected", len(missTexts)).
			Int("got", len(embedded)).
			Msg("嵌入服务返回向量数与请求文本数不一致")
	}

	for j, idx := range missIdx {
		if j >= len(embedded) {
			break
		}
		result[idx] = embedded[j]
		if setErr := c.cache.SetSkillVector(ctx, CacheKey(missTexts[j]), embedded[j]); setErr != nil {
			c.logger.Warn().Err(setErr).Msg("写入向量缓存失败")
		}
	}

	return result, nil
}
