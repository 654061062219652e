package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/embedder"
	"github.com/JaySingh79/Agentic-Recruiter/internal/matcher"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// HeuristicStrategy 不依赖LLM的启发式评估策略。
// 用答案与问题的语义相似度加词面覆盖度估算正确度，
// 精度有限，主要作为judge策略不可用时的降级路径。
type HeuristicStrategy struct {
	embedder embedder.Embedder // 可为nil，退化为纯词面启发式
	logger   zerolog.Logger
}

var _ Strategy = (*HeuristicStrategy)(nil)

// NewHeuristicStrategy 创建启发式策略
func NewHeuristicStrategy(emb embedder.Embedder, logger zerolog.Logger) *HeuristicStrategy {
	return &HeuristicStrategy{
		embedder: emb,
		logger:   logger.With().Str("component", "heuristic_strategy").Logger(),
	}
}

// Name 实现 Strategy 接口
func (h *HeuristicStrategy) Name() string { return "heuristic" }

// 过短的回答直接按低分处理的字符数下限
const minAnswerRunes = 20

// Assess 实现 Strategy 接口。
// 正确度 = 0.6*语义相似度 + 0.4*词面覆盖度；
// 嵌入不可用时退化为纯词面覆盖度。
func (h *HeuristicStrategy) Assess(ctx context.Context, q types.Question, a types.Answer) (float64, string, error) {
	answer := strings.TrimSpace(a.Text)
	if len([]rune(answer)) < minAnswerRunes {
		return 0.1, "回答过短，无法评估实质内容", nil
	}

	lexical := lexicalCoverage(q.Text, answer)

	if h.embedder == nil {
		return clamp01(lexical), "词面启发式评分（嵌入不可用）", nil
	}

	vecs, err := h.embedder.EmbedStrings(ctx, []string{q.Text, answer})
	if err != nil || len(vecs) < 2 {
		h.logger.Warn().Err(err).Str("question_id", q.ID).Msg("启发式评分嵌入失败，退化为词面覆盖度")
		return clamp01(lexical), "词面启发式评分（嵌入失败）", nil
	}

	semantic := matcher.CosineSimilarity(vecs[0], vecs[1])
	correctness := clamp01(0.6*semantic + 0.4*lexical)
	notes := fmt.Sprintf("启发式评分：语义相似度%.2f，词面覆盖度%.2f", semantic, lexical)
	return correctness, notes, nil
}

// lexicalCoverage 问题关键词在回答中的覆盖比例。
// 只统计长度大于2的词，避免虚词干扰。
func lexicalCoverage(question, answer string) float64 {
	answerLower := strings.ToLower(answer)
	keywords := 0
	hits := 0
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, ".,;:!?()\"'「」《》？。，")
		if len([]rune(w)) <= 2 {
			continue
		}
		keywords++
		if strings.Contains(answerLower, w) {
			hits++
		}
	}
	if keywords == 0 {
		return 0.5
	}
	return float64(hits) / float64(keywords)
}
