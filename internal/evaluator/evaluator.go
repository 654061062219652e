package evaluator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// Result 单次评估的产出：隐藏评分与是否建议追问。
// 评分永远不经候选人通道返回。
type Result struct {
	Score        types.Score
	NeedFollowUp bool
}

// Strategy 答案评估策略。实现者只负责给出正确度，
// 追问判定与聚合由 Evaluator 统一处理。
type Strategy interface {
	// Name 策略名，用于日志与导出标注
	Name() string

	// Assess 评估候选人对某个问题的回答，返回 [0,1] 的正确度与评语
	Assess(ctx context.Context, q types.Question, a types.Answer) (correctness float64, notes string, err error)
}

// Evaluator 隐藏评分评估器。包装一个评估策略，
// 叠加追问区间判定与深度加权聚合。
type Evaluator struct {
	strategy Strategy
	fallback Strategy // 主策略失败后的降级策略，可为nil
	cfg      config.EvaluatorConfig
	logger   zerolog.Logger
}

// NewEvaluator 创建评估器。fallback 可为 nil，
// 此时主策略重试一次后仍失败则整体失败。
func NewEvaluator(strategy Strategy, fallback Strategy, cfg config.EvaluatorConfig, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		strategy: strategy,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger.With().Str("component", "answer_evaluator").Logger(),
	}
}

// Evaluate 评估一条回答。主策略失败后重试一次，
// 再失败切换降级策略；全部失败返回错误，由编排层决定兜底动作。
// 追问判定：正确度落在 [FollowUpBandLow, FollowUpBandHigh] 闭区间内
// 说明回答部分正确，值得追问；区间外（太差或太好）都不追问。
func (e *Evaluator) Evaluate(ctx context.Context, q types.Question, a types.Answer) (*Result, error) {
	correctness, notes, err := e.assessWithRetry(ctx, e.strategy, q, a)
	if err != nil && e.fallback != nil {
		e.logger.Warn().Err(err).
			Str("strategy", e.strategy.Name()).
			Str("fallback", e.fallback.Name()).
			Msg("主评估策略失败，切换降级策略")
		correctness, notes, err = e.assessWithRetry(ctx, e.fallback, q, a)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluator: 评估失败: %w", err)
	}

	correctness = clamp01(correctness)
	return &Result{
		Score: types.Score{
			QuestionID:  q.ID,
			Correctness: correctness,
			DepthBonus:  depthBonus(q.DepthLevel, correctness),
			Notes:       notes,
		},
		NeedFollowUp: e.inFollowUpBand(correctness),
	}, nil
}

func (e *Evaluator) assessWithRetry(ctx context.Context, s Strategy, q types.Question, a types.Answer) (float64, string, error) {
	correctness, notes, err := s.Assess(ctx, q, a)
	if err == nil {
		return correctness, notes, nil
	}
	e.logger.Debug().Err(err).Str("strategy", s.Name()).Msg("评估失败，重试一次")
	return s.Assess(ctx, q, a)
}

// inFollowUpBand 闭区间判定。0.55落入区间需要追问，0.9不需要。
func (e *Evaluator) inFollowUpBand(correctness float64) bool {
	return correctness >= e.cfg.FollowUpBandLow && correctness <= e.cfg.FollowUpBandHigh
}

// depthBonus 高难度问题答对给予小幅加成，仅用于导出视图的标注
func depthBonus(depthLevel int, correctness float64) float64 {
	if depthLevel <= 1 {
		return 0
	}
	return clamp01(float64(depthLevel-1) * 0.05 * correctness)
}

// Aggregate 计算会话级聚合评分：按 depth_level 加权的正确度均值，
// 追问按配置折减系数（默认0.5x）参与。没有任何评分时总分为0。
func (e *Evaluator) Aggregate(s *types.Session) *types.AggregateScore {
	followUpWeight := e.cfg.FollowUpWeight
	if followUpWeight <= 0 {
		followUpWeight = 0.5
	}

	agg := &types.AggregateScore{
		SessionID:   s.ID,
		State:       s.State,
		Bucket:      s.Bucket,
		Incomplete:  s.Incomplete,
		PerQuestion: make([]types.QuestionScore, 0, len(s.Asked)),
	}

	var weightedSum, weightTotal float64
	for _, q := range s.Asked {
		score, scored := s.Scores[q.ID]
		if !scored {
			continue
		}

		weight := float64(q.DepthLevel)
		if weight < 1 {
			weight = 1
		}
		if q.Kind == types.QuestionKindFollowUp {
			weight *= followUpWeight
		}

		weightedSum += score.Correctness * weight
		weightTotal += weight
		agg.QuestionCount++

		qs := types.QuestionScore{
			Question:    q,
			Correctness: score.Correctness,
			DepthBonus:  score.DepthBonus,
			Notes:       score.Notes,
			Weight:      weight,
		}
		if a, ok := s.Answers[q.ID]; ok {
			answer := a
			qs.Answer = &answer
		}
		agg.PerQuestion = append(agg.PerQuestion, qs)
	}

	if weightTotal > 0 {
		agg.Overall = clamp01(weightedSum / weightTotal)
	}
	return agg
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
