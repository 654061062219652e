package matcher

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/embedder"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// Engine 技能匹配引擎。给定JD技能集与简历技能集，
// 为每个JD技能找出相似度最高的简历技能。
// 纯计算组件，除了嵌入查询外无任何副作用。
type Engine struct {
	embedder embedder.Embedder
	logger   zerolog.Logger
}

// NewEngine 创建技能匹配引擎
func NewEngine(emb embedder.Embedder, logger zerolog.Logger) *Engine {
	return &Engine{
		embedder: emb,
		logger:   logger.With().Str("component", "skill_matcher").Logger(),
	}
}

// Match 计算JD技能与简历技能的匹配结果。
// 规则：
//   - 词面相等（忽略大小写、压缩空白）直接判定匹配，相似度置1.0；
//   - 否则对每个JD技能取余弦相似度最高的简历技能（贪心，非二分图最优），
//     相同相似度按简历技能的插入顺序取先者；
//   - 低于阈值的JD技能仍然输出，matched=false，保留其最高相似度，
//     供规划器显式考察"短板"技能；
//   - 任一技能的嵌入获取失败只降级该技能（matched=false, similarity=0），
//     整个匹配集必须完整返回，单个技能不会阻塞面试。
//
// 输入与嵌入不变时重复调用结果一致。
func (e *Engine) Match(ctx context.Context, jdSkills []types.Skill, resumeSkills []types.Skill, threshold float64) []types.MatchResult {
	results := make([]types.MatchResult, 0, len(jdSkills))
	if len(jdSkills) == 0 {
		return results
	}

	jdVecs := e.embedAll(ctx, jdSkills)
	resumeVecs := e.embedAll(ctx, resumeSkills)

	for i, jd := range jdSkills {
		result := types.MatchResult{
			JDSkill:    jd,
			Similarity: 0,
			Matched:    false,
		}

		// 词面快速通道
		if lexIdx := lexicalMatch(jd, resumeSkills); lexIdx >= 0 {
			result.ResumeSkill = resumeSkills[lexIdx]
			result.Similarity = 1.0
			result.Matched = true
			results = append(results, result)
			continue
		}

		// 语义通道：取最高相似度的简历技能
		bestIdx := -1
		bestSim := -1.0
		if jdVecs[i] != nil {
			for j := range resumeSkills {
				if resumeVecs[j] == nil {
					continue
				}
				sim := clamp01(CosineSimilarity(jdVecs[i], resumeVecs[j]))
				// 严格大于：相同相似度保留插入顺序更早的简历技能
				if sim > bestSim {
					bestSim = sim
					bestIdx = j
				}
			}
		}

		if bestIdx >= 0 {
			result.ResumeSkill = resumeSkills[bestIdx]
			result.Similarity = bestSim
			result.Matched = bestSim >= threshold
		}
		results = append(results, result)
	}

	return results
}

// embedAll 逐个降级地获取技能向量：嵌入失败的技能对应nil向量。
func (e *Engine) embedAll(ctx context.Context, skills []types.Skill) [][]float64 {
	vecs := make([][]float64, len(skills))
	if len(skills) == 0 {
		return vecs
	}

	texts := make([]string, len(skills))
	for i, s := range skills {
		texts[i] = s.Name
	}

	embedded, err := e.embedder.EmbedStrings(ctx, texts)
	if err == nil && len(embedded) == len(skills) {
		copy(vecs, embedded)
		return vecs
	}
	if err != nil {
		e.logger.Warn().Err(err).Int("skills", len(skills)).Msg("批量嵌入失败，逐个降级重试")
	}

	// 批量失败后逐个尝试，保证单个技能的故障不污染整批
	for i := range skills {
		one, oneErr := e.embedder.EmbedStrings(ctx, []string{texts[i]})
		if oneErr != nil || len(one) == 0 {
			e.logger.Warn().Err(oneErr).Str("skill", skills[i].Name).Msg("技能嵌入失败，按未匹配处理")
			continue
		}
		vecs[i] = one[0]
	}
	return vecs
}

// lexicalMatch 返回与JD技能词面相等的第一个简历技能下标，没有则返回-1
func lexicalMatch(jd types.Skill, resumeSkills []types.Skill) int {
	jdNorm := NormalizeSkill(jd.Name)
	for j, rs := range resumeSkills {
		if NormalizeSkill(rs.Name) == jdNorm {
			return j
		}
	}
	return -1
}

// NormalizeSkill 技能词归一化：小写并压缩空白
func NormalizeSkill(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 维度不一致或零向量返回0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clamp01 将相似度截断到 [0,1]，防御数值误差与异常输入
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
