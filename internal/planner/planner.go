package planner

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// DirectiveKind 规划器给编排层的下一步指令类型
type DirectiveKind string

const (
	// DirectiveAskPrimary 发出下一个主问题
	DirectiveAskPrimary DirectiveKind = "ask_primary"
	// DirectiveAskFollowUp 对当前主题追问
	DirectiveAskFollowUp DirectiveKind = "ask_follow_up"
	// DirectiveEvaluate 主问题配额用尽，进入评估
	DirectiveEvaluate DirectiveKind = "evaluate"
)

// Directive 规划器的输出：描述下一个问题的目标，不包含问题文本。
// 文本由题目请求器向外部生成能力换取。
type Directive struct {
	Kind       DirectiveKind
	SkillName  string
	Matched    bool    // 该技能是否过了匹配阈值
	Similarity float64 // 匹配相似度，提示词会据此调整口吻
	DepthLevel int
	Number     int    // 主问题编号 1..5；追问沿用父问题编号
	ParentID   string // 仅追问填写
}

// Planner 自适应面试规划器。纯决策组件：
// 读会话快照，产出指令，从不修改会话、从不做外部调用。
type Planner struct {
	cfg    config.InterviewConfig
	logger zerolog.Logger
}

// NewPlanner 创建规划器
func NewPlanner(cfg config.InterviewConfig, logger zerolog.Logger) *Planner {
	return &Planner{
		cfg:    cfg,
		logger: logger.With().Str("component", "interview_planner").Logger(),
	}
}

// candidate 参与主问题选择的技能候选
type candidate struct {
	skill      string
	matched    bool
	similarity float64
	weight     float64
	order      int // 匹配集中的插入顺序
}

// NextQuestion 决定下一个主问题的目标技能，或判定面试进入评估。
// 选择优先级是单一字典序：已匹配优先 → 相似度降序 → JD权重降序；
// 同一会话内不重复已考察的技能，除非所有候选都已覆盖——
// 此时允许重复主题但难度逐次上浮。
// skipSkills 是编排层在本轮内排除的技能（例如出题连续失败的主题），
// 排除后若无任何可用候选则判定提前进入评估。
func (p *Planner) NextQuestion(s *types.Session, skipSkills ...string) (Directive, error) {
	if s.IsTerminal() {
		return Directive{}, fmt.Errorf("planner: 会话 %s 已终结", s.ID)
	}
	if s.Cursor >= types.MaxPrimaryQuestions {
		return Directive{Kind: DirectiveEvaluate}, nil
	}

	candidates := p.rankCandidates(s.Matches)
	if len(candidates) == 0 {
		// 没有任何可考察技能，直接进入评估
		return Directive{Kind: DirectiveEvaluate}, nil
	}

	skipped := make(map[string]bool, len(skipSkills))
	for _, name := range skipSkills {
		skipped[name] = true
	}

	baseDepth := p.depthFor(s.Bucket)
	probed := s.ProbedSkills()

	for _, c := range candidates {
		if probed[c.skill] || skipped[c.skill] {
			continue
		}
		return Directive{
			Kind:       DirectiveAskPrimary,
			SkillName:  c.skill,
			Matched:    c.matched,
			Similarity: c.similarity,
			DepthLevel: baseDepth,
			Number:     s.Cursor + 1,
		}, nil
	}

	// 全部候选已覆盖：重复最高优先级的可用主题，难度按已问次数上浮
	for _, top := range candidates {
		if skipped[top.skill] {
			continue
		}
		repeats := p.primaryCountOnSkill(s, top.skill)
		return Directive{
			Kind:       DirectiveAskPrimary,
			SkillName:  top.skill,
			Matched:    top.matched,
			Similarity: top.similarity,
			DepthLevel: baseDepth + repeats,
			Number:     s.Cursor + 1,
		}, nil
	}

	// 候选全部被排除：没有可出题的主题，提前定稿
	return Directive{Kind: DirectiveEvaluate}, nil
}

// FollowUpDirective 对刚评完分的问题规划一次追问。
// 返回 false 表示该主题的追问配额已用尽。
// 追问挂在主问题下：对追问的追问同样记到原始主问题名下。
func (p *Planner) FollowUpDirective(s *types.Session, scored *types.Question) (Directive, bool) {
	if scored == nil || s.IsTerminal() {
		return Directive{}, false
	}

	parent := scored
	if scored.Kind == types.QuestionKindFollowUp {
		parent = s.QuestionByID(scored.ParentID)
		if parent == nil {
			return Directive{}, false
		}
	}

	maxFollowUps := p.cfg.MaxFollowUps
	if maxFollowUps <= 0 {
		maxFollowUps = 2
	}
	if s.FollowUpCount(parent.ID) >= maxFollowUps {
		p.logger.Debug().
			Str("session_id", s.ID).
			Str("parent_id", parent.ID).
			Msg("追问配额已用尽")
		return Directive{}, false
	}

	return Directive{
		Kind:       DirectiveAskFollowUp,
		SkillName:  parent.SkillName,
		DepthLevel: parent.DepthLevel,
		Number:     parent.Number,
		ParentID:   parent.ID,
	}, true
}

// rankCandidates 按选择优先级排序匹配集。
// 无任何技能过阈值时启用兜底：只取相似度前 FallbackTopN 的技能，
// 保证即使匹配整体失败面试也能开展。
func (p *Planner) rankCandidates(matches []types.MatchResult) []candidate {
	candidates := make([]candidate, 0, len(matches))
	anyMatched := false
	for i, m := range matches {
		if m.JDSkill.Name == "" {
			continue
		}
		if m.Matched {
			anyMatched = true
		}
		candidates = append(candidates, candidate{
			skill:      m.JDSkill.Name,
			matched:    m.Matched,
			similarity: m.Similarity,
			weight:     m.JDSkill.Weight,
			order:      i,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.matched != cb.matched {
			return ca.matched
		}
		if ca.similarity != cb.similarity {
			return ca.similarity > cb.similarity
		}
		if ca.weight != cb.weight {
			return ca.weight > cb.weight
		}
		return ca.order < cb.order
	})

	if !anyMatched {
		topN := p.cfg.FallbackTopN
		if topN <= 0 {
			topN = types.MaxPrimaryQuestions
		}
		bySim := make([]candidate, len(candidates))
		copy(bySim, candidates)
		sort.SliceStable(bySim, func(a, b int) bool {
			if bySim[a].similarity != bySim[b].similarity {
				return bySim[a].similarity > bySim[b].similarity
			}
			return bySim[a].order < bySim[b].order
		})
		if len(bySim) > topN {
			bySim = bySim[:topN]
		}
		return bySim
	}

	return candidates
}

// depthFor 按经验档位查难度层级，档位未配置时取最保守的1级
func (p *Planner) depthFor(bucket types.ExperienceBucket) int {
	if depth, ok := p.cfg.DepthTable[bucket]; ok && depth > 0 {
		return depth
	}
	return 1
}

func (p *Planner) primaryCountOnSkill(s *types.Session, skill string) int {
	n := 0
	for i := range s.Asked {
		if s.Asked[i].Kind == types.QuestionKindPrimary && s.Asked[i].SkillName == skill {
			n++
		}
	}
	return n
}

// BucketForYears 把经验年限换算成经验档位
func BucketForYears(years float64, cfg config.InterviewConfig) types.ExperienceBucket {
	senior := cfg.SeniorYears
	if senior <= 0 {
		senior = 6
	}
	mid := cfg.MidYears
	if mid <= 0 {
		mid = 2
	}
	switch {
	case years >= senior:
		return types.BucketSenior
	case years >= mid:
		return types.BucketMid
	default:
		return types.BucketJunior
	}
}
