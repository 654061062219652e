package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/evaluator"
	"github.com/JaySingh79/Agentic-Recruiter/internal/matcher"
	"github.com/JaySingh79/Agentic-Recruiter/internal/planner"
	"github.com/JaySingh79/Agentic-Recruiter/internal/question"
	"github.com/JaySingh79/Agentic-Recruiter/internal/session"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// LifecycleHooks 会话生命周期回调，由存储层实现：
// 发布事件、归档关闭的会话等。回调失败只记日志，不影响面试流程。
type LifecycleHooks interface {
	OnEvaluated(ctx context.Context, s *types.Session, agg *types.AggregateScore)
	OnClosed(ctx context.Context, s *types.Session, agg *types.AggregateScore)
}

// Orchestrator 面试编排器。把匹配、规划、出题、评估、存储
// 串成完整的面试流程。所有外部调用（嵌入、生成）都发生在
// 会话存储的原子应用点之外。
type Orchestrator struct {
	matcher   *matcher.Engine
	planner   *planner.Planner
	requester *question.Requester
	evaluator *evaluator.Evaluator
	store     session.Store
	hooks     LifecycleHooks // 可为nil
	cfg       config.InterviewConfig
	logger    zerolog.Logger
}

// NewOrchestrator 创建面试编排器
func NewOrchestrator(
	m *matcher.Engine,
	p *planner.Planner,
	r *question.Requester,
	e *evaluator.Evaluator,
	store session.Store,
	hooks LifecycleHooks,
	cfg config.InterviewConfig,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		matcher:   m,
		planner:   p,
		requester: r,
		evaluator: e,
		store:     store,
		hooks:     hooks,
		cfg:       cfg,
		logger:    logger.With().Str("component", "interview_orchestrator").Logger(),
	}
}

// StartInterview 创建一场新面试：换算经验档位、计算技能匹配、
// 建立会话并发出第一个主问题。
// 返回的会话快照与问题即是候选人看到的全部内容。
func (o *Orchestrator) StartInterview(ctx context.Context, input types.InterviewInput) (*types.Session, *types.Question, error) {
	if len(input.JDSkills) == 0 {
		return nil, nil, &session.InvalidOperationError{Op: "start_interview", Reason: "JD技能集为空"}
	}

	bucket := planner.BucketForYears(input.ExperienceYears, o.cfg)
	matches := o.matcher.Match(ctx, input.JDSkills, input.ResumeSkills, o.cfg.MatchThreshold)

	s := types.NewSession(uuid.NewString(), bucket, matches)
	if err := o.store.Create(ctx, s); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: 创建会话失败: %w", err)
	}

	updated, err := o.store.Apply(ctx, s.ID, session.VersionAny, session.SetState(types.StateQuestioning))
	if err != nil {
		return nil, nil, err
	}

	o.logger.Info().
		Str("session_id", s.ID).
		Str("bucket", string(bucket)).
		Int("matches", len(matches)).
		Msg("面试会话已创建")

	nextQ, updated, err := o.askNextPrimary(ctx, updated)
	if err != nil {
		return nil, nil, err
	}
	return updated, nextQ, nil
}

// SubmitAnswer 提交候选人对当前待答问题的回答。
// 返回下一个问题；面试结束时问题为nil，会话进入 Evaluated。
// 评分在内部完成并隐藏，候选人通道永远看不到。
func (o *Orchestrator) SubmitAnswer(ctx context.Context, sessionID string, questionID string, text string) (*types.Question, *types.Session, error) {
	s, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if s.IsTerminal() || s.State == types.StateEvaluated {
		return nil, nil, &session.InvalidOperationError{Op: "submit_answer", SessionID: sessionID, Reason: "会话已结束，不再接受回答"}
	}
	pending := s.LastQuestion()
	if pending == nil || pending.ID != questionID {
		return nil, nil, &session.InvalidOperationError{Op: "submit_answer", SessionID: sessionID, Reason: fmt.Sprintf("问题 %s 不是当前待答问题", questionID)}
	}

	answer := types.Answer{QuestionID: questionID, Text: text, Timestamp: timeNow()}
	// 基于读取到的版本做CAS：同一回答被并发提交时只有一个能成功
	updated, err := o.store.Apply(ctx, sessionID, s.Version, session.RecordAnswer(answer))
	if err != nil {
		return nil, nil, err
	}

	// 评估在存储原子点之外执行。评估彻底失败不中断面试：
	// 该题不计分、不追问，照常推进。
	result, evalErr := o.evaluator.Evaluate(ctx, *pending, answer)
	if evalErr != nil {
		o.logger.Error().Err(evalErr).
			Str("session_id", sessionID).
			Str("question_id", questionID).
			Msg("评估失败，该题不计分并跳过追问")
	} else {
		updated, err = o.store.Apply(ctx, sessionID, session.VersionAny, session.RecordScore(result.Score, false))
		if err != nil {
			return nil, nil, err
		}
	}

	// 追问分支
	if evalErr == nil && result.NeedFollowUp {
		if d, ok := o.planner.FollowUpDirective(updated, pending); ok {
			followUp, genErr := o.requester.Request(ctx, d, updated.Asked)
			if genErr == nil {
				mutations := []session.Mutation{session.RecordQuestion(*followUp)}
				if updated.State != types.StateFollowUp {
					mutations = append([]session.Mutation{session.SetState(types.StateFollowUp)}, mutations...)
				}
				updated, err = o.store.Apply(ctx, sessionID, session.VersionAny, mutations...)
				if err != nil {
					return nil, nil, err
				}
				return followUp, updated, nil
			}
			// 两次生成尝试都失败：放弃本次追问，照常推进游标
			o.logger.Warn().Err(genErr).
				Str("session_id", sessionID).
				Str("skill", d.SkillName).
				Msg("追问生成失败，推进到下一个主问题")
		}
	}

	// 推进分支：游标+1，然后要么出下一个主问题，要么进入评估
	updated, err = o.store.Apply(ctx, sessionID, session.VersionAny, session.AdvanceCursor())
	if err != nil {
		return nil, nil, err
	}

	nextQ, updated, err := o.askNextPrimary(ctx, updated)
	if err != nil {
		return nil, nil, err
	}
	return nextQ, updated, nil
}

// askNextPrimary 按规划器指令发出下一个主问题。
// 生成连续失败的主题在本轮内被排除，重新规划换一个技能；
// 可用主题耗尽或主问题配额用完则定稿评估。
// 返回nil问题表示面试已进入 Evaluated。
func (o *Orchestrator) askNextPrimary(ctx context.Context, s *types.Session) (*types.Question, *types.Session, error) {
	current := s
	var failedSkills []string
	for {
		d, err := o.planner.NextQuestion(current, failedSkills...)
		if err != nil {
			return nil, nil, err
		}
		if d.Kind == planner.DirectiveEvaluate {
			finalized, err := o.finalize(ctx, current)
			return nil, finalized, err
		}

		q, genErr := o.requester.Request(ctx, d, current.Asked)
		if genErr == nil {
			mutations := []session.Mutation{session.RecordQuestion(*q)}
			if current.State == types.StateFollowUp {
				mutations = append([]session.Mutation{session.SetState(types.StateQuestioning)}, mutations...)
			}
			updated, err := o.store.Apply(ctx, current.ID, session.VersionAny, mutations...)
			if err != nil {
				return nil, nil, err
			}
			return q, updated, nil
		}

		// 该主题两次生成都失败：排除后重新规划，换一个技能出题
		failedSkills = append(failedSkills, d.SkillName)
		o.logger.Warn().Err(genErr).
			Str("session_id", current.ID).
			Str("skill", d.SkillName).
			Msg("主问题生成失败，排除该主题后重新规划")
	}
}

// finalize 面试定稿：进入 Evaluated 并触发生命周期回调
func (o *Orchestrator) finalize(ctx context.Context, s *types.Session) (*types.Session, error) {
	updated, err := o.store.Apply(ctx, s.ID, session.VersionAny, session.SetState(types.StateEvaluated))
	if err != nil {
		return nil, err
	}

	agg := o.evaluator.Aggregate(updated)
	o.logger.Info().
		Str("session_id", s.ID).
		Float64("overall", agg.Overall).
		Int("scored_questions", agg.QuestionCount).
		Msg("面试已完成评估")

	if o.hooks != nil {
		o.hooks.OnEvaluated(ctx, updated, agg)
	}
	return updated, nil
}

// Abandon 候选人中途放弃：标记不完整并立即关闭会话。
// 已产生的评分保留，聚合时按实际作答的题目计算。
func (o *Orchestrator) Abandon(ctx context.Context, sessionID string) (*types.Session, error) {
	updated, err := o.store.Apply(ctx, sessionID, session.VersionAny,
		session.MarkIncomplete(),
		session.SetState(types.StateClosed),
	)
	if err != nil {
		return nil, err
	}

	o.logger.Info().Str("session_id", sessionID).Msg("候选人放弃面试，会话已关闭")

	if o.hooks != nil {
		o.hooks.OnClosed(ctx, updated, o.evaluator.Aggregate(updated))
	}
	return updated, nil
}

// CloseSession 把已评估的会话归档关闭。关闭后会话只读。
func (o *Orchestrator) CloseSession(ctx context.Context, sessionID string) (*types.Session, error) {
	updated, err := o.store.Apply(ctx, sessionID, session.VersionAny, session.SetState(types.StateClosed))
	if err != nil {
		return nil, err
	}

	if o.hooks != nil {
		o.hooks.OnClosed(ctx, updated, o.evaluator.Aggregate(updated))
	}
	return updated, nil
}

// Export 会话的考官侧导出视图。
// 只有 Evaluated/Closed 状态才携带评分；活跃会话的导出不含任何分数。
func (o *Orchestrator) Export(ctx context.Context, sessionID string) (*types.SessionExport, error) {
	s, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	export := &types.SessionExport{
		SessionID:  s.ID,
		State:      s.State,
		Cursor:     s.Cursor,
		Matches:    s.Matches,
		Asked:      s.Asked,
		Incomplete: s.Incomplete,
	}
	if s.State == types.StateEvaluated || s.State == types.StateClosed {
		export.Aggregate = o.evaluator.Aggregate(s)
	}
	return export, nil
}

// GetSession 会话快照（候选人侧使用，调用方负责过滤隐藏字段）
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return o.store.Get(ctx, sessionID)
}

var timeNow = time.Now

// IsNotFound 会话不存在错误判定
func IsNotFound(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound)
}
