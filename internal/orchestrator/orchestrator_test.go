package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/evaluator"
	"github.com/JaySingh79/Agentic-Recruiter/internal/matcher"
	"github.com/JaySingh79/Agentic-Recruiter/internal/planner"
	"github.com/JaySingh79/Agentic-Recruiter/internal/question"
	"github.com/JaySingh79/Agentic-Recruiter/internal/session"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// fakeEmbedder 词面相同的文本给相同向量
type fakeEmbedder struct{}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) GetDimensions() int { return 3 }

// genModel 可编程的生成模型：默认每次成功返回唯一文本，
// failNext 控制接下来连续失败的次数，
// failOnSubstr 让提示词中含该子串的请求永远失败
type genModel struct {
	calls        int
	failNext     int
	failOnSubstr string
}

func (m *genModel) Generate(_ context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls++
	if m.failNext > 0 {
		m.failNext--
		return nil, fmt.Errorf("生成服务不可用")
	}
	if m.failOnSubstr != "" {
		for _, msg := range messages {
			if strings.Contains(msg.Content, m.failOnSubstr) {
				return nil, fmt.Errorf("生成服务不可用")
			}
		}
	}
	return schema.AssistantMessage(fmt.Sprintf("问题 #%d", m.calls), nil), nil
}

func (m *genModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("未实现")
}

func (m *genModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) { return m, nil }

// scriptedScores 按提交顺序返回预设正确度的评估策略
type scriptedScores struct {
	scores []float64
	idx    int
}

func (s *scriptedScores) Name() string { return "scripted" }

func (s *scriptedScores) Assess(_ context.Context, _ types.Question, _ types.Answer) (float64, string, error) {
	score := 0.9
	if s.idx < len(s.scores) {
		score = s.scores[s.idx]
	}
	s.idx++
	return score, "scripted", nil
}

// recordingHooks 记录生命周期回调
type recordingHooks struct {
	evaluated []*types.AggregateScore
	closed    []*types.AggregateScore
}

func (h *recordingHooks) OnEvaluated(_ context.Context, _ *types.Session, agg *types.AggregateScore) {
	h.evaluated = append(h.evaluated, agg)
}

func (h *recordingHooks) OnClosed(_ context.Context, _ *types.Session, agg *types.AggregateScore) {
	h.closed = append(h.closed, agg)
}

func interviewConfig() config.InterviewConfig {
	return config.InterviewConfig{
		MatchThreshold: 0.75,
		MaxFollowUps:   2,
		FallbackTopN:   5,
		DepthTable: map[types.ExperienceBucket]int{
			types.BucketJunior: 1,
			types.BucketMid:    2,
			types.BucketSenior: 3,
		},
		SeniorYears: 6,
		MidYears:    2,
	}
}

func newTestOrchestrator(gm *genModel, scores *scriptedScores, hooks LifecycleHooks) *Orchestrator {
	nop := zerolog.Nop()
	cfg := interviewConfig()
	evalCfg := config.EvaluatorConfig{FollowUpBandLow: 0.40, FollowUpBandHigh: 0.75, FollowUpWeight: 0.5}

	return NewOrchestrator(
		matcher.NewEngine(&fakeEmbedder{}, nop),
		planner.NewPlanner(cfg, nop),
		question.NewRequester(gm, config.GenerationConfig{Timeout: "5s"}, nop),
		evaluator.NewEvaluator(scores, nil, evalCfg, nop),
		session.NewMemoryStore(nop),
		hooks,
		cfg,
		nop,
	)
}

func fiveSkillInput() types.InterviewInput {
	jd := []types.Skill{
		{Name: "Go", Source: types.SkillSourceJD, Weight: 1.0},
		{Name: "Redis", Source: types.SkillSourceJD, Weight: 0.9},
		{Name: "MySQL", Source: types.SkillSourceJD, Weight: 0.8},
		{Name: "Kafka", Source: types.SkillSourceJD, Weight: 0.7},
		{Name: "Docker", Source: types.SkillSourceJD, Weight: 0.6},
	}
	resume := []types.Skill{
		{Name: "go", Source: types.SkillSourceResume, Weight: 1.0},
		{Name: "redis", Source: types.SkillSourceResume, Weight: 1.0},
		{Name: "mysql", Source: types.SkillSourceResume, Weight: 1.0},
		{Name: "kafka", Source: types.SkillSourceResume, Weight: 1.0},
		{Name: "docker", Source: types.SkillSourceResume, Weight: 1.0},
	}
	return types.InterviewInput{JDSkills: jd, ResumeSkills: resume, ExperienceYears: 4}
}

func TestStartInterview(t *testing.T) {
	o := newTestOrchestrator(&genModel{}, &scriptedScores{}, nil)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, types.StateQuestioning, s.State)
	assert.Equal(t, types.BucketMid, s.Bucket, "4年经验落在mid档")
	assert.Equal(t, types.QuestionKindPrimary, q.Kind)
	assert.Equal(t, 2, q.DepthLevel)
	assert.Len(t, s.Matches, 5)
	assert.Equal(t, 0, s.Cursor)
}

func TestStartInterview_EmptyJDRejected(t *testing.T) {
	o := newTestOrchestrator(&genModel{}, &scriptedScores{}, nil)

	_, _, err := o.StartInterview(context.Background(), types.InterviewInput{})
	require.Error(t, err)
	assert.True(t, session.IsInvalidOperation(err))
}

func TestSubmitAnswer_MidBandTriggersFollowUp(t *testing.T) {
	// 0.55 落入 [0.40, 0.75]，必须追问
	o := newTestOrchestrator(&genModel{}, &scriptedScores{scores: []float64{0.55}}, nil)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)

	next, updated, err := o.SubmitAnswer(context.Background(), s.ID, q.ID, "部分正确的回答")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, types.QuestionKindFollowUp, next.Kind)
	assert.Equal(t, q.ID, next.ParentID)
	assert.Equal(t, types.StateFollowUp, updated.State)
	assert.Equal(t, 0, updated.Cursor, "追问不推进游标")
}

func TestSubmitAnswer_HighScoreNoFollowUp(t *testing.T) {
	// 0.9 在区间之上，不追问，推进到下一个主问题
	o := newTestOrchestrator(&genModel{}, &scriptedScores{scores: []float64{0.9}}, nil)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)

	next, updated, err := o.SubmitAnswer(context.Background(), s.ID, q.ID, "非常完整的回答")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, types.QuestionKindPrimary, next.Kind)
	assert.Equal(t, 1, updated.Cursor)
	assert.Equal(t, types.StateQuestioning, updated.State)
	assert.NotEqual(t, q.SkillName, next.SkillName, "下一个主问题换主题")
}

func TestSubmitAnswer_FollowUpDoubleGenerationFailure(t *testing.T) {
	// 追问的两次生成尝试都失败：不记录追问，游标照常推进
	gm := &genModel{}
	o := newTestOrchestrator(gm, &scriptedScores{scores: []float64{0.55}}, nil)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)

	gm.failNext = 2
	next, updated, err := o.SubmitAnswer(context.Background(), s.ID, q.ID, "部分正确的回答")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, types.QuestionKindPrimary, next.Kind, "追问失败后继续主问题")
	assert.Equal(t, 1, updated.Cursor, "游标照常推进")
	for _, asked := range updated.Asked {
		assert.NotEqual(t, types.QuestionKindFollowUp, asked.Kind, "失败的追问不得留下记录")
	}
}

func TestPersistentlyFailingSkillSubstituted(t *testing.T) {
	// 最高优先级技能的出题持续失败：规划器换其他技能，
	// 面试照常进行，失败主题绝不反复吞噬配额
	gm := &genModel{failOnSubstr: "「Go」"}
	o := newTestOrchestrator(gm, &scriptedScores{}, nil)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)
	require.NotNil(t, q, "其余技能健康，第一题必须发出")
	assert.NotEqual(t, "Go", q.SkillName, "出题失败的主题换成其他技能")

	var last *types.Session
	for i := 0; q != nil && i < types.MaxPrimaryQuestions; i++ {
		q, last, err = o.SubmitAnswer(context.Background(), s.ID, q.ID, "高分回答")
		require.NoError(t, err)
	}

	require.NotNil(t, last)
	assert.Equal(t, types.StateEvaluated, last.State)
	assert.Len(t, last.Asked, types.MaxPrimaryQuestions, "健康技能足以填满主问题配额")
	for _, asked := range last.Asked {
		assert.NotEqual(t, "Go", asked.SkillName, "失败主题不得留下任何问题")
	}
}

func TestAllSkillsFailingClosesEarly(t *testing.T) {
	// 所有主题的出题都失败：没有可替代技能，直接定稿评估
	gm := &genModel{failOnSubstr: "技能"}
	hooks := &recordingHooks{}
	o := newTestOrchestrator(gm, &scriptedScores{}, hooks)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)
	assert.Nil(t, q, "无题可出时不返回问题")
	assert.Equal(t, types.StateEvaluated, s.State)
	require.Len(t, hooks.evaluated, 1)
	assert.Equal(t, 0, hooks.evaluated[0].QuestionCount)
}

func TestFullInterview_FiveQuestionsThenEvaluated(t *testing.T) {
	hooks := &recordingHooks{}
	o := newTestOrchestrator(&genModel{}, &scriptedScores{scores: []float64{0.9, 0.8, 0.9, 1.0, 0.8}}, hooks)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)

	var last *types.Session
	for i := 0; i < types.MaxPrimaryQuestions; i++ {
		require.NotNil(t, q, "第%d题不应为nil", i+1)
		q, last, err = o.SubmitAnswer(context.Background(), s.ID, q.ID, "高分回答")
		require.NoError(t, err)
	}

	assert.Nil(t, q, "第5题答完后不再出题")
	assert.Equal(t, types.StateEvaluated, last.State)
	assert.Equal(t, types.MaxPrimaryQuestions, last.Cursor)

	require.Len(t, hooks.evaluated, 1)
	agg := hooks.evaluated[0]
	assert.Equal(t, 5, agg.QuestionCount)
	// 全部深度相同，聚合即算术平均
	assert.InDelta(t, (0.9+0.8+0.9+1.0+0.8)/5, agg.Overall, 0.0001)

	// 已评估的会话不再接受回答
	_, _, err = o.SubmitAnswer(context.Background(), s.ID, "whatever", "迟到的回答")
	require.Error(t, err)
	assert.True(t, session.IsInvalidOperation(err))
}

func TestSubmitAnswer_WrongQuestionID(t *testing.T) {
	o := newTestOrchestrator(&genModel{}, &scriptedScores{}, nil)
	s, _, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)

	_, _, err = o.SubmitAnswer(context.Background(), s.ID, "not-the-pending-question", "回答")
	require.Error(t, err)
	assert.True(t, session.IsInvalidOperation(err))
}

func TestAbandon(t *testing.T) {
	hooks := &recordingHooks{}
	o := newTestOrchestrator(&genModel{}, &scriptedScores{scores: []float64{0.9}}, hooks)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)
	_, _, err = o.SubmitAnswer(context.Background(), s.ID, q.ID, "第一题回答")
	require.NoError(t, err)

	closed, err := o.Abandon(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateClosed, closed.State)
	assert.True(t, closed.Incomplete)
	require.Len(t, hooks.closed, 1)
	assert.Equal(t, 1, hooks.closed[0].QuestionCount, "已作答的题目保留在聚合里")

	// 关闭后一切写入被拒绝
	_, err = o.Abandon(context.Background(), s.ID)
	assert.Error(t, err)
}

func TestExport_HidesScoresUntilTerminal(t *testing.T) {
	o := newTestOrchestrator(&genModel{}, &scriptedScores{scores: []float64{0.9, 0.9, 0.9, 0.9, 0.9}}, nil)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)

	export, err := o.Export(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Nil(t, export.Aggregate, "活跃会话的导出不含评分")

	for i := 0; i < types.MaxPrimaryQuestions; i++ {
		q, _, err = o.SubmitAnswer(context.Background(), s.ID, q.ID, "回答")
		require.NoError(t, err)
	}

	export, err = o.Export(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, export.Aggregate, "评估完成后导出携带完整评分")
	assert.Equal(t, types.StateEvaluated, export.State)
	assert.InDelta(t, 0.9, export.Aggregate.Overall, 0.0001)
}

func TestCloseSession(t *testing.T) {
	hooks := &recordingHooks{}
	o := newTestOrchestrator(&genModel{}, &scriptedScores{scores: []float64{0.9, 0.9, 0.9, 0.9, 0.9}}, hooks)

	s, q, err := o.StartInterview(context.Background(), fiveSkillInput())
	require.NoError(t, err)
	for i := 0; i < types.MaxPrimaryQuestions; i++ {
		q, _, err = o.SubmitAnswer(context.Background(), s.ID, q.ID, "回答")
		require.NoError(t, err)
	}

	closed, err := o.CloseSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateClosed, closed.State)
	assert.False(t, closed.Incomplete)
	require.Len(t, hooks.closed, 1)
}
