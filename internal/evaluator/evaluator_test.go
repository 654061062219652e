package evaluator

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// stubStrategy 返回固定分数的假策略
type stubStrategy struct {
	name        string
	correctness float64
	notes       string
	errs        []error
	calls       int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Assess(_ context.Context, _ types.Question, _ types.Answer) (float64, string, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return 0, "", s.errs[idx]
	}
	return s.correctness, s.notes, nil
}

func evalConfig() config.EvaluatorConfig {
	return config.EvaluatorConfig{
		Strategy:         "judge",
		FollowUpBandLow:  0.40,
		FollowUpBandHigh: 0.75,
		FollowUpWeight:   0.5,
	}
}

func question(id string, kind types.QuestionKind, depth int) types.Question {
	return types.Question{ID: id, SkillName: "Go", Kind: kind, DepthLevel: depth, Number: 1}
}

func TestEvaluate_FollowUpBand(t *testing.T) {
	cases := []struct {
		correctness float64
		want        bool
	}{
		{0.30, false},
		{0.40, true}, // 下边界含
		{0.55, true},
		{0.75, true}, // 上边界含
		{0.76, false},
		{0.90, false},
	}
	for _, tc := range cases {
		e := NewEvaluator(&stubStrategy{name: "stub", correctness: tc.correctness}, nil, evalConfig(), zerolog.Nop())
		res, err := e.Evaluate(context.Background(), question("q-1", types.QuestionKindPrimary, 2), types.Answer{QuestionID: "q-1", Text: "回答"})
		require.NoError(t, err)
		assert.Equalf(t, tc.want, res.NeedFollowUp, "correctness=%.2f", tc.correctness)
		assert.Equal(t, tc.correctness, res.Score.Correctness)
	}
}

func TestEvaluate_RetryThenFallback(t *testing.T) {
	primary := &stubStrategy{name: "judge", errs: []error{fmt.Errorf("超时"), fmt.Errorf("又超时")}}
	fallback := &stubStrategy{name: "heuristic", correctness: 0.5, notes: "降级"}
	e := NewEvaluator(primary, fallback, evalConfig(), zerolog.Nop())

	res, err := e.Evaluate(context.Background(), question("q-1", types.QuestionKindPrimary, 2), types.Answer{QuestionID: "q-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls, "主策略失败后重试一次")
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 0.5, res.Score.Correctness)
	assert.Equal(t, "降级", res.Score.Notes)
}

func TestEvaluate_AllStrategiesFail(t *testing.T) {
	primary := &stubStrategy{name: "judge", errs: []error{fmt.Errorf("e1"), fmt.Errorf("e2")}}
	e := NewEvaluator(primary, nil, evalConfig(), zerolog.Nop())

	_, err := e.Evaluate(context.Background(), question("q-1", types.QuestionKindPrimary, 2), types.Answer{QuestionID: "q-1"})
	assert.Error(t, err)
}

func TestAggregate_DepthWeightedWithFollowUpDiscount(t *testing.T) {
	e := NewEvaluator(&stubStrategy{name: "stub"}, nil, evalConfig(), zerolog.Nop())

	s := types.NewSession("s-1", types.BucketMid, nil)
	s.State = types.StateEvaluated
	s.Asked = []types.Question{
		question("q-1", types.QuestionKindPrimary, 2),
		question("f-1", types.QuestionKindFollowUp, 2),
		question("q-2", types.QuestionKindPrimary, 3),
	}
	s.Asked[1].ParentID = "q-1"
	s.Scores = map[string]types.Score{
		"q-1": {QuestionID: "q-1", Correctness: 0.8},
		"f-1": {QuestionID: "f-1", Correctness: 0.6},
		"q-2": {QuestionID: "q-2", Correctness: 0.4},
	}
	s.Answers = map[string]types.Answer{
		"q-1": {QuestionID: "q-1", Text: "主答"},
	}

	agg := e.Aggregate(s)

	// 权重: q-1=2, f-1=2*0.5=1, q-2=3
	// overall = (0.8*2 + 0.6*1 + 0.4*3) / (2+1+3) = 3.4/6
	assert.InDelta(t, 3.4/6.0, agg.Overall, 0.0001)
	assert.Equal(t, 3, agg.QuestionCount)
	require.Len(t, agg.PerQuestion, 3)
	assert.Equal(t, 1.0, agg.PerQuestion[1].Weight, "追问权重折减0.5x")
	assert.NotNil(t, agg.PerQuestion[0].Answer)
	assert.Nil(t, agg.PerQuestion[1].Answer)
}

func TestAggregate_UnscoredQuestionsExcluded(t *testing.T) {
	e := NewEvaluator(&stubStrategy{name: "stub"}, nil, evalConfig(), zerolog.Nop())

	s := types.NewSession("s-1", types.BucketJunior, nil)
	s.Asked = []types.Question{
		question("q-1", types.QuestionKindPrimary, 1),
		question("q-2", types.QuestionKindPrimary, 1),
	}
	s.Scores = map[string]types.Score{
		"q-1": {QuestionID: "q-1", Correctness: 1.0},
	}

	agg := e.Aggregate(s)
	assert.Equal(t, 1, agg.QuestionCount, "未评分的问题不参与聚合")
	assert.InDelta(t, 1.0, agg.Overall, 0.0001)
}

func TestAggregate_NoScores(t *testing.T) {
	e := NewEvaluator(&stubStrategy{name: "stub"}, nil, evalConfig(), zerolog.Nop())
	s := types.NewSession("s-1", types.BucketJunior, nil)

	agg := e.Aggregate(s)
	assert.Equal(t, 0.0, agg.Overall)
	assert.Equal(t, 0, agg.QuestionCount)
}

func TestParseJudgeResponse(t *testing.T) {
	verdict, err := parseJudgeResponse(`评估结果如下：
{"correctness": 0.72, "notes": "覆盖了GMP的基本结构，但没有提到work stealing"}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.72, verdict.Correctness, 0.0001)
	assert.Contains(t, verdict.Notes, "work stealing")
}

func TestParseJudgeResponse_UnescapedQuotes(t *testing.T) {
	// notes内部带未转义引号，经清洗后仍可解析
	verdict, err := parseJudgeResponse(`{"correctness": 0.5, "notes": "候选人说"大概是这样"，缺乏细节"}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, verdict.Correctness, 0.0001)
}

func TestParseJudgeResponse_Invalid(t *testing.T) {
	_, err := parseJudgeResponse("完全不是JSON")
	assert.Error(t, err)

	_, err = parseJudgeResponse(`{"correctness": 1.7, "notes": "超范围"}`)
	assert.Error(t, err)
}

func TestHeuristicStrategy_ShortAnswer(t *testing.T) {
	h := NewHeuristicStrategy(nil, zerolog.Nop())
	correctness, _, err := h.Assess(context.Background(), question("q-1", types.QuestionKindPrimary, 1), types.Answer{Text: "不知道"})
	require.NoError(t, err)
	assert.Less(t, correctness, 0.2, "过短回答给低分")
}

func TestHeuristicStrategy_LexicalFallback(t *testing.T) {
	h := NewHeuristicStrategy(nil, zerolog.Nop())
	q := types.Question{ID: "q-1", Text: "explain goroutine scheduling and channel semantics", DepthLevel: 1}
	a := types.Answer{Text: "goroutine scheduling is cooperative, and channel semantics provide synchronization between goroutines in the runtime"}

	correctness, notes, err := h.Assess(context.Background(), q, a)
	require.NoError(t, err)
	assert.Greater(t, correctness, 0.5)
	assert.Contains(t, notes, "词面")
}
