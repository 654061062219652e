package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaySingh79/Agentic-Recruiter/internal/api/handler"
	"github.com/JaySingh79/Agentic-Recruiter/internal/api/router"
	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/evaluator"
	"github.com/JaySingh79/Agentic-Recruiter/internal/matcher"
	"github.com/JaySingh79/Agentic-Recruiter/internal/orchestrator"
	"github.com/JaySingh79/Agentic-Recruiter/internal/planner"
	"github.com/JaySingh79/Agentic-Recruiter/internal/question"
	"github.com/JaySingh79/Agentic-Recruiter/internal/session"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

const testExportKey = "test-export-key"

// stubEmbedder 返回固定向量，让词面相同的技能必然匹配
type stubEmbedder struct{}

func (s *stubEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func (s *stubEmbedder) GetDimensions() int { return 3 }

// stubChatModel 每次生成返回一个编号递增的问题文本
type stubChatModel struct {
	calls int
}

func (m *stubChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.calls++
	return schema.AssistantMessage(fmt.Sprintf("请介绍一下你的相关经验（问题 %d）", m.calls), nil), nil
}

func (m *stubChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("不支持流式输出")
}

func (m *stubChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// fixedStrategy 固定正确度的评估策略
type fixedStrategy struct {
	correctness float64
}

func (f *fixedStrategy) Name() string { return "fixed" }

func (f *fixedStrategy) Assess(ctx context.Context, q types.Question, a types.Answer) (float64, string, error) {
	return f.correctness, "测试评语", nil
}

func newTestEngine(t *testing.T, correctness float64) *server.Hertz {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.ExportAPIKey = testExportKey
	logger := zerolog.Nop()

	store := session.NewMemoryStore(logger)
	m := matcher.NewEngine(&stubEmbedder{}, logger)
	p := planner.NewPlanner(cfg.Interview, logger)
	r := question.NewRequester(&stubChatModel{}, cfg.Generation, logger)
	e := evaluator.NewEvaluator(&fixedStrategy{correctness: correctness}, nil, cfg.Evaluator, logger)
	o := orchestrator.NewOrchestrator(m, p, r, e, store, nil, cfg.Interview, logger)

	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	router.RegisterRoutes(h, handler.NewInterviewHandler(cfg, o, logger), cfg.Server.ExportAPIKey)
	return h
}

func performJSON(h *server.Hertz, method, path string, payload interface{}, headers ...ut.Header) *ut.ResponseRecorder {
	var body *ut.Body
	allHeaders := headers
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = &ut.Body{Body: bytes.NewBuffer(data), Len: len(data)}
		allHeaders = append(allHeaders, ut.Header{Key: "Content-Type", Value: "application/json"})
	}
	return ut.PerformRequest(h.Engine, method, path, body, allHeaders...)
}

func createInterview(t *testing.T, h *server.Hertz) map[string]interface{} {
	t.Helper()

	w := performJSON(h, "POST", "/api/v1/interview", map[string]interface{}{
		"jd_skills": []map[string]interface{}{
			{"name": "Go", "source": "jd", "weight": 1.0},
			{"name": "Redis", "source": "jd", "weight": 0.8},
		},
		"resume_skills": []map[string]interface{}{
			{"name": "Go", "source": "resume", "weight": 1.0},
		},
		"experience_years": 4,
	})
	resp := w.Result()
	require.Equal(t, 201, resp.StatusCode())

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body(), &view))
	return view
}

func TestCreateInterview(t *testing.T) {
	h := newTestEngine(t, 0.9)

	view := createInterview(t, h)
	assert.NotEmpty(t, view["session_id"])
	assert.Equal(t, string(types.StateQuestioning), view["state"])
	assert.Equal(t, false, view["done"])

	q, ok := view["question"].(map[string]interface{})
	require.True(t, ok, "响应中应包含第一个问题")
	assert.NotEmpty(t, q["id"])
	assert.NotEmpty(t, q["text"])
	assert.Equal(t, string(types.QuestionKindPrimary), q["kind"])
}

func TestCreateInterviewBadBody(t *testing.T) {
	h := newTestEngine(t, 0.9)

	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/interview",
		&ut.Body{Body: bytes.NewBufferString("{不是JSON"), Len: 10},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestCreateInterviewEmptyJD(t *testing.T) {
	h := newTestEngine(t, 0.9)

	w := performJSON(h, "POST", "/api/v1/interview", map[string]interface{}{
		"jd_skills":        []map[string]interface{}{},
		"resume_skills":    []map[string]interface{}{},
		"experience_years": 2,
	})
	assert.Equal(t, 409, w.Result().StatusCode())
}

func TestSubmitAnswerFlow(t *testing.T) {
	h := newTestEngine(t, 0.9) // 高分，不触发追问

	view := createInterview(t, h)
	sessionID := view["session_id"].(string)
	q := view["question"].(map[string]interface{})

	w := performJSON(h, "POST", "/api/v1/interview/"+sessionID+"/answer", map[string]interface{}{
		"question_id": q["id"],
		"answer":      "我在生产环境使用Go构建过高并发服务。",
	})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var next map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body(), &next))
	nextQ, ok := next["question"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEqual(t, q["id"], nextQ["id"])

	// 候选人通道绝不能泄露评分
	body := strings.ToLower(string(resp.Body()))
	assert.NotContains(t, body, "correctness")
	assert.NotContains(t, body, "aggregate")
	assert.NotContains(t, body, "notes")
}

func TestSubmitAnswerWrongQuestionID(t *testing.T) {
	h := newTestEngine(t, 0.9)

	view := createInterview(t, h)
	sessionID := view["session_id"].(string)

	w := performJSON(h, "POST", "/api/v1/interview/"+sessionID+"/answer", map[string]interface{}{
		"question_id": "not-the-pending-question",
		"answer":      "回答",
	})
	assert.Equal(t, 409, w.Result().StatusCode())
}

func TestSubmitAnswerMissingQuestionID(t *testing.T) {
	h := newTestEngine(t, 0.9)

	view := createInterview(t, h)
	sessionID := view["session_id"].(string)

	w := performJSON(h, "POST", "/api/v1/interview/"+sessionID+"/answer", map[string]interface{}{
		"answer": "回答",
	})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestSessionNotFound(t *testing.T) {
	h := newTestEngine(t, 0.9)

	w := performJSON(h, "POST", "/api/v1/interview/no-such-session/answer", map[string]interface{}{
		"question_id": "q1",
		"answer":      "回答",
	})
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestAbandonInterview(t *testing.T) {
	h := newTestEngine(t, 0.9)

	view := createInterview(t, h)
	sessionID := view["session_id"].(string)

	w := performJSON(h, "POST", "/api/v1/interview/"+sessionID+"/abandon", nil)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var closed map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body(), &closed))
	assert.Equal(t, string(types.StateClosed), closed["state"])
	assert.Equal(t, true, closed["done"])

	// 已关闭的会话不再接受放弃操作
	w = performJSON(h, "POST", "/api/v1/interview/"+sessionID+"/abandon", nil)
	assert.Equal(t, 409, w.Result().StatusCode())
}

func TestExportRequiresAPIKey(t *testing.T) {
	h := newTestEngine(t, 0.9)

	view := createInterview(t, h)
	sessionID := view["session_id"].(string)

	// 无API Key
	w := performJSON(h, "GET", "/api/v1/interview/"+sessionID+"/export", nil)
	assert.Equal(t, 401, w.Result().StatusCode())

	// 错误的API Key
	w = performJSON(h, "GET", "/api/v1/interview/"+sessionID+"/export", nil,
		ut.Header{Key: "Authorization", Value: "Bearer wrong-key"})
	assert.Equal(t, 401, w.Result().StatusCode())

	// 正确的API Key
	w = performJSON(h, "GET", "/api/v1/interview/"+sessionID+"/export", nil,
		ut.Header{Key: "Authorization", Value: "Bearer " + testExportKey})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var export types.SessionExport
	require.NoError(t, json.Unmarshal(resp.Body(), &export))
	assert.Equal(t, sessionID, export.SessionID)
	// 进行中的会话导出不含总分
	assert.Nil(t, export.Aggregate)
}

func TestExportAfterFullInterview(t *testing.T) {
	h := newTestEngine(t, 0.9)

	view := createInterview(t, h)
	sessionID := view["session_id"].(string)
	q := view["question"].(map[string]interface{})

	// 逐题回答直到会话进入EVALUATED
	for i := 0; i < types.MaxPrimaryQuestions; i++ {
		w := performJSON(h, "POST", "/api/v1/interview/"+sessionID+"/answer", map[string]interface{}{
			"question_id": q["id"],
			"answer":      "这是一段足够长的回答，覆盖了问题涉及的核心概念。",
		})
		resp := w.Result()
		require.Equal(t, 200, resp.StatusCode())

		var next map[string]interface{}
		require.NoError(t, json.Unmarshal(resp.Body(), &next))
		if done, _ := next["done"].(bool); done {
			break
		}
		var ok bool
		q, ok = next["question"].(map[string]interface{})
		require.True(t, ok, "未结束的会话必须返回下一个问题")
	}

	w := performJSON(h, "GET", "/api/v1/interview/"+sessionID+"/export", nil,
		ut.Header{Key: "Authorization", Value: "Bearer " + testExportKey})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var export types.SessionExport
	require.NoError(t, json.Unmarshal(resp.Body(), &export))
	assert.Equal(t, types.StateEvaluated, export.State)
	require.NotNil(t, export.Aggregate)
	assert.InDelta(t, 0.9, export.Aggregate.Overall, 1e-9)
}

func TestGetInterviewHidesScores(t *testing.T) {
	h := newTestEngine(t, 0.55) // 落入追问区间

	view := createInterview(t, h)
	sessionID := view["session_id"].(string)
	q := view["question"].(map[string]interface{})

	w := performJSON(h, "POST", "/api/v1/interview/"+sessionID+"/answer", map[string]interface{}{
		"question_id": q["id"],
		"answer":      "部分正确的回答。",
	})
	require.Equal(t, 200, w.Result().StatusCode())

	w = performJSON(h, "GET", "/api/v1/interview/"+sessionID, nil)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.Equal(t, string(types.StateFollowUp), got["state"])

	body := strings.ToLower(string(resp.Body()))
	assert.NotContains(t, body, "correctness")
	assert.NotContains(t, body, "score")
}
