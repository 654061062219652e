package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/orchestrator"
	"github.com/JaySingh79/Agentic-Recruiter/internal/session"
	"github.com/JaySingh79/Agentic-Recruiter/internal/tracing"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// InterviewHandler 面试接口处理器。
// 候选人通道的响应永远不携带评分或内部错误细节。
type InterviewHandler struct {
	cfg          *config.Config
	orchestrator *orchestrator.Orchestrator
	logger       zerolog.Logger
}

// NewInterviewHandler 创建面试处理器
func NewInterviewHandler(cfg *config.Config, o *orchestrator.Orchestrator, logger zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		cfg:          cfg,
		orchestrator: o,
		logger:       logger.With().Str("component", "interview_handler").Logger(),
	}
}

// CreateInterviewRequest 创建面试请求体
type CreateInterviewRequest struct {
	JDSkills        []types.Skill `json:"jd_skills"`
	ResumeSkills    []types.Skill `json:"resume_skills"`
	ExperienceYears float64       `json:"experience_years"`
}

// SubmitAnswerRequest 提交回答请求体
type SubmitAnswerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// questionView 候选人看到的问题视图
type questionView struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Kind   string `json:"kind"`
	Text   string `json:"text"`
}

// interviewView 候选人看到的会话视图：状态与当前问题，不含任何评分
type interviewView struct {
	SessionID string        `json:"session_id"`
	State     string        `json:"state"`
	Question  *questionView `json:"question,omitempty"`
	Done      bool          `json:"done"`
}

func newInterviewView(s *types.Session, q *types.Question) interviewView {
	view := interviewView{
		SessionID: s.ID,
		State:     string(s.State),
		Done:      s.State == types.StateEvaluated || s.State == types.StateClosed,
	}
	if q != nil {
		view.Question = &questionView{
			ID:     q.ID,
			Number: q.Number,
			Kind:   string(q.Kind),
			Text:   q.Text,
		}
	}
	return view
}

// CreateInterview 创建面试会话并返回第一个问题
// POST /api/v1/interview
func (h *InterviewHandler) CreateInterview(c context.Context, ctx *app.RequestContext) {
	var req CreateInterviewRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}

	input := types.InterviewInput{
		JDSkills:        req.JDSkills,
		ResumeSkills:    req.ResumeSkills,
		ExperienceYears: req.ExperienceYears,
	}
	s, q, err := h.orchestrator.StartInterview(c, input)
	if err != nil {
		h.respondError(c, ctx, "create_interview", err)
		return
	}

	ctx.JSON(consts.StatusCreated, newInterviewView(s, q))
}

// SubmitAnswer 提交回答并取得下一个问题
// POST /api/v1/interview/:id/answer
func (h *InterviewHandler) SubmitAnswer(c context.Context, ctx *app.RequestContext) {
	sessionID := ctx.Param("id")

	var req SubmitAnswerRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}
	if req.QuestionID == "" {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "question_id不能为空"})
		return
	}

	next, s, err := h.orchestrator.SubmitAnswer(c, sessionID, req.QuestionID, req.Answer)
	if err != nil {
		h.respondError(c, ctx, "submit_answer", err)
		return
	}

	ctx.JSON(consts.StatusOK, newInterviewView(s, next))
}

// AbandonInterview 候选人放弃面试
// POST /api/v1/interview/:id/abandon
func (h *InterviewHandler) AbandonInterview(c context.Context, ctx *app.RequestContext) {
	sessionID := ctx.Param("id")

	s, err := h.orchestrator.Abandon(c, sessionID)
	if err != nil {
		h.respondError(c, ctx, "abandon_interview", err)
		return
	}

	ctx.JSON(consts.StatusOK, newInterviewView(s, nil))
}

// GetInterview 候选人侧的会话状态查询，不含评分
// GET /api/v1/interview/:id
func (h *InterviewHandler) GetInterview(c context.Context, ctx *app.RequestContext) {
	sessionID := ctx.Param("id")

	s, err := h.orchestrator.GetSession(c, sessionID)
	if err != nil {
		h.respondError(c, ctx, "get_interview", err)
		return
	}

	var pending *types.Question
	if !s.IsTerminal() && s.State != types.StateEvaluated {
		pending = s.LastQuestion()
	}
	ctx.JSON(consts.StatusOK, newInterviewView(s, pending))
}

// ExportInterview 考官侧导出接口，受API Key保护。
// 只有终态会话携带评分明细。
// GET /api/v1/interview/:id/export
func (h *InterviewHandler) ExportInterview(c context.Context, ctx *app.RequestContext) {
	sessionID := ctx.Param("id")

	export, err := h.orchestrator.Export(c, sessionID)
	if err != nil {
		h.respondError(c, ctx, "export_interview", err)
		return
	}

	ctx.JSON(consts.StatusOK, export)
}

// respondError 统一错误映射。内部错误细节只进日志，
// 候选人通道只看到笼统的错误描述。
func (h *InterviewHandler) respondError(c context.Context, ctx *app.RequestContext, op string, err error) {
	switch {
	case orchestrator.IsNotFound(err):
		ctx.JSON(consts.StatusNotFound, utils.H{"error": "会话不存在"})
	case session.IsInvalidOperation(err):
		ctx.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
	case errors.Is(err, session.ErrVersionConflict):
		// 同一回答被并发/重复提交时的正常竞争结果，不算内部错误
		ctx.JSON(consts.StatusConflict, utils.H{"error": "请求与并发提交冲突，请重试"})
	default:
		h.logger.Error().Err(err).Str("op", op).Msg("请求处理失败")
		tracing.RecordError(trace.SpanFromContext(c), err, tracing.ErrorTypeInternal)
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "服务内部错误"})
	}
}
