package question

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/planner"
	"github.com/JaySingh79/Agentic-Recruiter/internal/tracing"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// ErrGenerationFailed 两次生成尝试均失败。
// 编排层收到该错误后跳过当前指令继续面试，不得中断会话。
var ErrGenerationFailed = fmt.Errorf("question: 题目生成失败")

// Requester 题目请求器。把规划器指令翻译成确定性提示词，
// 换取外部生成能力的问题文本。无状态，从不修改会话。
type Requester struct {
	chatModel model.ToolCallingChatModel
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewRequester 创建题目请求器
func NewRequester(chatModel model.ToolCallingChatModel, genCfg config.GenerationConfig, logger zerolog.Logger) *Requester {
	return &Requester{
		chatModel: chatModel,
		timeout:   config.GetDuration(genCfg.Timeout, 30*time.Second),
		logger:    logger.With().Str("component", "question_requester").Logger(),
	}
}

// Request 按指令生成一个问题。
// 首次失败（错误或空文本）后用简化提示词重试一次，
// 再失败返回 ErrGenerationFailed。同一指令最多两次生成调用。
func (r *Requester) Request(ctx context.Context, d planner.Directive, askedBefore []types.Question) (*types.Question, error) {
	if r.chatModel == nil {
		return nil, fmt.Errorf("%w: 未配置生成能力", ErrGenerationFailed)
	}
	if d.Kind != planner.DirectiveAskPrimary && d.Kind != planner.DirectiveAskFollowUp {
		return nil, fmt.Errorf("question: 指令 %s 不产生问题", d.Kind)
	}

	text, err := r.generate(ctx, r.buildPrompt(d, askedBefore))
	if err != nil {
		r.logger.Warn().Err(err).
			Str("skill", d.SkillName).
			Int("depth", d.DepthLevel).
			Msg("首次生成失败，使用简化提示词重试")
		text, err = r.generate(ctx, r.buildSimplifiedPrompt(d))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("question: 生成问题ID失败: %w", err)
	}

	kind := types.QuestionKindPrimary
	if d.Kind == planner.DirectiveAskFollowUp {
		kind = types.QuestionKindFollowUp
	}
	return &types.Question{
		ID:         id.String(),
		SkillName:  d.SkillName,
		DepthLevel: d.DepthLevel,
		Kind:       kind,
		ParentID:   d.ParentID,
		Number:     d.Number,
		Text:       text,
		AskedAt:    time.Now(),
	}, nil
}

// generate 单次生成调用，带超时，校验输出非空
func (r *Requester) generate(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug().Str("prompt", tracing.TruncateString(prompt, tracing.MaxPromptLength)).Msg("发送题目生成请求")

	resp, err := r.chatModel.Generate(genCtx, []*schema.Message{
		schema.SystemMessage(interviewerSystemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("生成结果为空")
	}
	return text, nil
}

const interviewerSystemPrompt = `你是一位资深技术面试官。你的任务是针对指定技能提出一个清晰、可口头回答的技术问题。
要求：
1. 只输出问题本身，不要编号、前缀、解释或评分标准。
2. 问题应当能在几分钟内口头回答，不要求写代码。
3. 难度层级越高，问题越偏向原理、权衡与生产实践。`

// buildPrompt 从指令构造确定性提示词。
// 同样的指令与历史总是产出同样的提示词，便于复现与审计。
func (r *Requester) buildPrompt(d planner.Directive, askedBefore []types.Question) string {
	var sb strings.Builder

	if d.Kind == planner.DirectiveAskFollowUp {
		fmt.Fprintf(&sb, "候选人刚回答了一个关于「%s」的问题，回答只覆盖了一部分要点。\n", d.SkillName)
		fmt.Fprintf(&sb, "请针对同一主题提出一个追问，深入候选人没有讲透的部分。难度层级：%d。\n", d.DepthLevel)
	} else {
		fmt.Fprintf(&sb, "请针对技能「%s」提出一个主问题。难度层级：%d（1=基础概念，3=原理与权衡，更高=深水区）。\n", d.SkillName, d.DepthLevel)
		if !d.Matched {
			sb.WriteString("该技能是岗位要求但候选人简历未体现的短板，问题应从基础切入，确认候选人是否有实际接触。\n")
		}
	}

	if asked := sameSkillQuestions(d.SkillName, askedBefore); len(asked) > 0 {
		sb.WriteString("本场面试中该技能已问过以下问题，不要重复：\n")
		for _, q := range asked {
			fmt.Fprintf(&sb, "- %s\n", q.Text)
		}
	}
	return sb.String()
}

// buildSimplifiedPrompt 重试用的精简提示词：去掉历史与限定语，
// 降低生成失败的概率。
func (r *Requester) buildSimplifiedPrompt(d planner.Directive) string {
	if d.Kind == planner.DirectiveAskFollowUp {
		return fmt.Sprintf("请就技能「%s」提出一个简短的追问。", d.SkillName)
	}
	return fmt.Sprintf("请就技能「%s」提出一个技术面试问题。", d.SkillName)
}

func sameSkillQuestions(skill string, asked []types.Question) []types.Question {
	out := make([]types.Question, 0, 2)
	for _, q := range asked {
		if strings.EqualFold(q.SkillName, skill) {
			out = append(out, q)
		}
	}
	return out
}
