package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/tracing"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// JudgeStrategy LLM裁判评估策略。
// 把问题与回答交给外部生成能力，要求返回结构化JSON评分。
type JudgeStrategy struct {
	chatModel model.ToolCallingChatModel
	timeout   time.Duration
	logger    zerolog.Logger
}

var _ Strategy = (*JudgeStrategy)(nil)

// NewJudgeStrategy 创建LLM裁判策略
func NewJudgeStrategy(chatModel model.ToolCallingChatModel, genCfg config.GenerationConfig, logger zerolog.Logger) *JudgeStrategy {
	return &JudgeStrategy{
		chatModel: chatModel,
		timeout:   config.GetDuration(genCfg.Timeout, 30*time.Second),
		logger:    logger.With().Str("component", "judge_strategy").Logger(),
	}
}

// Name 实现 Strategy 接口
func (j *JudgeStrategy) Name() string { return "judge" }

const judgeSystemPrompt = `你是一位严格的技术面试评分官。给定一道面试题与候选人的口头回答，你需要评估回答的正确性与完整性。
输出要求：只输出一个JSON对象，不要任何额外文字或Markdown代码块，格式如下：
{
  "correctness": 0.0到1.0之间的小数，
  "notes": "一句话评语，指出回答的亮点或缺失的要点"
}
评分基准：
- 0.0-0.3: 回答错误、跑题或空洞
- 0.4-0.7: 部分正确，覆盖了一些要点但有明显缺失
- 0.8-1.0: 准确且完整`

// judgeVerdict 裁判返回的结构化评分
type judgeVerdict struct {
	Correctness float64 `json:"correctness"`
	Notes       string  `json:"notes"`
}

// Assess 实现 Strategy 接口
func (j *JudgeStrategy) Assess(ctx context.Context, q types.Question, a types.Answer) (float64, string, error) {
	if j.chatModel == nil {
		return 0, "", fmt.Errorf("judge: 未配置生成能力")
	}

	userPrompt := fmt.Sprintf("面试题（技能：%s，难度层级：%d）：\n%s\n\n候选人回答：\n%s",
		q.SkillName, q.DepthLevel, q.Text, a.Text)

	genCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	j.logger.Debug().
		Str("question_id", q.ID).
		Str("answer", tracing.SafeAnswer(a.Text)).
		Msg("发送评分请求")

	resp, err := j.chatModel.Generate(genCtx, []*schema.Message{
		schema.SystemMessage(judgeSystemPrompt),
		schema.UserMessage(userPrompt),
	})
	if err != nil {
		return 0, "", fmt.Errorf("judge: 生成调用失败: %w", err)
	}

	verdict, err := parseJudgeResponse(resp.Content)
	if err != nil {
		return 0, "", err
	}
	return verdict.Correctness, verdict.Notes, nil
}

// parseJudgeResponse 从裁判的自由文本输出中抽取并解析评分JSON。
// 先做花括号配对抽取，直接解析失败后再做一轮引号清洗。
func parseJudgeResponse(content string) (*judgeVerdict, error) {
	jsonStr := extractJSONFromJudgeResponse(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("judge: 响应中找不到JSON对象: %s", tracing.TruncateString(content, 200))
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		// 模型偶尔会在notes里输出未转义的引号，清洗后再试一次
		if err2 := json.Unmarshal([]byte(sanitizeJudgeJSON(jsonStr)), &verdict); err2 != nil {
			return nil, fmt.Errorf("judge: 解析评分JSON失败: %w", err)
		}
	}

	if verdict.Correctness < 0 || verdict.Correctness > 1 {
		return nil, fmt.Errorf("judge: correctness超出范围: %f", verdict.Correctness)
	}
	return &verdict, nil
}

// extractJSONFromJudgeResponse 花括号配对抽取第一个完整JSON对象
func extractJSONFromJudgeResponse(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJudgeJSON 把字符串字面量内部未转义的双引号改写为 \"。
// 通过看下一个非空白字符是否为 :、,、]、} 判断引号是不是真正的字符串结束。
func sanitizeJudgeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false
		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)
		} else {
			b.WriteByte(c)
			escaped = false
		}
	}
	return b.String()
}
