package types

import (
	"time"
)

// SkillSource 技能来源：来自岗位描述(JD)或候选人简历
type SkillSource string

const (
	// SkillSourceJD 技能提取自岗位描述
	SkillSourceJD SkillSource = "JD"
	// SkillSourceResume 技能提取自候选人简历
	SkillSourceResume SkillSource = "RESUME"
)

// Skill 一条技能记录，由输入协作方提取后传入，创建后不可变
type Skill struct {
	Name   string      `json:"name"`
	Source SkillSource `json:"source"`
	Weight float64     `json:"weight"` // JD技能权重，简历技能通常为1.0
}

// MatchResult 单个JD技能与其最佳简历技能的匹配结果。
// 会话创建时一次性计算完成，之后不可变，面试中途不会重新匹配。
type MatchResult struct {
	JDSkill     Skill   `json:"jd_skill"`
	ResumeSkill Skill   `json:"resume_skill"` // 未匹配时为该JD技能的最高相似度候选（可能很低）
	Similarity  float64 `json:"similarity"`   // 余弦相似度，已截断到 [0,1]
	Matched     bool    `json:"matched"`      // similarity >= threshold 或词面完全相等
}

// QuestionKind 问题类型：主问题或追问
type QuestionKind string

const (
	// QuestionKindPrimary 主问题，计入 5 题上限
	QuestionKindPrimary QuestionKind = "primary"
	// QuestionKindFollowUp 追问，不计入主问题上限
	QuestionKindFollowUp QuestionKind = "follow_up"
)

// Question 一次面试中发出的问题
type Question struct {
	ID         string       `json:"id"`
	SkillName  string       `json:"skill_name"`
	DepthLevel int          `json:"depth_level"` // 难度层级，由候选人经验档位推导
	Kind       QuestionKind `json:"kind"`
	ParentID   string       `json:"parent_id,omitempty"` // 追问所属的主问题ID
	Number     int          `json:"number"`              // 主问题编号 1..5；追问沿用父问题编号
	Text       string       `json:"text"`
	AskedAt    time.Time    `json:"asked_at"`
}

// Answer 候选人对某个问题的回答，追加写入，一题一答
type Answer struct {
	QuestionID string    `json:"question_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Score 单题的隐藏评分。永远不会经候选人通道返回，
// 仅在会话进入 Evaluated/Closed 后通过导出接口可见。
type Score struct {
	QuestionID  string  `json:"question_id"`
	Correctness float64 `json:"correctness"` // [0,1]
	DepthBonus  float64 `json:"depth_bonus"`
	Notes       string  `json:"notes"`
}

// SessionState 面试会话状态机
type SessionState string

const (
	// StateSetup 初始状态，等待技能匹配完成
	StateSetup SessionState = "SETUP"
	// StateQuestioning 正在按优先级出主问题
	StateQuestioning SessionState = "QUESTIONING"
	// StateFollowUp 当前主问题触发了追问
	StateFollowUp SessionState = "FOLLOW_UP"
	// StateEvaluated 全部问题完成，聚合分可读
	StateEvaluated SessionState = "EVALUATED"
	// StateClosed 终态，会话只读
	StateClosed SessionState = "CLOSED"
)

// ExperienceBucket 候选人经验档位，由输入协作方给出的不透明枚举
type ExperienceBucket string

const (
	BucketJunior ExperienceBucket = "junior"
	BucketMid    ExperienceBucket = "mid"
	BucketSenior ExperienceBucket = "senior"
)

// MaxPrimaryQuestions 一次面试最多发出的主问题数
const MaxPrimaryQuestions = 5

// Session 面试会话聚合根。会话存储独占其生命周期，
// 其他组件只提交变更意图并取回新的快照，不得直接改写。
type Session struct {
	ID      string       `json:"id"`
	State   SessionState `json:"state"`
	Cursor  int          `json:"cursor"`  // 当前主问题下标，单调不减，0..5
	Version int64        `json:"version"` // 乐观并发控制的版本号，每次变更+1

	Bucket  ExperienceBucket `json:"bucket"`
	Matches []MatchResult    `json:"matches"` // 会话创建时固定

	Asked   []Question        `json:"asked"`
	Answers map[string]Answer `json:"answers"` // Question.ID -> Answer
	Scores  map[string]Score  `json:"scores"`  // Question.ID -> Score

	Incomplete bool      `json:"incomplete"` // 候选人中途放弃时置位
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewSession 构造一个处于 Setup 状态的新会话骨架
func NewSession(id string, bucket ExperienceBucket, matches []MatchResult) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		State:     StateSetup,
		Cursor:    0,
		Version:   0,
		Bucket:    bucket,
		Matches:   matches,
		Asked:     make([]Question, 0, MaxPrimaryQuestions),
		Answers:   make(map[string]Answer),
		Scores:    make(map[string]Score),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone 返回会话的深拷贝，存储层在提交前基于副本演算变更，
// 失败时不会留下半更新状态。
func (s *Session) Clone() *Session {
	cp := *s
	cp.Matches = make([]MatchResult, len(s.Matches))
	copy(cp.Matches, s.Matches)
	cp.Asked = make([]Question, len(s.Asked))
	copy(cp.Asked, s.Asked)
	cp.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	cp.Scores = make(map[string]Score, len(s.Scores))
	for k, v := range s.Scores {
		cp.Scores[k] = v
	}
	return &cp
}

// IsTerminal 会话是否已经到达只读终态
func (s *Session) IsTerminal() bool {
	return s.State == StateClosed
}

// PrimaryCount 已发出的主问题数
func (s *Session) PrimaryCount() int {
	n := 0
	for i := range s.Asked {
		if s.Asked[i].Kind == QuestionKindPrimary {
			n++
		}
	}
	return n
}

// FollowUpCount 某个主问题已发出的追问数
func (s *Session) FollowUpCount(parentID string) int {
	n := 0
	for i := range s.Asked {
		if s.Asked[i].Kind == QuestionKindFollowUp && s.Asked[i].ParentID == parentID {
			n++
		}
	}
	return n
}

// LastQuestion 最近发出的一个问题，没有则返回nil
func (s *Session) LastQuestion() *Question {
	if len(s.Asked) == 0 {
		return nil
	}
	return &s.Asked[len(s.Asked)-1]
}

// CurrentPrimary 当前主问题（最近一次发出的 primary），没有则返回nil
func (s *Session) CurrentPrimary() *Question {
	for i := len(s.Asked) - 1; i >= 0; i-- {
		if s.Asked[i].Kind == QuestionKindPrimary {
			return &s.Asked[i]
		}
	}
	return nil
}

// QuestionByID 按ID查找已发出的问题
func (s *Session) QuestionByID(id string) *Question {
	for i := range s.Asked {
		if s.Asked[i].ID == id {
			return &s.Asked[i]
		}
	}
	return nil
}

// ProbedSkills 本会话已被主问题覆盖过的技能集合
func (s *Session) ProbedSkills() map[string]bool {
	probed := make(map[string]bool)
	for i := range s.Asked {
		if s.Asked[i].Kind == QuestionKindPrimary {
			probed[s.Asked[i].SkillName] = true
		}
	}
	return probed
}

// InterviewInput 输入协作方提供的面试入参。
// 技能抽取与文档解析不在本引擎职责内。
type InterviewInput struct {
	JDSkills        []Skill `json:"jd_skills"`
	ResumeSkills    []Skill `json:"resume_skills"`
	ExperienceYears float64 `json:"experience_years"`
}

// AggregateScore 会话级聚合评分：按 depth_level 加权的平均正确度，
// 追问按配置的折减权重参与（默认0.5x）。
type AggregateScore struct {
	SessionID     string           `json:"session_id"`
	Overall       float64          `json:"overall"` // [0,1]
	QuestionCount int              `json:"question_count"`
	PerQuestion   []QuestionScore  `json:"per_question"`
	State         SessionState     `json:"state"`
	Bucket        ExperienceBucket `json:"bucket"`
	Incomplete    bool             `json:"incomplete"`
}

// QuestionScore 导出视图中单题的评分明细
type QuestionScore struct {
	Question    Question `json:"question"`
	Answer      *Answer  `json:"answer,omitempty"`
	Correctness float64  `json:"correctness"`
	DepthBonus  float64  `json:"depth_bonus"`
	Notes       string   `json:"notes"`
	Weight      float64  `json:"weight"` // 聚合时实际使用的权重
}

// SessionExport 会话的只读导出视图。
// 活跃会话不携带任何评分；进入 Evaluated/Closed 后才提供完整明细。
type SessionExport struct {
	SessionID  string          `json:"session_id"`
	State      SessionState    `json:"state"`
	Cursor     int             `json:"cursor"`
	Matches    []MatchResult   `json:"matches"`
	Asked      []Question      `json:"asked"`
	Incomplete bool            `json:"incomplete"`
	Aggregate  *AggregateScore `json:"aggregate,omitempty"` // 仅终态填充
}
