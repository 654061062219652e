package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// 会话存储的哨兵错误
var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session: 会话不存在")

	// ErrVersionConflict 版本号不匹配，乐观并发冲突
	ErrVersionConflict = errors.New("session: 版本冲突")
)

// InvalidOperationError 非法会话操作。
// 典型场景：向已关闭的会话提交变更、同一问题重复计分、
// 游标越界推进。调用方据此返回确定性的业务错误而非静默吞掉。
type InvalidOperationError struct {
	Op        string
	SessionID string
	Reason    string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("session: 非法操作 %s (会话 %s): %s", e.Op, e.SessionID, e.Reason)
}

// IsInvalidOperation 判断错误是否为非法会话操作
func IsInvalidOperation(err error) bool {
	var target *InvalidOperationError
	return errors.As(err, &target)
}

// Mutation 会话变更。在存储的原子应用点内执行，
// 对快照副本操作，返回错误则整批变更丢弃。
// Mutation 内禁止任何外部调用（生成、嵌入、网络IO）。
type Mutation func(s *types.Session) error

// Store 面试会话存储。
// Apply 对同一会话ID串行化：一批Mutation要么全部生效要么全部丢弃，
// 生效时版本号加一。不同会话之间互不阻塞。
// Get 返回的是快照副本，调用方修改它不影响存储内状态。
type Store interface {
	// Create 持久化一个新会话。ID已存在时返回错误。
	Create(ctx context.Context, s *types.Session) error

	// Get 按ID取会话快照。不存在返回 ErrSessionNotFound。
	Get(ctx context.Context, id string) (*types.Session, error)

	// Apply 原子地应用一批变更。expectedVersion >= 0 时执行CAS检查，
	// 版本不匹配返回 ErrVersionConflict；传 VersionAny 跳过检查。
	// 返回应用后的会话快照。
	Apply(ctx context.Context, id string, expectedVersion int64, mutations ...Mutation) (*types.Session, error)

	// Close 释放存储资源
	Close() error
}

// VersionAny 跳过版本CAS检查
const VersionAny int64 = -1

// RecordQuestion 追加一个已提出的问题。
// 已关闭或已评估的会话拒绝追加。
func RecordQuestion(q types.Question) Mutation {
	return func(s *types.Session) error {
		if s.IsTerminal() {
			return &InvalidOperationError{Op: "record_question", SessionID: s.ID, Reason: "会话已终结"}
		}
		if q.ID == "" {
			return &InvalidOperationError{Op: "record_question", SessionID: s.ID, Reason: "问题ID为空"}
		}
		if s.QuestionByID(q.ID) != nil {
			return &InvalidOperationError{Op: "record_question", SessionID: s.ID, Reason: fmt.Sprintf("问题 %s 已存在", q.ID)}
		}
		if q.Kind == types.QuestionKindPrimary && s.PrimaryCount() >= types.MaxPrimaryQuestions {
			return &InvalidOperationError{Op: "record_question", SessionID: s.ID, Reason: "主问题数已达上限"}
		}
		if q.Kind == types.QuestionKindFollowUp {
			if q.ParentID == "" {
				return &InvalidOperationError{Op: "record_question", SessionID: s.ID, Reason: "追问缺少父问题ID"}
			}
			if s.QuestionByID(q.ParentID) == nil {
				return &InvalidOperationError{Op: "record_question", SessionID: s.ID, Reason: fmt.Sprintf("追问的父问题 %s 不存在", q.ParentID)}
			}
		}
		s.Asked = append(s.Asked, q)
		return nil
	}
}

// RecordAnswer 记录某个问题的回答。问题必须已被提出。
func RecordAnswer(a types.Answer) Mutation {
	return func(s *types.Session) error {
		if s.IsTerminal() {
			return &InvalidOperationError{Op: "record_answer", SessionID: s.ID, Reason: "会话已终结"}
		}
		if s.QuestionByID(a.QuestionID) == nil {
			return &InvalidOperationError{Op: "record_answer", SessionID: s.ID, Reason: fmt.Sprintf("问题 %s 不存在", a.QuestionID)}
		}
		s.Answers[a.QuestionID] = a
		return nil
	}
}

// RecordScore 记录某个问题的评分。
// 同一问题重复计分是非法操作，除非显式声明覆盖。
func RecordScore(score types.Score, override bool) Mutation {
	return func(s *types.Session) error {
		if s.State == types.StateClosed {
			return &InvalidOperationError{Op: "record_score", SessionID: s.ID, Reason: "会话已关闭"}
		}
		if s.QuestionByID(score.QuestionID) == nil {
			return &InvalidOperationError{Op: "record_score", SessionID: s.ID, Reason: fmt.Sprintf("问题 %s 不存在", score.QuestionID)}
		}
		if _, exists := s.Scores[score.QuestionID]; exists && !override {
			return &InvalidOperationError{Op: "record_score", SessionID: s.ID, Reason: fmt.Sprintf("问题 %s 已有评分", score.QuestionID)}
		}
		s.Scores[score.QuestionID] = score
		return nil
	}
}

// AdvanceCursor 游标前移一位。越过主问题上限是非法操作。
func AdvanceCursor() Mutation {
	return func(s *types.Session) error {
		if s.IsTerminal() {
			return &InvalidOperationError{Op: "advance_cursor", SessionID: s.ID, Reason: "会话已终结"}
		}
		if s.Cursor >= types.MaxPrimaryQuestions {
			return &InvalidOperationError{Op: "advance_cursor", SessionID: s.ID, Reason: "游标已达上限"}
		}
		s.Cursor++
		return nil
	}
}

// SetState 状态迁移。只允许状态机定义的合法边。
func SetState(to types.SessionState) Mutation {
	return func(s *types.Session) error {
		if !validTransition(s.State, to) {
			return &InvalidOperationError{
				Op:        "set_state",
				SessionID: s.ID,
				Reason:    fmt.Sprintf("非法状态迁移 %s -> %s", s.State, to),
			}
		}
		s.State = to
		return nil
	}
}

// MarkIncomplete 标记会话为中途放弃
func MarkIncomplete() Mutation {
	return func(s *types.Session) error {
		s.Incomplete = true
		return nil
	}
}

// validTransition 状态机合法边：
//
//	Setup -> Questioning
//	Questioning -> FollowUp | Evaluated | Closed
//	FollowUp -> Questioning | Evaluated | Closed
//	Evaluated -> Closed
//
// 任何状态都可以被放弃关闭；终结态不再迁出。
func validTransition(from, to types.SessionState) bool {
	if from == to {
		return false
	}
	switch from {
	case types.StateSetup:
		return to == types.StateQuestioning || to == types.StateClosed
	case types.StateQuestioning:
		return to == types.StateFollowUp || to == types.StateEvaluated || to == types.StateClosed
	case types.StateFollowUp:
		return to == types.StateQuestioning || to == types.StateEvaluated || to == types.StateClosed
	case types.StateEvaluated:
		return to == types.StateClosed
	default:
		return false
	}
}
