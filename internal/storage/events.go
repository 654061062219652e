package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// 面试生命周期事件类型
const (
	EventInterviewEvaluated = "interview.evaluated"
	EventInterviewClosed    = "interview.closed"
)

// InterviewEvent 发布到消息队列的面试生命周期事件。
// 只携带摘要，完整数据走归档通道。
type InterviewEvent struct {
	Type          string    `json:"type"`
	SessionID     string    `json:"session_id"`
	State         string    `json:"state"`
	Bucket        string    `json:"bucket"`
	Overall       float64   `json:"overall"`
	QuestionCount int       `json:"question_count"`
	Incomplete    bool      `json:"incomplete"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// LifecycleRecorder 把编排层的生命周期回调落到存储设施：
// 发布事件、归档笔录与会话。所有动作都是尽力而为，
// 失败只记日志，绝不把错误传回面试流程。
type LifecycleRecorder struct {
	storage *Storage
	cfg     *config.RabbitMQConfig
	logger  zerolog.Logger
}

// NewLifecycleRecorder 创建生命周期记录器
func NewLifecycleRecorder(storage *Storage, cfg *config.RabbitMQConfig, logger zerolog.Logger) *LifecycleRecorder {
	return &LifecycleRecorder{
		storage: storage,
		cfg:     cfg,
		logger:  logger.With().Str("component", "lifecycle_recorder").Logger(),
	}
}

// OnEvaluated 会话完成评估：发布评估完成事件
func (l *LifecycleRecorder) OnEvaluated(ctx context.Context, s *types.Session, agg *types.AggregateScore) {
	l.publish(ctx, EventInterviewEvaluated, l.cfg.EvaluatedRoutingKey, s, agg)
}

// OnClosed 会话关闭：归档笔录与会话，然后发布关闭事件
func (l *LifecycleRecorder) OnClosed(ctx context.Context, s *types.Session, agg *types.AggregateScore) {
	transcriptKey := l.archiveTranscript(ctx, s, agg)

	if l.storage.MySQL != nil {
		if err := l.storage.MySQL.ArchiveSession(ctx, s, agg, transcriptKey); err != nil {
			l.logger.Error().Err(err).Str("session_id", s.ID).Msg("归档会话到MySQL失败")
		}
	}

	l.publish(ctx, EventInterviewClosed, l.cfg.ClosedRoutingKey, s, agg)
}

// archiveTranscript 把完整笔录写入对象存储，返回对象键（失败或未启用时为空）
func (l *LifecycleRecorder) archiveTranscript(ctx context.Context, s *types.Session, agg *types.AggregateScore) string {
	if l.storage.MinIO == nil {
		return ""
	}

	export := &types.SessionExport{
		SessionID:  s.ID,
		State:      s.State,
		Cursor:     s.Cursor,
		Matches:    s.Matches,
		Asked:      s.Asked,
		Incomplete: s.Incomplete,
		Aggregate:  agg,
	}
	key, err := l.storage.MinIO.ArchiveTranscript(ctx, export)
	if err != nil {
		l.logger.Error().Err(err).Str("session_id", s.ID).Msg("归档面试笔录失败")
		return ""
	}
	return key
}

func (l *LifecycleRecorder) publish(ctx context.Context, eventType, routingKey string, s *types.Session, agg *types.AggregateScore) {
	if l.storage.RabbitMQ == nil || l.cfg.InterviewEventsExchange == "" {
		return
	}

	event := InterviewEvent{
		Type:       eventType,
		SessionID:  s.ID,
		State:      string(s.State),
		Bucket:     string(s.Bucket),
		Incomplete: s.Incomplete,
		OccurredAt: time.Now(),
	}
	if agg != nil {
		event.Overall = agg.Overall
		event.QuestionCount = agg.QuestionCount
	}

	if err := l.storage.RabbitMQ.PublishJSON(ctx, l.cfg.InterviewEventsExchange, routingKey, event, true); err != nil {
		l.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("session_id", s.ID).
			Msg("发布面试事件失败")
	}
}
