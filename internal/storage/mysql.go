package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/storage/models"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

var mysqlTracer = otel.Tracer("agentic-recruiter/storage/mysql")

// ErrArchiveNotFound 归档记录不存在
var ErrArchiveNotFound = errors.New("storage: 归档记录不存在")

// MySQL 关系型数据库适配器：归档已关闭的面试会话
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL连接并迁移归档表
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.ConnectTimeoutSeconds)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层sql.DB失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := db.AutoMigrate(&models.InterviewArchive{}); err != nil {
		return nil, fmt.Errorf("迁移归档表失败: %w", err)
	}

	return &MySQL{db: db, cfg: cfg}, nil
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ArchiveSession 把关闭的会话连同聚合评分写入归档表。
// 同一会话重复归档时整行覆盖，保证归档幂等。
func (m *MySQL) ArchiveSession(ctx context.Context, s *types.Session, agg *types.AggregateScore, transcriptKey string) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.ArchiveSession",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMySQL,
			attribute.String("db.sql.table", models.InterviewArchive{}.TableName()),
			attribute.String("session.id", s.ID),
		),
	)
	defer span.End()

	record, err := buildArchiveRecord(s, agg, transcriptKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("写入面试归档失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetArchive 按会话ID读取归档记录
func (m *MySQL) GetArchive(ctx context.Context, sessionID string) (*models.InterviewArchive, error) {
	var record models.InterviewArchive
	err := m.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("读取面试归档失败: %w", err)
	}
	return &record, nil
}

// buildArchiveRecord 把会话快照编码为归档行
func buildArchiveRecord(s *types.Session, agg *types.AggregateScore, transcriptKey string) (*models.InterviewArchive, error) {
	record := &models.InterviewArchive{
		SessionID:           s.ID,
		State:               string(s.State),
		Bucket:              string(s.Bucket),
		Incomplete:          s.Incomplete,
		TranscriptObjectKey: transcriptKey,
		InterviewStartedAt:  s.CreatedAt,
	}

	var err error
	if record.Matches, err = json.Marshal(s.Matches); err != nil {
		return nil, fmt.Errorf("序列化匹配集失败: %w", err)
	}
	if record.Asked, err = json.Marshal(s.Asked); err != nil {
		return nil, fmt.Errorf("序列化问题列表失败: %w", err)
	}
	if record.Answers, err = json.Marshal(s.Answers); err != nil {
		return nil, fmt.Errorf("序列化回答失败: %w", err)
	}
	if record.Scores, err = json.Marshal(s.Scores); err != nil {
		return nil, fmt.Errorf("序列化评分失败: %w", err)
	}
	if agg != nil {
		record.Overall = agg.Overall
		if record.Aggregate, err = json.Marshal(agg); err != nil {
			return nil, fmt.Errorf("序列化聚合评分失败: %w", err)
		}
	}
	return record, nil
}
