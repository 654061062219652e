package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/types"
)

// TranscriptStore 面试笔录对象存储接口
type TranscriptStore interface {
	// ArchiveTranscript 归档会话笔录，返回对象键
	ArchiveTranscript(ctx context.Context, export *types.SessionExport) (string, error)

	// GetTranscript 按会话ID读取笔录
	GetTranscript(ctx context.Context, sessionID string) (*types.SessionExport, error)
}

// 确保MinIO实现了TranscriptStore接口
var _ TranscriptStore = (*MinIO)(nil)

// MinIO 对象存储适配器：归档面试笔录
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.TranscriptBucket
	if bucket == "" {
		bucket = "interview-transcripts"
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		bucket: bucket,
		logger: logger,
	}

	if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保笔录存储桶 %s 存在失败: %w", bucket, err)
	}

	logger.Printf("[MinIO] 客户端初始化完成, endpoint: %s, bucket: %s", cfg.Endpoint, bucket)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		if err := m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] 存储桶 %s 已创建", bucketName)
	}
	return nil
}

func transcriptObjectKey(sessionID string) string {
	return fmt.Sprintf("transcripts/%s.json", sessionID)
}

// ArchiveTranscript 实现 TranscriptStore 接口
func (m *MinIO) ArchiveTranscript(ctx context.Context, export *types.SessionExport) (string, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化面试笔录失败: %w", err)
	}

	objectKey := transcriptObjectKey(export.SessionID)
	_, err = m.client.PutObject(ctx, m.bucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return "", fmt.Errorf("上传面试笔录失败: %w", err)
	}

	m.logger.Printf("[MinIO] 笔录已归档: %s (%d bytes)", objectKey, len(data))
	return objectKey, nil
}

// GetTranscript 实现 TranscriptStore 接口
func (m *MinIO) GetTranscript(ctx context.Context, sessionID string) (*types.SessionExport, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, transcriptObjectKey(sessionID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取面试笔录失败: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取笔录内容失败: %w", err)
	}

	var export types.SessionExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("反序列化面试笔录失败: %w", err)
	}
	return &export, nil
}
