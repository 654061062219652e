package models

import (
	"time"

	"gorm.io/datatypes"
)

// InterviewArchive 已关闭面试会话的归档记录。
// 活跃会话只存在于Redis，关闭后整体落库供离线查询与报表使用。
type InterviewArchive struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"type:varchar(64);uniqueIndex;not null"`

	State      string  `gorm:"type:varchar(32);not null"`
	Bucket     string  `gorm:"type:varchar(16);not null"`
	Incomplete bool    `gorm:"not null;default:false"`
	Overall    float64 `gorm:"not null;default:0"`

	// 完整的会话内容以JSON形式归档
	Matches   datatypes.JSON `gorm:"type:json"`
	Asked     datatypes.JSON `gorm:"type:json"`
	Answers   datatypes.JSON `gorm:"type:json"`
	Scores    datatypes.JSON `gorm:"type:json"`
	Aggregate datatypes.JSON `gorm:"type:json"`

	// TranscriptObjectKey 面试笔录在对象存储中的位置，归档未启用时为空
	TranscriptObjectKey string `gorm:"type:varchar(255)"`

	InterviewStartedAt time.Time `gorm:"not null"`
	ArchivedAt         time.Time `gorm:"autoCreateTime"`
}

// TableName 指定表名
func (InterviewArchive) TableName() string {
	return "interview_archives"
}
