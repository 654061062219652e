package constants

// 应用级通用常量
const (
	// AppName 应用名称，用于日志与追踪的标识
	AppName = "agentic-recruiter"

	// DefaultMatchThreshold 技能匹配的默认相似度阈值
	DefaultMatchThreshold = 0.75

	// DefaultFollowUpBandLow 追问触发区间下界（含）
	DefaultFollowUpBandLow = 0.40
	// DefaultFollowUpBandHigh 追问触发区间上界（含）
	DefaultFollowUpBandHigh = 0.75

	// DefaultMaxFollowUps 每个主问题允许的最大追问数
	DefaultMaxFollowUps = 2

	// DefaultFollowUpWeight 追问评分参与聚合时的折减系数
	DefaultFollowUpWeight = 0.5
)
