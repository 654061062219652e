package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// InterviewModulePrefix 面试模块
	InterviewModulePrefix = "interview"
	// SkillModulePrefix 技能模块
	SkillModulePrefix = "skill"

	// EntitySession 面试会话实体
	EntitySession = "session"
	// EntityVector 向量实体
	EntityVector = "vector"

	// KeyInterviewSession 面试会话快照 (STRING, JSON序列化)
	// 格式: app:interview:session:{sessionID}
	KeyInterviewSession = AppPrefix + ":" + InterviewModulePrefix + ":" + EntitySession + ":%s"

	// KeySkillVector 技能文本的嵌入向量缓存 (STRING, JSON序列化)
	// 格式: app:skill:vector:{normalizedSkill}
	KeySkillVector = AppPrefix + ":" + SkillModulePrefix + ":" + EntityVector + ":%s"
)
