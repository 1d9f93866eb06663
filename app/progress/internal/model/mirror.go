package model

import "time"

// LocationUnknown 占位位置
// 自愈创建的镜像记录缺少课程和位置信息时使用，后续事件到达后补齐
const LocationUnknown = "unknown"

// MirrorRecord 会话镜像记录
// 由事件流驱动的非权威副本，真实状态以权威服务的存储为准
type MirrorRecord struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	CourseID         string    `json:"course_id"`
	ModuleID         string    `json:"module_id"`
	LessonID         string    `json:"lesson_id"`
	StartTime        time.Time `json:"start_time"`
	LastActivityTime time.Time `json:"last_activity_time"`
}

// ApplyActivity 应用一次活动观测
// 活跃时间单调不回退：乱序到达的旧事件不得覆盖较新的状态。
// 返回是否发生了变更
func (r *MirrorRecord) ApplyActivity(courseID, moduleID, lessonID string, at time.Time) bool {
	if !at.After(r.LastActivityTime) {
		return false
	}

	r.LastActivityTime = at
	if courseID != "" {
		r.CourseID = courseID
	}
	if moduleID != "" {
		r.ModuleID = moduleID
	}
	if lessonID != "" {
		r.LessonID = lessonID
	}
	return true
}

// NewHealedRecord 从不完整的事件上下文自愈创建镜像记录
// 缺失的课程和位置字段用占位值填充
func NewHealedRecord(sessionID, userID, courseID, moduleID, lessonID string, at time.Time) *MirrorRecord {
	if courseID == "" {
		courseID = LocationUnknown
	}
	if moduleID == "" {
		moduleID = LocationUnknown
	}
	if lessonID == "" {
		lessonID = LocationUnknown
	}
	return &MirrorRecord{
		SessionID:        sessionID,
		UserID:           userID,
		CourseID:         courseID,
		ModuleID:         moduleID,
		LessonID:         lessonID,
		StartTime:        at,
		LastActivityTime: at,
	}
}

// LastAccess 用户课程最近访问记录
type LastAccess struct {
	UserID     string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	ModuleID   string    `json:"module_id"`
	LessonID   string    `json:"lesson_id"`
	AccessedAt time.Time `json:"accessed_at"`
}
