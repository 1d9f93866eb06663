package model

import "time"

// Session 学习会话，权威记录
// 会话只通过持久化 ID 寻址，任何内存态都不是事实来源
type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	CourseID         string     `json:"course_id"`
	ModuleID         string     `json:"module_id"`
	LessonID         string     `json:"lesson_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	LastActivityTime time.Time  `json:"last_activity_time"`
	Active           bool       `json:"active"`
	DurationMinutes  int64      `json:"duration_minutes"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Duration 计算会话时长（整分钟，向下取整）
func Duration(start, end time.Time) int64 {
	if end.Before(start) {
		return 0
	}
	return int64(end.Sub(start) / time.Minute)
}

// LocationChanged 位置是否发生变化
func (s *Session) LocationChanged(moduleID, lessonID string) bool {
	return s.ModuleID != moduleID || s.LessonID != lessonID
}

// ExpiryReason 会话超时原因
type ExpiryReason string

const (
	// ExpiryReasonNone 未超时
	ExpiryReasonNone ExpiryReason = ""

	// ExpiryReasonInactivity 不活跃超时
	ExpiryReasonInactivity ExpiryReason = "inactivity"

	// ExpiryReasonMaxDuration 达到最大会话时长上限
	ExpiryReasonMaxDuration ExpiryReason = "max_duration"
)

// CheckExpiry 按超时规则检查会话
// 规则 1：不活跃时间达到 maxInactivity 强制结束
// 规则 2：总时长达到 maxDuration 强制结束，与近期活跃无关
func (s *Session) CheckExpiry(now time.Time, maxInactivity, maxDuration time.Duration) ExpiryReason {
	if !s.Active {
		return ExpiryReasonNone
	}
	if now.Sub(s.LastActivityTime) >= maxInactivity {
		return ExpiryReasonInactivity
	}
	if now.Sub(s.StartTime) >= maxDuration {
		return ExpiryReasonMaxDuration
	}
	return ExpiryReasonNone
}
