package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionEvent 会话生命周期事件
// 每个事件携带完整的标识上下文，消费端无需依赖先前状态即可处理
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	ModuleID  string    `json:"module_id"`
	LessonID  string    `json:"lesson_id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate 校验事件负载
func (e *SessionEvent) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("events: session event missing session_id")
	}
	if e.UserID == "" {
		return fmt.Errorf("events: session event missing user_id")
	}
	if !e.Action.Valid() {
		return fmt.Errorf("events: session event has unknown action %q", string(e.Action))
	}
	return nil
}

// ConfirmationEvent 确认事件
// 权威服务处理完生命周期操作后发布，携带成功/失败标志
// SessionID 可为空：start 在分配 ID 之前就失败时无 ID 可带
type ConfirmationEvent struct {
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id"`
	Action    Action    `json:"action"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate 校验确认事件负载
func (e *ConfirmationEvent) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("events: confirmation event missing user_id")
	}
	if !e.Action.Valid() {
		return fmt.Errorf("events: confirmation event has unknown action %q", string(e.Action))
	}
	return nil
}

// ReconcileScopeAll 对账范围：全部用户
const ReconcileScopeAll = "all"

// ReconcileRequest 对账请求
// 请求方（通常是权威侧）广播自己认为处于活跃状态的会话 ID 集合
type ReconcileRequest struct {
	RequestID        string    `json:"request_id"`
	Scope            string    `json:"scope"` // 具体 userID 或 "all"
	ActiveSessionIDs []string  `json:"active_session_ids"`
	Timestamp        time.Time `json:"timestamp"`
}

// Validate 校验对账请求
func (r *ReconcileRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("events: reconcile request missing request_id")
	}
	if r.Scope == "" {
		return fmt.Errorf("events: reconcile request missing scope")
	}
	return nil
}

// ReconcileResponse 对账响应
// MissingInMirror: 请求方认为活跃但响应方本地缺失（响应方落后）
// MissingInOwner: 响应方本地持有但请求集合中缺失（孤儿，疑似过期状态）
type ReconcileResponse struct {
	RequestID       string    `json:"request_id"`
	Scope           string    `json:"scope"`
	MissingInMirror []string  `json:"missing_in_mirror"`
	MissingInOwner  []string  `json:"missing_in_owner"`
	Timestamp       time.Time `json:"timestamp"`
}

// LastAccessEvent 课程最近访问事件
// 会话开始和位置变化心跳时发布，进度服务据此更新最近访问记录
type LastAccessEvent struct {
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	ModuleID  string    `json:"module_id"`
	LessonID  string    `json:"lesson_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StreakEvent 连续学习事件
// 会话结束且时长不少于 1 分钟时发布
type StreakEvent struct {
	UserID          string    `json:"user_id"`
	DurationMinutes int64     `json:"duration_minutes"`
	Timestamp       time.Time `json:"timestamp"`
}

// Marshal 序列化事件为 JSON
func Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("events: marshal failed: %w", err)
	}
	return data, nil
}

// Unmarshal 反序列化 JSON 事件
func Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("events: unmarshal failed: %w", err)
	}
	return nil
}
