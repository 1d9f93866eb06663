package events

import (
	"encoding/json"
	"fmt"
)

// Action 会话事件动作，封闭枚举
// 反序列化遇到未知值时报错，而不是静默接受
type Action string

const (
	// ActionStarted 会话已开始
	ActionStarted Action = "started"

	// ActionEnded 会话已结束
	ActionEnded Action = "ended"

	// ActionHeartbeat 会话心跳（位置变化）
	ActionHeartbeat Action = "heartbeat"
)

// Valid 是否为已知动作
func (a Action) Valid() bool {
	switch a {
	case ActionStarted, ActionEnded, ActionHeartbeat:
		return true
	default:
		return false
	}
}

// String 返回动作字符串
func (a Action) String() string {
	return string(a)
}

// MarshalJSON 序列化，拒绝未知动作
func (a Action) MarshalJSON() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("events: unknown action %q", string(a))
	}
	return json.Marshal(string(a))
}

// UnmarshalJSON 反序列化，拒绝未知动作
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	action := Action(s)
	if !action.Valid() {
		return fmt.Errorf("events: unknown action %q", s)
	}

	*a = action
	return nil
}
