package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestActionValid(t *testing.T) {
	tests := []struct {
		action Action
		want   bool
	}{
		{ActionStarted, true},
		{ActionEnded, true},
		{ActionHeartbeat, true},
		{Action("paused"), false},
		{Action(""), false},
	}

	for _, tt := range tests {
		if got := tt.action.Valid(); got != tt.want {
			t.Errorf("Action(%q).Valid() = %v, want %v", tt.action, got, tt.want)
		}
	}
}

func TestActionUnmarshalRejectsUnknown(t *testing.T) {
	var e SessionEvent
	payload := `{"session_id":"s1","user_id":"u1","action":"paused","timestamp":"2026-01-01T00:00:00Z"}`

	if err := json.Unmarshal([]byte(payload), &e); err == nil {
		t.Error("Unmarshal with unknown action should return error")
	}
}

func TestActionMarshalRejectsUnknown(t *testing.T) {
	if _, err := json.Marshal(Action("resumed")); err == nil {
		t.Error("Marshal with unknown action should return error")
	}
}

func TestSessionEventRoundTrip(t *testing.T) {
	e := SessionEvent{
		SessionID: "s1",
		UserID:    "u1",
		CourseID:  "c1",
		ModuleID:  "m1",
		LessonID:  "l1",
		Action:    ActionStarted,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := Marshal(&e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got SessionEvent
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got != e {
		t.Errorf("round trip = %+v, want %+v", got, e)
	}
}

func TestSessionEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   SessionEvent
		wantErr bool
	}{
		{
			name:    "valid",
			event:   SessionEvent{SessionID: "s1", UserID: "u1", Action: ActionHeartbeat},
			wantErr: false,
		},
		{
			name:    "missing session id",
			event:   SessionEvent{UserID: "u1", Action: ActionStarted},
			wantErr: true,
		},
		{
			name:    "missing user id",
			event:   SessionEvent{SessionID: "s1", Action: ActionStarted},
			wantErr: true,
		},
		{
			name:    "unknown action",
			event:   SessionEvent{SessionID: "s1", UserID: "u1", Action: Action("bogus")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfirmationEventNullableSessionID(t *testing.T) {
	// start 在分配 ID 前失败时允许空 SessionID
	e := ConfirmationEvent{
		UserID:  "u1",
		Action:  ActionStarted,
		Success: false,
		Message: "active session already exists",
	}

	if err := e.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
