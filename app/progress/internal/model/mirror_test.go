package model

import (
	"testing"
	"time"
)

func TestApplyActivityMonotonic(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r := &MirrorRecord{
		SessionID:        "s1",
		UserID:           "u1",
		CourseID:         "c1",
		ModuleID:         "m1",
		LessonID:         "l1",
		StartTime:        base,
		LastActivityTime: base.Add(5 * time.Minute),
	}

	// 旧事件不回退状态
	if r.ApplyActivity("c1", "m2", "l2", base.Add(3*time.Minute)) {
		t.Error("ApplyActivity() applied a stale event")
	}
	if r.ModuleID != "m1" || !r.LastActivityTime.Equal(base.Add(5*time.Minute)) {
		t.Errorf("stale event mutated record: %+v", r)
	}

	// 相同时间戳也视为旧事件
	if r.ApplyActivity("c1", "m2", "l2", base.Add(5*time.Minute)) {
		t.Error("ApplyActivity() applied an equal-timestamp event")
	}

	// 新事件更新位置和活跃时间
	if !r.ApplyActivity("c1", "m2", "l2", base.Add(10*time.Minute)) {
		t.Fatal("ApplyActivity() rejected a newer event")
	}
	if r.ModuleID != "m2" || r.LessonID != "l2" {
		t.Errorf("location = %s/%s, want m2/l2", r.ModuleID, r.LessonID)
	}
	if !r.LastActivityTime.Equal(base.Add(10 * time.Minute)) {
		t.Errorf("lastActivityTime = %v, want %v", r.LastActivityTime, base.Add(10*time.Minute))
	}
}

func TestApplyActivityKeepsKnownLocation(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r := &MirrorRecord{
		SessionID:        "s1",
		UserID:           "u1",
		CourseID:         "c1",
		ModuleID:         "m1",
		LessonID:         "l1",
		LastActivityTime: base,
	}

	// 空字段不清空已知位置
	if !r.ApplyActivity("", "", "", base.Add(time.Minute)) {
		t.Fatal("ApplyActivity() rejected a newer event")
	}
	if r.CourseID != "c1" || r.ModuleID != "m1" || r.LessonID != "l1" {
		t.Errorf("empty fields cleared known location: %+v", r)
	}
}

func TestNewHealedRecord(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r := NewHealedRecord("s1", "u1", "", "m1", "", at)

	if r.CourseID != LocationUnknown {
		t.Errorf("CourseID = %q, want %q", r.CourseID, LocationUnknown)
	}
	if r.ModuleID != "m1" {
		t.Errorf("ModuleID = %q, want m1", r.ModuleID)
	}
	if r.LessonID != LocationUnknown {
		t.Errorf("LessonID = %q, want %q", r.LessonID, LocationUnknown)
	}
	if !r.StartTime.Equal(at) || !r.LastActivityTime.Equal(at) {
		t.Errorf("times = %v/%v, want %v", r.StartTime, r.LastActivityTime, at)
	}
}
