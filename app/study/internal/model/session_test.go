package model

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want int64
	}{
		{"zero elapsed", start, 0},
		{"under one minute floors to zero", start.Add(59 * time.Second), 0},
		{"exactly one minute", start.Add(time.Minute), 1},
		{"sixteen minutes and change floors", start.Add(16*time.Minute + 45*time.Second), 16},
		{"end before start clamps to zero", start.Add(-time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Duration(start, tt.end); got != tt.want {
				t.Errorf("Duration() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLocationChanged(t *testing.T) {
	s := &Session{ModuleID: "m1", LessonID: "l1"}

	if s.LocationChanged("m1", "l1") {
		t.Error("LocationChanged() with same location = true, want false")
	}
	if !s.LocationChanged("m1", "l2") {
		t.Error("LocationChanged() with new lesson = false, want true")
	}
	if !s.LocationChanged("m2", "l1") {
		t.Error("LocationChanged() with new module = false, want true")
	}
}

func TestCheckExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	maxInactivity := 15 * time.Minute
	maxDuration := 4 * time.Hour

	tests := []struct {
		name         string
		session      Session
		want         ExpiryReason
	}{
		{
			name: "recently active session stays",
			session: Session{
				Active:           true,
				StartTime:        now.Add(-time.Hour),
				LastActivityTime: now.Add(-time.Minute),
			},
			want: ExpiryReasonNone,
		},
		{
			name: "inactive past threshold",
			session: Session{
				Active:           true,
				StartTime:        now.Add(-time.Hour),
				LastActivityTime: now.Add(-16 * time.Minute),
			},
			want: ExpiryReasonInactivity,
		},
		{
			name: "inactivity exactly at threshold",
			session: Session{
				Active:           true,
				StartTime:        now.Add(-time.Hour),
				LastActivityTime: now.Add(-15 * time.Minute),
			},
			want: ExpiryReasonInactivity,
		},
		{
			name: "max duration despite recent activity",
			session: Session{
				Active:           true,
				StartTime:        now.Add(-5 * time.Hour),
				LastActivityTime: now.Add(-time.Second),
			},
			want: ExpiryReasonMaxDuration,
		},
		{
			name: "ended session never expires",
			session: Session{
				Active:           false,
				StartTime:        now.Add(-10 * time.Hour),
				LastActivityTime: now.Add(-10 * time.Hour),
			},
			want: ExpiryReasonNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.CheckExpiry(now, maxInactivity, maxDuration); got != tt.want {
				t.Errorf("CheckExpiry() = %q, want %q", got, tt.want)
			}
		})
	}
}
