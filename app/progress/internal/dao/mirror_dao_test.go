package dao

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/edooria/edooria/app/progress/internal/metrics"
	"github.com/edooria/edooria/app/progress/internal/model"
	"github.com/edooria/edooria/pkg/database/redis"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/prometheus"
)

// newTestDAO 连接本地 Redis，不可达时跳过
func newTestDAO(t *testing.T) *MirrorDAO {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rdb, err := redis.NewClient(&redis.Config{Host: "localhost", Port: 6379})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	promClient, err := prometheus.New(&prometheus.Config{
		Namespace:  "dao_test",
		HTTPServer: prometheus.HTTPServerConfig{Enabled: false},
	})
	if err != nil {
		t.Fatalf("prometheus.New() error = %v", err)
	}
	t.Cleanup(func() { _ = promClient.Close() })

	return NewMirrorDAO(rdb, logger.Noop(), metrics.New(promClient))
}

func testRecord(sessionID, userID string) *model.MirrorRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.MirrorRecord{
		SessionID:        sessionID,
		UserID:           userID,
		CourseID:         "c1",
		ModuleID:         "m1",
		LessonID:         "l1",
		StartTime:        now,
		LastActivityTime: now,
	}
}

func TestMirrorDAORoundTrip(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	sessionID := fmt.Sprintf("it-%d", time.Now().UnixNano())
	userID := sessionID + "-user"
	rec := testRecord(sessionID, userID)

	t.Cleanup(func() {
		_, _ = d.Remove(ctx, sessionID, userID, 0)
	})

	if err := d.Put(ctx, rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := d.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != userID || got.CourseID != "c1" {
		t.Errorf("Get() = %+v", got)
	}
	if !got.LastActivityTime.Equal(rec.LastActivityTime) {
		t.Errorf("LastActivityTime = %v, want %v", got.LastActivityTime, rec.LastActivityTime)
	}

	byUser, err := d.ActiveByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ActiveByUser() error = %v", err)
	}
	if len(byUser) != 1 || byUser[0].SessionID != sessionID {
		t.Errorf("ActiveByUser() = %v, want one record %q", byUser, sessionID)
	}
}

func TestMirrorDAORemoveWithTombstone(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	sessionID := fmt.Sprintf("it-%d", time.Now().UnixNano())
	userID := sessionID + "-user"

	if err := d.Put(ctx, testRecord(sessionID, userID)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	existed, err := d.Remove(ctx, sessionID, userID, time.Minute)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !existed {
		t.Error("Remove() = false, want true for existing record")
	}

	if _, err := d.Get(ctx, sessionID); !errors.Is(err, ErrMirrorNotFound) {
		t.Errorf("Get() after remove error = %v, want ErrMirrorNotFound", err)
	}

	found, err := d.HasTombstone(ctx, sessionID)
	if err != nil {
		t.Fatalf("HasTombstone() error = %v", err)
	}
	if !found {
		t.Error("HasTombstone() = false, want true after remove")
	}

	// 重复删除是幂等的
	existed, err = d.Remove(ctx, sessionID, userID, time.Minute)
	if err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
	if existed {
		t.Error("second Remove() = true, want false")
	}
}

func TestMirrorDAOLastAccess(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	userID := fmt.Sprintf("it-la-%d", time.Now().UnixNano())
	at := time.Now().UTC().Truncate(time.Millisecond)

	if err := d.SetLastAccess(ctx, &model.LastAccess{
		UserID:     userID,
		CourseID:   "c1",
		ModuleID:   "m1",
		LessonID:   "l1",
		AccessedAt: at,
	}); err != nil {
		t.Fatalf("SetLastAccess() error = %v", err)
	}
	t.Cleanup(func() {
		_, _ = d.rdb.Del(ctx, keyLastAccessPrefix+userID)
	})

	got, err := d.GetLastAccess(ctx, userID)
	if err != nil {
		t.Fatalf("GetLastAccess() error = %v", err)
	}
	if got.CourseID != "c1" || got.LessonID != "l1" {
		t.Errorf("GetLastAccess() = %+v", got)
	}
	if !got.AccessedAt.Equal(at) {
		t.Errorf("AccessedAt = %v, want %v", got.AccessedAt, at)
	}
}
