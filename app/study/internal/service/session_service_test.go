package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edooria/edooria/app/study/internal/dao"
	"github.com/edooria/edooria/app/study/internal/metrics"
	"github.com/edooria/edooria/app/study/internal/model"
	"github.com/edooria/edooria/pkg/database/postgres"
	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/prometheus"
)

// fakeStore 内存会话存储，行为与 DAO 对齐
// failConditional 让条件更新始终落空，模拟读取后被并发结束
type fakeStore struct {
	mu              sync.Mutex
	sessions        map[string]*model.Session
	failConditional bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*model.Session)}
}

func (f *fakeStore) Create(_ context.Context, s *model.Session, requireNoActive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if requireNoActive {
		for _, existing := range f.sessions {
			if existing.UserID == s.UserID && existing.Active {
				return dao.ErrActiveSessionExists
			}
		}
	}

	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, sessionID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, postgres.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetActiveByUser(_ context.Context, userID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.UserID == userID && s.Active {
			cp := *s
			return &cp, nil
		}
	}
	return nil, postgres.ErrNoRows
}

func (f *fakeStore) ListActive(_ context.Context) ([]*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Session
	for _, s := range f.sessions {
		if s.Active {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	sessions, err := f.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (f *fakeStore) Touch(_ context.Context, sessionID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if f.failConditional || !ok || !s.Active {
		return false, nil
	}
	s.LastActivityTime = now
	return true, nil
}

func (f *fakeStore) UpdateLocation(_ context.Context, sessionID, moduleID, lessonID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if f.failConditional || !ok || !s.Active {
		return false, nil
	}
	s.ModuleID = moduleID
	s.LessonID = lessonID
	s.LastActivityTime = now
	return true, nil
}

func (f *fakeStore) End(_ context.Context, sessionID string, endTime time.Time, durationMinutes int64) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok || !s.Active {
		// 条件更新未命中
		return nil, postgres.ErrNoRows
	}
	s.Active = false
	et := endTime
	s.EndTime = &et
	s.DurationMinutes = durationMinutes
	cp := *s
	return &cp, nil
}

// fakePublisher 记录发布的事件
type fakePublisher struct {
	mu            sync.Mutex
	started       []*model.Session
	ended         []*model.Session
	heartbeats    []*model.Session
	confirmations []*events.ConfirmationEvent
	reconciles    []*events.ReconcileRequest
	lastAccessed  int
	streaks       []int64
}

func (f *fakePublisher) PublishStarted(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.started = append(f.started, &cp)
	return nil
}

func (f *fakePublisher) PublishEnded(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.ended = append(f.ended, &cp)
	return nil
}

func (f *fakePublisher) PublishHeartbeat(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.heartbeats = append(f.heartbeats, &cp)
	return nil
}

func (f *fakePublisher) PublishConfirmation(_ context.Context, c *events.ConfirmationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.confirmations = append(f.confirmations, &cp)
	return nil
}

func (f *fakePublisher) PublishReconcileRequest(_ context.Context, r *events.ReconcileRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.reconciles = append(f.reconciles, &cp)
	return nil
}

func (f *fakePublisher) UpdateLastAccessed(_ context.Context, _, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAccessed++
	return nil
}

func (f *fakePublisher) RecordStudyTime(_ context.Context, _ string, minutes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaks = append(f.streaks, minutes)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *SessionService
	store *fakeStore
	pub   *fakePublisher
	clock *fakeClock
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()

	promClient, err := prometheus.New(&prometheus.Config{
		Namespace:  "study_test",
		HTTPServer: prometheus.HTTPServerConfig{Enabled: false},
	})
	if err != nil {
		t.Fatalf("prometheus.New() error = %v", err)
	}
	t.Cleanup(func() { _ = promClient.Close() })

	store := newFakeStore()
	pub := &fakePublisher{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	gen := &seqGenerator{}

	svc, err := NewSessionService(
		cfg,
		store,
		pub,
		gen,
		logger.Noop(),
		metrics.New(promClient),
		WithLastAccessedUpdater(pub),
		WithStreakUpdater(pub),
		WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("NewSessionService() error = %v", err)
	}

	return &fixture{svc: svc, store: store, pub: pub, clock: clock}
}

type seqGenerator struct {
	mu   sync.Mutex
	next int64
}

func (g *seqGenerator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next, nil
}

func TestStartSessionRoundTrip(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	if session.UserID != "u1" || session.CourseID != "c1" || session.ModuleID != "m1" || session.LessonID != "l1" {
		t.Errorf("StartSession() fields = %+v", session)
	}
	if !session.Active {
		t.Error("StartSession() session not active")
	}
	if !session.StartTime.Equal(session.LastActivityTime) {
		t.Error("StartSession() startTime != lastActivityTime")
	}

	active, err := fx.svc.GetActiveSession(ctx, "u1")
	if err != nil {
		t.Fatalf("GetActiveSession() error = %v", err)
	}
	if active.ID != session.ID {
		t.Errorf("GetActiveSession() id = %q, want %q", active.ID, session.ID)
	}

	if len(fx.pub.started) != 1 {
		t.Errorf("started events = %d, want 1", len(fx.pub.started))
	}
	if fx.pub.lastAccessed != 1 {
		t.Errorf("lastAccessed calls = %d, want 1", fx.pub.lastAccessed)
	}
}

func TestStartSessionConflict(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	if _, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1"); err != nil {
		t.Fatalf("first StartSession() error = %v", err)
	}

	_, err := fx.svc.StartSession(ctx, "u1", "c2", "m1", "l1")
	if !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("second StartSession() error = %v, want ErrSessionConflict", err)
	}

	// 冲突时不创建记录、不发布 started 事件
	if len(fx.store.sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(fx.store.sessions))
	}
	if len(fx.pub.started) != 1 {
		t.Errorf("started events = %d, want 1", len(fx.pub.started))
	}

	// 失败确认不携带会话 ID
	var failureConfirm *events.ConfirmationEvent
	for _, c := range fx.pub.confirmations {
		if !c.Success {
			failureConfirm = c
		}
	}
	if failureConfirm == nil {
		t.Fatal("no failure confirmation published")
	}
	if failureConfirm.SessionID != "" {
		t.Errorf("failure confirmation session id = %q, want empty", failureConfirm.SessionID)
	}
}

func TestStartSessionMultipleAllowed(t *testing.T) {
	fx := newFixture(t, &Config{AllowMultipleActiveSessions: true})
	ctx := context.Background()

	if _, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1"); err != nil {
		t.Fatalf("first StartSession() error = %v", err)
	}
	if _, err := fx.svc.StartSession(ctx, "u1", "c2", "m1", "l1"); err != nil {
		t.Fatalf("second StartSession() error = %v", err)
	}

	active, err := fx.store.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Errorf("active sessions = %d, want 2", len(active))
	}
}

func TestEndSession(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}

	fx.clock.Advance(30*time.Minute + 42*time.Second)

	ended, err := fx.svc.EndSession(ctx, "u1", session.ID)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	if ended.Active {
		t.Error("EndSession() session still active")
	}
	if ended.EndTime == nil {
		t.Fatal("EndSession() endTime is nil")
	}
	if ended.DurationMinutes != 30 {
		t.Errorf("EndSession() duration = %d, want 30", ended.DurationMinutes)
	}

	// 时长 ≥ 1 分钟时触发连续学习协作方
	if len(fx.pub.streaks) != 1 || fx.pub.streaks[0] != 30 {
		t.Errorf("streak calls = %v, want [30]", fx.pub.streaks)
	}

	// 结束后查询报告不存在
	if _, err := fx.svc.GetActiveSession(ctx, "u1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetActiveSession() after end error = %v, want ErrSessionNotFound", err)
	}
}

func TestEndSessionShortSessionSkipsStreak(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}

	fx.clock.Advance(30 * time.Second)

	if _, err := fx.svc.EndSession(ctx, "u1", session.ID); err != nil {
		t.Fatal(err)
	}

	if len(fx.pub.streaks) != 0 {
		t.Errorf("streak calls = %v, want none for sub-minute session", fx.pub.streaks)
	}
}

func TestEndSessionTaxonomy(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}

	// 不存在的会话
	if _, err := fx.svc.EndSession(ctx, "u1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("EndSession(missing) error = %v, want ErrSessionNotFound", err)
	}

	// 他人的会话
	if _, err := fx.svc.EndSession(ctx, "u2", session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("EndSession(other user) error = %v, want ErrSessionNotFound", err)
	}

	// 重复结束
	if _, err := fx.svc.EndSession(ctx, "u1", session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.EndSession(ctx, "u1", session.ID); !errors.Is(err, ErrSessionAlreadyEnded) {
		t.Errorf("EndSession(again) error = %v, want ErrSessionAlreadyEnded", err)
	}
}

func TestHeartbeatLocationChange(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}

	fx.clock.Advance(time.Minute)

	// 位置未变：刷新活跃时间，不发布心跳事件
	if err := fx.svc.Heartbeat(ctx, session.ID, "m1", "l1"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if len(fx.pub.heartbeats) != 0 {
		t.Errorf("heartbeat events after liveness refresh = %d, want 0", len(fx.pub.heartbeats))
	}

	stored, _ := fx.store.GetByID(ctx, session.ID)
	if !stored.LastActivityTime.Equal(fx.clock.Now()) {
		t.Error("Heartbeat() did not refresh lastActivityTime")
	}

	// 位置变化：更新位置并发布心跳事件
	fx.clock.Advance(time.Minute)
	if err := fx.svc.Heartbeat(ctx, session.ID, "m1", "l2"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if len(fx.pub.heartbeats) != 1 {
		t.Fatalf("heartbeat events after location change = %d, want 1", len(fx.pub.heartbeats))
	}
	if fx.pub.heartbeats[0].LessonID != "l2" {
		t.Errorf("heartbeat lesson = %q, want l2", fx.pub.heartbeats[0].LessonID)
	}
}

func TestHeartbeatUnknownSession(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	err := fx.svc.Heartbeat(ctx, "missing", "m1", "l1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Heartbeat(missing) error = %v, want ErrSessionNotFound", err)
	}

	// 失败确认被发布，会话未被复活
	found := false
	for _, c := range fx.pub.confirmations {
		if c.Action == events.ActionHeartbeat && !c.Success {
			found = true
		}
	}
	if !found {
		t.Error("no failure confirmation for unknown session heartbeat")
	}
	if len(fx.store.sessions) != 0 {
		t.Error("heartbeat resurrected a session")
	}
}

func TestHeartbeatEndedSession(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.EndSession(ctx, "u1", session.ID); err != nil {
		t.Fatal(err)
	}

	if err := fx.svc.Heartbeat(ctx, session.ID, "m1", "l2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Heartbeat(ended) error = %v, want ErrSessionNotFound", err)
	}

	stored, _ := fx.store.GetByID(ctx, session.ID)
	if stored.Active {
		t.Error("heartbeat revived an ended session")
	}
	if stored.LessonID != "l1" {
		t.Error("heartbeat mutated an ended session")
	}
}

func TestHeartbeatRacingEndPublishesFailureConfirmation(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}

	// 读取后条件更新落空，相当于心跳与结束并发竞争失败
	fx.store.failConditional = true

	if err := fx.svc.Heartbeat(ctx, session.ID, "m1", "l1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Heartbeat(liveness, racing end) error = %v, want ErrSessionNotFound", err)
	}
	if err := fx.svc.Heartbeat(ctx, session.ID, "m1", "l2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Heartbeat(location change, racing end) error = %v, want ErrSessionNotFound", err)
	}

	// 两条路径都发布失败确认
	failures := 0
	for _, c := range fx.pub.confirmations {
		if c.Action == events.ActionHeartbeat && !c.Success {
			failures++
			if c.SessionID != session.ID || c.UserID != "u1" {
				t.Errorf("failure confirmation = %+v", c)
			}
		}
	}
	if failures != 2 {
		t.Errorf("heartbeat failure confirmations = %d, want 2", failures)
	}

	if len(fx.pub.heartbeats) != 0 {
		t.Errorf("heartbeat events = %d, want 0", len(fx.pub.heartbeats))
	}
}

func TestSweepExpiredInactivity(t *testing.T) {
	fx := newFixture(t, &Config{MaxInactivityMinutes: 15, MaxSessionDurationMinutes: 240})
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}

	// T0+30s 心跳移动位置
	fx.clock.Advance(30 * time.Second)
	if err := fx.svc.Heartbeat(ctx, session.ID, "m1", "l2"); err != nil {
		t.Fatal(err)
	}

	// T0+16min 触发不活跃超时
	fx.clock.Advance(15*time.Minute + 30*time.Second)

	ended, err := fx.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if ended != 1 {
		t.Fatalf("SweepExpired() = %d, want 1", ended)
	}

	stored, _ := fx.store.GetByID(ctx, session.ID)
	if stored.Active {
		t.Error("expired session still active")
	}
	if stored.DurationMinutes != 16 {
		t.Errorf("duration = %d, want 16", stored.DurationMinutes)
	}
	if len(fx.pub.ended) != 1 {
		t.Errorf("ended events = %d, want 1", len(fx.pub.ended))
	}

	// 后续 tick 不重复结束、不重复发布
	again, err := fx.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Errorf("second sweep = %d, want 0", again)
	}
	if len(fx.pub.ended) != 1 {
		t.Errorf("ended events after second sweep = %d, want 1", len(fx.pub.ended))
	}
}

func TestSweepExpiredMaxDuration(t *testing.T) {
	fx := newFixture(t, &Config{MaxInactivityMinutes: 15, MaxSessionDurationMinutes: 60})
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}

	// 每 10 分钟一次心跳保持活跃，总时长仍会触顶
	for i := 0; i < 6; i++ {
		fx.clock.Advance(10 * time.Minute)
		_ = fx.svc.Heartbeat(ctx, session.ID, "m1", "l1")
	}

	ended, err := fx.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ended != 1 {
		t.Fatalf("SweepExpired() = %d, want 1", ended)
	}

	stored, _ := fx.store.GetByID(ctx, session.ID)
	if stored.Active {
		t.Error("session exceeding max duration still active")
	}
}

func TestSweepRacingManualEnd(t *testing.T) {
	fx := newFixture(t, &Config{MaxInactivityMinutes: 15, MaxSessionDurationMinutes: 240})
	ctx := context.Background()

	session, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatal(err)
	}

	fx.clock.Advance(20 * time.Minute)

	// 手动结束先到
	if _, err := fx.svc.EndSession(ctx, "u1", session.ID); err != nil {
		t.Fatal(err)
	}

	// 扫描必须不重复发布 ended 事件
	ended, err := fx.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ended != 0 {
		t.Errorf("sweep after manual end = %d, want 0", ended)
	}
	if len(fx.pub.ended) != 1 {
		t.Errorf("ended events = %d, want exactly 1", len(fx.pub.ended))
	}
}

func TestConcurrentStartSingleActive(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	conflicts := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1"); err != nil {
				conflicts <- err
			}
		}()
	}
	wg.Wait()
	close(conflicts)

	active, err := fx.store.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("active sessions after concurrent starts = %d, want 1", len(active))
	}

	for err := range conflicts {
		if !errors.Is(err, ErrSessionConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

func TestRequestReconciliation(t *testing.T) {
	fx := newFixture(t, &Config{AllowMultipleActiveSessions: true})
	ctx := context.Background()

	s1, _ := fx.svc.StartSession(ctx, "u1", "c1", "m1", "l1")
	s2, _ := fx.svc.StartSession(ctx, "u2", "c1", "m1", "l1")

	req, err := fx.svc.RequestReconciliation(ctx)
	if err != nil {
		t.Fatalf("RequestReconciliation() error = %v", err)
	}

	if req.Scope != events.ReconcileScopeAll {
		t.Errorf("scope = %q, want %q", req.Scope, events.ReconcileScopeAll)
	}

	got := make(map[string]bool)
	for _, id := range req.ActiveSessionIDs {
		got[id] = true
	}
	if !got[s1.ID] || !got[s2.ID] {
		t.Errorf("active ids = %v, want both %q and %q", req.ActiveSessionIDs, s1.ID, s2.ID)
	}

	if len(fx.pub.reconciles) != 1 {
		t.Errorf("reconcile requests = %d, want 1", len(fx.pub.reconciles))
	}
}
