package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edooria/edooria/app/progress/internal/dao"
	"github.com/edooria/edooria/app/progress/internal/metrics"
	"github.com/edooria/edooria/app/progress/internal/model"
	"github.com/edooria/edooria/pkg/config"
	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/logger"
)

// MirrorStore 镜像存储
type MirrorStore interface {
	Put(ctx context.Context, r *model.MirrorRecord) error
	Get(ctx context.Context, sessionID string) (*model.MirrorRecord, error)
	Remove(ctx context.Context, sessionID, userID string, tombstoneTTL time.Duration) (bool, error)
	HasTombstone(ctx context.Context, sessionID string) (bool, error)
	ActiveIDs(ctx context.Context) ([]string, error)
	ActiveByUser(ctx context.Context, userID string) ([]*model.MirrorRecord, error)
	CountActive(ctx context.Context) (int64, error)
	SetLastAccess(ctx context.Context, a *model.LastAccess) error
	GetLastAccess(ctx context.Context, userID string) (*model.LastAccess, error)
}

// ResponsePublisher 对账响应发布
type ResponsePublisher interface {
	PublishReconcileResponse(ctx context.Context, r *events.ReconcileResponse) error
}

// MirrorService 会话镜像服务
// 消费事件流维护非权威副本，支撑读查询和对账。
// 所有应用操作都是幂等的：事件总线保证至少一次投递，重复到达不得产生副作用
type MirrorService struct {
	config    *Config
	store     MirrorStore
	publisher ResponsePublisher
	logger    logger.Logger
	metrics   *metrics.ProgressMetrics

	now func() time.Time
}

// Option 服务选项
type Option func(*MirrorService)

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *MirrorService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMirrorService 创建镜像服务
func NewMirrorService(
	cfg *Config,
	store MirrorStore,
	publisher ResponsePublisher,
	l logger.Logger,
	m *metrics.ProgressMetrics,
	opts ...Option,
) (*MirrorService, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}

	s := &MirrorService{
		config:    newCfg,
		store:     store,
		publisher: publisher,
		logger:    l.Named("service.mirror"),
		metrics:   m,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Config 返回生效配置
func (s *MirrorService) Config() *Config {
	return s.config
}

// ApplySessionEvent 应用会话生命周期事件
func (s *MirrorService) ApplySessionEvent(ctx context.Context, ev *events.SessionEvent) error {
	if err := ev.Validate(); err != nil {
		s.metrics.EventsApplied.WithLabelValues("invalid", "rejected").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	switch ev.Action {
	case events.ActionStarted:
		return s.applyStarted(ctx, ev)
	case events.ActionHeartbeat:
		return s.applyHeartbeat(ctx, ev)
	case events.ActionEnded:
		return s.applyEnded(ctx, ev)
	default:
		s.metrics.EventsApplied.WithLabelValues(string(ev.Action), "rejected").Inc()
		return fmt.Errorf("%w: unhandled action %q", ErrInvalidEvent, string(ev.Action))
	}
}

// applyStarted 应用会话开始事件
func (s *MirrorService) applyStarted(ctx context.Context, ev *events.SessionEvent) error {
	suppressed, err := s.suppressedByTombstone(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	if suppressed {
		return nil
	}

	existing, err := s.store.Get(ctx, ev.SessionID)
	if err != nil && !errors.Is(err, dao.ErrMirrorNotFound) {
		return err
	}

	if existing != nil {
		// 重复投递：单调合并即可
		if existing.ApplyActivity(ev.CourseID, ev.ModuleID, ev.LessonID, ev.Timestamp) {
			if err := s.store.Put(ctx, existing); err != nil {
				return err
			}
		}
		s.metrics.EventsApplied.WithLabelValues("started", "duplicate").Inc()
		return nil
	}

	record := &model.MirrorRecord{
		SessionID:        ev.SessionID,
		UserID:           ev.UserID,
		CourseID:         ev.CourseID,
		ModuleID:         ev.ModuleID,
		LessonID:         ev.LessonID,
		StartTime:        ev.Timestamp,
		LastActivityTime: ev.Timestamp,
	}
	if err := s.store.Put(ctx, record); err != nil {
		return err
	}

	s.metrics.EventsApplied.WithLabelValues("started", "applied").Inc()
	s.logger.Debug("mirror record created",
		"session_id", ev.SessionID,
		"user_id", ev.UserID,
	)
	return nil
}

// applyHeartbeat 应用心跳事件
// 镜像中没有对应记录时自愈创建，有则单调更新
func (s *MirrorService) applyHeartbeat(ctx context.Context, ev *events.SessionEvent) error {
	suppressed, err := s.suppressedByTombstone(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	if suppressed {
		return nil
	}

	existing, err := s.store.Get(ctx, ev.SessionID)
	if err != nil {
		if !errors.Is(err, dao.ErrMirrorNotFound) {
			return err
		}
		// 错过了开始事件，从心跳携带的上下文自愈
		healed := model.NewHealedRecord(ev.SessionID, ev.UserID, ev.CourseID, ev.ModuleID, ev.LessonID, ev.Timestamp)
		if err := s.store.Put(ctx, healed); err != nil {
			return err
		}
		s.metrics.SelfHeals.WithLabelValues("heartbeat").Inc()
		s.logger.Info("mirror record self-healed from heartbeat",
			"session_id", ev.SessionID,
			"user_id", ev.UserID,
		)
		return nil
	}

	if existing.ApplyActivity(ev.CourseID, ev.ModuleID, ev.LessonID, ev.Timestamp) {
		if err := s.store.Put(ctx, existing); err != nil {
			return err
		}
		s.metrics.EventsApplied.WithLabelValues("heartbeat", "applied").Inc()
	} else {
		s.metrics.EventsApplied.WithLabelValues("heartbeat", "stale").Inc()
	}
	return nil
}

// applyEnded 应用会话结束事件
// 删除镜像记录并写入墓碑；记录缺失是良性的（重复投递或从未镜像过）
func (s *MirrorService) applyEnded(ctx context.Context, ev *events.SessionEvent) error {
	existed, err := s.store.Remove(ctx, ev.SessionID, ev.UserID, s.config.TombstoneTTL())
	if err != nil {
		return err
	}

	if existed {
		s.metrics.EventsApplied.WithLabelValues("ended", "applied").Inc()
		s.logger.Debug("mirror record removed",
			"session_id", ev.SessionID,
			"user_id", ev.UserID,
		)
	} else {
		s.metrics.EventsApplied.WithLabelValues("ended", "duplicate").Inc()
		s.logger.Debug("ended event for absent mirror record",
			"session_id", ev.SessionID,
		)
	}
	return nil
}

// ApplyConfirmation 应用确认事件
// 成功确认与生命周期事件互为兜底：任一到达都能收敛镜像状态。
// 失败确认只观测，不改变镜像
func (s *MirrorService) ApplyConfirmation(ctx context.Context, c *events.ConfirmationEvent) error {
	if err := c.Validate(); err != nil {
		s.metrics.EventsApplied.WithLabelValues("confirmation", "rejected").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if !c.Success {
		s.metrics.EventsApplied.WithLabelValues("confirmation", "failure_observed").Inc()
		s.logger.Debug("operation failure confirmed",
			"session_id", c.SessionID,
			"user_id", c.UserID,
			"action", c.Action.String(),
			"message", c.Message,
		)
		return nil
	}

	// 冲突失败的开始确认不携带会话 ID，无可应用的状态
	if c.SessionID == "" {
		return nil
	}

	switch c.Action {
	case events.ActionEnded:
		_, err := s.store.Remove(ctx, c.SessionID, c.UserID, s.config.TombstoneTTL())
		return err

	case events.ActionStarted, events.ActionHeartbeat:
		suppressed, err := s.suppressedByTombstone(ctx, c.SessionID)
		if err != nil {
			return err
		}
		if suppressed {
			return nil
		}

		existing, err := s.store.Get(ctx, c.SessionID)
		if err != nil {
			if !errors.Is(err, dao.ErrMirrorNotFound) {
				return err
			}
			// 确认事件不携带课程和位置，占位自愈，等后续心跳补齐
			healed := model.NewHealedRecord(c.SessionID, c.UserID, "", "", "", c.Timestamp)
			if err := s.store.Put(ctx, healed); err != nil {
				return err
			}
			s.metrics.SelfHeals.WithLabelValues("confirmation").Inc()
			s.logger.Info("mirror record self-healed from confirmation",
				"session_id", c.SessionID,
				"user_id", c.UserID,
			)
			return nil
		}

		if existing.ApplyActivity("", "", "", c.Timestamp) {
			return s.store.Put(ctx, existing)
		}
		return nil

	default:
		return fmt.Errorf("%w: unhandled confirmation action %q", ErrInvalidEvent, string(c.Action))
	}
}

// ApplyLastAccess 应用课程最近访问事件
func (s *MirrorService) ApplyLastAccess(ctx context.Context, ev *events.LastAccessEvent) error {
	if ev.UserID == "" || ev.CourseID == "" {
		return fmt.Errorf("%w: last access event missing user_id or course_id", ErrInvalidEvent)
	}

	return s.store.SetLastAccess(ctx, &model.LastAccess{
		UserID:     ev.UserID,
		CourseID:   ev.CourseID,
		ModuleID:   ev.ModuleID,
		LessonID:   ev.LessonID,
		AccessedAt: ev.Timestamp,
	})
}

// HandleReconcileRequest 处理对账请求
// 用权威侧的活跃集合与镜像集合做双向差集并发布响应，不修改本地状态。
// 范围为具体用户时只比较该用户的镜像记录，其他用户的会话不参与差集
func (s *MirrorService) HandleReconcileRequest(ctx context.Context, req *events.ReconcileRequest) (*events.ReconcileResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	mirrorIDs, err := s.scopedMirrorIDs(ctx, req.Scope)
	if err != nil {
		s.metrics.ReconcileResponses.WithLabelValues("error").Inc()
		return nil, err
	}

	ownerSet := make(map[string]struct{}, len(req.ActiveSessionIDs))
	for _, id := range req.ActiveSessionIDs {
		ownerSet[id] = struct{}{}
	}
	mirrorSet := make(map[string]struct{}, len(mirrorIDs))
	for _, id := range mirrorIDs {
		mirrorSet[id] = struct{}{}
	}

	missingInMirror := make([]string, 0)
	for _, id := range req.ActiveSessionIDs {
		if _, ok := mirrorSet[id]; !ok {
			missingInMirror = append(missingInMirror, id)
		}
	}
	missingInOwner := make([]string, 0)
	for _, id := range mirrorIDs {
		if _, ok := ownerSet[id]; !ok {
			missingInOwner = append(missingInOwner, id)
		}
	}

	resp := &events.ReconcileResponse{
		RequestID:       req.RequestID,
		Scope:           req.Scope,
		MissingInMirror: missingInMirror,
		MissingInOwner:  missingInOwner,
		Timestamp:       s.now(),
	}

	if err := s.publisher.PublishReconcileResponse(ctx, resp); err != nil {
		s.metrics.ReconcileResponses.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.ReconcileResponses.WithLabelValues("success").Inc()
	s.logger.Info("reconcile response published",
		"request_id", req.RequestID,
		"missing_in_mirror", len(missingInMirror),
		"missing_in_owner", len(missingInOwner),
	)

	return resp, nil
}

// scopedMirrorIDs 返回对账范围内的镜像会话 ID
func (s *MirrorService) scopedMirrorIDs(ctx context.Context, scope string) ([]string, error) {
	if scope == events.ReconcileScopeAll {
		return s.store.ActiveIDs(ctx)
	}

	records, err := s.store.ActiveByUser(ctx, scope)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.SessionID)
	}
	return ids, nil
}

// GetActiveSessions 查询用户的活跃镜像记录
func (s *MirrorService) GetActiveSessions(ctx context.Context, userID string) ([]*model.MirrorRecord, error) {
	if userID == "" {
		return nil, ErrInvalidEvent
	}
	return s.store.ActiveByUser(ctx, userID)
}

// GetLastAccess 查询用户课程最近访问记录
func (s *MirrorService) GetLastAccess(ctx context.Context, userID string) (*model.LastAccess, error) {
	if userID == "" {
		return nil, ErrInvalidEvent
	}

	a, err := s.store.GetLastAccess(ctx, userID)
	if err != nil {
		if errors.Is(err, dao.ErrMirrorNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return a, nil
}

// CleanupStale 清理陈旧镜像记录
// 默认关闭：镜像非权威，孤儿记录交给对账流程报告而不是静默删除
func (s *MirrorService) CleanupStale(ctx context.Context) (int, error) {
	if !s.config.AutoPurgeStale {
		return 0, nil
	}

	ids, err := s.store.ActiveIDs(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	purged := 0
	for _, id := range ids {
		r, err := s.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, dao.ErrMirrorNotFound) {
				continue
			}
			return purged, err
		}

		if now.Sub(r.LastActivityTime) < s.config.StaleThreshold() {
			continue
		}

		if _, err := s.store.Remove(ctx, r.SessionID, r.UserID, s.config.TombstoneTTL()); err != nil {
			s.logger.Error("failed to purge stale mirror record",
				"session_id", r.SessionID,
				"error", err,
			)
			continue
		}

		s.metrics.StaleRecordsPurged.WithLabelValues().Inc()
		s.logger.Warn("stale mirror record purged",
			"session_id", r.SessionID,
			"user_id", r.UserID,
			"last_activity_time", r.LastActivityTime,
		)
		purged++
	}

	return purged, nil
}

// RefreshGauges 刷新镜像规模指标
func (s *MirrorService) RefreshGauges(ctx context.Context) {
	n, err := s.store.CountActive(ctx)
	if err != nil {
		s.logger.Warn("failed to count mirror sessions", "error", err)
		return
	}
	s.metrics.MirrorSessions.WithLabelValues().Set(float64(n))
}

// suppressedByTombstone 检查迟到事件是否被墓碑拦截
func (s *MirrorService) suppressedByTombstone(ctx context.Context, sessionID string) (bool, error) {
	found, err := s.store.HasTombstone(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if found {
		s.metrics.TombstoneSuppressed.WithLabelValues().Inc()
		s.logger.Debug("late event suppressed by tombstone",
			"session_id", sessionID,
		)
	}
	return found, nil
}
