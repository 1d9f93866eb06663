package service

import (
	"context"
	"errors"
	"time"

	"github.com/edooria/edooria/app/study/internal/dao"
	"github.com/edooria/edooria/app/study/internal/metrics"
	"github.com/edooria/edooria/app/study/internal/model"
	"github.com/edooria/edooria/pkg/config"
	"github.com/edooria/edooria/pkg/database/postgres"
	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/idgen"
	"github.com/edooria/edooria/pkg/logger"
)

// SessionStore 会话存储
type SessionStore interface {
	Create(ctx context.Context, s *model.Session, requireNoActive bool) error
	GetByID(ctx context.Context, sessionID string) (*model.Session, error)
	GetActiveByUser(ctx context.Context, userID string) (*model.Session, error)
	ListActive(ctx context.Context) ([]*model.Session, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
	Touch(ctx context.Context, sessionID string, now time.Time) (bool, error)
	UpdateLocation(ctx context.Context, sessionID, moduleID, lessonID string, now time.Time) (bool, error)
	End(ctx context.Context, sessionID string, endTime time.Time, durationMinutes int64) (*model.Session, error)
}

// EventPublisher 生命周期事件发布
type EventPublisher interface {
	PublishStarted(ctx context.Context, s *model.Session) error
	PublishEnded(ctx context.Context, s *model.Session) error
	PublishHeartbeat(ctx context.Context, s *model.Session) error
	PublishConfirmation(ctx context.Context, c *events.ConfirmationEvent) error
	PublishReconcileRequest(ctx context.Context, r *events.ReconcileRequest) error
}

// LastAccessedUpdater 最近访问协作方（软依赖，失败只记日志）
type LastAccessedUpdater interface {
	UpdateLastAccessed(ctx context.Context, userID, courseID, moduleID, lessonID string) error
}

// StreakUpdater 连续学习协作方（软依赖，失败只记日志）
type StreakUpdater interface {
	RecordStudyTime(ctx context.Context, userID string, durationMinutes int64) error
}

// SessionService 会话生命周期服务，权威实现
type SessionService struct {
	config    *Config
	store     SessionStore
	publisher EventPublisher
	idgen     idgen.Generator
	logger    logger.Logger
	metrics   *metrics.StudyMetrics

	lastAccessed LastAccessedUpdater
	streak       StreakUpdater

	now func() time.Time
}

// Option 服务选项
type Option func(*SessionService)

// WithLastAccessedUpdater 设置最近访问协作方
func WithLastAccessedUpdater(u LastAccessedUpdater) Option {
	return func(s *SessionService) { s.lastAccessed = u }
}

// WithStreakUpdater 设置连续学习协作方
func WithStreakUpdater(u StreakUpdater) Option {
	return func(s *SessionService) { s.streak = u }
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessionService 创建会话服务
func NewSessionService(
	cfg *Config,
	store SessionStore,
	publisher EventPublisher,
	gen idgen.Generator,
	l logger.Logger,
	m *metrics.StudyMetrics,
	opts ...Option,
) (*SessionService, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}

	s := &SessionService{
		config:    newCfg,
		store:     store,
		publisher: publisher,
		idgen:     gen,
		logger:    l.Named("service.session"),
		metrics:   m,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Config 返回生效配置
func (s *SessionService) Config() *Config {
	return s.config
}

// StartSession 开始学习会话
// 禁止多活跃会话时，同一用户已有活跃会话返回 ErrSessionConflict，
// 不创建记录也不发布 started 事件
func (s *SessionService) StartSession(ctx context.Context, userID, courseID, moduleID, lessonID string) (*model.Session, error) {
	if userID == "" || courseID == "" {
		return nil, ErrInvalidRequest
	}

	sessionID, err := idgen.NextSessionID(s.idgen)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &model.Session{
		ID:               sessionID,
		UserID:           userID,
		CourseID:         courseID,
		ModuleID:         moduleID,
		LessonID:         lessonID,
		StartTime:        now,
		LastActivityTime: now,
		Active:           true,
	}

	if err := s.store.Create(ctx, session, !s.config.AllowMultipleActiveSessions); err != nil {
		if errors.Is(err, dao.ErrActiveSessionExists) {
			s.metrics.SessionsStarted.WithLabelValues("conflict").Inc()
			// 创建未发生，确认事件不携带会话 ID
			s.publishConfirmation(ctx, &events.ConfirmationEvent{
				UserID:    userID,
				Action:    events.ActionStarted,
				Success:   false,
				Message:   "active session already exists",
				Timestamp: now,
			})
			return nil, ErrSessionConflict
		}
		s.metrics.SessionsStarted.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.SessionsStarted.WithLabelValues("success").Inc()
	s.metrics.ActiveSessions.WithLabelValues().Inc()

	// 事件是尽力而为的：发布失败只记日志，由确认与对账路径兜底
	if err := s.publisher.PublishStarted(ctx, session); err != nil {
		s.logger.Error("failed to publish started event",
			"session_id", session.ID,
			"user_id", userID,
			"error", err,
		)
	}

	s.publishConfirmation(ctx, &events.ConfirmationEvent{
		SessionID: session.ID,
		UserID:    userID,
		Action:    events.ActionStarted,
		Success:   true,
		Timestamp: now,
	})

	s.updateLastAccessed(ctx, userID, courseID, moduleID, lessonID)

	s.logger.Info("session started",
		"session_id", session.ID,
		"user_id", userID,
		"course_id", courseID,
	)

	return session, nil
}

// EndSession 结束学习会话
func (s *SessionService) EndSession(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrInvalidRequest
	}

	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	// 不暴露他人会话的存在性
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}

	if !session.Active {
		return nil, ErrSessionAlreadyEnded
	}

	now := s.now()
	ended, err := s.endAndPublish(ctx, session, now, model.ExpiryReasonNone)
	if err != nil {
		return nil, err
	}

	return ended, nil
}

// Heartbeat 会话心跳
// 总是刷新活跃时间；位置变化时才更新位置并发布心跳事件。
// 未知或已结束的会话不复活，返回 ErrSessionNotFound 并发布失败确认
func (s *SessionService) Heartbeat(ctx context.Context, sessionID, moduleID, lessonID string) error {
	if sessionID == "" {
		return ErrInvalidRequest
	}

	now := s.now()

	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil && !errors.Is(err, postgres.ErrNoRows) {
		return err
	}

	if err != nil || !session.Active {
		userID := ""
		if session != nil {
			userID = session.UserID
		}
		return s.heartbeatMiss(ctx, sessionID, userID, now)
	}

	locationChanged := session.LocationChanged(moduleID, lessonID)

	if locationChanged {
		hit, err := s.store.UpdateLocation(ctx, sessionID, moduleID, lessonID, now)
		if err != nil {
			return err
		}
		if !hit {
			// 读取后被并发结束
			return s.heartbeatMiss(ctx, sessionID, session.UserID, now)
		}
		session.ModuleID = moduleID
		session.LessonID = lessonID
		session.LastActivityTime = now

		// 只有位置变化才广播心跳，约束事件量
		if err := s.publisher.PublishHeartbeat(ctx, session); err != nil {
			s.logger.Error("failed to publish heartbeat event",
				"session_id", sessionID,
				"error", err,
			)
		}

		s.updateLastAccessed(ctx, session.UserID, session.CourseID, moduleID, lessonID)
	} else {
		hit, err := s.store.Touch(ctx, sessionID, now)
		if err != nil {
			return err
		}
		if !hit {
			return s.heartbeatMiss(ctx, sessionID, session.UserID, now)
		}
		session.LastActivityTime = now
	}

	s.metrics.Heartbeats.WithLabelValues("success").Inc()

	s.publishConfirmation(ctx, &events.ConfirmationEvent{
		SessionID: sessionID,
		UserID:    session.UserID,
		Action:    events.ActionHeartbeat,
		Success:   true,
		Timestamp: now,
	})

	return nil
}

// heartbeatMiss 心跳落在未知、已结束或刚被并发结束的会话上
// 统一发布失败确认并返回 ErrSessionNotFound，绝不复活会话
func (s *SessionService) heartbeatMiss(ctx context.Context, sessionID, userID string, now time.Time) error {
	s.metrics.Heartbeats.WithLabelValues("unknown").Inc()
	s.logger.Warn("heartbeat for unknown or inactive session",
		"session_id", sessionID,
	)
	s.publishConfirmation(ctx, &events.ConfirmationEvent{
		SessionID: sessionID,
		UserID:    userID,
		Action:    events.ActionHeartbeat,
		Success:   false,
		Message:   "unknown or inactive session",
		Timestamp: now,
	})
	return ErrSessionNotFound
}

// GetActiveSession 查询用户的活跃会话
func (s *SessionService) GetActiveSession(ctx context.Context, userID string) (*model.Session, error) {
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	session, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// SweepExpired 超时扫描
// 规则 1：不活跃达到上限；规则 2：总时长达到上限（与活跃无关）。
// 强制结束复用 endSession 的全部路径，消费端无法区分手动与超时结束。
// 条件更新保证与并发手动结束竞争时只有一方发布 ended 事件
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()

	sessions, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, session := range sessions {
		reason := session.CheckExpiry(now, s.config.MaxInactivity(), s.config.MaxDuration())
		if reason == model.ExpiryReasonNone {
			continue
		}

		if _, err := s.endAndPublish(ctx, session, now, reason); err != nil {
			if errors.Is(err, ErrSessionAlreadyEnded) {
				// 与手动结束竞争失败，对方已发布事件
				continue
			}
			s.logger.Error("failed to force-end expired session",
				"session_id", session.ID,
				"reason", string(reason),
				"error", err,
			)
			continue
		}

		s.logger.Info("session force-ended",
			"session_id", session.ID,
			"user_id", session.UserID,
			"reason", string(reason),
		)
		ended++
	}

	return ended, nil
}

// RequestReconciliation 广播对账请求，携带权威侧的活跃会话 ID 集合
func (s *SessionService) RequestReconciliation(ctx context.Context) (*events.ReconcileRequest, error) {
	ids, err := s.store.ListActiveIDs(ctx)
	if err != nil {
		return nil, err
	}

	requestID, err := idgen.NextSessionID(s.idgen)
	if err != nil {
		return nil, err
	}

	req := &events.ReconcileRequest{
		RequestID:        requestID,
		Scope:            events.ReconcileScopeAll,
		ActiveSessionIDs: ids,
		Timestamp:        s.now(),
	}

	if err := s.publisher.PublishReconcileRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("reconcile request published",
		"request_id", requestID,
		"active_sessions", len(ids),
	)

	return req, nil
}

// HandleReconcileResponse 处理对账响应：只报告，不自动修复
func (s *SessionService) HandleReconcileResponse(ctx context.Context, resp *events.ReconcileResponse) {
	s.metrics.ReconcileMissingInMirror.WithLabelValues().Set(float64(len(resp.MissingInMirror)))
	s.metrics.ReconcileMissingInOwner.WithLabelValues().Set(float64(len(resp.MissingInOwner)))

	if len(resp.MissingInMirror) == 0 && len(resp.MissingInOwner) == 0 {
		s.logger.Info("reconcile response: no drift",
			"request_id", resp.RequestID,
		)
		return
	}

	s.logger.Warn("reconcile response: drift detected",
		"request_id", resp.RequestID,
		"missing_in_mirror", resp.MissingInMirror,
		"missing_in_owner", resp.MissingInOwner,
	)
}

// endAndPublish 结束会话并发布事件，手动结束和超时强制结束共用
func (s *SessionService) endAndPublish(ctx context.Context, session *model.Session, now time.Time, reason model.ExpiryReason) (*model.Session, error) {
	duration := model.Duration(session.StartTime, now)

	ended, err := s.store.End(ctx, session.ID, now, duration)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			// 另一条路径已完成 active→inactive 的转换
			return nil, ErrSessionAlreadyEnded
		}
		return nil, err
	}

	endReason := "manual"
	if reason != model.ExpiryReasonNone {
		endReason = string(reason)
	}
	s.metrics.SessionsEnded.WithLabelValues(endReason).Inc()
	s.metrics.ActiveSessions.WithLabelValues().Dec()

	if err := s.publisher.PublishEnded(ctx, ended); err != nil {
		s.logger.Error("failed to publish ended event",
			"session_id", ended.ID,
			"error", err,
		)
	}

	s.publishConfirmation(ctx, &events.ConfirmationEvent{
		SessionID: ended.ID,
		UserID:    ended.UserID,
		Action:    events.ActionEnded,
		Success:   true,
		Timestamp: now,
	})

	if ended.DurationMinutes >= 1 && s.streak != nil {
		if err := s.streak.RecordStudyTime(ctx, ended.UserID, ended.DurationMinutes); err != nil {
			s.logger.Warn("failed to record study time",
				"user_id", ended.UserID,
				"error", err,
			)
		}
	}

	return ended, nil
}

func (s *SessionService) publishConfirmation(ctx context.Context, c *events.ConfirmationEvent) {
	if err := s.publisher.PublishConfirmation(ctx, c); err != nil {
		s.logger.Error("failed to publish confirmation",
			"session_id", c.SessionID,
			"action", c.Action.String(),
			"error", err,
		)
	}
}

func (s *SessionService) updateLastAccessed(ctx context.Context, userID, courseID, moduleID, lessonID string) {
	if s.lastAccessed == nil {
		return
	}
	if err := s.lastAccessed.UpdateLastAccessed(ctx, userID, courseID, moduleID, lessonID); err != nil {
		s.logger.Warn("failed to update last accessed",
			"user_id", userID,
			"course_id", courseID,
			"error", err,
		)
	}
}
