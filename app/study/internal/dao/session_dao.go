package dao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/edooria/edooria/app/study/internal/metrics"
	"github.com/edooria/edooria/app/study/internal/model"
	"github.com/edooria/edooria/pkg/database/postgres"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/jackc/pgx/v5"
)

const sessionTable = "study_sessions"

var sessionColumns = []string{
	"id", "user_id", "course_id", "module_id", "lesson_id",
	"start_time", "end_time", "last_activity_time", "active",
	"duration_minutes", "created_at", "updated_at",
}

// SessionDAO 会话数据访问对象
type SessionDAO struct {
	db      *postgres.Client
	logger  logger.Logger
	metrics *metrics.StudyMetrics
}

// NewSessionDAO 创建会话 DAO
func NewSessionDAO(db *postgres.Client, l logger.Logger, m *metrics.StudyMetrics) *SessionDAO {
	return &SessionDAO{
		db:      db,
		logger:  l.Named("dao.session"),
		metrics: m,
	}
}

// WithTx 在事务中执行
func (d *SessionDAO) WithTx(ctx context.Context, fn func(tx postgres.Tx) error) error {
	return d.db.WithTx(ctx, fn)
}

// LockActiveByUser 锁定用户的活跃会话行并返回是否存在
// 用于 start 时的冲突检查，FOR UPDATE 阻塞并发的重复创建
func (d *SessionDAO) LockActiveByUser(ctx context.Context, tx postgres.Tx, userID string) (bool, error) {
	query, args, err := squirrel.
		Select("id").
		From(sessionTable).
		Where(squirrel.Eq{"user_id": userID, "active": true}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to lock active sessions: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("rows iteration error: %w", err)
	}
	return exists, nil
}

// CreateTx 在事务中插入会话
func (d *SessionDAO) CreateTx(ctx context.Context, tx postgres.Tx, s *model.Session) error {
	start := time.Now()
	defer func() {
		d.metrics.RecordDBQuery("insert", time.Since(start))
	}()

	query, args, err := squirrel.
		Insert(sessionTable).
		Columns(
			"id", "user_id", "course_id", "module_id", "lesson_id",
			"start_time", "last_activity_time", "active",
		).
		Values(
			s.ID, s.UserID, s.CourseID, s.ModuleID, s.LessonID,
			s.StartTime, s.LastActivityTime, s.Active,
		).
		Suffix("RETURNING created_at, updated_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		d.logger.Error("failed to create session",
			"session_id", s.ID,
			"user_id", s.UserID,
			"error", err,
		)
		return fmt.Errorf("failed to create session: %w", err)
	}

	d.logger.Info("session created",
		"session_id", s.ID,
		"user_id", s.UserID,
		"course_id", s.CourseID,
	)

	return nil
}

// Create 创建会话
// requireNoActive 为 true 时在同一事务内做冲突检查：
// 先以 FOR UPDATE 锁定用户的活跃会话行，存在则返回 ErrActiveSessionExists
func (d *SessionDAO) Create(ctx context.Context, s *model.Session, requireNoActive bool) error {
	return d.db.WithTx(ctx, func(tx postgres.Tx) error {
		if requireNoActive {
			exists, err := d.LockActiveByUser(ctx, tx, s.UserID)
			if err != nil {
				return err
			}
			if exists {
				return ErrActiveSessionExists
			}
		}
		return d.CreateTx(ctx, tx, s)
	})
}

// GetByID 根据 ID 获取会话
func (d *SessionDAO) GetByID(ctx context.Context, sessionID string) (*model.Session, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDBQuery("select", time.Since(start))
	}()

	query, args, err := squirrel.
		Select(sessionColumns...).
		From(sessionTable).
		Where(squirrel.Eq{"id": sessionID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	s, err := scanSession(d.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, postgres.ErrNoRows
		}
		d.logger.Error("failed to get session by id",
			"session_id", sessionID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// GetActiveByUser 获取用户的活跃会话
func (d *SessionDAO) GetActiveByUser(ctx context.Context, userID string) (*model.Session, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDBQuery("select", time.Since(start))
	}()

	query, args, err := squirrel.
		Select(sessionColumns...).
		From(sessionTable).
		Where(squirrel.Eq{"user_id": userID, "active": true}).
		OrderBy("start_time DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	s, err := scanSession(d.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, postgres.ErrNoRows
		}
		d.logger.Error("failed to get active session",
			"user_id", userID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	return s, nil
}

// ListActive 获取所有活跃会话
func (d *SessionDAO) ListActive(ctx context.Context) ([]*model.Session, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDBQuery("select", time.Since(start))
	}()

	query, args, err := squirrel.
		Select(sessionColumns...).
		From(sessionTable).
		Where(squirrel.Eq{"active": true}).
		OrderBy("start_time ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		d.logger.Error("failed to list active sessions", "error", err)
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return sessions, nil
}

// ListActiveIDs 获取所有活跃会话 ID（对账用）
func (d *SessionDAO) ListActiveIDs(ctx context.Context) ([]string, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDBQuery("select", time.Since(start))
	}()

	query, args, err := squirrel.
		Select("id").
		From(sessionTable).
		Where(squirrel.Eq{"active": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active session ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return ids, nil
}

// CountActive 统计活跃会话数
func (d *SessionDAO) CountActive(ctx context.Context) (int64, error) {
	query, args, err := squirrel.
		Select("COUNT(*)").
		From(sessionTable).
		Where(squirrel.Eq{"active": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int64
	if err := d.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// Touch 刷新活跃时间
// 仅对活跃会话生效，返回是否命中
func (d *SessionDAO) Touch(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDBQuery("update", time.Since(start))
	}()

	query, args, err := squirrel.
		Update(sessionTable).
		Set("last_activity_time", now).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": sessionID, "active": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	affected, err := d.db.Exec(ctx, query, args...)
	if err != nil {
		d.logger.Error("failed to touch session",
			"session_id", sessionID,
			"error", err,
		)
		return false, fmt.Errorf("failed to touch session: %w", err)
	}

	return affected > 0, nil
}

// UpdateLocation 更新位置并刷新活跃时间
func (d *SessionDAO) UpdateLocation(ctx context.Context, sessionID, moduleID, lessonID string, now time.Time) (bool, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDBQuery("update", time.Since(start))
	}()

	query, args, err := squirrel.
		Update(sessionTable).
		Set("module_id", moduleID).
		Set("lesson_id", lessonID).
		Set("last_activity_time", now).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": sessionID, "active": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	affected, err := d.db.Exec(ctx, query, args...)
	if err != nil {
		d.logger.Error("failed to update session location",
			"session_id", sessionID,
			"error", err,
		)
		return false, fmt.Errorf("failed to update session location: %w", err)
	}

	return affected > 0, nil
}

// End 结束会话
// WHERE active=true 的条件更新保证 active→inactive 的转换恰好发生一次：
// 手动结束和超时强制结束竞争时只有一方会拿到返回行
func (d *SessionDAO) End(ctx context.Context, sessionID string, endTime time.Time, durationMinutes int64) (*model.Session, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDBQuery("update", time.Since(start))
	}()

	query, args, err := squirrel.
		Update(sessionTable).
		Set("active", false).
		Set("end_time", endTime).
		Set("duration_minutes", durationMinutes).
		Set("updated_at", endTime).
		Where(squirrel.Eq{"id": sessionID, "active": true}).
		Suffix("RETURNING " + strings.Join(sessionColumns, ", ")).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	s, err := scanSession(d.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// 会话不存在或已被另一方结束
			return nil, postgres.ErrNoRows
		}
		d.logger.Error("failed to end session",
			"session_id", sessionID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	d.logger.Info("session ended",
		"session_id", s.ID,
		"user_id", s.UserID,
		"duration_minutes", s.DurationMinutes,
	)

	return s, nil
}

// rowScanner 兼容 pgx.Row 和 pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.CourseID,
		&s.ModuleID,
		&s.LessonID,
		&s.StartTime,
		&s.EndTime,
		&s.LastActivityTime,
		&s.Active,
		&s.DurationMinutes,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
