package dao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edooria/edooria/app/progress/internal/metrics"
	"github.com/edooria/edooria/app/progress/internal/model"
	"github.com/edooria/edooria/pkg/database/redis"
	"github.com/edooria/edooria/pkg/logger"
)

// Redis 键布局
//   mirror:session:<sessionID>  镜像记录（JSON 字符串）
//   mirror:active               活跃会话 ID 集合
//   mirror:user:<userID>        用户的活跃会话 ID 集合
//   mirror:ended:<sessionID>    墓碑（带 TTL），拦截迟到事件
//   progress:lastaccess:<userID> 课程最近访问哈希
const (
	keySessionPrefix    = "mirror:session:"
	keyActiveSet        = "mirror:active"
	keyUserPrefix       = "mirror:user:"
	keyTombstonePrefix  = "mirror:ended:"
	keyLastAccessPrefix = "progress:lastaccess:"
)

// MirrorDAO 镜像存储数据访问对象
type MirrorDAO struct {
	rdb     *redis.Client
	logger  logger.Logger
	metrics *metrics.ProgressMetrics
}

// NewMirrorDAO 创建镜像 DAO
func NewMirrorDAO(rdb *redis.Client, l logger.Logger, m *metrics.ProgressMetrics) *MirrorDAO {
	return &MirrorDAO{
		rdb:     rdb,
		logger:  l.Named("dao.mirror"),
		metrics: m,
	}
}

// Put 写入或覆盖镜像记录
func (d *MirrorDAO) Put(ctx context.Context, r *model.MirrorRecord) error {
	start := time.Now()
	defer func() {
		d.metrics.RecordStoreOp("put", time.Since(start))
	}()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror record: %w", err)
	}

	if err := d.rdb.Set(ctx, keySessionPrefix+r.SessionID, data, 0); err != nil {
		return fmt.Errorf("failed to store mirror record: %w", err)
	}

	if _, err := d.rdb.SAdd(ctx, keyActiveSet, r.SessionID); err != nil {
		return fmt.Errorf("failed to index active session: %w", err)
	}
	if _, err := d.rdb.SAdd(ctx, keyUserPrefix+r.UserID, r.SessionID); err != nil {
		return fmt.Errorf("failed to index user session: %w", err)
	}

	return nil
}

// Get 读取镜像记录
func (d *MirrorDAO) Get(ctx context.Context, sessionID string) (*model.MirrorRecord, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordStoreOp("get", time.Since(start))
	}()

	data, err := d.rdb.Get(ctx, keySessionPrefix+sessionID)
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, ErrMirrorNotFound
		}
		return nil, fmt.Errorf("failed to load mirror record: %w", err)
	}

	var r model.MirrorRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mirror record: %w", err)
	}
	return &r, nil
}

// Remove 删除镜像记录并写入墓碑
// 返回删除时记录是否存在；重复删除是幂等的
func (d *MirrorDAO) Remove(ctx context.Context, sessionID, userID string, tombstoneTTL time.Duration) (bool, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordStoreOp("remove", time.Since(start))
	}()

	// 墓碑先行：即使后续删除失败，迟到事件也会被拦截
	if tombstoneTTL > 0 {
		if err := d.rdb.Set(ctx, keyTombstonePrefix+sessionID, "1", tombstoneTTL); err != nil {
			return false, fmt.Errorf("failed to write tombstone: %w", err)
		}
	}

	deleted, err := d.rdb.Del(ctx, keySessionPrefix+sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete mirror record: %w", err)
	}

	if _, err := d.rdb.SRem(ctx, keyActiveSet, sessionID); err != nil {
		return false, fmt.Errorf("failed to deindex active session: %w", err)
	}
	if userID != "" {
		if _, err := d.rdb.SRem(ctx, keyUserPrefix+userID, sessionID); err != nil {
			return false, fmt.Errorf("failed to deindex user session: %w", err)
		}
	}

	return deleted > 0, nil
}

// HasTombstone 检查会话是否已有墓碑
func (d *MirrorDAO) HasTombstone(ctx context.Context, sessionID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, keyTombstonePrefix+sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to check tombstone: %w", err)
	}
	return n > 0, nil
}

// ActiveIDs 列出镜像中的活跃会话 ID
func (d *MirrorDAO) ActiveIDs(ctx context.Context) ([]string, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordStoreOp("active_ids", time.Since(start))
	}()

	ids, err := d.rdb.SMembers(ctx, keyActiveSet)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return ids, nil
}

// ActiveByUser 列出用户的活跃镜像记录
// 集合中可能存在已被删除记录的残留 ID，跳过即可
func (d *MirrorDAO) ActiveByUser(ctx context.Context, userID string) ([]*model.MirrorRecord, error) {
	ids, err := d.rdb.SMembers(ctx, keyUserPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}

	records := make([]*model.MirrorRecord, 0, len(ids))
	for _, id := range ids {
		r, err := d.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrMirrorNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// CountActive 统计镜像中的活跃会话数
func (d *MirrorDAO) CountActive(ctx context.Context) (int64, error) {
	n, err := d.rdb.SCard(ctx, keyActiveSet)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

// SetLastAccess 更新用户课程最近访问记录
func (d *MirrorDAO) SetLastAccess(ctx context.Context, a *model.LastAccess) error {
	start := time.Now()
	defer func() {
		d.metrics.RecordStoreOp("set_last_access", time.Since(start))
	}()

	_, err := d.rdb.HSet(ctx, keyLastAccessPrefix+a.UserID,
		"course_id", a.CourseID,
		"module_id", a.ModuleID,
		"lesson_id", a.LessonID,
		"accessed_at", a.AccessedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store last access: %w", err)
	}
	return nil
}

// GetLastAccess 读取用户课程最近访问记录
func (d *MirrorDAO) GetLastAccess(ctx context.Context, userID string) (*model.LastAccess, error) {
	m, err := d.rdb.HGetAll(ctx, keyLastAccessPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last access: %w", err)
	}
	if len(m) == 0 {
		return nil, ErrMirrorNotFound
	}

	a := &model.LastAccess{
		UserID:   userID,
		CourseID: m["course_id"],
		ModuleID: m["module_id"],
		LessonID: m["lesson_id"],
	}
	if raw, ok := m["accessed_at"]; ok && raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse accessed_at: %w", err)
		}
		a.AccessedAt = at
	}
	return a, nil
}
