package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/edooria/edooria/app/progress/internal/service"
	"github.com/edooria/edooria/pkg/database/redis"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/robfig/cron/v3"
)

const cleanupLockKey = "progress:lock:cleanup"

// Config 定时任务配置
type Config struct {
	// GaugeRefreshSeconds 镜像规模指标刷新间隔（秒）
	GaugeRefreshSeconds int `mapstructure:"gauge_refresh_seconds"`

	// LockTTL 分布式锁 TTL，应大于单次清理耗时
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		GaugeRefreshSeconds: 30,
		LockTTL:             30 * time.Second,
	}
}

// Scheduler 镜像清理与指标刷新定时任务
// 清理任务通过 Redis 分布式锁保证每个 tick 只有一个实例执行
type Scheduler struct {
	config *Config
	cron   *cron.Cron
	svc    *service.MirrorService
	rdb    *redis.Client
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建定时任务调度器
func New(cfg *Config, svc *service.MirrorService, rdb *redis.Client, l logger.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.GaugeRefreshSeconds <= 0 {
		cfg.GaugeRefreshSeconds = 30
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		config: cfg,
		cron:   cron.New(),
		svc:    svc,
		rdb:    rdb,
		logger: l.Named("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动定时任务
func (s *Scheduler) Start() error {
	gaugeSpec := fmt.Sprintf("@every %ds", s.config.GaugeRefreshSeconds)
	if _, err := s.cron.AddFunc(gaugeSpec, s.gaugeTick); err != nil {
		return fmt.Errorf("failed to schedule gauge refresh: %w", err)
	}

	if interval := s.svc.Config().CleanupIntervalMinutes; interval > 0 {
		cleanupSpec := fmt.Sprintf("@every %dm", interval)
		if _, err := s.cron.AddFunc(cleanupSpec, s.cleanupTick); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
	}

	s.cron.Start()

	s.logger.Info("scheduler started",
		"gauge_interval", gaugeSpec,
		"cleanup_interval_minutes", s.svc.Config().CleanupIntervalMinutes,
		"auto_purge_stale", s.svc.Config().AutoPurgeStale,
	)

	return nil
}

// Stop 停止定时任务，等待进行中的任务完成
func (s *Scheduler) Stop() error {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// gaugeTick 指标刷新 tick，无需加锁
func (s *Scheduler) gaugeTick() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	s.svc.RefreshGauges(ctx)
}

// cleanupTick 陈旧记录清理 tick
func (s *Scheduler) cleanupTick() {
	s.withLock(cleanupLockKey, func(ctx context.Context) {
		purged, err := s.svc.CleanupStale(ctx)
		if err != nil {
			s.logger.Error("stale cleanup failed", "error", err)
			return
		}
		if purged > 0 {
			s.logger.Info("stale cleanup completed", "purged", purged)
		}
	})
}

// withLock 持有分布式锁执行任务，未抢到锁的实例跳过本轮
func (s *Scheduler) withLock(key string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.LockTTL)
	defer cancel()

	lock := redis.NewLock(s.rdb, key, s.config.LockTTL)
	acquired, err := lock.TryLock(ctx)
	if err != nil {
		s.logger.Error("failed to acquire lock", "key", key, "error", err)
		return
	}
	if !acquired {
		s.logger.Debug("lock held by another instance, skipping", "key", key)
		return
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil {
			s.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}()

	fn(ctx)
}
