package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/edooria/edooria/app/study/internal/service"
	"github.com/edooria/edooria/pkg/database/redis"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/robfig/cron/v3"
)

const (
	expirySweepLockKey = "study:lock:expiry_sweep"
	reconcileLockKey   = "study:lock:reconcile"
)

// Config 定时任务配置
type Config struct {
	// ReconcileIntervalMinutes 对账广播间隔（分钟），0 表示禁用
	ReconcileIntervalMinutes int `mapstructure:"reconcile_interval_minutes"`

	// LockTTL 分布式锁 TTL，应大于单次扫描耗时
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ReconcileIntervalMinutes: 10,
		LockTTL:                  30 * time.Second,
	}
}

// Scheduler 超时扫描与对账定时任务
// 多实例部署时通过 Redis 分布式锁保证每个 tick 只有一个实例执行
type Scheduler struct {
	config *Config
	cron   *cron.Cron
	svc    *service.SessionService
	rdb    *redis.Client
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建定时任务调度器
func New(cfg *Config, svc *service.SessionService, rdb *redis.Client, l logger.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
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
	sweepSpec := fmt.Sprintf("@every %ds", s.svc.Config().HeartbeatCheckIntervalSeconds)
	if _, err := s.cron.AddFunc(sweepSpec, s.sweepTick); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	if s.config.ReconcileIntervalMinutes > 0 {
		reconcileSpec := fmt.Sprintf("@every %dm", s.config.ReconcileIntervalMinutes)
		if _, err := s.cron.AddFunc(reconcileSpec, s.reconcileTick); err != nil {
			return fmt.Errorf("failed to schedule reconciliation: %w", err)
		}
	}

	s.cron.Start()

	s.logger.Info("scheduler started",
		"sweep_interval", sweepSpec,
		"reconcile_interval_minutes", s.config.ReconcileIntervalMinutes,
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

// sweepTick 超时扫描 tick
func (s *Scheduler) sweepTick() {
	s.withLock(expirySweepLockKey, func(ctx context.Context) {
		ended, err := s.svc.SweepExpired(ctx)
		if err != nil {
			s.logger.Error("expiry sweep failed", "error", err)
			return
		}
		if ended > 0 {
			s.logger.Info("expiry sweep completed", "force_ended", ended)
		}
	})
}

// reconcileTick 对账广播 tick
func (s *Scheduler) reconcileTick() {
	s.withLock(reconcileLockKey, func(ctx context.Context) {
		if _, err := s.svc.RequestReconciliation(ctx); err != nil {
			s.logger.Error("reconcile request failed", "error", err)
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
