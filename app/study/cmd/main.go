package main

import (
	"github.com/edooria/edooria/app/study/internal/consumer"
	"github.com/edooria/edooria/app/study/internal/dao"
	"github.com/edooria/edooria/app/study/internal/handler"
	"github.com/edooria/edooria/app/study/internal/metrics"
	"github.com/edooria/edooria/app/study/internal/publisher"
	"github.com/edooria/edooria/app/study/internal/scheduler"
	"github.com/edooria/edooria/app/study/internal/service"
	"github.com/edooria/edooria/pkg/app"
	"github.com/edooria/edooria/pkg/database/postgres"
	"github.com/edooria/edooria/pkg/database/redis"
	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/idgen"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/mq/kafka"
	"github.com/edooria/edooria/pkg/prometheus"
	"github.com/edooria/edooria/pkg/web"
	webmetrics "github.com/edooria/edooria/pkg/web/metrics"
)

// Config 定义 Study 服务的完整配置结构
type Config struct {
	Log logger.Config `mapstructure:"log"`

	// MachineID ID 生成器机器号，多实例部署时必须唯一
	MachineID uint16 `mapstructure:"machine_id"`

	// Postgres 权威存储配置
	Postgres postgres.Config `mapstructure:"postgres"`

	// Redis 分布式锁配置
	Redis redis.Config `mapstructure:"redis"`

	// Kafka 事件总线配置
	Kafka kafka.Config `mapstructure:"kafka"`

	// Web HTTP API 配置
	Web web.Config `mapstructure:"web"`

	// Prometheus 指标配置
	Prometheus prometheus.Config `mapstructure:"prometheus"`

	// Session 会话生命周期配置
	Session service.Config `mapstructure:"session"`

	// Scheduler 定时任务配置
	Scheduler scheduler.Config `mapstructure:"scheduler"`
}

func main() {
	var cfg Config

	// 1. 加载配置
	if err := app.LoadConfig(&cfg); err != nil {
		panic(err)
	}

	// 2. 初始化主日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}

	application := app.NewBaseApp(
		app.WithName("study"),
		app.WithLogger(l),
	)

	// 3. ID 生成器
	gen, err := idgen.NewSonyflake(cfg.MachineID)
	if err != nil {
		l.Error("failed to create id generator", "error", err)
		return
	}
	idgen.Init(gen)

	// 4. 存储
	db, err := postgres.New(&cfg.Postgres)
	if err != nil {
		l.Error("failed to connect postgres", "error", err)
		return
	}
	application.AppendCloser(db)

	rdb, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		l.Error("failed to connect redis", "error", err)
		return
	}
	application.AppendCloser(rdb)

	// 5. 指标
	promClient, err := prometheus.New(&cfg.Prometheus)
	if err != nil {
		l.Error("failed to create prometheus client", "error", err)
		return
	}
	webmetrics.InitMetrics(promClient.Registry())
	application.AppendCloser(promClient)

	m := metrics.New(promClient)

	// 6. Kafka 事件总线
	mq, err := kafka.New(&cfg.Kafka, kafka.WithLogger(l))
	if err != nil {
		l.Error("failed to create kafka client", "error", err)
		return
	}
	// 消费链：死信在最外层兜底重试耗尽的消息，恢复在最内层拦截 panic
	mq.UseConsumerMiddleware(
		kafka.DeadLetterMiddleware(mq, events.TopicSessionDLQ, l),
		kafka.RetryMiddleware(mq.Config().Consumer.MaxRetries, mq.Config().Consumer.RetryBackoff, l),
		kafka.RecoveryMiddleware(l),
	)
	application.AppendCloser(mq)

	// 7. 业务组件
	sessionDAO := dao.NewSessionDAO(db, l, m)
	pub := publisher.New(mq, l, m)

	svc, err := service.NewSessionService(
		&cfg.Session,
		sessionDAO,
		pub,
		gen,
		l,
		m,
		service.WithLastAccessedUpdater(pub),
		service.WithStreakUpdater(pub),
	)
	if err != nil {
		l.Error("failed to create session service", "error", err)
		return
	}

	// 8. HTTP API
	webServer := web.NewServer(&cfg.Web, l)
	handler.NewSessionHandler(svc, l).Register(webServer.Router())
	application.AppendServer(webServer)

	// 9. 超时扫描与对账定时任务
	application.AppendServer(scheduler.New(&cfg.Scheduler, svc, rdb, l))

	// 10. 对账响应消费者
	application.AppendServer(consumer.NewReconcileConsumer(mq, svc, l))

	// 11. 运行服务
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
	}
}
