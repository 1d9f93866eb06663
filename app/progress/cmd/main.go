package main

import (
	"github.com/edooria/edooria/app/progress/internal/consumer"
	"github.com/edooria/edooria/app/progress/internal/dao"
	"github.com/edooria/edooria/app/progress/internal/handler"
	"github.com/edooria/edooria/app/progress/internal/metrics"
	"github.com/edooria/edooria/app/progress/internal/publisher"
	"github.com/edooria/edooria/app/progress/internal/scheduler"
	"github.com/edooria/edooria/app/progress/internal/service"
	"github.com/edooria/edooria/pkg/app"
	"github.com/edooria/edooria/pkg/database/redis"
	"github.com/edooria/edooria/pkg/events"
	"github.com/edooria/edooria/pkg/logger"
	"github.com/edooria/edooria/pkg/mq/kafka"
	"github.com/edooria/edooria/pkg/prometheus"
	"github.com/edooria/edooria/pkg/web"
	webmetrics "github.com/edooria/edooria/pkg/web/metrics"
)

// Config 定义 Progress 服务的完整配置结构
type Config struct {
	Log logger.Config `mapstructure:"log"`

	// Redis 镜像存储配置
	Redis redis.Config `mapstructure:"redis"`

	// Kafka 事件总线配置
	Kafka kafka.Config `mapstructure:"kafka"`

	// Web HTTP API 配置
	Web web.Config `mapstructure:"web"`

	// Prometheus 指标配置
	Prometheus prometheus.Config `mapstructure:"prometheus"`

	// Mirror 镜像服务配置
	Mirror service.Config `mapstructure:"mirror"`

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
		app.WithName("progress"),
		app.WithLogger(l),
	)

	// 3. 镜像存储
	rdb, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		l.Error("failed to connect redis", "error", err)
		return
	}
	application.AppendCloser(rdb)

	// 4. 指标
	promClient, err := prometheus.New(&cfg.Prometheus)
	if err != nil {
		l.Error("failed to create prometheus client", "error", err)
		return
	}
	webmetrics.InitMetrics(promClient.Registry())
	application.AppendCloser(promClient)

	m := metrics.New(promClient)

	// 5. Kafka 事件总线
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

	// 6. 业务组件
	mirrorDAO := dao.NewMirrorDAO(rdb, l, m)
	pub := publisher.New(mq, l)

	svc, err := service.NewMirrorService(&cfg.Mirror, mirrorDAO, pub, l, m)
	if err != nil {
		l.Error("failed to create mirror service", "error", err)
		return
	}

	// 7. HTTP API
	webServer := web.NewServer(&cfg.Web, l)
	handler.NewProgressHandler(svc, l).Register(webServer.Router())
	application.AppendServer(webServer)

	// 8. 清理与指标刷新定时任务
	application.AppendServer(scheduler.New(&cfg.Scheduler, svc, rdb, l))

	// 9. 事件消费者
	application.AppendServer(consumer.New(mq, svc, l))

	// 10. 运行服务
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
	}
}
