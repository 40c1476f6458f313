package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"MT5Hub/internal/domain/repository"
	"MT5Hub/internal/handler/api"
	internalrepo "MT5Hub/internal/repository"
	"MT5Hub/internal/service/auth"
	"MT5Hub/internal/service/ratelimit"
	"MT5Hub/internal/service/stream"
	"MT5Hub/internal/usecase"
	"MT5Hub/pkg/cache"
	pkgch "MT5Hub/pkg/clickhouse"
	"MT5Hub/pkg/clock"
	"MT5Hub/pkg/config"
	xhttp "MT5Hub/pkg/http"
	pkgkafka "MT5Hub/pkg/kafka"
	applogger "MT5Hub/pkg/logger"
	"MT5Hub/pkg/metrics"
	"MT5Hub/pkg/queue"
	"MT5Hub/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvidePrometheusRegistry creates a private registry with the runtime collectors.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegisterer(reg)
}

func ProvideClock() clock.Clock {
	return clock.Real()
}

// ProvideRedisCache connects to Redis once for every component configured to use it.
// It returns nil when nothing needs Redis.
func ProvideRedisCache(cfg *config.Config, l *applogger.Logger) (*cache.RedisCache, error) {
	if cfg.Storage.Permissions != "redis" && cfg.Notify.Backend != "redis" {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.Pool.Size, cfg.Redis.Pool.MinIdleConns, cfg.Redis.Pool.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis connected", applogger.String("addr", cfg.Redis.Addr))
	return rc, nil
}

// ProvidePermissionStore picks the cache backing trading permissions.
func ProvidePermissionStore(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) (repository.PermissionStore, error) {
	if cfg.Storage.Permissions == "redis" {
		if rc == nil {
			return nil, errors.New("permission store: redis is not connected")
		}
		l.Info("permission store: redis", applogger.String("addr", cfg.Redis.Addr))
		return internalrepo.NewPermissionStore(rc), nil
	}
	l.Info("permission store: memory")
	return internalrepo.NewPermissionStore(cache.NewMemoryCache(cache.WithMemoryMaxSize(0))), nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideBalanceHistory picks the balance history backend and prepares its schema.
func ProvideBalanceHistory(cfg *config.Config, l *applogger.Logger) (repository.BalanceHistory, error) {
	if cfg.Storage.History != "clickhouse" {
		l.Info("balance history: memory")
		return internalrepo.NewMemoryBalanceHistory(), nil
	}

	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	history := internalrepo.NewCHBalanceHistory(client, l)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if err := history.Init(ctx); err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("balance history: clickhouse", applogger.String("database", cfg.ClickHouse.Database))
	return history, nil
}

// ProvideStreamHub returns nil when report streaming is disabled.
func ProvideStreamHub(cfg *config.Config, l *applogger.Logger) *stream.Hub {
	if !cfg.Notify.Stream {
		return nil
	}
	return stream.NewHub(l)
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideReportSink builds the primary sink for notify.backend.
func ProvideReportSink(cfg *config.Config, rc *cache.RedisCache, reg *prometheus.Registry, l *applogger.Logger) (internalrepo.ReportSink, error) {
	switch cfg.Notify.Backend {
	case "kafka":
		producer, err := ProvideKafkaProducer(cfg, reg)
		if err != nil {
			return nil, err
		}
		return internalrepo.NewKafkaNotifier(producer, cfg.Notify.Topic), nil
	case "redis":
		if rc == nil {
			return nil, errors.New("report sink: redis is not connected")
		}
		pub := queue.NewRedisPublisher(l, queue.NewRedisListStore(rc.Client()),
			queue.WithKeyPrefix(cfg.Notify.QueueKey),
			queue.WithMaxLen(cfg.Notify.QueueMaxLen),
		)
		return internalrepo.NewQueueNotifier(pub, rc.Close), nil
	case "webhook":
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Notify.WebhookTimeout))
		return internalrepo.NewWebhookNotifier(client, cfg.Notify.WebhookURL), nil
	default:
		return internalrepo.NewLogNotifier(l), nil
	}
}

// ProvideNotifier wraps the primary sink and mirrors every report to the stream hub when enabled.
func ProvideNotifier(
	cfg *config.Config,
	sink internalrepo.ReportSink,
	hub *stream.Hub,
	clk clock.Clock,
	l *applogger.Logger,
) repository.Notifier {
	var mirrors []internalrepo.ReportSink
	if hub != nil {
		mirrors = append(mirrors, hub)
	}
	l.Info("notifier ready", applogger.String("backend", cfg.Notify.Backend), applogger.Bool("stream", hub != nil))
	return internalrepo.NewReportDispatcher(sink, clk, l, mirrors...)
}

func ProvideAuthenticator(cfg *config.Config, clk clock.Clock, l *applogger.Logger) *auth.Authenticator {
	return auth.New(cfg.Auth.Secret, cfg.Runtime.BotIDs,
		auth.WithMaxDelay(cfg.MaxAllowedDelay()),
		auth.WithLoginMismatchWindow(cfg.LoginMismatchWindow()),
		auth.WithClock(clk),
		auth.WithLogger(l),
	)
}

// ProvideRegistry creates the bot registry seeded with the configured roster.
func ProvideRegistry(cfg *config.Config, perms repository.PermissionStore, clk clock.Clock, l *applogger.Logger) *usecase.Registry {
	reg := usecase.NewRegistry(perms, clk, l)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	reg.Seed(ctx, cfg.Runtime.BotIDs)
	return reg
}

func ProvideSignalBatcher(
	cfg *config.Config,
	reg *usecase.Registry,
	notifier repository.Notifier,
	m repository.Metrics,
	clk clock.Clock,
	l *applogger.Logger,
) *usecase.SignalBatcher {
	return usecase.NewSignalBatcher(reg, notifier, m, clk, l, usecase.BatcherConfig{
		Delay:           cfg.MessageBatchDelay(),
		MaxBotsPerBatch: cfg.Runtime.SignalBatchMaxBots,
		Channels:        cfg.Channels(),
	})
}

func ProvideWatchdog(cfg *config.Config, reg *usecase.Registry, clk clock.Clock, l *applogger.Logger) *usecase.Watchdog {
	return usecase.NewWatchdog(reg, cfg.HeartbeatTimeout(), clk, l)
}

func ProvideChangeReporter(
	cfg *config.Config,
	reg *usecase.Registry,
	watchdog *usecase.Watchdog,
	batcher *usecase.SignalBatcher,
	history repository.BalanceHistory,
	notifier repository.Notifier,
	m repository.Metrics,
	clk clock.Clock,
	l *applogger.Logger,
) *usecase.ChangeReporter {
	return usecase.NewChangeReporter(reg, watchdog, batcher, history, notifier, m, clk, l, usecase.ReporterConfig{
		Interval:       cfg.ReportDelay(),
		DebounceWindow: cfg.MessageBatchDelay(),
		Offsets: usecase.Offsets{
			Balance: cfg.Runtime.TotalBalanceOffset,
			Profit:  cfg.Runtime.TotalProfitOffset,
		},
		Channels:    cfg.Channels(),
		RetryFailed: cfg.Notify.RetryFailed,
	})
}

func ProvideTelemetryService(
	a *auth.Authenticator,
	reg *usecase.Registry,
	batcher *usecase.SignalBatcher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TelemetryService {
	return usecase.NewTelemetryService(a, reg, batcher, m, l)
}

func ProvideOperatorService(
	reg *usecase.Registry,
	reporter *usecase.ChangeReporter,
	history repository.BalanceHistory,
	l *applogger.Logger,
) *usecase.OperatorService {
	return usecase.NewOperatorService(reg, reporter, history, l)
}

func ProvideLimiter(cfg *config.Config, clk clock.Clock) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec, clk)
}

// ProvideHandlers builds the HTTP route groups. The operator API is only mounted when admin_key is set.
func ProvideHandlers(
	cfg *config.Config,
	tel *usecase.TelemetryService,
	ops *usecase.OperatorService,
	limiter *ratelimit.Limiter,
	hub *stream.Hub,
	l *applogger.Logger,
) []xhttp.Handler {
	handlers := []xhttp.Handler{
		api.NewTelemetryHandler(tel, ops, limiter, cfg.Auth.BalanceAPIKey, l),
	}
	if cfg.Auth.AdminKey == "" {
		l.Warn("auth.admin_key is empty, operator API disabled")
		return handlers
	}
	var streamHandler http.Handler
	if hub != nil {
		streamHandler = hub
	}
	return append(handlers, api.NewAdminHandler(ops, streamHandler, cfg.Auth.AdminKey, l))
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, handlers []xhttp.Handler, reg *prometheus.Registry) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithCORS(!cfg.Server.DisableCORS),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(l, handlers, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	reporter *usecase.ChangeReporter,
	perms repository.PermissionStore,
	history repository.BalanceHistory,
	notifier repository.Notifier,
) *server.App {
	return server.New(cfg, l, httpServer, reporter,
		server.Closer{Name: "notifier", Close: notifier.Close},
		server.Closer{Name: "balance history", Close: history.Close},
		server.Closer{Name: "permission store", Close: perms.Close},
	)
}
