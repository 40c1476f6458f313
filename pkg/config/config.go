package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	xutil "MT5Hub/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"dev"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
		DisableCORS     bool          `yaml:"disable_cors"`
		RateLimit       struct {
			Capacity     float64 `yaml:"capacity" default:"30"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"10"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Auth struct {
		Secret                    string `yaml:"secret"`
		AdminKey                  string `yaml:"admin_key"`
		BalanceAPIKey             string `yaml:"balance_api_key"`
		LoginMismatchThresholdSec int    `yaml:"login_mismatch_threshold_sec" default:"10"`
		MaxAllowedDelaySec        int    `yaml:"max_allowed_delay_sec" default:"60"`
	} `yaml:"auth"`
	Runtime struct {
		BotIDs               []int   `yaml:"bot_ids"`
		HeartbeatTimeoutSec  int     `yaml:"heartbeat_timeout_sec" default:"30"`
		ReportDelaySec       int     `yaml:"report_delay_sec" default:"5"`
		MessageBatchDelaySec int     `yaml:"message_batch_delay_sec" default:"5"`
		TotalBalanceOffset   float64 `yaml:"total_balance_offset"`
		TotalProfitOffset    float64 `yaml:"total_profit_offset"`
		SignalBatchMaxBots   int     `yaml:"signal_batch_max_bots" default:"10"`
	} `yaml:"runtime"`
	Notify struct {
		// Backend is one of log, kafka, redis, webhook.
		Backend        string        `yaml:"backend" default:"log"`
		AdminChatID    int64         `yaml:"admin_chat_id"`
		ForwardChatIDs []int64       `yaml:"forward_chat_ids"`
		RetryFailed    bool          `yaml:"retry_failed"`
		Topic          string        `yaml:"topic" default:"mt5hub.reports"`
		QueueKey       string        `yaml:"queue_key" default:"mt5hub:reports"`
		QueueMaxLen    int64         `yaml:"queue_max_len" default:"10000"`
		WebhookURL     string        `yaml:"webhook_url"`
		WebhookTimeout time.Duration `yaml:"webhook_timeout" default:"5s"`
		Stream         bool          `yaml:"stream"`
	} `yaml:"notify"`
	Storage struct {
		// Permissions is one of memory, redis.
		Permissions string `yaml:"permissions" default:"memory"`
		// History is one of memory, clickhouse.
		History string `yaml:"history" default:"memory"`
	} `yaml:"storage"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			Async        bool          `yaml:"async"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"mt5hub"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"mt5hub"`
		Pool     struct {
			Size         int           `yaml:"size" default:"10"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
			Timeout      time.Duration `yaml:"timeout" default:"30s"`
		} `yaml:"pool"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present) and config from YAML, then overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MT5_SECRET_KEY"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("BALANCE_API_KEY"); v != "" {
		c.Auth.BalanceAPIKey = v
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		c.Auth.AdminKey = v
	}
	if v := os.Getenv("BOT_IDS"); v != "" {
		ids, err := xutil.ParseIntList(v)
		if err != nil {
			return fmt.Errorf("BOT_IDS: %w", err)
		}
		c.Runtime.BotIDs = ids
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("NOTIFY_BACKEND"); v != "" {
		c.Notify.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	return nil
}

// Channels returns the notification targets: admin first, then forward chats.
func (c *Config) Channels() []int64 {
	out := make([]int64, 0, 1+len(c.Notify.ForwardChatIDs))
	if c.Notify.AdminChatID != 0 {
		out = append(out, c.Notify.AdminChatID)
	}
	return append(out, c.Notify.ForwardChatIDs...)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) HeartbeatTimeout() time.Duration { return seconds(c.Runtime.HeartbeatTimeoutSec) }

func (c *Config) ReportDelay() time.Duration { return seconds(c.Runtime.ReportDelaySec) }

func (c *Config) MessageBatchDelay() time.Duration { return seconds(c.Runtime.MessageBatchDelaySec) }

func (c *Config) LoginMismatchWindow() time.Duration { return seconds(c.Auth.LoginMismatchThresholdSec) }

func (c *Config) MaxAllowedDelay() time.Duration { return seconds(c.Auth.MaxAllowedDelaySec) }

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if len(c.Runtime.BotIDs) == 0 {
		return fmt.Errorf("runtime.bot_ids cannot be empty")
	}
	seen := make(map[int]struct{}, len(c.Runtime.BotIDs))
	for _, id := range c.Runtime.BotIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("runtime.bot_ids: duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
	if c.Runtime.ReportDelaySec <= 0 {
		return fmt.Errorf("runtime.report_delay_sec must be positive")
	}
	if c.Runtime.HeartbeatTimeoutSec <= 0 {
		return fmt.Errorf("runtime.heartbeat_timeout_sec must be positive")
	}
	if c.Runtime.MessageBatchDelaySec < 0 {
		return fmt.Errorf("runtime.message_batch_delay_sec cannot be negative")
	}
	if c.Runtime.SignalBatchMaxBots <= 0 {
		return fmt.Errorf("runtime.signal_batch_max_bots must be positive")
	}
	switch c.Notify.Backend {
	case "log", "redis", "webhook":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for notify.backend 'kafka'")
		}
	default:
		return fmt.Errorf("notify.backend must be one of log, kafka, redis, webhook, got '%s'", c.Notify.Backend)
	}
	if c.Notify.Backend == "webhook" && c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required for notify.backend 'webhook'")
	}
	if c.Storage.Permissions != "memory" && c.Storage.Permissions != "redis" {
		return fmt.Errorf("storage.permissions must be 'memory' or 'redis', got '%s'", c.Storage.Permissions)
	}
	if c.Storage.History != "memory" && c.Storage.History != "clickhouse" {
		return fmt.Errorf("storage.history must be 'memory' or 'clickhouse', got '%s'", c.Storage.History)
	}
	return nil
}
