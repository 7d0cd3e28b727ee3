package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the process configuration shared by the server and the worker.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Log      LogConfig      `mapstructure:"log"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type WorkerConfig struct {
	ModelPath      string        `mapstructure:"model_path"`
	PredictTimeout time.Duration `mapstructure:"predict_timeout"`
	RestartDelay   time.Duration `mapstructure:"restart_delay"`
	MetricsPort    int           `mapstructure:"metrics_port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RetryConfig is the startup connection budget for one external dependency.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type MySQLConfig struct {
	Host         string      `mapstructure:"host"`
	Port         int         `mapstructure:"port"`
	User         string      `mapstructure:"user"`
	Password     string      `mapstructure:"password"`
	Database     string      `mapstructure:"database"`
	MaxOpenConns int         `mapstructure:"max_open_conns"`
	MaxIdleConns int         `mapstructure:"max_idle_conns"`
	Retry        RetryConfig `mapstructure:"retry"`
}

type RedisConfig struct {
	Host     string      `mapstructure:"host"`
	Port     int         `mapstructure:"port"`
	Password string      `mapstructure:"password"`
	DB       int         `mapstructure:"db"`
	Retry    RetryConfig `mapstructure:"retry"`
}

type KafkaConfig struct {
	Brokers        []string         `mapstructure:"brokers"`
	Topic          KafkaTopicConfig `mapstructure:"topic"`
	ConsumerGroup  string           `mapstructure:"consumer_group"`
	KeepAlive      time.Duration    `mapstructure:"keep_alive"`
	SessionTimeout time.Duration    `mapstructure:"session_timeout"`
	Heartbeat      time.Duration    `mapstructure:"heartbeat"`
	Retry          RetryConfig      `mapstructure:"retry"`
}

type KafkaTopicConfig struct {
	Tasks string `mapstructure:"tasks"`
}

type BusinessConfig struct {
	ExecutionCost     string        `mapstructure:"execution_cost"`
	SimilarItems      int           `mapstructure:"similar_items"`
	MaxRetryCount     int           `mapstructure:"max_retry_count"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	RefundOnFailure   bool          `mapstructure:"refund_on_failure"`
}

// Cost returns the parsed execution cost charged per prediction.
func (b BusinessConfig) Cost() decimal.Decimal {
	cost, err := decimal.NewFromString(b.ExecutionCost)
	if err != nil {
		return decimal.Zero
	}
	return cost
}

type JobsConfig struct {
	OutboxInterval  time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize int           `mapstructure:"outbox_batch_size"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize  int           `mapstructure:"sweep_batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)

	v.SetDefault("worker.model_path", "config/model.yaml")
	v.SetDefault("worker.predict_timeout", "30s")
	v.SetDefault("worker.restart_delay", "5s")
	v.SetDefault("worker.metrics_port", 9100)

	v.SetDefault("log.level", "info")

	v.SetDefault("mysql.host", "database")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "recsys")
	v.SetDefault("mysql.password", "recsys")
	v.SetDefault("mysql.database", "recsys")
	v.SetDefault("mysql.max_open_conns", 15)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.retry.max_attempts", 5)
	v.SetDefault("mysql.retry.delay", "2s")

	v.SetDefault("redis.host", "redis")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.retry.max_attempts", 5)
	v.SetDefault("redis.retry.delay", "2s")

	v.SetDefault("kafka.brokers", []string{"kafka:9092"})
	v.SetDefault("kafka.topic.tasks", "ml_tasks")
	v.SetDefault("kafka.consumer_group", "recsys-worker")
	v.SetDefault("kafka.keep_alive", "60s")
	v.SetDefault("kafka.session_timeout", "30s")
	v.SetDefault("kafka.heartbeat", "9s")
	v.SetDefault("kafka.retry.max_attempts", 5)
	v.SetDefault("kafka.retry.delay", "5s")

	v.SetDefault("business.execution_cost", "10.00")
	v.SetDefault("business.similar_items", 10)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.max_attempts", 3)
	v.SetDefault("business.visibility_timeout", "5m")
	v.SetDefault("business.refund_on_failure", false)

	v.SetDefault("jobs.outbox_interval", "100ms")
	v.SetDefault("jobs.outbox_batch_size", 100)
	v.SetDefault("jobs.sweep_interval", "30s")
	v.SetDefault("jobs.sweep_batch_size", 50)
}

// NewDefault returns the configuration with every key at its default value.
func NewDefault() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// LoadConfig reads the YAML file at configPath on top of the defaults.
//
// An empty path loads defaults only. Every key can be overridden from the
// environment with the RECSYS_ prefix, e.g. RECSYS_MYSQL_HOST.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("recsys")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MaxAmount bounds every money value so it fits a decimal(20,4) column.
var MaxAmount = decimal.New(1, 16)

// AmountScale is the number of decimal places money columns keep.
const AmountScale = 4

func (c *Config) Validate() error {
	cost, err := decimal.NewFromString(c.Business.ExecutionCost)
	if err != nil {
		return fmt.Errorf("business.execution_cost: %w", err)
	}
	if !cost.IsPositive() {
		return errors.New("business.execution_cost must be positive")
	}
	if !cost.Equal(cost.Truncate(AmountScale)) || cost.GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("business.execution_cost must have at most %d decimal places and be below %s", AmountScale, MaxAmount)
	}
	if c.Business.SimilarItems <= 0 {
		return errors.New("business.similar_items must be positive")
	}
	if c.Business.MaxRetryCount < 1 || c.Business.MaxAttempts < 1 {
		return errors.New("business retry budgets must be at least 1")
	}
	for name, r := range map[string]RetryConfig{
		"mysql": c.MySQL.Retry,
		"redis": c.Redis.Retry,
		"kafka": c.Kafka.Retry,
	} {
		if r.MaxAttempts < 1 {
			return fmt.Errorf("%s.retry.max_attempts must be at least 1", name)
		}
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers must not be empty")
	}
	if c.Jobs.OutboxInterval <= 0 || c.Jobs.SweepInterval <= 0 {
		return errors.New("jobs intervals must be positive")
	}
	if c.Jobs.OutboxBatchSize <= 0 || c.Jobs.SweepBatchSize <= 0 {
		return errors.New("jobs batch sizes must be positive")
	}
	if c.Worker.PredictTimeout <= 0 {
		return errors.New("worker.predict_timeout must be positive")
	}
	// a prediction still being computed must never look stale
	if c.Business.VisibilityTimeout <= c.Worker.PredictTimeout {
		return fmt.Errorf("business.visibility_timeout (%s) must exceed worker.predict_timeout (%s)",
			c.Business.VisibilityTimeout, c.Worker.PredictTimeout)
	}
	return nil
}
