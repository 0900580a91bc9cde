package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvConfigPath     = "CONFIG_PATH"
	EnvAWSRegion      = "AWS_REGION"
	EnvAWSID          = "AWS_ID"
	EnvAWSSecret      = "AWS_SECRET"
	EnvAWSToken       = "AWS_TOKEN"
	EnvDynamoEndpoint = "DYNAMODB_ENDPOINT"
	EnvDynamoCreate   = "DYNAMODB_CREATE_TABLES"
	EnvUserSecret     = "USER_SECRET"
	EnvChatRedisURL   = "CHAT_REDIS_URL"
	EnvChatRedisPass  = "CHAT_REDIS_PASS"
	EnvWidgetToken    = "CHAT_WIDGET_TOKEN"
	EnvWidgetServer   = "CHAT_WIDGET_SERVER"
	EnvStorageDriver  = "CHAT_STORAGE_DRIVER"
)

const (
	StorageDynamoDB = "dynamodb"
	// StorageMemory keeps everything in process and fans out locally, for development.
	StorageMemory = "memory"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	AWS     AWSConfig     `mapstructure:"aws"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Widget  WidgetConfig  `mapstructure:"widget"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	APIPrefix      string   `mapstructure:"api_prefix"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	QueueSize      int      `mapstructure:"queue_size"`
	QueueWorkers   int      `mapstructure:"queue_workers"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// InMemory reports whether the server runs without DynamoDB and Redis.
func (s StorageConfig) InMemory() bool {
	return s.Driver == StorageMemory
}

type AWSConfig struct {
	Region         string `mapstructure:"region"`
	AccessKeyID    string `mapstructure:"access_key_id"`
	SecretKey      string `mapstructure:"secret_key"`
	SessionToken   string `mapstructure:"session_token"`
	DynamoEndpoint string `mapstructure:"dynamodb_endpoint"`
	// CreateTables provisions missing chat tables at startup (DynamoDB Local, dev stacks).
	CreateTables   bool   `mapstructure:"create_tables"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	UserSecret string `mapstructure:"user_secret"`
}

// ChatConfig drives the availability endpoint and the dual-write idempotency window.
type ChatConfig struct {
	Online         bool               `mapstructure:"online"`
	Timezone       string             `mapstructure:"timezone"`
	WorkingHours   []WorkingDayConfig `mapstructure:"working_hours"`
	IdempotencyTTL time.Duration      `mapstructure:"idempotency_ttl"`
	MessageLimit   int                `mapstructure:"message_limit"`
}

type WorkingDayConfig struct {
	Day   string `mapstructure:"day"`
	Open  string `mapstructure:"open"`
	Close string `mapstructure:"close"`
}

type WidgetConfig struct {
	ServerURL             string        `mapstructure:"server_url"`
	Token                 string        `mapstructure:"token"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	TypingIdle            time.Duration `mapstructure:"typing_idle"`
	ReconcileTolerance    time.Duration `mapstructure:"reconcile_tolerance"`
	MessageItemHeight     int           `mapstructure:"message_item_height"`
	MessageOverscan       int           `mapstructure:"message_overscan"`
	ConversationOverscan  int           `mapstructure:"conversation_overscan"`
	ConversationItemLines int           `mapstructure:"conversation_item_height"`
	ListBackend           string        `mapstructure:"list_backend"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from CONFIG_PATH (default ./configs/config.yaml) and
// overlays environment variables.
func Load() (*Config, error) {
	v := viper.New()

	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ValidateServer reports the first missing setting the chat server cannot start without.
func (c *Config) ValidateServer() error {
	switch c.Storage.Driver {
	case "", StorageDynamoDB, StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	required := map[string]string{
		EnvAWSRegion:    c.AWS.Region,
		EnvUserSecret:   c.Auth.UserSecret,
		EnvChatRedisURL: c.Redis.Addr,
	}
	keys := []string{EnvAWSRegion, EnvUserSecret, EnvChatRedisURL}
	if c.Storage.InMemory() {
		keys = []string{EnvUserSecret}
	}
	for _, key := range keys {
		if required[key] == "" {
			return fmt.Errorf("config: required setting not provided: %s", key)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8083")
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.queue_size", 64)
	v.SetDefault("server.queue_workers", 16)

	v.SetDefault("storage.driver", StorageDynamoDB)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("chat.online", true)
	v.SetDefault("chat.timezone", "UTC")
	v.SetDefault("chat.idempotency_ttl", "10m")
	v.SetDefault("chat.message_limit", 200)

	v.SetDefault("widget.server_url", "http://localhost:8083/api/v1")
	v.SetDefault("widget.request_timeout", "15s")
	v.SetDefault("widget.typing_idle", "1s")
	v.SetDefault("widget.reconcile_tolerance", "10s")
	v.SetDefault("widget.message_item_height", 2)
	v.SetDefault("widget.message_overscan", 5)
	v.SetDefault("widget.conversation_overscan", 10)
	v.SetDefault("widget.conversation_item_height", 2)
	v.SetDefault("widget.list_backend", "viewport")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("aws.region", EnvAWSRegion)
	v.BindEnv("aws.access_key_id", EnvAWSID)
	v.BindEnv("aws.secret_key", EnvAWSSecret)
	v.BindEnv("aws.session_token", EnvAWSToken)
	v.BindEnv("aws.dynamodb_endpoint", EnvDynamoEndpoint)
	v.BindEnv("aws.create_tables", EnvDynamoCreate)

	v.BindEnv("storage.driver", EnvStorageDriver)

	v.BindEnv("redis.addr", EnvChatRedisURL)
	v.BindEnv("redis.password", EnvChatRedisPass)

	v.BindEnv("auth.user_secret", EnvUserSecret)

	v.BindEnv("widget.server_url", EnvWidgetServer)
	v.BindEnv("widget.token", EnvWidgetToken)
}
