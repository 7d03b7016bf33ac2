package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	MinIO    MinIOConfig
	JWT      JWTConfig
	Sync     SyncConfig
	Log      LogConfig
}

var (
	ConfigInstance *Config
	once           sync.Once
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// Publisher selects where change events go. hub notifies local websocket
	// clients only. redis publishes to redis and the hub relays the channel back
	// to its clients. kafka produces to the topic and notifies the local hub directly.
	Publisher      string
	RateLimit      int
	RateWindow     time.Duration
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string // postgres, mysql or sqlite
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the sqlite file, or ":memory:".
	Path string
}

type RedisConfig struct {
	URI          string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	ExpirationTime time.Duration
}

// SyncConfig configures the headless sync client.
type SyncConfig struct {
	BaseURL        string
	Token          string
	ChangeSource   string // websocket, redis or kafka
	PollInterval   time.Duration
	RequestRate    float64
	RequestBurst   int
	RequestTimeout time.Duration
	ReconnectDelay time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig reads the process configuration once.
func LoadConfig() (*Config, error) {
	once.Do(func() {
		_ = godotenv.Load()
		ConfigInstance = Load(viper.GetViper())
	})

	return ConfigInstance, nil
}

// Load builds a Config from v. Tests pass a fresh viper.New().
func Load(v *viper.Viper) *Config {
	setDefaults(v)
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetString("SERVER_PORT"),
			ReadTimeout:    v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:    v.GetDuration("SERVER_IDLE_TIMEOUT"),
			Publisher:      v.GetString("SERVER_PUBLISHER"),
			RateLimit:      v.GetInt("SERVER_RATE_LIMIT"),
			RateWindow:     v.GetDuration("SERVER_RATE_WINDOW"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DB_DRIVER"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			Path:     v.GetString("DB_PATH"),
		},
		Redis: RedisConfig{
			URI:          v.GetString("REDIS_URL"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
			GroupID: v.GetString("KAFKA_GROUP_ID"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			PublicURL: v.GetString("MINIO_PUBLIC_URL"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			Issuer:         v.GetString("JWT_ISSUER"),
			ExpirationTime: v.GetDuration("JWT_EXPIRE"),
		},
		Sync: SyncConfig{
			BaseURL:        v.GetString("SYNC_BASE_URL"),
			Token:          v.GetString("SYNC_TOKEN"),
			ChangeSource:   v.GetString("SYNC_CHANGE_SOURCE"),
			PollInterval:   v.GetDuration("SYNC_POLL_INTERVAL"),
			RequestRate:    v.GetFloat64("SYNC_REQUEST_RATE"),
			RequestBurst:   v.GetInt("SYNC_REQUEST_BURST"),
			RequestTimeout: v.GetDuration("SYNC_REQUEST_TIMEOUT"),
			ReconnectDelay: v.GetDuration("SYNC_RECONNECT_DELAY"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_PUBLISHER", "hub")
	v.SetDefault("SERVER_RATE_LIMIT", 120)
	v.SetDefault("SERVER_RATE_WINDOW", time.Minute)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "chat_sync")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "chat_sync.db")

	v.SetDefault("REDIS_URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)

	v.SetDefault("KAFKA_BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA_TOPIC", "chat-sync.changes")
	v.SetDefault("KAFKA_GROUP_ID", "")

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "chat-media")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("JWT_SECRET", "secret")
	v.SetDefault("JWT_ISSUER", "chat-sync")
	v.SetDefault("JWT_EXPIRE", "24h")

	v.SetDefault("SYNC_BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("SYNC_CHANGE_SOURCE", "websocket")
	v.SetDefault("SYNC_POLL_INTERVAL", 100*time.Second)
	v.SetDefault("SYNC_REQUEST_RATE", 20.0)
	v.SetDefault("SYNC_REQUEST_BURST", 10)
	v.SetDefault("SYNC_REQUEST_TIMEOUT", 15*time.Second)
	v.SetDefault("SYNC_RECONNECT_DELAY", 3*time.Second)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}
