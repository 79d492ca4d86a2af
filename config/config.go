package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// MongoDB holds the notifications table.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB    int    `mapstructure:"REDIS_CACHE_DB"`
	RedisRealtimeDB int    `mapstructure:"REDIS_REALTIME_DB"`
	RedisQueueDB    int    `mapstructure:"REDIS_QUEUE_DB"`

	// Admin bearer token, stored as a bcrypt hash.
	AdminTokenHash string `mapstructure:"ADMIN_TOKEN_HASH"`

	// Firebase Cloud Messaging.
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	FCMGlobalTopic          string `mapstructure:"FCM_GLOBAL_TOPIC"`

	// Notification engine.
	NotificationFetchLimit int           `mapstructure:"NOTIFICATION_FETCH_LIMIT"`
	NotificationCacheCap   int           `mapstructure:"NOTIFICATION_CACHE_CAP"`
	RealtimeChannel        string        `mapstructure:"REALTIME_CHANNEL"`
	RealtimePublishTimeout time.Duration `mapstructure:"REALTIME_PUBLISH_TIMEOUT"`
	ExpirySweepSpec        string        `mapstructure:"EXPIRY_SWEEP_SPEC"`
	EngineIdleTTL          time.Duration `mapstructure:"ENGINE_IDLE_TTL"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "xquests")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_REALTIME_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("ADMIN_TOKEN_HASH", "")
	viper.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	viper.SetDefault("FCM_GLOBAL_TOPIC", "xquests-all")
	viper.SetDefault("NOTIFICATION_FETCH_LIMIT", 50)
	viper.SetDefault("NOTIFICATION_CACHE_CAP", 100)
	viper.SetDefault("REALTIME_CHANNEL", "notifications")
	viper.SetDefault("REALTIME_PUBLISH_TIMEOUT", "5s")
	viper.SetDefault("EXPIRY_SWEEP_SPEC", "@every 10m")
	viper.SetDefault("ENGINE_IDLE_TTL", "15m")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
