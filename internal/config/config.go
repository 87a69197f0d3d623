package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	JWT       JWTConfig
	Sync      SyncConfig
	Media     MediaConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	MigrationsDir  string
}

// IsDevelopment reports whether the server runs outside production
func (s ServerConfig) IsDevelopment() bool {
	return s.Env != "production"
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type CacheConfig struct {
	Prefix     string
	QuotaBytes int64
}

type JWTConfig struct {
	Secret       string
	AccessExpiry int // in minutes
}

type SyncConfig struct {
	RemoteTimeout   time.Duration
	MaxElapsed      time.Duration
	InitialInterval time.Duration
}

type MediaConfig struct {
	CloudinaryURL string
	UploadDir     string
	PublicBaseURL string
}

type RateLimitConfig struct {
	Uploads int
	Window  time.Duration
}

func Load() *Config {
	// Populate the process environment first so viper's AutomaticEnv sees it
	// even when .env is absent from the working directory.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: no .env loaded into environment: %v", err)
	}

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "")
	viper.SetDefault("MIGRATIONS_DIR", "migrations")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_PREFIX", "storefront:")
	viper.SetDefault("CACHE_QUOTA_BYTES", 5*1024*1024)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("SYNC_REMOTE_TIMEOUT", "10s")
	viper.SetDefault("SYNC_MAX_ELAPSED", "2m")
	viper.SetDefault("SYNC_INITIAL_INTERVAL", "500ms")
	viper.SetDefault("MEDIA_UPLOAD_DIR", "./uploads")
	viper.SetDefault("MEDIA_PUBLIC_BASE_URL", "/uploads")
	viper.SetDefault("RATE_LIMIT_UPLOADS", 30)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			LogLevel:       viper.GetString("LOG_LEVEL"),
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
			MigrationsDir:  viper.GetString("MIGRATIONS_DIR"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Cache: CacheConfig{
			Prefix:     viper.GetString("CACHE_PREFIX"),
			QuotaBytes: viper.GetInt64("CACHE_QUOTA_BYTES"),
		},
		JWT: JWTConfig{
			Secret:       viper.GetString("JWT_SECRET"),
			AccessExpiry: viper.GetInt("JWT_ACCESS_EXPIRY"),
		},
		Sync: SyncConfig{
			RemoteTimeout:   viper.GetDuration("SYNC_REMOTE_TIMEOUT"),
			MaxElapsed:      viper.GetDuration("SYNC_MAX_ELAPSED"),
			InitialInterval: viper.GetDuration("SYNC_INITIAL_INTERVAL"),
		},
		Media: MediaConfig{
			CloudinaryURL: viper.GetString("MEDIA_CLOUDINARY_URL"),
			UploadDir:     viper.GetString("MEDIA_UPLOAD_DIR"),
			PublicBaseURL: viper.GetString("MEDIA_PUBLIC_BASE_URL"),
		},
		RateLimit: RateLimitConfig{
			Uploads: viper.GetInt("RATE_LIMIT_UPLOADS"),
			Window:  viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
