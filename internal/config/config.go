package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	WorldID     WorldIDConfig
	Attestation AttestationConfig
	Storage     StorageConfig
	Naming      NamingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration.
// An empty Addr disables Redis and the in-memory nullifier store is used.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds wallet session token configuration
type JWTConfig struct {
	Secret        string
	RefreshSecret string
	Expiry        time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// WorldIDConfig holds identity proof verification settings
type WorldIDConfig struct {
	AppID   string
	BaseURL string
	Timeout time.Duration
}

// AttestationConfig holds skill attestation API settings
type AttestationConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// StorageConfig holds S3/MinIO configuration for avatar storage
type StorageConfig struct {
	Endpoint           string
	Region             string
	Bucket             string
	AccessKeyID        string
	SecretAccessKey    string
	UseSSL             bool
	PresignedURLExpiry time.Duration

	// Orphaned avatar sweeping
	OrphanSweepEnabled  bool
	OrphanSweepInterval time.Duration
	OrphanMinAge        time.Duration
}

// NamingConfig holds subdomain allocation settings
type NamingConfig struct {
	ParentDomain string
	MaxAttempts  int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "colancer"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			Expiry:        getDurationEnv("JWT_EXPIRY", 24*time.Hour),
			RefreshExpiry: getDurationEnv("JWT_REFRESH_EXPIRY", 30*24*time.Hour),
			Issuer:        getEnv("JWT_ISSUER", "colancer"),
		},
		WorldID: WorldIDConfig{
			AppID:   getEnv("WORLD_ID_APP_ID", "app_staging_colancer"),
			BaseURL: getEnv("WORLD_ID_BASE_URL", "https://developer.worldcoin.org"),
			Timeout: getDurationEnv("WORLD_ID_TIMEOUT", 10*time.Second),
		},
		Attestation: AttestationConfig{
			BaseURL: getEnv("ATTESTATION_BASE_URL", "https://api.flare.network/fdc"),
			APIKey:  getEnv("ATTESTATION_API_KEY", ""),
			Timeout: getDurationEnv("ATTESTATION_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Endpoint:           getEnv("S3_ENDPOINT", "localhost:9000"),
			Region:             getEnv("S3_REGION", "us-east-1"),
			Bucket:             getEnv("S3_BUCKET", "colancer-avatars"),
			AccessKeyID:        getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey:    getEnv("S3_SECRET_ACCESS_KEY", ""),
			UseSSL:             getBoolEnv("S3_USE_SSL", false),
			PresignedURLExpiry: getDurationEnv("S3_PRESIGNED_URL_EXPIRY", 15*time.Minute),

			OrphanSweepEnabled:  getBoolEnv("AVATAR_SWEEP_ENABLED", true),
			OrphanSweepInterval: getDurationEnv("AVATAR_SWEEP_INTERVAL", 24*time.Hour),
			OrphanMinAge:        getDurationEnv("AVATAR_SWEEP_MIN_AGE", 24*time.Hour),
		},
		Naming: NamingConfig{
			ParentDomain: getEnv("PARENT_DOMAIN", "colancer.eth"),
			MaxAttempts:  getIntEnv("NAMING_MAX_ATTEMPTS", 10),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go duration strings ("90s") or a bare number of minutes
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
