package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCredentials is returned when identity provider credentials are absent
var ErrMissingCredentials = errors.New("identity provider credentials are required")

// Config holds all service configuration
type Config struct {
	Service     ServiceConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	ObjectStore ObjectStoreConfig
	Queue       QueueConfig
	Identity    IdentityConfig
	Upload      UploadConfig
	Timeouts    TimeoutConfig
	Telemetry   TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings for the user store
type DatabaseConfig struct {
	Driver      string // "postgres" or "memory"
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
	UserTable   string
	Partition   string
}

// RedisConfig holds Redis connection settings (queue and sessions)
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ObjectStoreConfig holds blob storage settings
type ObjectStoreConfig struct {
	Driver          string // "s3", "local" or "memory"
	Container       string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	LocalRoot       string
	PublicScheme    string
	PublicAccount   string
	PublicDomain    string
}

// QueueConfig holds work queue settings
type QueueConfig struct {
	Driver     string // "redis" or "memory"
	Name       string
	Group      string
	Visibility time.Duration
}

// IdentityConfig holds the federated identity provider application credentials
type IdentityConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	Scopes       []string
	// RefreshPolicy is "keep" or "refresh"; see service.TokenPolicy
	RefreshPolicy string
	SessionTTL    time.Duration
	SessionDriver string // "redis" or "memory"
	SecureCookies bool
}

// UploadConfig holds upload intake settings
type UploadConfig struct {
	MaxBytes        int64
	Policy          string
	DispatchWorkers int
	// RateLimit is the number of upload requests a user may make per
	// RateWindow. Zero disables the limiter.
	RateLimit  int64
	RateWindow time.Duration
}

// TimeoutConfig holds per-call deadlines for every external dependency
type TimeoutConfig struct {
	StoreWrite    time.Duration
	StoreControl  time.Duration
	Enqueue       time.Duration
	TokenExchange time.Duration
	ProfileFetch  time.Duration
	UserStore     time.Duration
	Listing       time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 3000),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("USER_STORE_DRIVER", "postgres"),
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "mosaic"),
			User:        getEnv("POSTGRES_USER", "mosaic"),
			Password:    getEnv("POSTGRES_PASSWORD", "mosaic"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
			UserTable:   getEnv("USER_TABLE", "users"),
			Partition:   getEnv("USER_PARTITION", "allusers"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		ObjectStore: ObjectStoreConfig{
			Driver:          getEnv("OBJECT_STORE_DRIVER", "s3"),
			Container:       getEnv("OBJECT_STORE_CONTAINER", "imagecontainer"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			LocalRoot:       getEnv("OBJECT_STORE_LOCAL_ROOT", "./data/blobs"),
			PublicScheme:    getEnv("OBJECT_STORE_PUBLIC_SCHEME", "http"),
			PublicAccount:   getEnv("OBJECT_STORE_PUBLIC_ACCOUNT", "mosaic"),
			PublicDomain:    getEnv("OBJECT_STORE_PUBLIC_DOMAIN", "blob.core.windows.net"),
		},
		Queue: QueueConfig{
			Driver:     getEnv("QUEUE_DRIVER", "redis"),
			Name:       getEnv("QUEUE_NAME", "imagesqueue"),
			Group:      getEnv("QUEUE_GROUP", "analysis"),
			Visibility: getEnvDuration("QUEUE_VISIBILITY", 30*time.Second),
		},
		Identity: IdentityConfig{
			ClientID:      getEnv("CLIENT_ID", ""),
			ClientSecret:  getEnv("CLIENT_SECRET", ""),
			RedirectURL:   getEnv("REDIRECT_URI", ""),
			AuthURL:       getEnv("OAUTH_AUTH_URL", ""),
			TokenURL:      getEnv("OAUTH_TOKEN_URL", ""),
			ProfileURL:    getEnv("OAUTH_PROFILE_URL", "https://openidconnect.googleapis.com/v1/userinfo"),
			Scopes:        getEnvSlice("OAUTH_SCOPES", []string{"openid", "email", "profile"}),
			RefreshPolicy: getEnv("TOKEN_REFRESH_POLICY", "keep"),
			SessionTTL:    getEnvDuration("SESSION_TTL", 24*time.Hour),
			SessionDriver: getEnv("SESSION_DRIVER", "redis"),
			SecureCookies: getEnvBool("SECURE_COOKIES", false),
		},
		Upload: UploadConfig{
			MaxBytes:        getEnvInt64("UPLOAD_MAX_BYTES", 50<<20),
			Policy:          getEnv("UPLOAD_POLICY", ""),
			DispatchWorkers: getEnvInt("DISPATCH_WORKERS", 32),
			RateLimit:       getEnvInt64("UPLOAD_RATE_LIMIT", 0),
			RateWindow:      getEnvDuration("UPLOAD_RATE_WINDOW", time.Minute),
		},
		Timeouts: TimeoutConfig{
			StoreWrite:    getEnvDuration("TIMEOUT_STORE_WRITE", 2*time.Minute),
			StoreControl:  getEnvDuration("TIMEOUT_STORE_CONTROL", 10*time.Second),
			Enqueue:       getEnvDuration("TIMEOUT_ENQUEUE", 5*time.Second),
			TokenExchange: getEnvDuration("TIMEOUT_TOKEN_EXCHANGE", 10*time.Second),
			ProfileFetch:  getEnvDuration("TIMEOUT_PROFILE_FETCH", 10*time.Second),
			UserStore:     getEnvDuration("TIMEOUT_USER_STORE", 5*time.Second),
			Listing:       getEnvDuration("TIMEOUT_LISTING", 10*time.Second),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	switch c.Identity.RefreshPolicy {
	case "keep", "refresh":
	default:
		return fmt.Errorf("invalid TOKEN_REFRESH_POLICY: %q", c.Identity.RefreshPolicy)
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	}

	if c.ObjectStore.Container == "" {
		return fmt.Errorf("object store container is required")
	}

	if c.Queue.Name == "" {
		return fmt.Errorf("queue name is required")
	}

	if c.Upload.RateLimit > 0 && c.Upload.RateWindow < time.Second {
		return fmt.Errorf("upload rate window must be at least 1s")
	}

	if c.Upload.DispatchWorkers < 1 {
		return fmt.Errorf("dispatch workers must be >= 1")
	}

	return c.Timeouts.Validate()
}

// Validate requires a positive deadline for every external call
func (t TimeoutConfig) Validate() error {
	for _, d := range []struct {
		env   string
		value time.Duration
	}{
		{"TIMEOUT_STORE_WRITE", t.StoreWrite},
		{"TIMEOUT_STORE_CONTROL", t.StoreControl},
		{"TIMEOUT_ENQUEUE", t.Enqueue},
		{"TIMEOUT_TOKEN_EXCHANGE", t.TokenExchange},
		{"TIMEOUT_PROFILE_FETCH", t.ProfileFetch},
		{"TIMEOUT_USER_STORE", t.UserStore},
		{"TIMEOUT_LISTING", t.Listing},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.env, d.value)
		}
	}
	return nil
}

// ValidateIdentity checks the identity provider credentials. Services that
// serve logins call it at startup; workers do not need them.
func (c *Config) ValidateIdentity() error {
	if c.Identity.ClientID == "" || c.Identity.ClientSecret == "" || c.Identity.RedirectURL == "" {
		return fmt.Errorf("%w: CLIENT_ID, CLIENT_SECRET and REDIRECT_URI must be set", ErrMissingCredentials)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns host:port for the redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
