package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	NATS          NATSConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Events        EventsConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// CORSAllowedOrigins lists browser origins allowed to make credentialed
	// requests. Empty disables CORS entirely.
	CORSAllowedOrigins []string
}

// NATSConfig holds message bus configuration
type NATSConfig struct {
	Servers        []string
	Name           string
	QueueGroup     string
	RequestTimeout time.Duration // upper bound for handling one request
	// MaxConcurrent caps in-flight requests per subject. When every slot is
	// busy the subscription stops draining and messages queue in the client
	// up to PendingMsgs/PendingBytes; beyond that NATS drops them and
	// reports a slow consumer.
	MaxConcurrent int
	PendingMsgs   int
	PendingBytes  int
	ReconnectWait time.Duration
	MaxReconnects int
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// JWTConfig holds token signing configuration.
// The *ExpiresIn fields keep the configured spelling (e.g. "15m", "7d") and are
// echoed back to clients; the TTL fields are the parsed durations.
type JWTConfig struct {
	AccessSecret     string
	AccessExpiresIn  string
	AccessTTL        time.Duration
	RefreshSecret    string
	RefreshExpiresIn string
	RefreshTTL       time.Duration
	Issuer           string
	Audience         string
}

// PasswordConfig holds argon2id parameters
type PasswordConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// EventsConfig holds configuration for the asynchronous event emitter
type EventsConfig struct {
	BufferSize     int
	WorkerCount    int
	PublishTimeout time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// argon2 bounds. Memory is in KiB; 4 GiB is far past any sane setting.
const (
	minArgon2MemoryKB = 8 * 1024
	maxArgon2MemoryKB = 4 * 1024 * 1024
	maxArgon2Time     = 64
	maxArgon2Length   = 1024
)

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	accessExpiresIn := getEnv("JWT_EXPIRES_IN", "")
	refreshExpiresIn := getEnv("REFRESH_EXPIRES_IN", "")

	env := &envParser{}
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               env.asInt("PORT", 3001),
			ReadTimeout:        env.asDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       env.asDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout:    env.asDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		NATS: NATSConfig{
			Servers:        getEnvAsList("NATS_SERVERS"),
			Name:           getEnv("NATS_CLIENT_NAME", "auth-service"),
			QueueGroup:     getEnv("NATS_QUEUE_GROUP", "auth-service"),
			RequestTimeout: env.asDuration("NATS_REQUEST_TIMEOUT", 10*time.Second),
			MaxConcurrent:  env.asInt("NATS_MAX_CONCURRENT", 64),
			PendingMsgs:    env.asInt("NATS_PENDING_MSGS", 4096),
			PendingBytes:   env.asInt("NATS_PENDING_BYTES", 16*1024*1024),
			ReconnectWait:  env.asDuration("NATS_RECONNECT_WAIT", 2*time.Second),
			MaxReconnects:  env.asInt("NATS_MAX_RECONNECTS", -1),
		},
		Database: databaseFromEnv(env),
		JWT: JWTConfig{
			AccessSecret:     getEnv("JWT_SECRET", ""),
			AccessExpiresIn:  accessExpiresIn,
			RefreshSecret:    getEnv("REFRESH_JWT_SECRET", ""),
			RefreshExpiresIn: refreshExpiresIn,
			Issuer:           getEnv("JWT_ISSUER", "maingoo"),
			Audience:         getEnv("JWT_AUDIENCE", "maingoo-clients"),
		},
		Password: PasswordConfig{
			Memory:      uint32(env.asUint("ARGON2_MEMORY_KB", 64*1024, minArgon2MemoryKB, maxArgon2MemoryKB)),
			Time:        uint32(env.asUint("ARGON2_TIME", 3, 1, maxArgon2Time)),
			Parallelism: uint8(env.asUint("ARGON2_PARALLELISM", 4, 1, math.MaxUint8)),
			SaltLength:  uint32(env.asUint("ARGON2_SALT_LENGTH", 16, 16, maxArgon2Length)),
			KeyLength:   uint32(env.asUint("ARGON2_KEY_LENGTH", 32, 16, maxArgon2Length)),
		},
		Events: EventsConfig{
			BufferSize:     env.asInt("EVENTS_BUFFER_SIZE", 1024),
			WorkerCount:    env.asInt("EVENTS_WORKER_COUNT", 2),
			PublishTimeout: env.asDuration("EVENTS_PUBLISH_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: env.asBool("METRICS_ENABLED", true),
		},
	}
	if err := env.err(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if accessExpiresIn != "" {
		ttl, err := ParseTTL(accessExpiresIn)
		if err != nil {
			return nil, fmt.Errorf("config validation failed: JWT_EXPIRES_IN: %w", err)
		}
		cfg.JWT.AccessTTL = ttl
	}
	if refreshExpiresIn != "" {
		ttl, err := ParseTTL(refreshExpiresIn)
		if err != nil {
			return nil, fmt.Errorf("config validation failed: REFRESH_EXPIRES_IN: %w", err)
		}
		cfg.JWT.RefreshTTL = ttl
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if len(c.NATS.Servers) == 0 {
		return fmt.Errorf("at least one NATS server is required (NATS_SERVERS)")
	}
	if c.NATS.MaxConcurrent <= 0 {
		return fmt.Errorf("NATS max concurrent must be positive")
	}
	if c.NATS.PendingMsgs <= 0 || c.NATS.PendingBytes <= 0 {
		return fmt.Errorf("NATS pending limits must be positive")
	}

	for _, origin := range c.Server.CORSAllowedOrigins {
		if origin == "*" || strings.HasSuffix(origin, "://*") {
			return fmt.Errorf("CORS origin %q allows every site; list origins explicitly", origin)
		}
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.JWT.AccessSecret == "" {
		return fmt.Errorf("access token secret is required (JWT_SECRET)")
	}
	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("refresh token secret is required (REFRESH_JWT_SECRET)")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return fmt.Errorf("access and refresh token secrets must differ")
	}
	if c.JWT.AccessExpiresIn == "" || c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("access token TTL is required (JWT_EXPIRES_IN)")
	}
	if c.JWT.RefreshExpiresIn == "" || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("refresh token TTL is required (REFRESH_EXPIRES_IN)")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return fmt.Errorf("token issuer and audience must not be empty")
	}

	if c.Events.BufferSize <= 0 || c.Events.WorkerCount <= 0 {
		return fmt.Errorf("event buffer size and worker count must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// NewDatabaseConfig loads only the database section. Tools that do not serve
// traffic (the seeder) use it instead of New.
func NewDatabaseConfig() (*DatabaseConfig, error) {
	_ = godotenv.Load(".env")

	env := &envParser{}
	cfg := databaseFromEnv(env)
	if err := env.err(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func databaseFromEnv(env *envParser) DatabaseConfig {
	return DatabaseConfig{
		ConnectionString: getEnv("DATABASE_URL", ""),
		MaxOpenConns:     env.asInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     env.asInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  env.asDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Validate checks the connection string is a PostgreSQL URI
func (c *DatabaseConfig) Validate() error {
	if c.ConnectionString == "" {
		return fmt.Errorf("database connection string is required (DATABASE_URL)")
	}
	u, err := url.Parse(c.ConnectionString)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return fmt.Errorf("DATABASE_URL must be a postgresql:// URI")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseTTL parses a token lifetime. It accepts everything time.ParseDuration
// does plus a "d" (days) unit, e.g. "7d" or "1d12h".
func ParseTTL(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}

	var total time.Duration
	if idx := strings.Index(value, "d"); idx >= 0 {
		days, err := strconv.Atoi(value[:idx])
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		total = time.Duration(days) * 24 * time.Hour
		value = value[idx+1:]
		if value == "" {
			return total, nil
		}
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return total + d, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, valueStr)
	}
	return value, nil
}

// getEnvAsUint parses an unsigned integer and rejects values outside [lo, hi]
func getEnvAsUint(key string, defaultValue, lo, hi uint64) (uint64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil || value < lo || value > hi {
		return 0, fmt.Errorf("%s: %q must be an integer between %d and %d", key, valueStr, lo, hi)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, valueStr)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, valueStr)
	}
	return value, nil
}

// envParser wraps the typed getters and keeps every parse error so a bad
// deployment reports all offending variables at once
type envParser struct {
	errs []error
}

func (p *envParser) asInt(key string, defaultValue int) int {
	value, err := getEnvAsInt(key, defaultValue)
	p.add(err)
	return value
}

func (p *envParser) asUint(key string, defaultValue, lo, hi uint64) uint64 {
	value, err := getEnvAsUint(key, defaultValue, lo, hi)
	p.add(err)
	return value
}

func (p *envParser) asBool(key string, defaultValue bool) bool {
	value, err := getEnvAsBool(key, defaultValue)
	p.add(err)
	return value
}

func (p *envParser) asDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := getEnvAsDuration(key, defaultValue)
	p.add(err)
	return value
}

func (p *envParser) add(err error) {
	if err != nil {
		p.errs = append(p.errs, err)
	}
}

func (p *envParser) err() error {
	return errors.Join(p.errs...)
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
