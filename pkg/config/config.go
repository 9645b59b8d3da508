package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environments accepted in ENV
var environments = map[string]bool{"development": true, "staging": true, "production": true}

// Config is process-level configuration. Simulation parameters live in the
// experiment YAML (internal/envconfig); this covers where things run.
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Port string
	Env  string // development, staging, production

	// ExperimentFile is the experiment YAML used when --config is not given
	ExperimentFile string
	// RunsDir holds one directory per evaluation run
	RunsDir string

	// Database is optional: only the panel/universe mirrors need it
	Database DatabaseConfig
	Redis    RedisConfig

	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	// SimulateRPS and SimulateBurst bound /api/simulate and /api/ws/episode
	SimulateRPS   float64
	SimulateBurst int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	TTL      time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Load reads .env (if any) then the process environment. A variable that is
// set but malformed is an error rather than a silent fallback to its default.
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	var r envReader
	cfg := &Config{
		Port: r.str("PORT", "8089"),
		Env:  r.str("ENV", "development"),

		ExperimentFile: r.str("EDGE_CONFIG", ""),
		RunsDir:        r.str("RUNS_DIR", "runs"),

		Database: DatabaseConfig{
			URL:             r.str("DATABASE_URL", ""),
			MaxConns:        r.asInt("DB_MAX_CONNS", 10),
			MinConns:        r.asInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: r.asDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: r.asDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},

		Redis: RedisConfig{
			Host:     r.str("REDIS_HOST", "localhost"),
			Port:     r.str("REDIS_PORT", "6379"),
			Password: r.str("REDIS_PASSWORD", ""),
			DB:       r.asInt("REDIS_DB", 0),
			Enabled:  r.asBool("REDIS_ENABLED", false),
			TTL:      r.asDuration("REDIS_TTL", 168*time.Hour),
		},

		LogLevel:  r.str("LOG_LEVEL", "info"),
		LogFormat: r.str("LOG_FORMAT", "console"),

		MetricsEnabled: r.asBool("METRICS_ENABLED", true),

		SimulateRPS:   r.asFloat("SIMULATE_RPS", 2),
		SimulateBurst: r.asInt("SIMULATE_BURST", 4),
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// RequireDatabase fails when a database-backed command runs without DATABASE_URL
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for this command (or drop --db)")
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if !environments[c.Env] {
		errs = append(errs, fmt.Errorf("ENV must be one of development, staging, production; got %q", c.Env))
	}
	if c.RunsDir == "" {
		errs = append(errs, errors.New("RUNS_DIR must not be empty"))
	}
	if c.SimulateRPS <= 0 || c.SimulateBurst <= 0 {
		errs = append(errs, errors.New("SIMULATE_RPS and SIMULATE_BURST must be positive"))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, errors.New("DB_MIN_CONNS must not exceed DB_MAX_CONNS"))
	}
	return errors.Join(errs...)
}

// loadEnvFile loads the first .env found in the working directory or next
// to the binary; variables already set in the environment win
func loadEnvFile() {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// envReader reads typed variables and collects parse errors
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func (r *envReader) fail(key, value, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q is not a valid %s", key, value, want))
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

func (r *envReader) asInt(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "integer")
		return def
	}
	return n
}

func (r *envReader) asFloat(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, "number")
		return def
	}
	return f
}

func (r *envReader) asBool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, "boolean")
		return def
	}
	return b
}

func (r *envReader) asDuration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "duration")
		return def
	}
	return d
}
