package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/ttlock"
)

type Config struct {
	HTTPAddr    string
	GRPCAddr    string // "" disables the gRPC health listener
	CORSOrigins []string

	// DB
	Env      string // "dev" | "prod"
	DBPath   string // e.g. "./data/lockgate.db"
	SeedFile string

	LogLevel  string
	LogFormat string // "console" | "json"

	// Engine
	RawDedupWindow     time.Duration
	AuthSuppressWindow time.Duration
	LookupTimeout      time.Duration
	SideEffectTimeout  time.Duration
	HasGateway         bool
	Timezone           string // IANA name or "Local"
	RedisURL           string // "" keeps dedup state in process
	KafkaBrokers       []string
	KafkaTopic         string

	// Poll fallback
	PollInterval time.Duration // 0 disables polling
	PollLockIDs  []string

	// Access record retention
	RecordRetentionDays int // 0 = keep forever
	PruneIntervalHours  int // how often the pruner runs (default 6)

	TTLock ttlock.Config
}

// Load reads the optional env files (default ".env") into the process
// environment and then builds the config.  Missing files are not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := FromEnv()
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("LOCKGATE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		HTTPAddr:    getenvDefault("LOCKGATE_HTTP_ADDR", ":5002"),
		GRPCAddr:    strings.TrimSpace(os.Getenv("LOCKGATE_GRPC_ADDR")),
		CORSOrigins: splitCSV(getenvDefault("LOCKGATE_CORS_ORIGINS", "*")),

		Env:      env,
		DBPath:   getenvDefault("LOCKGATE_DB_PATH", "./data/lockgate.db"),
		SeedFile: strings.TrimSpace(os.Getenv("LOCKGATE_SEED_FILE")),

		LogLevel:  getenvDefault("LOCKGATE_LOG_LEVEL", "info"),
		LogFormat: getenvDefault("LOCKGATE_LOG_FORMAT", "console"),

		RawDedupWindow:     getenvDuration("LOCKGATE_RAW_DEDUP_WINDOW", 3*time.Second),
		AuthSuppressWindow: getenvDuration("LOCKGATE_AUTH_SUPPRESS_WINDOW", 5*time.Second),
		LookupTimeout:      getenvDuration("LOCKGATE_LOOKUP_TIMEOUT", 5*time.Second),
		SideEffectTimeout:  getenvDuration("LOCKGATE_SIDE_EFFECT_TIMEOUT", 5*time.Second),
		HasGateway:         getenvBool("LOCKGATE_HAS_GATEWAY", false),
		Timezone:           getenvDefault("LOCKGATE_TIMEZONE", "Local"),
		RedisURL:           strings.TrimSpace(os.Getenv("LOCKGATE_REDIS_URL")),
		KafkaBrokers:       splitCSV(os.Getenv("LOCKGATE_KAFKA_BROKERS")),
		KafkaTopic:         getenvDefault("LOCKGATE_KAFKA_TOPIC", "lock-access-events"),

		PollInterval: getenvDuration("LOCKGATE_POLL_INTERVAL", 0),
		PollLockIDs:  splitCSV(os.Getenv("LOCKGATE_POLL_LOCK_IDS")),

		RecordRetentionDays: getenvInt("LOCKGATE_RECORD_RETENTION_DAYS", 0),
		PruneIntervalHours:  getenvInt("LOCKGATE_PRUNE_INTERVAL_HOURS", 6),

		TTLock: ttlock.Config{
			BaseURL:       getenvDefault("TTLOCK_BASE_URL", "https://euapi.ttlock.com"),
			ClientID:      strings.TrimSpace(os.Getenv("TTLOCK_CLIENT_ID")),
			ClientSecret:  os.Getenv("TTLOCK_CLIENT_SECRET"),
			Username:      strings.TrimSpace(os.Getenv("TTLOCK_USERNAME")),
			Password:      os.Getenv("TTLOCK_PASSWORD"),
			RatePerSecond: getenvFloat("TTLOCK_RATE_PER_SECOND", 5),
			Timeout:       getenvDuration("TTLOCK_TIMEOUT", 10*time.Second),
		},
	}
}

// Location resolves Timezone for schedule evaluation.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("LOCKGATE_TIMEZONE %q: %w", tz, err)
	}
	return loc, nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

// getenvDuration accepts Go durations ("3s", "1m") or a bare number of
// seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
