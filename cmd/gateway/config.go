package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"access-gateway/internal/logs"
	"access-gateway/middleware/access/application"
)

type config struct {
	listenAddr  string
	upstreamURL string
	trustXFF    bool
	addHeaders  bool

	concurrencyMax     int
	concurrencyTimeout time.Duration

	adminListenAddr  string
	adminJWTSecret   string
	adminRequireTier bool

	trustedNetwork        string
	configuredAllowlist   string
	allowlistBackend      string
	allowlistFile         string
	allowlistRedisURL     string
	allowlistRedisKey     string
	allowlistPostgresDSN  string
	allowlistWriteTimeout time.Duration

	reputation         application.ReputationConfig
	sweepEvery         time.Duration
	violationThreshold int

	rateEnabled bool
	rateRPS     float64
	rateBurst   int
	retryAfter  time.Duration

	statsEnabled       bool
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackAddrs    bool
	statsWorkers       int

	geoCityDB   string
	geoASNDB    string
	geoCacheTTL time.Duration
	geoTimeout  time.Duration

	log logs.Config
}

func readLogConfig() logs.Config {
	return logs.Config{
		Type:       getenvDefault("LOG_TYPE", "stdout"),
		Level:      getenvDefault("LOG_LEVEL", "info"),
		Path:       os.Getenv("LOG_PATH"),
		MaxSize:    getenvIntDefault("LOG_MAX_SIZE", 10),
		MaxBackups: getenvIntDefault("LOG_MAX_BACKUPS", 5),
		MaxAge:     getenvIntDefault("LOG_MAX_AGE", 7),
		Compress:   getenvBoolDefault("LOG_COMPRESS", false),
		Color:      getenvBoolDefault("LOG_COLOR", true),
	}
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_ACCESS_HEADERS", false)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.adminListenAddr = getenvDefault("ADMIN_LISTEN_ADDR", "127.0.0.1:8090")
	cfg.adminJWTSecret = os.Getenv("ADMIN_JWT_SECRET")
	cfg.adminRequireTier = getenvBoolDefault("ADMIN_REQUIRE_TIER", false)

	cfg.trustedNetwork = strings.TrimSpace(os.Getenv("TRUSTED_NETWORK"))
	cfg.configuredAllowlist = os.Getenv("CONFIGURED_ALLOWLIST")
	cfg.allowlistBackend = strings.ToLower(getenvDefault("ALLOWLIST_BACKEND", "file"))
	cfg.allowlistFile = getenvDefault("ALLOWLIST_FILE", "data/dynamic-allowlist.json")
	cfg.allowlistRedisURL = os.Getenv("ALLOWLIST_REDIS_URL")
	cfg.allowlistRedisKey = getenvDefault("ALLOWLIST_REDIS_KEY", "access:allowlist:dynamic")
	cfg.allowlistPostgresDSN = os.Getenv("ALLOWLIST_POSTGRES_DSN")
	cfg.allowlistWriteTimeout = getenvDurationDefault("ALLOWLIST_WRITE_TIMEOUT", 5*time.Second)

	def := application.DefaultReputationConfig()
	cfg.reputation = application.ReputationConfig{
		MaxAttempts:            getenvIntDefault("REPUTATION_MAX_ATTEMPTS", def.MaxAttempts),
		SuspensionDuration:     getenvDurationDefault("REPUTATION_SUSPENSION", def.SuspensionDuration),
		MaxSuspensions:         getenvIntDefault("REPUTATION_MAX_SUSPENSIONS", def.MaxSuspensions),
		PermanentBlockAttempts: getenvIntDefault("REPUTATION_PERMANENT_BLOCK_ATTEMPTS", def.PermanentBlockAttempts),
		HistoryLimit:           getenvIntDefault("REPUTATION_HISTORY_LIMIT", def.HistoryLimit),
		AttemptLogLimit:        def.AttemptLogLimit,
	}
	cfg.sweepEvery = getenvDurationDefault("REPUTATION_SWEEP_EVERY", time.Minute)
	cfg.violationThreshold = getenvIntDefault("VIOLATION_THRESHOLD", application.DefaultViolationThreshold)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 10)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02), o padrão 20 pode dar a impressão de que
	// o limiter não está funcionando, porque as primeiras ~20 passam.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 20
		if getenvIsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 1*time.Second)

	cfg.statsEnabled = getenvBoolDefault("STATS_ENABLED", true)
	cfg.statsRedisAddr = os.Getenv("STATS_REDIS_ADDR")
	cfg.statsRedisPassword = os.Getenv("STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = getenvIntDefault("STATS_REDIS_DB", 0)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "access:stats")
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackAddrs = getenvBoolDefault("STATS_TRACK_ADDRESSES", false)
	cfg.statsWorkers = getenvIntDefault("STATS_WORKERS", 64)

	cfg.geoCityDB = os.Getenv("GEOIP_CITY_DB")
	cfg.geoASNDB = os.Getenv("GEOIP_ASN_DB")
	cfg.geoCacheTTL = getenvDurationDefault("GEO_CACHE_TTL", 24*time.Hour)
	cfg.geoTimeout = getenvDurationDefault("GEO_TIMEOUT", 2*time.Second)

	cfg.log = readLogConfig()

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	switch cfg.allowlistBackend {
	case "file", "memory":
	case "redis":
		if cfg.allowlistRedisURL == "" {
			return config{}, errors.New("ALLOWLIST_REDIS_URL is required when ALLOWLIST_BACKEND=redis")
		}
	case "postgres":
		if cfg.allowlistPostgresDSN == "" {
			return config{}, errors.New("ALLOWLIST_POSTGRES_DSN is required when ALLOWLIST_BACKEND=postgres")
		}
	default:
		return config{}, errors.New("ALLOWLIST_BACKEND must be file, redis, postgres or memory")
	}
	if cfg.rateRPS <= 0 {
		return config{}, errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 {
		return config{}, errors.New("RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
