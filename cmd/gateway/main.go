package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"access-gateway/internal/logs"
	"access-gateway/middleware/access"
	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/domain"
	"access-gateway/middleware/access/infra"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// .env é opcional; variáveis já exportadas têm precedência.
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(issueToken(os.Args[2:]))
	}

	logger := logs.New(readLogConfig())

	cfg, err := readConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid UPSTREAM_URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configured, err := infra.LoadConfigured(cfg.configuredAllowlist)
	if err != nil {
		logger.Fatal().Err(err).Msg("configured allowlist")
	}
	permanent := append([]string{}, application.DefaultPermanent...)
	if cfg.trustedNetwork != "" {
		permanent = append(permanent, cfg.trustedNetwork)
	}

	persister, closePersister, err := openPersister(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.allowlistBackend).Msg("allowlist backend")
	}
	defer closePersister()

	allowOpts := []application.AllowlistOption{
		application.WithWriteGate(application.NewSlotPool(1), cfg.allowlistWriteTimeout),
		application.WithAllowlistLogger(logger.With().Str("component", "allowlist").Logger()),
	}
	if persister != nil {
		allowOpts = append(allowOpts, application.WithPersister(persister))
	}
	allowlist := application.NewAllowlist(permanent, configured, allowOpts...)
	loaded := allowlist.Load(ctx)

	tracker := application.NewTracker(cfg.reputation,
		application.WithTrackerLogger(logger.With().Str("component", "reputation").Logger()),
		application.WithExpiryIndex(infra.NewExpiryIndex()),
	)
	tracker.StartJanitor(ctx, cfg.sweepEvery)

	svc := application.Service{
		Allowlist:  allowlist,
		Reputation: tracker,
		Policy:     application.DefaultPolicy(),
		Violations: application.NewViolationHook(allowlist, cfg.violationThreshold, logger.With().Str("component", "violations").Logger()),
		GeoTimeout: cfg.geoTimeout,
		Logger:     logger.With().Str("component", "access").Logger(),
	}

	if cfg.geoCityDB != "" || cfg.geoASNDB != "" {
		mm, err := infra.OpenMaxMind(cfg.geoCityDB, cfg.geoASNDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("geoip databases")
		}
		defer func() { _ = mm.Close() }()
		svc.Geo = infra.NewCachedResolver(mm,
			infra.WithGeoTTL(cfg.geoCacheTTL),
			infra.WithGeoLogger(logger.With().Str("component", "geo").Logger()),
		)
	}

	var statsReader domain.StatsReader
	switch {
	case !cfg.statsEnabled:
	case cfg.statsRedisAddr != "":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		if err := pingRedis(ctx, rdb); err != nil {
			logger.Fatal().Err(err).Msg("redis stats ping error")
		}

		redisStats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackAddresses(cfg.statsTrackAddrs),
		)
		// escrita fora do caminho da requisição; leitura direto do redis
		async, err := infra.NewAsyncStatsStore(redisStats, cfg.statsWorkers, logger.With().Str("component", "stats").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("stats worker pool")
		}
		defer async.Close()
		svc.Stats = async
		statsReader = redisStats
	default:
		mem := infra.NewMemoryStatsStore(infra.WithTrackAddresses(cfg.statsTrackAddrs))
		svc.Stats = mem
		statsReader = mem
	}

	var volume domain.VolumeLimiter
	if cfg.rateEnabled {
		store := infra.NewVolumeStore(cfg.rateRPS, cfg.rateBurst,
			infra.WithVolumeLogger(logger.With().Str("component", "volume").Logger()),
		)
		store.StartJanitor(ctx)
		volume = store
	}

	h := http.Handler(proxy)
	h = access.Middleware(access.Options{
		Service:            svc,
		Volume:             volume,
		VolumeRetryAfter:   cfg.retryAfter,
		TrustXForwardedFor: cfg.trustXFF,
		AddAccessHeaders:   cfg.addHeaders,
		Logger:             logger.With().Str("component", "middleware").Logger(),
	})(h)
	h = access.ConcurrencyMiddleware(access.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		RetryAfter:     cfg.retryAfter,
		Logger:         logger.With().Str("component", "concurrency").Logger(),
	})(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	servers := []*http.Server{srv}

	if cfg.adminJWTSecret != "" {
		adminSrv := &http.Server{
			Addr: cfg.adminListenAddr,
			Handler: access.AdminHandler(access.AdminOptions{
				Allowlist:        allowlist,
				Reputation:       tracker,
				Validator:        infra.NewJWTValidator(cfg.adminJWTSecret),
				RequireAdminTier: cfg.adminRequireTier,
				KeyFn:            access.DefaultKeyFunc(cfg.trustXFF),
				Stats:            statsReader,
				Logger:           logger.With().Str("component", "admin").Logger(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
		servers = append(servers, adminSrv)
		go func() {
			logger.Info().Str("addr", cfg.adminListenAddr).Msg("admin api listening")
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("admin server error")
				cancel()
			}
		}()
	} else {
		logger.Warn().Msg("ADMIN_JWT_SECRET not set, admin api disabled")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
	}()

	logger.Info().Str("addr", cfg.listenAddr).Str("upstream", target.String()).Msg("gateway listening")
	logger.Info().
		Str("backend", cfg.allowlistBackend).
		Int("configured", len(configured)).
		Int("dynamic", loaded).
		Str("trustedNetwork", cfg.trustedNetwork).
		Msg("allowlist")
	logger.Info().
		Int("maxAttempts", cfg.reputation.MaxAttempts).
		Dur("suspension", cfg.reputation.SuspensionDuration).
		Int("maxSuspensions", cfg.reputation.MaxSuspensions).
		Int("permanentBlockAttempts", cfg.reputation.PermanentBlockAttempts).
		Msg("reputation")
	logger.Info().Bool("enabled", cfg.rateEnabled).Float64("rps", cfg.rateRPS).Int("burst", cfg.rateBurst).Bool("trustXFF", cfg.trustXFF).Msg("rate")
	logger.Info().Int("max", cfg.concurrencyMax).Dur("acquireTimeout", cfg.concurrencyTimeout).Msg("concurrency")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// openPersister escolhe o backend da allowlist dinâmica; "memory" não persiste.
func openPersister(ctx context.Context, cfg config, logger zerolog.Logger) (domain.AllowlistPersister, func(), error) {
	noop := func() {}
	switch cfg.allowlistBackend {
	case "memory":
		return nil, noop, nil
	case "redis":
		opt, err := redis.ParseURL(cfg.allowlistRedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parse ALLOWLIST_REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := pingRedis(ctx, rdb); err != nil {
			_ = rdb.Close()
			return nil, noop, err
		}
		return infra.NewRedisPersister(rdb, infra.WithAllowlistKey(cfg.allowlistRedisKey)), func() { _ = rdb.Close() }, nil
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.allowlistPostgresDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres: %w", err)
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		p, err := infra.NewGormPersister(db)
		if err != nil {
			closeDB()
			return nil, noop, err
		}
		return p, closeDB, nil
	default:
		logger.Debug().Str("path", cfg.allowlistFile).Msg("allowlist file backend")
		return infra.NewFilePersister(cfg.allowlistFile), noop, nil
	}
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// issueToken implementa "gateway token <subject> [ttl]".
func issueToken(args []string) int {
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_JWT_SECRET is required")
		return 2
	}
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: gateway token <subject> [ttl]")
		return 2
	}
	ttl := time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil || d <= 0 {
			fmt.Fprintf(os.Stderr, "invalid ttl %q\n", args[1])
			return 2
		}
		ttl = d
	}
	token, err := infra.NewJWTValidator(secret).Issue(args[0], domain.RoleAdmin, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
