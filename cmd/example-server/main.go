package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"access-gateway/internal/logs"
	"access-gateway/middleware/access"
	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/infra"
)

func main() {
	// Exemplo: injetando o controle de acesso diretamente no seu webserver (sem proxy).
	// Tudo em memória: allowlist sem persistência e reputação local.
	logger := logs.New(logs.Config{Type: "stdout", Level: "debug", Color: true})

	configured := infra.ParseConfiguredList(os.Getenv("CONFIGURED_ALLOWLIST"))
	allowlist := application.NewAllowlist(application.DefaultPermanent, configured,
		application.WithAllowlistLogger(logger),
	)
	tracker := application.NewTracker(application.DefaultReputationConfig(),
		application.WithTrackerLogger(logger),
	)
	stats := infra.NewMemoryStatsStore()

	svc := application.Service{
		Allowlist:  allowlist,
		Reputation: tracker,
		Policy:     application.DefaultPolicy(),
		Violations: application.NewViolationHook(allowlist, application.DefaultViolationThreshold, logger),
		Stats:      stats,
		Logger:     logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	tracker.StartJanitor(ctx, time.Minute)

	volume := infra.NewVolumeStore(5, 10)
	volume.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	h := http.Handler(mux)
	h = access.Middleware(access.Options{
		Service:            svc,
		Volume:             volume,
		TrustXForwardedFor: true,
		AddAccessHeaders:   true,
		Logger:             logger,
	})(h)
	h = access.ConcurrencyMiddleware(access.ConcurrencyOptions{Max: 50})(h)

	root := http.NewServeMux()
	root.Handle("/", h)
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		root.Handle(access.AdminPrefix+"/", access.AdminHandler(access.AdminOptions{
			Allowlist:  allowlist,
			Reputation: tracker,
			Validator:  infra.NewJWTValidator(secret),
			Stats:      stats,
			Logger:     logger,
		}))
	}

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}
