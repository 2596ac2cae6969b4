package access

import (
	"net/http"
	"time"

	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/domain"

	"github.com/rs/zerolog"
)

// ConcurrencyOptions limita quantas requisições atravessam o gateway ao mesmo tempo.
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter vai no header da rejeição; 0 omite.
	RetryAfter time.Duration

	// Pool substitui o semáforo padrão de Max vagas.
	Pool domain.SlotPool

	Logger zerolog.Logger
}

// ConcurrencyMiddleware rejeita quando não há vaga. Max <= 0 (sem Pool) desliga.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = application.NewSlotPool(opts.Max)
	}
	gate := application.SlotGate{Pool: opts.Pool, AcquireTimeout: opts.AcquireTimeout}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := gate.Acquire(r.Context())
			if !ok {
				opts.Logger.Warn().
					Str("remote", r.RemoteAddr).
					Str("path", r.URL.Path).
					Int("max", opts.Max).
					Msg("gateway saturated, request rejected")
				if opts.RetryAfter > 0 {
					w.Header().Set("Retry-After", formatInt(retryAfterSeconds(opts.RetryAfter)))
				}
				writeError(w, opts.RejectStatus, "too many concurrent requests")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
