package access

import (
	"net"
	"net/http"
	"strings"
	"time"

	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/domain"

	"github.com/rs/zerolog"
)

// KeyFunc extrai o endereço do cliente. O núcleo nunca olha headers.
type KeyFunc func(r *http.Request) string

type Options struct {
	Service application.Service

	// Volume é o limitador de volume aplicado depois do allow; nil desliga.
	Volume           domain.VolumeLimiter
	VolumeRetryAfter time.Duration

	KeyFn              KeyFunc
	TrustXForwardedFor bool
	AddAccessHeaders   bool

	Logger zerolog.Logger
}

type denialBody struct {
	Error             string        `json:"error"`
	Reason            string        `json:"reason,omitempty"`
	Tier              domain.Tier   `json:"tier,omitempty"`
	Status            domain.Status `json:"status"`
	RemainingAttempts int           `json:"remainingAttempts,omitempty"`
	RetryAfter        int           `json:"retryAfterSeconds,omitempty"`
}

func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return strings.Trim(r.RemoteAddr, "[]")
		}
		return "unknown"
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.VolumeRetryAfter == 0 {
		opts.VolumeRetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}
	svc := opts.Service

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := opts.KeyFn(r)
			out := svc.Evaluate(r.Context(), addr, r.Method, r.URL.Path)

			if opts.AddAccessHeaders {
				if out.Tier != "" {
					w.Header().Set("X-Access-Tier", string(out.Tier))
				}
				w.Header().Set("X-Access-Status", string(out.Status))
			}

			if !out.Allowed {
				deny(w, out)
				opts.Logger.Debug().
					Str("address", addr).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("tier", string(out.Tier)).
					Str("status", string(out.Status)).
					Str("reason", out.Reason).
					Msg("access denied")
				return
			}

			// volume não é evidência de abuso: 429 aqui não passa pela reputação
			if opts.Volume != nil && out.Tier != domain.TierAdmin && !opts.Volume.Allow(addr) {
				wait := opts.VolumeRetryAfter
				if hint, ok := opts.Volume.(retryHinter); ok {
					if d := hint.RetryAfter(addr); d > wait {
						wait = d
					}
				}
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(wait)))
				writeError(w, http.StatusTooManyRequests, "request volume exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryHinter é opcional: limitadores que sabem quando o próximo token chega.
type retryHinter interface {
	RetryAfter(address string) time.Duration
}

func deny(w http.ResponseWriter, out domain.Outcome) {
	body := denialBody{
		Error:  http.StatusText(http.StatusForbidden),
		Reason: out.Reason,
		Tier:   out.Tier,
		Status: out.Status,
	}
	if out.Verdict != nil {
		body.RemainingAttempts = out.Verdict.RemainingAttempts
	}
	if out.RetryAfter > 0 {
		secs := retryAfterSeconds(out.RetryAfter)
		body.RetryAfter = secs
		w.Header().Set("Retry-After", formatInt(secs))
	}
	writeJSON(w, http.StatusForbidden, body)
}
