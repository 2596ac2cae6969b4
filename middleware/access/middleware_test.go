package access

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/domain"
	"access-gateway/middleware/access/infra"
)

func newTestService() application.Service {
	al := application.NewAllowlist(application.DefaultPermanent, infra.ParseConfiguredList("10.244.0.0/16"))
	return application.Service{
		Allowlist:  al,
		Reputation: application.NewTracker(application.DefaultReputationConfig()),
		Policy:     application.DefaultPolicy(),
		Violations: application.NewViolationHook(al, 3, zerologNop),
	}
}

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

func serve(h http.Handler, remote, path string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example"+path, nil)
	r.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_AllowsAdminAndTrusted(t *testing.T) {
	calls := 0
	h := Middleware(Options{Service: newTestService(), AddAccessHeaders: true})(okHandler(&calls))

	w := serve(h, "127.0.0.1:1234", "/api/security")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}
	if got := w.Header().Get("X-Access-Tier"); got != "admin" {
		t.Fatalf("expected X-Access-Tier admin, got %q", got)
	}

	w = serve(h, "10.244.1.2:1234", "/api/orders")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for trusted, got %d", w.Code)
	}
	if calls != 2 {
		t.Fatalf("expected next handler to be called twice, got %d", calls)
	}
}

func TestMiddleware_UnauthorizedEscalatesToRetryAfter(t *testing.T) {
	calls := 0
	h := Middleware(Options{Service: newTestService()})(okHandler(&calls))

	for i := 1; i <= 4; i++ {
		w := serve(h, "8.8.8.8:1000", "/")
		if w.Code != http.StatusForbidden {
			t.Fatalf("attempt %d: expected 403, got %d", i, w.Code)
		}
		var body denialBody
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Status != domain.StatusWarning || body.RemainingAttempts != 5-i {
			t.Fatalf("attempt %d: unexpected body %+v", i, body)
		}
		if w.Header().Get("Retry-After") != "" {
			t.Fatalf("attempt %d: warning must not carry Retry-After", i)
		}
	}

	w := serve(h, "8.8.8.8:1000", "/")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on suspension, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "3600" {
		t.Fatalf("expected Retry-After 3600, got %q", got)
	}
	if calls != 0 {
		t.Fatalf("expected next handler not to be called, got %d", calls)
	}
}

func TestMiddleware_VolumeLimitSkipsAdminAndReputation(t *testing.T) {
	svc := newTestService()
	calls := 0
	h := Middleware(Options{
		Service: svc,
		Volume:  infra.NewVolumeStore(0.02, 1),
	})(okHandler(&calls))

	if w := serve(h, "10.244.1.2:1", "/api/orders"); w.Code != http.StatusOK {
		t.Fatalf("expected first trusted request 200, got %d", w.Code)
	}
	w := serve(h, "10.244.1.2:1", "/api/orders")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "50" {
		t.Fatalf("expected Retry-After from the bucket refill (50s), got %q", got)
	}
	if st := svc.Reputation.Status("10.244.1.2"); st != domain.StatusNormal {
		t.Fatalf("expected volume rejection not to touch reputation, got %s", st)
	}

	for i := 0; i < 5; i++ {
		if w := serve(h, "127.0.0.1:1", "/"); w.Code != http.StatusOK {
			t.Fatalf("expected admin to bypass volume limit, got %d", w.Code)
		}
	}
}

func TestMiddleware_GuestDeniedRoute(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Allowlist.AddDynamic(t.Context(), "198.51.100.7", domain.TierGuest, ""); err != nil {
		t.Fatalf("add guest: %v", err)
	}
	calls := 0
	h := Middleware(Options{Service: svc})(okHandler(&calls))

	if w := serve(h, "198.51.100.7:1", "/docs"); w.Code != http.StatusOK {
		t.Fatalf("expected guest docs 200, got %d", w.Code)
	}
	if w := serve(h, "198.51.100.7:1", "/api/security"); w.Code != http.StatusForbidden {
		t.Fatalf("expected guest security 403, got %d", w.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}
}
