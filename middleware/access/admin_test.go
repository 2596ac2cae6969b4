package access

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/domain"
	"access-gateway/middleware/access/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct{}

func (fakeValidator) Validate(token string) (domain.AdminClaims, error) {
	switch token {
	case "admin-token":
		return domain.AdminClaims{Subject: "ops", Role: "admin"}, nil
	case "user-token":
		return domain.AdminClaims{Subject: "dev", Role: "user"}, nil
	}
	return domain.AdminClaims{}, errors.New("bad token")
}

type adminFixture struct {
	h     http.Handler
	svc   application.Service
	stats *infra.MemoryStatsStore
}

func newAdminFixture(t *testing.T) adminFixture {
	t.Helper()
	svc := newTestService()
	stats := infra.NewMemoryStatsStore()
	h := AdminHandler(AdminOptions{
		Allowlist:  svc.Allowlist,
		Reputation: svc.Reputation,
		Validator:  fakeValidator{},
		Stats:      stats,
		Logger:     zerologNop,
	})
	return adminFixture{h: h, svc: svc, stats: stats}
}

func (f adminFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, "http://example"+path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, "http://example"+path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	r.RemoteAddr = "127.0.0.1:9999"
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAdmin_Auth(t *testing.T) {
	f := newAdminFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, AdminPrefix+"/blocked", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, AdminPrefix+"/blocked", "nope", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, AdminPrefix+"/blocked", "user-token", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, AdminPrefix+"/blocked", "admin-token", "").Code)
}

func TestAdmin_DisabledWithoutValidator(t *testing.T) {
	svc := newTestService()
	h := AdminHandler(AdminOptions{Allowlist: svc.Allowlist, Reputation: svc.Reputation})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example"+AdminPrefix+"/blocked", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RequireAdminTier(t *testing.T) {
	svc := newTestService()
	h := AdminHandler(AdminOptions{
		Allowlist:        svc.Allowlist,
		Reputation:       svc.Reputation,
		Validator:        fakeValidator{},
		RequireAdminTier: true,
	})

	r := httptest.NewRequest(http.MethodGet, "http://example"+AdminPrefix+"/blocked", nil)
	r.Header.Set("Authorization", "Bearer admin-token")
	r.RemoteAddr = "10.244.1.1:1"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_BlockUnblockFlow(t *testing.T) {
	f := newAdminFixture(t)
	addr := "203.0.113.9"

	w := f.do(http.MethodPost, AdminPrefix+"/block/"+addr, "admin-token", `{"reason":"scanner"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[domain.AdminResult](t, w)
	assert.Equal(t, domain.StatusBlocked, res.Current)

	w = f.do(http.MethodPost, AdminPrefix+"/block/"+addr, "admin-token", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	blocked := decode[[]domain.BlockEntry](t, f.do(http.MethodGet, AdminPrefix+"/blocked", "admin-token", ""))
	require.Len(t, blocked, 1)
	assert.Equal(t, "scanner", blocked[0].Reason)

	w = f.do(http.MethodPost, AdminPrefix+"/unblock/"+addr, "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	hist := decode[[]domain.HistoryEntry](t, f.do(http.MethodGet, AdminPrefix+"/history/"+addr, "admin-token", ""))
	require.Len(t, hist, 2)
	assert.Equal(t, domain.TriggerAdmin, hist[1].TriggeredBy)
}

func TestAdmin_ReputationResultCodes(t *testing.T) {
	f := newAdminFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, AdminPrefix+"/unblock/203.0.113.1", "admin-token", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, AdminPrefix+"/unblock/not-an-ip", "admin-token", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, AdminPrefix+"/clear/203.0.113.1", "admin-token", "").Code)

	w := f.do(http.MethodPost, AdminPrefix+"/suspend/203.0.113.1", "admin-token", `{"duration":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, AdminPrefix+"/suspend/203.0.113.1", "admin-token", `{"reason":"abuse","duration":"30m"}`)
	require.Equal(t, http.StatusOK, w.Code)
	susp := decode[[]domain.Suspension](t, f.do(http.MethodGet, AdminPrefix+"/suspended", "admin-token", ""))
	require.Len(t, susp, 1)
	assert.Equal(t, "abuse", susp[0].Reason)
	assert.InDelta(t, 1800, susp[0].Until.Sub(susp[0].Since).Seconds(), 1)

	w = f.do(http.MethodPost, AdminPrefix+"/warn/203.0.113.2", "admin-token", `{"reason":"noisy"}`)
	require.Equal(t, http.StatusOK, w.Code)
	warn := decode[[]domain.ReputationRecord](t, f.do(http.MethodGet, AdminPrefix+"/warnings", "admin-token", ""))
	require.Len(t, warn, 1)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, AdminPrefix+"/unsuspend/203.0.113.1", "admin-token", "").Code)
}

func TestAdmin_OverviewAndStatus(t *testing.T) {
	f := newAdminFixture(t)
	f.svc.Reputation.BlockManually("203.0.113.1", "x")
	f.svc.Reputation.WarnManually("203.0.113.2", "y")
	f.svc.Reputation.WarnManually("198.51.100.3", "z")

	page := decode[application.StatusPage](t, f.do(http.MethodGet, AdminPrefix+"/overview?search=203.0.113&sort=address&order=asc&limit=1", "admin-token", ""))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Counts.Blocked)
	assert.Equal(t, 2, page.Counts.Warning)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "203.0.113.1", page.Items[0].Address)

	st := decode[addressStatus](t, f.do(http.MethodGet, AdminPrefix+"/status/127.0.0.1", "admin-token", ""))
	assert.Equal(t, domain.TierAdmin, st.Tier)
	require.NotNil(t, st.Entry)
	assert.Equal(t, domain.OriginPermanent, st.Entry.Origin)
}

func TestAdmin_AllowlistEndpoints(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(http.MethodPost, AdminPrefix+"/allowlist", "admin-token", `{"address":"203.0.113.0/28","tier":"trusted","reason":"partner"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, domain.TierTrusted, f.svc.Allowlist.TierOf("203.0.113.5"))

	w = f.do(http.MethodPost, AdminPrefix+"/allowlist", "admin-token", `{"address":"203.0.113.3"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, AdminPrefix+"/allowlist", "admin-token", `{"address":"999.1.1.1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, AdminPrefix+"/allowlist", "admin-token", `{"address":"198.51.100.4"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.TierGuest, f.svc.Allowlist.TierOf("198.51.100.4"), "tier defaults to guest")

	view := decode[domain.AllowlistView](t, f.do(http.MethodGet, AdminPrefix+"/allowlist", "admin-token", ""))
	assert.Len(t, view.Dynamic, 2)

	w = f.do(http.MethodDelete, AdminPrefix+"/allowlist/203.0.113.0/28", "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.TierUnauthorized, f.svc.Allowlist.TierOf("203.0.113.5"))

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, AdminPrefix+"/allowlist/10.244.0.0/16", "admin-token", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, AdminPrefix+"/allowlist/192.0.2.1", "admin-token", "").Code)
}

func TestAdmin_Stats(t *testing.T) {
	f := newAdminFixture(t)
	_ = f.stats.Record(t.Context(), domain.DecisionEvent{Tier: domain.TierAdmin, Allowed: true})

	snap := decode[domain.StatsSnapshot](t, f.do(http.MethodGet, AdminPrefix+"/stats", "admin-token", ""))

	assert.Equal(t, int64(1), snap.Total.Allowed)
}
