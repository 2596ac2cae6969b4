package access

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/cidr"
	"access-gateway/middleware/access/domain"

	"github.com/rs/zerolog"
)

const AdminPrefix = "/admin/access"

type AdminOptions struct {
	Allowlist  *application.Allowlist
	Reputation *application.Tracker

	// Validator valida o bearer token; nil desliga a API (todas as rotas 404).
	Validator domain.TokenValidator

	// RequireAdminTier exige também que o endereço de origem seja tier admin.
	RequireAdminTier bool
	KeyFn            KeyFunc

	// Stats é opcional; sem ele /stats responde 404.
	Stats domain.StatsReader

	Logger zerolog.Logger
}

type adminAPI struct {
	opts AdminOptions
}

// AdminHandler monta a API administrativa sob /admin/access.
func AdminHandler(opts AdminOptions) http.Handler {
	if opts.Validator == nil || opts.Reputation == nil || opts.Allowlist == nil {
		return http.NotFoundHandler()
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(false)
	}
	api := &adminAPI{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+AdminPrefix+"/overview", api.overview)
	mux.HandleFunc("GET "+AdminPrefix+"/blocked", api.blocked)
	mux.HandleFunc("GET "+AdminPrefix+"/suspended", api.suspended)
	mux.HandleFunc("GET "+AdminPrefix+"/warnings", api.warnings)
	mux.HandleFunc("GET "+AdminPrefix+"/status/{address}", api.status)
	mux.HandleFunc("GET "+AdminPrefix+"/history/{address}", api.history)

	mux.HandleFunc("POST "+AdminPrefix+"/unblock/{address}", api.unblock)
	mux.HandleFunc("POST "+AdminPrefix+"/unsuspend/{address}", api.unsuspend)
	mux.HandleFunc("POST "+AdminPrefix+"/warn/{address}", api.warn)
	mux.HandleFunc("POST "+AdminPrefix+"/suspend/{address}", api.suspend)
	mux.HandleFunc("POST "+AdminPrefix+"/block/{address}", api.block)
	mux.HandleFunc("POST "+AdminPrefix+"/clear/{address}", api.clear)

	mux.HandleFunc("GET "+AdminPrefix+"/allowlist", api.listAllowlist)
	mux.HandleFunc("POST "+AdminPrefix+"/allowlist", api.addAllowlist)
	mux.HandleFunc("DELETE "+AdminPrefix+"/allowlist/{address...}", api.removeAllowlist)

	mux.HandleFunc("GET "+AdminPrefix+"/stats", api.stats)

	return api.guard(mux)
}

func (a *adminAPI) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="access-admin"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.opts.Validator.Validate(strings.TrimSpace(token))
		if err != nil {
			a.opts.Logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("admin token rejected")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		if a.opts.RequireAdminTier && a.opts.Allowlist.TierOf(a.opts.KeyFn(r)) != domain.TierAdmin {
			writeError(w, http.StatusForbidden, "admin tier required")
			return
		}

		a.opts.Logger.Debug().Str("subject", claims.Subject).Str("method", r.Method).Str("path", r.URL.Path).Msg("admin request")
		next.ServeHTTP(w, r)
	})
}

func (a *adminAPI) overview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := application.Query{
		Status: domain.Status(q.Get("status")),
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
		Offset: atoiDefault(q.Get("offset"), 0),
		Limit:  atoiDefault(q.Get("limit"), 50),
	}
	writeJSON(w, http.StatusOK, a.opts.Reputation.Overview(query))
}

func (a *adminAPI) blocked(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Reputation.GetBlocked())
}

func (a *adminAPI) suspended(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Reputation.GetSuspended())
}

func (a *adminAPI) warnings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Reputation.GetWarnings())
}

type addressStatus struct {
	Address string                   `json:"address"`
	Status  domain.Status            `json:"status"`
	Tier    domain.Tier              `json:"tier"`
	Entry   *domain.AllowlistEntry   `json:"entry,omitempty"`
	Record  *domain.ReputationRecord `json:"record,omitempty"`
}

func (a *adminAPI) status(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	out := addressStatus{
		Address: addr,
		Status:  a.opts.Reputation.Status(addr),
		Tier:    a.opts.Allowlist.TierOf(addr),
	}
	if e, ok := a.opts.Allowlist.Lookup(addr); ok {
		out.Entry = &e
	}
	if rec, ok := a.opts.Reputation.Record(addr); ok {
		out.Record = &rec
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *adminAPI) history(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.opts.Reputation.GetHistory(addr))
}

func (a *adminAPI) unblock(w http.ResponseWriter, r *http.Request) {
	a.reputationOp(w, r, func(addr string, _ actionBody) domain.AdminResult {
		return a.opts.Reputation.Unblock(addr)
	})
}

func (a *adminAPI) unsuspend(w http.ResponseWriter, r *http.Request) {
	a.reputationOp(w, r, func(addr string, _ actionBody) domain.AdminResult {
		return a.opts.Reputation.Unsuspend(addr)
	})
}

func (a *adminAPI) warn(w http.ResponseWriter, r *http.Request) {
	a.reputationOp(w, r, func(addr string, b actionBody) domain.AdminResult {
		return a.opts.Reputation.WarnManually(addr, b.Reason)
	})
}

func (a *adminAPI) suspend(w http.ResponseWriter, r *http.Request) {
	a.reputationOp(w, r, func(addr string, b actionBody) domain.AdminResult {
		return a.opts.Reputation.SuspendManually(addr, b.Reason, b.duration)
	})
}

func (a *adminAPI) block(w http.ResponseWriter, r *http.Request) {
	a.reputationOp(w, r, func(addr string, b actionBody) domain.AdminResult {
		return a.opts.Reputation.BlockManually(addr, b.Reason)
	})
}

func (a *adminAPI) clear(w http.ResponseWriter, r *http.Request) {
	a.reputationOp(w, r, func(addr string, _ actionBody) domain.AdminResult {
		return a.opts.Reputation.ClearStatus(addr)
	})
}

type actionBody struct {
	Reason   string `json:"reason"`
	Duration string `json:"duration"`

	duration time.Duration
}

func (a *adminAPI) reputationOp(w http.ResponseWriter, r *http.Request, op func(string, actionBody) domain.AdminResult) {
	addr := strings.TrimSpace(r.PathValue("address"))
	if !cidr.ValidAddress(addr) {
		writeJSON(w, http.StatusBadRequest, domain.AdminResult{Code: domain.ResultInvalid, Address: addr, Message: "invalid address"})
		return
	}

	var body actionBody
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Duration != "" {
		d, err := time.ParseDuration(body.Duration)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		body.duration = d
	}

	res := op(addr, body)
	writeJSON(w, resultStatus(res), res)
}

// resultStatus traduz o código; OK vence (clear em endereço normal é sucesso).
func resultStatus(res domain.AdminResult) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.Code {
	case domain.ResultUnknown:
		return http.StatusNotFound
	case domain.ResultInvalid:
		return http.StatusBadRequest
	}
	// already / refused
	return http.StatusConflict
}

func (a *adminAPI) listAllowlist(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Allowlist.ListAll())
}

type addEntryBody struct {
	Address string      `json:"address"`
	Tier    domain.Tier `json:"tier"`
	Reason  string      `json:"reason"`
}

func (a *adminAPI) addAllowlist(w http.ResponseWriter, r *http.Request) {
	var body addEntryBody
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Tier == "" {
		body.Tier = domain.TierGuest
	}

	entry, err := a.opts.Allowlist.AddDynamic(r.Context(), body.Address, body.Tier, body.Reason)
	if err != nil {
		writeError(w, allowlistErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *adminAPI) removeAllowlist(w http.ResponseWriter, r *http.Request) {
	entry, err := a.opts.Allowlist.RemoveDynamic(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, allowlistErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func allowlistErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrInvalidTier):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyAllowlisted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrImmutableEntry):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotAllowlisted):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWriteBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *adminAPI) stats(w http.ResponseWriter, _ *http.Request) {
	if a.opts.Stats == nil {
		writeError(w, http.StatusNotFound, "stats disabled")
		return
	}
	writeJSON(w, http.StatusOK, a.opts.Stats.Snapshot())
}

func pathAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr := strings.TrimSpace(r.PathValue("address"))
	if !cidr.ValidAddress(addr) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return "", false
	}
	return addr, true
}

// decodeOptional aceita corpo vazio (todas as ações têm defaults).
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body")
	}
	return nil
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return def
	}
	return n
}
