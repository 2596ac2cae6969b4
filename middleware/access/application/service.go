package application

import (
	"context"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/rs/zerolog"
)

const defaultGeoTimeout = 2 * time.Second

// Service concentra a decisão de acesso.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna um Outcome.
type Service struct {
	Allowlist  *Allowlist
	Reputation *Tracker
	Policy     Policy
	Violations *ViolationHook

	// Geo enriquece tentativas não autorizadas; opcional.
	Geo        domain.GeoResolver
	GeoTimeout time.Duration

	// Stats recebe cada decisão final; erro só é logado.
	Stats  domain.StatsStore
	Logger zerolog.Logger

	// Now carimba os eventos de decisão; nil usa time.Now.
	Now func() time.Time
}

// Resolve calcula tier + política, sem efeitos colaterais.
func (s Service) Resolve(address, method, path string) domain.Decision {
	tier := domain.TierUnauthorized
	if s.Allowlist != nil {
		tier = s.Allowlist.TierOf(address)
	}
	policy := s.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	allowed, rule := policy.Evaluate(tier, method, path)
	return domain.Decision{Allowed: allowed, Tier: tier, Reason: rule}
}

// Evaluate é o fluxo completo de uma requisição:
// status de reputação -> tier/política -> registro da negação.
func (s Service) Evaluate(ctx context.Context, address, method, path string) domain.Outcome {
	out := s.evaluate(ctx, address, method, path)
	s.record(ctx, address, method, path, out)
	return out
}

func (s Service) evaluate(ctx context.Context, address, method, path string) domain.Outcome {
	status := domain.StatusNormal
	if s.Reputation != nil {
		chk := s.Reputation.CheckStatus(address)
		status = chk.Status
		if chk.Blocked {
			return domain.Outcome{
				Decision:   domain.Decision{Allowed: false, Reason: chk.Detail},
				Status:     chk.Status,
				RetryAfter: chk.RetryAfter,
			}
		}
	}

	dec := s.Resolve(address, method, path)
	out := domain.Outcome{Decision: dec, Status: status}
	if dec.Allowed {
		return out
	}

	switch {
	case dec.Tier == domain.TierUnauthorized:
		if s.Reputation == nil {
			return out
		}
		detail := domain.AttemptDetail{Method: method, Path: path, Reason: dec.Reason}
		if geo, ok := s.lookupGeo(ctx, address); ok {
			detail.Country = geo.Country
			detail.Org = geo.Org
		}
		v := s.Reputation.RecordUnauthorizedAttempt(address, detail)
		out.Verdict = &v
		out.Status = v.Status
		out.RetryAfter = v.RetryAfter

	case dec.Tier != domain.TierAdmin && s.Violations != nil:
		out.Demoted = s.Violations.RecordDenial(ctx, address, dec.Tier)
	}
	return out
}

func (s Service) lookupGeo(ctx context.Context, address string) (domain.GeoInfo, bool) {
	if s.Geo == nil {
		return domain.GeoInfo{}, false
	}
	timeout := s.GeoTimeout
	if timeout <= 0 {
		timeout = defaultGeoTimeout
	}
	geoCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Geo.Resolve(geoCtx, address), true
}

func (s Service) record(ctx context.Context, address, method, path string, out domain.Outcome) {
	if s.Stats == nil {
		return
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	err := s.Stats.Record(ctx, domain.DecisionEvent{
		Address: address,
		Tier:    out.Tier,
		Status:  out.Status,
		Allowed: out.Allowed,
		Method:  method,
		Path:    path,
		At:      now(),
	})
	if err != nil {
		s.Logger.Debug().Err(err).Msg("access stats not recorded")
	}
}
