package application

import (
	"strings"

	"access-gateway/middleware/access/domain"
)

// PathPredicate decide se uma regra se aplica à rota.
type PathPredicate func(method, path string) bool

// Rule é uma linha da tabela tier x rota -> allow/deny.
type Rule struct {
	Tier  domain.Tier
	Name  string
	Match PathPredicate
	Allow bool
}

// Policy é avaliada em ordem; a primeira regra do tier que casar vence.
// Sem regra aplicável a rota é negada.
type Policy []Rule

func Any() PathPredicate { return func(string, string) bool { return true } }

func Prefix(prefixes ...string) PathPredicate {
	return func(_, path string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}
}

func Exact(paths ...string) PathPredicate {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(_, path string) bool {
		_, ok := set[path]
		return ok
	}
}

// GuestPublicPaths são as rotas de documentação e health abertas a convidados.
var GuestPublicPaths = []string{
	"/",
	"/health",
	"/healthz",
	"/status",
	"/docs",
	"/openapi.json",
	"/favicon.ico",
}

// DefaultPolicy é a tabela de rotas do gateway.
//
//	admin        sem restrição
//	trusted      nega /logs* e /api/security*
//	guest        docs/health, ou /api/* fora de security, logs e templates/exemplos
//	unauthorized nega tudo
func DefaultPolicy() Policy {
	return Policy{
		{Tier: domain.TierAdmin, Name: "admin unrestricted", Match: Any(), Allow: true},

		{Tier: domain.TierTrusted, Name: "trusted restricted area", Match: Prefix("/logs", "/api/security"), Allow: false},
		{Tier: domain.TierTrusted, Name: "trusted default", Match: Any(), Allow: true},

		{Tier: domain.TierGuest, Name: "guest public docs", Match: Exact(GuestPublicPaths...), Allow: true},
		{Tier: domain.TierGuest, Name: "guest restricted api", Match: Prefix("/api/security", "/api/logs"), Allow: false},
		{Tier: domain.TierGuest, Name: "guest templates", Match: Prefix("/api/template", "/api/example"), Allow: false},
		{Tier: domain.TierGuest, Name: "guest api", Match: Prefix("/api/"), Allow: true},

		{Tier: domain.TierUnauthorized, Name: "unauthorized", Match: Any(), Allow: false},
	}
}

// Evaluate devolve (permitido, nome da regra que decidiu).
func (p Policy) Evaluate(tier domain.Tier, method, path string) (bool, string) {
	for _, r := range p {
		if r.Tier != tier || r.Match == nil {
			continue
		}
		if r.Match(method, path) {
			return r.Allow, r.Name
		}
	}
	return false, "no matching rule"
}
