// Package access fornece adapters HTTP (net/http) para o controle de acesso do gateway.
//
// Visão geral (camadas):
//
//   - cidr: teste de pertinência de endereço em range (fail-closed)
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: reputação, allowlist, política de rotas e decisão final, sem net/http
//   - infra: implementações concretas (arquivo, Redis, Postgres, MaxMind, JWT, token bucket)
//   - access (este pacote): middlewares HTTP + extração do endereço + tradução para status/headers,
//     e a API administrativa em JSON
//
// Fluxo no gateway:
//
//  1. Extrai o endereço do cliente (RemoteAddr ou X-Forwarded-For)
//  2. Chama application.Service.Evaluate: status de reputação, tier, política
//  3. Se negado, responde 403 (com Retry-After quando suspenso)
//  4. Se permitido e o tier não for admin, passa pelo limitador de volume (429)
//  5. Chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como CONFIGURED_ALLOWLIST, REPUTATION_MAX_ATTEMPTS, RATE_RPS e ADMIN_JWT_SECRET.
package access
