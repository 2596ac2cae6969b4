package domain

import (
	"context"
	"time"
)

// Decision é a resolução de tier + política de rota para um endereço.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Tier    Tier   `json:"tier"`
	Reason  string `json:"reason"`
}

// Outcome é a decisão final de uma requisição, depois de reputação e hook.
type Outcome struct {
	Decision
	Status     Status        `json:"status"`
	Verdict    *Verdict      `json:"verdict,omitempty"`
	Demoted    bool          `json:"demoted,omitempty"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}

// DecisionEvent é emitido para cada decisão final.
//
// Cuidado com cardinalidade: Address/Path sem controle explodem o número de chaves.
type DecisionEvent struct {
	Address string
	Tier    Tier
	Status  Status
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore persiste estatísticas de decisão. O chamador trata erro como best-effort.
type StatsStore interface {
	Record(ctx context.Context, ev DecisionEvent) error
}

// VolumeLimiter é o contador de volume (rate limit) separado da reputação.
type VolumeLimiter interface {
	Allow(address string) bool
}

// SlotPool representa um recurso com capacidade finita.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsSnapshot é a cópia dos contadores exposta na API administrativa.
type StatsSnapshot struct {
	Total     Counters            `json:"total"`
	ByTier    map[string]Counters `json:"byTier"`
	ByStatus  map[string]Counters `json:"byStatus"`
	ByRoute   map[string]Counters `json:"byRoute"`
	ByAddress map[string]Counters `json:"byAddress,omitempty"`
}

// StatsReader é implementado pelos stores que conseguem devolver os contadores.
type StatsReader interface {
	Snapshot() StatsSnapshot
}
