package domain

import "time"

// Status é o EffectiveStatus derivado de um endereço.
type Status string

const (
	StatusNormal    Status = "normal"
	StatusWarning   Status = "warning"
	StatusSuspended Status = "suspended"
	StatusBlocked   Status = "blocked"
)

// Rank ordena os status por severidade (usado na ordenação "status").
func (s Status) Rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusSuspended:
		return 2
	case StatusBlocked:
		return 3
	}
	return 0
}

type Trigger string

const (
	TriggerSystem Trigger = "system"
	TriggerAdmin  Trigger = "admin"
)

// AttemptDetail descreve uma tentativa não autorizada.
// Country/Org vêm do colaborador de geolocalização e podem estar vazios.
type AttemptDetail struct {
	Method  string `json:"method,omitempty"`
	Path    string `json:"path,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Country string `json:"country,omitempty"`
	Org     string `json:"org,omitempty"`
}

type Attempt struct {
	At     time.Time     `json:"at"`
	Detail AttemptDetail `json:"detail"`
}

// ReputationRecord é criado na primeira rejeição e nunca é apagado proativamente.
type ReputationRecord struct {
	Address         string    `json:"address"`
	AttemptCount    int       `json:"attemptCount"`
	Attempts        []Attempt `json:"attempts"`
	SuspensionCount int       `json:"suspensionCount"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`

	// WarnedBy guarda o motivo de um aviso manual; vazio se não houver.
	WarnedBy string `json:"warnedBy,omitempty"`
}

// Suspension só existe enquanto o status for suspended.
type Suspension struct {
	Address         string    `json:"address"`
	Since           time.Time `json:"since"`
	Until           time.Time `json:"until"`
	SuspensionCount int       `json:"suspensionCount"`
	Reason          string    `json:"reason"`
	Manual          bool      `json:"manual"`
}

// Remaining é quanto falta para a suspensão vencer em `now`.
func (s Suspension) Remaining(now time.Time) time.Duration {
	if d := s.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

type BlockEntry struct {
	Address     string    `json:"address"`
	Since       time.Time `json:"since"`
	Reason      string    `json:"reason"`
	TriggeredBy Trigger   `json:"triggeredBy"`
}

// HistoryEntry é uma linha da trilha de auditoria (append-only, limitada).
type HistoryEntry struct {
	ID          string         `json:"id"`
	Address     string         `json:"address"`
	From        Status         `json:"fromStatus"`
	To          Status         `json:"toStatus"`
	Reason      string         `json:"reason"`
	TriggeredBy Trigger        `json:"triggeredBy"`
	At          time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Verdict é o resultado de uma tentativa não autorizada na máquina de estados.
type Verdict struct {
	Status            Status        `json:"status"`
	RemainingAttempts int           `json:"remainingAttempts,omitempty"`
	RetryAfter        time.Duration `json:"retryAfter,omitempty"`
	AttemptCount      int           `json:"attemptCount"`
	SuspensionCount   int           `json:"suspensionCount"`
}

// CheckResult é a resposta do caminho rápido executado em toda requisição.
type CheckResult struct {
	Blocked    bool
	Status     Status
	Detail     string
	RetryAfter time.Duration
}

type ResultCode string

const (
	ResultOK      ResultCode = "ok"
	ResultAlready ResultCode = "already"
	ResultUnknown ResultCode = "unknown"
	ResultRefused ResultCode = "refused"
	ResultInvalid ResultCode = "invalid"
)

// AdminResult é o retorno estruturado das operações administrativas.
// Nunca há erro: "não encontrado" e "já está assim" são códigos distintos.
type AdminResult struct {
	OK       bool       `json:"ok"`
	Code     ResultCode `json:"code"`
	Address  string     `json:"address"`
	Previous Status     `json:"previousStatus"`
	Current  Status     `json:"currentStatus"`
	Message  string     `json:"message,omitempty"`
}

// ExpiryIndex ordena suspensões pelo vencimento para a varredura opcional.
// A leitura nunca depende dela: o vencimento também é checado no acesso.
type ExpiryIndex interface {
	Put(address string, until time.Time)
	Remove(address string)
	Due(now time.Time) []string
	Len() int
}
