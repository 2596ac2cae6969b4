package application

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReputationConfig são os limiares da escalada.
type ReputationConfig struct {
	MaxAttempts            int
	SuspensionDuration     time.Duration
	MaxSuspensions         int
	PermanentBlockAttempts int

	// HistoryLimit limita a trilha por endereço (as mais antigas saem primeiro).
	HistoryLimit int
	// AttemptLogLimit limita quantas tentativas ficam guardadas no registro.
	AttemptLogLimit int
}

func DefaultReputationConfig() ReputationConfig {
	return ReputationConfig{
		MaxAttempts:            5,
		SuspensionDuration:     time.Hour,
		MaxSuspensions:         3,
		PermanentBlockAttempts: 10,
		HistoryLimit:           100,
		AttemptLogLimit:        50,
	}
}

func (c ReputationConfig) withDefaults() ReputationConfig {
	def := DefaultReputationConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.SuspensionDuration <= 0 {
		c.SuspensionDuration = def.SuspensionDuration
	}
	if c.MaxSuspensions <= 0 {
		c.MaxSuspensions = def.MaxSuspensions
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.AttemptLogLimit <= 0 {
		c.AttemptLogLimit = def.AttemptLogLimit
	}
	return c
}

// Tracker guarda o histórico de abuso por endereço.
//
// Toda leitura+mutação de um endereço acontece sob o mesmo mutex, então duas
// primeiras tentativas concorrentes nunca criam registros divergentes.
type Tracker struct {
	mu     sync.Mutex
	cfg    ReputationConfig
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
	index  domain.ExpiryIndex

	records     map[string]*domain.ReputationRecord
	suspensions map[string]*domain.Suspension
	blocked     map[string]*domain.BlockEntry
	history     map[string][]domain.HistoryEntry
}

type TrackerOption func(*Tracker)

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func WithTrackerLogger(l zerolog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

func WithExpiryIndex(idx domain.ExpiryIndex) TrackerOption {
	return func(t *Tracker) { t.index = idx }
}

func WithIDFunc(fn func() string) TrackerOption {
	return func(t *Tracker) { t.newID = fn }
}

func NewTracker(cfg ReputationConfig, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		cfg:         cfg.withDefaults(),
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      zerolog.Nop(),
		records:     make(map[string]*domain.ReputationRecord),
		suspensions: make(map[string]*domain.Suspension),
		blocked:     make(map[string]*domain.BlockEntry),
		history:     make(map[string][]domain.HistoryEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Config() ReputationConfig { return t.cfg }

// RecordUnauthorizedAttempt registra uma rejeição e devolve o veredito.
//
// O atalho de bloqueio por tentativas acumuladas é avaliado antes da suspensão.
// Com os padrões (10 > 5, e o contador zera ao suspender) ele não dispara; só
// entra em jogo se PermanentBlockAttempts <= MaxAttempts.
func (t *Tracker) RecordUnauthorizedAttempt(address string, detail domain.AttemptDetail) domain.Verdict {
	address = normalize(address)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.blocked[address]; ok {
		return t.verdictLocked(address, domain.StatusBlocked, 0)
	}
	t.expireLocked(address, now)
	if s, ok := t.suspensions[address]; ok {
		return t.verdictLocked(address, domain.StatusSuspended, s.Remaining(now))
	}

	from := t.statusLocked(address)
	rec := t.recordLocked(address, now)
	rec.Attempts = append(rec.Attempts, domain.Attempt{At: now, Detail: detail})
	if over := len(rec.Attempts) - t.cfg.AttemptLogLimit; over > 0 {
		rec.Attempts = append([]domain.Attempt(nil), rec.Attempts[over:]...)
	}
	rec.AttemptCount++
	rec.LastSeen = now

	if t.cfg.PermanentBlockAttempts > 0 && rec.AttemptCount >= t.cfg.PermanentBlockAttempts {
		t.blockLocked(address, now, "permanent block threshold reached", domain.TriggerSystem)
		t.transitionLocked(address, from, domain.StatusBlocked, "permanent block threshold reached", domain.TriggerSystem, t.countsLocked(address))
		return t.verdictLocked(address, domain.StatusBlocked, 0)
	}

	if rec.AttemptCount >= t.cfg.MaxAttempts {
		rec.SuspensionCount++
		if rec.SuspensionCount >= t.cfg.MaxSuspensions {
			t.blockLocked(address, now, "maximum suspensions reached", domain.TriggerSystem)
			t.transitionLocked(address, from, domain.StatusBlocked, "maximum suspensions reached", domain.TriggerSystem, t.countsLocked(address))
			return t.verdictLocked(address, domain.StatusBlocked, 0)
		}

		meta := t.countsLocked(address)
		rec.AttemptCount = 0
		s := t.suspendLocked(address, now, t.cfg.SuspensionDuration, "maximum attempts reached", false)
		meta["until"] = s.Until
		t.transitionLocked(address, from, domain.StatusSuspended, "maximum attempts reached", domain.TriggerSystem, meta)
		return t.verdictLocked(address, domain.StatusSuspended, s.Remaining(now))
	}

	t.transitionLocked(address, from, domain.StatusWarning, "unauthorized attempt", domain.TriggerSystem, t.countsLocked(address))
	v := t.verdictLocked(address, domain.StatusWarning, 0)
	v.RemainingAttempts = t.cfg.MaxAttempts - rec.AttemptCount
	return v
}

// CheckStatus é o caminho rápido de toda requisição.
// Só muta para vencer uma suspensão expirada.
func (t *Tracker) CheckStatus(address string) domain.CheckResult {
	address = normalize(address)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.blocked[address]; ok {
		return domain.CheckResult{Blocked: true, Status: domain.StatusBlocked, Detail: "blocked: " + b.Reason}
	}
	t.expireLocked(address, now)
	if s, ok := t.suspensions[address]; ok {
		return domain.CheckResult{
			Blocked:    true,
			Status:     domain.StatusSuspended,
			Detail:     "suspended: " + s.Reason,
			RetryAfter: s.Remaining(now),
		}
	}
	return domain.CheckResult{Status: t.statusLocked(address)}
}

// Status devolve o EffectiveStatus atual.
func (t *Tracker) Status(address string) domain.Status {
	address = normalize(address)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked(address, now)
	return t.statusLocked(address)
}

// Record devolve uma cópia do registro de reputação, se existir.
func (t *Tracker) Record(address string) (domain.ReputationRecord, bool) {
	address = normalize(address)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[address]
	if !ok {
		return domain.ReputationRecord{}, false
	}
	return copyRecord(rec), true
}

func (t *Tracker) Unblock(address string) domain.AdminResult {
	address = normalize(address)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked(address, now)
	if _, ok := t.blocked[address]; !ok {
		return t.notApplicableLocked(address, "address is not blocked")
	}

	delete(t.blocked, address)
	if rec, ok := t.records[address]; ok {
		rec.AttemptCount = 0
		rec.SuspensionCount = 0
		rec.WarnedBy = ""
	}
	to := t.statusLocked(address)
	t.transitionLocked(address, domain.StatusBlocked, to, "manual unblock", domain.TriggerAdmin, nil)
	return okResult(address, domain.StatusBlocked, to, "unblocked")
}

func (t *Tracker) Unsuspend(address string) domain.AdminResult {
	address = normalize(address)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.blocked[address]; ok {
		return refused(address, domain.StatusBlocked, "address is blocked, use unblock")
	}
	t.expireLocked(address, now)
	if _, ok := t.suspensions[address]; !ok {
		return t.notApplicableLocked(address, "address is not suspended")
	}

	t.dropSuspensionLocked(address)
	to := t.statusLocked(address)
	t.transitionLocked(address, domain.StatusSuspended, to, "manual unsuspend", domain.TriggerAdmin, nil)
	return okResult(address, domain.StatusSuspended, to, "unsuspended")
}

// WarnManually marca o endereço como warning. Um endereço suspenso perde a suspensão.
func (t *Tracker) WarnManually(address, reason string) domain.AdminResult {
	address = normalize(address)
	reason = defaultReason(reason, "manual warning")
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.blocked[address]; ok {
		return refused(address, domain.StatusBlocked, "address is blocked")
	}
	t.expireLocked(address, now)

	from := t.statusLocked(address)
	if from == domain.StatusWarning {
		return already(address, from, "address already has a warning")
	}

	t.dropSuspensionLocked(address)
	rec := t.recordLocked(address, now)
	rec.WarnedBy = reason
	t.transitionLocked(address, from, domain.StatusWarning, reason, domain.TriggerAdmin, t.countsLocked(address))
	return okResult(address, from, domain.StatusWarning, "warned")
}

// SuspendManually suspende sem passar pelo contador de tentativas.
// Não soma em SuspensionCount: só suspensões automáticas levam ao bloqueio.
// duration <= 0 usa SuspensionDuration.
func (t *Tracker) SuspendManually(address, reason string, duration time.Duration) domain.AdminResult {
	address = normalize(address)
	reason = defaultReason(reason, "manual suspension")
	if duration <= 0 {
		duration = t.cfg.SuspensionDuration
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.blocked[address]; ok {
		return refused(address, domain.StatusBlocked, "address is blocked")
	}
	t.expireLocked(address, now)
	if _, ok := t.suspensions[address]; ok {
		return already(address, domain.StatusSuspended, "address already suspended")
	}

	from := t.statusLocked(address)
	rec := t.recordLocked(address, now)
	rec.AttemptCount = 0
	s := t.suspendLocked(address, now, duration, reason, true)

	meta := t.countsLocked(address)
	meta["until"] = s.Until
	t.transitionLocked(address, from, domain.StatusSuspended, reason, domain.TriggerAdmin, meta)
	return okResult(address, from, domain.StatusSuspended, "suspended until "+s.Until.UTC().Format(time.RFC3339))
}

// BlockManually leva o endereço direto para a blocklist, de qualquer estado.
func (t *Tracker) BlockManually(address, reason string) domain.AdminResult {
	address = normalize(address)
	reason = defaultReason(reason, "manual block")
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.blocked[address]; ok {
		return already(address, domain.StatusBlocked, "address already blocked")
	}
	t.expireLocked(address, now)

	from := t.statusLocked(address)
	t.dropSuspensionLocked(address)
	t.blockLocked(address, now, reason, domain.TriggerAdmin)
	t.transitionLocked(address, from, domain.StatusBlocked, reason, domain.TriggerAdmin, t.countsLocked(address))
	return okResult(address, from, domain.StatusBlocked, "blocked")
}

// ClearStatus volta o endereço para normal e apaga todo o rastreamento.
// O histórico é mantido. Chamar em um endereço normal é sucesso.
func (t *Tracker) ClearStatus(address string) domain.AdminResult {
	address = normalize(address)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked(address, now)
	from := t.statusLocked(address)

	t.dropSuspensionLocked(address)
	delete(t.blocked, address)
	delete(t.records, address)

	if from == domain.StatusNormal {
		res := okResult(address, from, domain.StatusNormal, "already normal")
		res.Code = domain.ResultAlready
		return res
	}
	t.transitionLocked(address, from, domain.StatusNormal, "status cleared", domain.TriggerAdmin, nil)
	return okResult(address, from, domain.StatusNormal, "cleared")
}

func (t *Tracker) GetBlocked() []domain.BlockEntry {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireAllLocked(now)
	out := make([]domain.BlockEntry, 0, len(t.blocked))
	for _, b := range t.blocked {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (t *Tracker) GetSuspended() []domain.Suspension {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireAllLocked(now)
	out := make([]domain.Suspension, 0, len(t.suspensions))
	for _, s := range t.suspensions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (t *Tracker) GetWarnings() []domain.ReputationRecord {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireAllLocked(now)
	out := make([]domain.ReputationRecord, 0)
	for addr, rec := range t.records {
		if t.statusLocked(addr) == domain.StatusWarning {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (t *Tracker) GetHistory(address string) []domain.HistoryEntry {
	address = normalize(address)

	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.history[address]
	out := make([]domain.HistoryEntry, len(h))
	copy(out, h)
	return out
}

// Sweep vence as suspensões já expiradas e devolve quantas saíram.
// É só higiene de memória; as leituras checam o vencimento por conta própria.
func (t *Tracker) Sweep() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.expireAllLocked(now)
}

// StartJanitor roda Sweep periodicamente. Pare cancelando o contexto.
func (t *Tracker) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	tk := time.NewTicker(every)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if n := t.Sweep(); n > 0 {
					t.logger.Debug().Int("expired", n).Msg("suspension sweep")
				}
			}
		}
	}()
}

func (t *Tracker) statusLocked(address string) domain.Status {
	if _, ok := t.blocked[address]; ok {
		return domain.StatusBlocked
	}
	if _, ok := t.suspensions[address]; ok {
		return domain.StatusSuspended
	}
	if rec, ok := t.records[address]; ok && (rec.AttemptCount > 0 || rec.WarnedBy != "") {
		return domain.StatusWarning
	}
	return domain.StatusNormal
}

func (t *Tracker) recordLocked(address string, now time.Time) *domain.ReputationRecord {
	rec, ok := t.records[address]
	if !ok {
		rec = &domain.ReputationRecord{Address: address, FirstSeen: now, LastSeen: now}
		t.records[address] = rec
	}
	return rec
}

func (t *Tracker) expireLocked(address string, now time.Time) bool {
	s, ok := t.suspensions[address]
	if !ok || now.Before(s.Until) {
		return false
	}
	t.dropSuspensionLocked(address)
	to := t.statusLocked(address)
	t.transitionLocked(address, domain.StatusSuspended, to, "suspension expired", domain.TriggerSystem, map[string]any{"until": s.Until})
	return true
}

func (t *Tracker) expireAllLocked(now time.Time) int {
	var due []string
	if t.index != nil {
		due = t.index.Due(now)
	} else {
		for addr, s := range t.suspensions {
			if !now.Before(s.Until) {
				due = append(due, addr)
			}
		}
	}

	n := 0
	for _, addr := range due {
		if t.expireLocked(addr, now) {
			n++
		}
	}
	return n
}

func (t *Tracker) suspendLocked(address string, now time.Time, d time.Duration, reason string, manual bool) *domain.Suspension {
	s := &domain.Suspension{
		Address:         address,
		Since:           now,
		Until:           now.Add(d),
		SuspensionCount: t.records[address].SuspensionCount,
		Reason:          reason,
		Manual:          manual,
	}
	t.suspensions[address] = s
	if t.index != nil {
		t.index.Put(address, s.Until)
	}
	return s
}

func (t *Tracker) dropSuspensionLocked(address string) {
	if _, ok := t.suspensions[address]; !ok {
		return
	}
	delete(t.suspensions, address)
	if t.index != nil {
		t.index.Remove(address)
	}
}

func (t *Tracker) blockLocked(address string, now time.Time, reason string, by domain.Trigger) {
	t.blocked[address] = &domain.BlockEntry{Address: address, Since: now, Reason: reason, TriggeredBy: by}
}

// transitionLocked grava exatamente uma entrada por mudança de status.
func (t *Tracker) transitionLocked(address string, from, to domain.Status, reason string, by domain.Trigger, meta map[string]any) {
	if from == to {
		return
	}

	h := append(t.history[address], domain.HistoryEntry{
		ID:          t.newID(),
		Address:     address,
		From:        from,
		To:          to,
		Reason:      reason,
		TriggeredBy: by,
		At:          t.now(),
		Metadata:    meta,
	})
	if over := len(h) - t.cfg.HistoryLimit; over > 0 {
		h = append([]domain.HistoryEntry(nil), h[over:]...)
	}
	t.history[address] = h

	ev := t.logger.Info()
	if by == domain.TriggerAdmin && (to == domain.StatusBlocked || to == domain.StatusSuspended) {
		ev = t.logger.Warn()
	}
	ev.Str("address", address).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("by", string(by)).
		Str("reason", reason).
		Msg("access status transition")
}

func (t *Tracker) countsLocked(address string) map[string]any {
	meta := map[string]any{}
	if rec, ok := t.records[address]; ok {
		meta["attemptCount"] = rec.AttemptCount
		meta["suspensionCount"] = rec.SuspensionCount
	}
	return meta
}

func (t *Tracker) verdictLocked(address string, st domain.Status, retry time.Duration) domain.Verdict {
	v := domain.Verdict{Status: st, RetryAfter: retry}
	if rec, ok := t.records[address]; ok {
		v.AttemptCount = rec.AttemptCount
		v.SuspensionCount = rec.SuspensionCount
	}
	return v
}

func (t *Tracker) knownLocked(address string) bool {
	if _, ok := t.records[address]; ok {
		return true
	}
	if _, ok := t.suspensions[address]; ok {
		return true
	}
	if _, ok := t.blocked[address]; ok {
		return true
	}
	_, ok := t.history[address]
	return ok
}

func (t *Tracker) notApplicableLocked(address, msg string) domain.AdminResult {
	cur := t.statusLocked(address)
	if !t.knownLocked(address) {
		return domain.AdminResult{Code: domain.ResultUnknown, Address: address, Previous: cur, Current: cur, Message: "unknown address"}
	}
	return already(address, cur, msg)
}

func okResult(address string, from, to domain.Status, msg string) domain.AdminResult {
	return domain.AdminResult{OK: true, Code: domain.ResultOK, Address: address, Previous: from, Current: to, Message: msg}
}

func already(address string, cur domain.Status, msg string) domain.AdminResult {
	return domain.AdminResult{Code: domain.ResultAlready, Address: address, Previous: cur, Current: cur, Message: msg}
}

func refused(address string, cur domain.Status, msg string) domain.AdminResult {
	return domain.AdminResult{Code: domain.ResultRefused, Address: address, Previous: cur, Current: cur, Message: msg}
}

func copyRecord(rec *domain.ReputationRecord) domain.ReputationRecord {
	out := *rec
	out.Attempts = append([]domain.Attempt(nil), rec.Attempts...)
	return out
}

func normalize(address string) string { return strings.TrimSpace(address) }

func defaultReason(reason, def string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return def
}
