package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"access-gateway/middleware/access/cidr"
	"access-gateway/middleware/access/domain"

	"github.com/rs/zerolog"
)

// DefaultPermanent são os endereços fixos de loopback.
var DefaultPermanent = []string{"127.0.0.1", "::1"}

// Allowlist resolve o tier de um endereço a partir de três origens:
// permanente (admin), configurada (trusted) e dinâmica (tier da própria entrada).
//
// Leituras usam um snapshot atômico e nunca esperam a persistência.
// Escritas passam pelo SlotGate, gravam o conjunto inteiro e só então
// publicam o novo snapshot: se a gravação falhar nada muda em memória.
type Allowlist struct {
	permanent  []domain.AllowlistEntry
	configured []domain.AllowlistEntry
	dynamic    atomic.Pointer[[]domain.AllowlistEntry]

	persister domain.AllowlistPersister
	gate      SlotGate
	now       func() time.Time
	logger    zerolog.Logger

	watchMu  sync.Mutex
	watchers []func(domain.AllowlistEntry)
}

type AllowlistOption func(*Allowlist)

func WithPersister(p domain.AllowlistPersister) AllowlistOption {
	return func(a *Allowlist) { a.persister = p }
}

func WithWriteGate(pool domain.SlotPool, timeout time.Duration) AllowlistOption {
	return func(a *Allowlist) { a.gate = SlotGate{Pool: pool, AcquireTimeout: timeout} }
}

func WithAllowlistClock(now func() time.Time) AllowlistOption {
	return func(a *Allowlist) { a.now = now }
}

func WithAllowlistLogger(l zerolog.Logger) AllowlistOption {
	return func(a *Allowlist) { a.logger = l }
}

// NewAllowlist monta a allowlist com as entradas fixas do boot.
// Entradas malformadas são descartadas (com log), nunca viram "casa tudo".
func NewAllowlist(permanent []string, configured []domain.AllowlistEntry, opts ...AllowlistOption) *Allowlist {
	a := &Allowlist{
		now:    time.Now,
		logger: zerolog.Nop(),
		gate:   SlotGate{Pool: NewSlotPool(1), AcquireTimeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}

	bootAt := a.now()
	for _, addr := range permanent {
		addr = strings.TrimSpace(addr)
		if !cidr.Valid(addr) {
			a.logger.Warn().Str("address", addr).Msg("ignoring malformed permanent allowlist entry")
			continue
		}
		a.permanent = append(a.permanent, domain.AllowlistEntry{
			Address: addr, Tier: domain.TierAdmin, Origin: domain.OriginPermanent, Reason: "permanent", AddedAt: bootAt,
		})
	}
	for _, e := range configured {
		e.Address = strings.TrimSpace(e.Address)
		if !cidr.Valid(e.Address) {
			a.logger.Warn().Str("address", e.Address).Msg("ignoring malformed configured allowlist entry")
			continue
		}
		e.Tier = domain.TierTrusted
		e.Origin = domain.OriginConfigured
		if e.AddedAt.IsZero() {
			e.AddedAt = bootAt
		}
		a.configured = append(a.configured, e)
	}

	empty := []domain.AllowlistEntry{}
	a.dynamic.Store(&empty)
	return a
}

// Load carrega o conjunto dinâmico do armazenamento.
// Ausente ou corrompido vira conjunto vazio com warning; não é fatal.
func (a *Allowlist) Load(ctx context.Context) int {
	if a.persister == nil {
		return 0
	}

	snap, err := a.persister.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNoSnapshot):
		a.logger.Info().Msg("no dynamic allowlist stored yet, starting empty")
		return 0
	case err != nil:
		a.logger.Warn().Err(err).Msg("dynamic allowlist unreadable, starting empty")
		return 0
	}

	entries := make([]domain.AllowlistEntry, 0, len(snap.Addresses))
	for _, e := range snap.Addresses {
		e.Address = strings.TrimSpace(e.Address)
		if !cidr.Valid(e.Address) || !e.Tier.Valid() {
			a.logger.Warn().Str("address", e.Address).Str("tier", string(e.Tier)).Msg("ignoring malformed dynamic allowlist entry")
			continue
		}
		e.Origin = domain.OriginDynamic
		entries = append(entries, e)
	}
	a.dynamic.Store(&entries)

	a.logger.Info().Int("entries", len(entries)).Time("lastUpdated", snap.LastUpdated).Msg("dynamic allowlist loaded")
	return len(entries)
}

// TierOf resolve o tier: permanente, depois configurada, depois dinâmica.
func (a *Allowlist) TierOf(address string) domain.Tier {
	if e, ok := a.Lookup(address); ok {
		return e.Tier
	}
	return domain.TierUnauthorized
}

// Lookup devolve a entrada que concede o tier ao endereço.
func (a *Allowlist) Lookup(address string) (domain.AllowlistEntry, bool) {
	address = strings.TrimSpace(address)
	for _, list := range [][]domain.AllowlistEntry{a.permanent, a.configured, *a.dynamic.Load()} {
		for _, e := range list {
			if cidr.Matches(address, e.Address) {
				return e, true
			}
		}
	}
	return domain.AllowlistEntry{}, false
}

// AddDynamic acrescenta uma entrada e persiste o conjunto antes de responder.
func (a *Allowlist) AddDynamic(ctx context.Context, address string, tier domain.Tier, reason string) (domain.AllowlistEntry, error) {
	address = strings.TrimSpace(address)
	if !cidr.Valid(address) {
		return domain.AllowlistEntry{}, domain.ErrInvalidAddress
	}
	if !tier.Valid() {
		return domain.AllowlistEntry{}, domain.ErrInvalidTier
	}

	release, ok := a.gate.Acquire(ctx)
	if !ok {
		return domain.AllowlistEntry{}, domain.ErrWriteBusy
	}
	defer release()

	if e, ok := a.find(address); ok {
		return e, fmt.Errorf("%w as %s (%s)", domain.ErrAlreadyAllowlisted, e.Tier, e.Origin)
	}

	entry := domain.AllowlistEntry{
		Address: address,
		Tier:    tier,
		Origin:  domain.OriginDynamic,
		Reason:  strings.TrimSpace(reason),
		AddedAt: a.now(),
	}
	cur := *a.dynamic.Load()
	next := make([]domain.AllowlistEntry, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, entry)

	if err := a.commit(ctx, next); err != nil {
		return domain.AllowlistEntry{}, err
	}
	a.logger.Info().Str("address", address).Str("tier", string(tier)).Str("reason", entry.Reason).Msg("dynamic allowlist entry added")
	a.notify(entry)
	return entry, nil
}

// RemoveDynamic remove uma entrada dinâmica e persiste o conjunto.
func (a *Allowlist) RemoveDynamic(ctx context.Context, address string) (domain.AllowlistEntry, error) {
	address = strings.TrimSpace(address)

	release, ok := a.gate.Acquire(ctx)
	if !ok {
		return domain.AllowlistEntry{}, domain.ErrWriteBusy
	}
	defer release()

	cur := *a.dynamic.Load()
	idx := -1
	for i, e := range cur {
		if e.Address == address {
			idx = i
			break
		}
	}
	if idx < 0 {
		if e, ok := a.findFixed(address); ok {
			return e, domain.ErrImmutableEntry
		}
		return domain.AllowlistEntry{}, domain.ErrNotAllowlisted
	}

	removed := cur[idx]
	next := make([]domain.AllowlistEntry, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)

	if err := a.commit(ctx, next); err != nil {
		return domain.AllowlistEntry{}, err
	}
	a.logger.Info().Str("address", address).Str("tier", string(removed.Tier)).Msg("dynamic allowlist entry removed")
	a.notify(removed)
	return removed, nil
}

// Watch registra fn para cada entrada dinâmica adicionada ou removida.
// fn roda com a trava de escrita da allowlist tomada: não pode escrever nela.
func (a *Allowlist) Watch(fn func(domain.AllowlistEntry)) {
	a.watchMu.Lock()
	a.watchers = append(a.watchers, fn)
	a.watchMu.Unlock()
}

func (a *Allowlist) notify(e domain.AllowlistEntry) {
	a.watchMu.Lock()
	watchers := append([]func(domain.AllowlistEntry){}, a.watchers...)
	a.watchMu.Unlock()
	for _, fn := range watchers {
		fn(e)
	}
}

// ListAll devolve cópias de todas as origens e a visão combinada.
func (a *Allowlist) ListAll() domain.AllowlistView {
	dyn := *a.dynamic.Load()
	v := domain.AllowlistView{
		Permanent:  append([]domain.AllowlistEntry{}, a.permanent...),
		Configured: append([]domain.AllowlistEntry{}, a.configured...),
		Dynamic:    append([]domain.AllowlistEntry{}, dyn...),
	}
	v.Combined = make([]domain.AllowlistEntry, 0, len(v.Permanent)+len(v.Configured)+len(v.Dynamic))
	v.Combined = append(v.Combined, v.Permanent...)
	v.Combined = append(v.Combined, v.Configured...)
	v.Combined = append(v.Combined, v.Dynamic...)
	return v
}

func (a *Allowlist) commit(ctx context.Context, next []domain.AllowlistEntry) error {
	if a.persister != nil {
		snap := domain.DynamicSnapshot{Addresses: next, LastUpdated: a.now().UTC()}
		if err := a.persister.Save(ctx, snap); err != nil {
			a.logger.Error().Err(err).Msg("dynamic allowlist not persisted, change discarded")
			return fmt.Errorf("%w: %w", domain.ErrPersist, err)
		}
	}
	a.dynamic.Store(&next)
	return nil
}

// find procura uma entrada que se sobreponha ao endereço ou range em qualquer
// origem: igual, que cubra ou que seja coberta por ele.
func (a *Allowlist) find(address string) (domain.AllowlistEntry, bool) {
	for _, list := range [][]domain.AllowlistEntry{a.permanent, a.configured, *a.dynamic.Load()} {
		for _, e := range list {
			if e.Address == address || cidr.Overlaps(address, e.Address) {
				return e, true
			}
		}
	}
	return domain.AllowlistEntry{}, false
}

func (a *Allowlist) findFixed(address string) (domain.AllowlistEntry, bool) {
	for _, list := range [][]domain.AllowlistEntry{a.permanent, a.configured} {
		for _, e := range list {
			if e.Address == address || cidr.Matches(address, e.Address) {
				return e, true
			}
		}
	}
	return domain.AllowlistEntry{}, false
}
