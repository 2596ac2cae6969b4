package application

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"access-gateway/middleware/access/cidr"
	"access-gateway/middleware/access/domain"

	"github.com/rs/zerolog"
)

const DefaultViolationThreshold = 3

const violationStripes = 64

// ViolationHook conta negações de política para endereços da allowlist.
// É um contador separado do Tracker. Um convidado que chega ao limite perde a
// entrada dinâmica e passa a ser unauthorized; trusted só é contado.
//
// O contador pertence à entrada que concede o tier: adicionar ou remover essa
// entrada zera a contagem dos endereços que ela cobre.
type ViolationHook struct {
	// stripes serializam contar -> revogar por endereço
	stripes [violationStripes]sync.Mutex

	mu        sync.Mutex
	counts    map[string]int
	threshold int
	allowlist *Allowlist
	logger    zerolog.Logger
}

func NewViolationHook(allowlist *Allowlist, threshold int, logger zerolog.Logger) *ViolationHook {
	if threshold <= 0 {
		threshold = DefaultViolationThreshold
	}
	h := &ViolationHook{
		counts:    make(map[string]int),
		threshold: threshold,
		allowlist: allowlist,
		logger:    logger,
	}
	if allowlist != nil {
		allowlist.Watch(h.forget)
	}
	return h
}

// RecordDenial registra uma negação e informa se o endereço foi rebaixado.
func (h *ViolationHook) RecordDenial(ctx context.Context, address string, tier domain.Tier) bool {
	if tier == domain.TierAdmin || tier == domain.TierUnauthorized {
		return false
	}
	address = normalize(address)

	stripe := h.stripe(address)
	stripe.Lock()
	defer stripe.Unlock()

	var entry domain.AllowlistEntry
	if h.allowlist != nil {
		var ok bool
		entry, ok = h.allowlist.Lookup(address)
		if !ok {
			// já foi revogado por outra negação: não há o que contar
			h.reset(address)
			return false
		}
	}

	h.mu.Lock()
	h.counts[address]++
	n := h.counts[address]
	h.mu.Unlock()

	h.logger.Debug().Str("address", address).Str("tier", string(tier)).Int("violations", n).Msg("policy violation")

	if tier != domain.TierGuest || n < h.threshold || h.allowlist == nil {
		return false
	}
	if entry.Origin != domain.OriginDynamic || entry.Tier != domain.TierGuest {
		return false
	}

	_, err := h.allowlist.RemoveDynamic(ctx, entry.Address)
	if err != nil && !errors.Is(err, domain.ErrNotAllowlisted) {
		// contador fica no limite: a próxima negação tenta de novo
		h.logger.Error().Err(err).Str("address", address).Msg("could not revoke guest entry")
		return false
	}
	h.reset(address)

	h.logger.Warn().Str("address", address).Str("entry", entry.Address).Int("violations", n).Msg("guest entry revoked after repeated violations")
	return err == nil
}

func (h *ViolationHook) Count(address string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[normalize(address)]
}

func (h *ViolationHook) reset(address string) {
	h.mu.Lock()
	delete(h.counts, address)
	h.mu.Unlock()
}

// forget zera os contadores cobertos por uma entrada que mudou.
func (h *ViolationHook) forget(e domain.AllowlistEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for addr := range h.counts {
		if addr == e.Address || cidr.Matches(addr, e.Address) {
			delete(h.counts, addr)
		}
	}
}

func (h *ViolationHook) stripe(address string) *sync.Mutex {
	f := fnv.New32a()
	_, _ = f.Write([]byte(address))
	return &h.stripes[f.Sum32()%violationStripes]
}
