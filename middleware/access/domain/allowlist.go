package domain

import (
	"context"
	"time"
)

// Tier é a classificação de confiança de um endereço de origem.
type Tier string

const (
	TierAdmin        Tier = "admin"
	TierTrusted      Tier = "trusted"
	TierGuest        Tier = "guest"
	TierUnauthorized Tier = "unauthorized"
)

// Valid informa se o tier pode ser gravado em uma entrada de allowlist.
func (t Tier) Valid() bool {
	switch t {
	case TierAdmin, TierTrusted, TierGuest:
		return true
	}
	return false
}

// Origin diz de onde veio a entrada. Só entradas dinâmicas mudam em runtime.
type Origin string

const (
	OriginPermanent  Origin = "permanent"
	OriginConfigured Origin = "configured"
	OriginDynamic    Origin = "dynamic"
)

// AllowlistEntry é um endereço (ou range CIDR) com o tier que ele concede.
type AllowlistEntry struct {
	Address string    `json:"address" yaml:"address"`
	Tier    Tier      `json:"tier" yaml:"tier"`
	Origin  Origin    `json:"origin" yaml:"-"`
	Reason  string    `json:"reason,omitempty" yaml:"reason"`
	AddedAt time.Time `json:"addedAt" yaml:"-"`
}

// DynamicSnapshot é o registro durável do conjunto dinâmico.
type DynamicSnapshot struct {
	Addresses   []AllowlistEntry `json:"addresses"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// AllowlistPersister grava e lê o conjunto dinâmico inteiro.
//
// Load retorna ErrNoSnapshot quando nada foi gravado ainda.
// Save só pode retornar nil depois que o registro estiver durável.
type AllowlistPersister interface {
	Load(ctx context.Context) (DynamicSnapshot, error)
	Save(ctx context.Context, snap DynamicSnapshot) error
}

// AllowlistView é a visão operacional de todas as origens.
type AllowlistView struct {
	Permanent  []AllowlistEntry `json:"permanent"`
	Configured []AllowlistEntry `json:"configured"`
	Dynamic    []AllowlistEntry `json:"dynamic"`
	Combined   []AllowlistEntry `json:"combined"`
}
