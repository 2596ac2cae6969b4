package infra

import (
	"sync"
	"time"

	"github.com/google/btree"
)

type expiryItem struct {
	until   time.Time
	address string
}

func lessExpiry(a, b expiryItem) bool {
	if !a.until.Equal(b.until) {
		return a.until.Before(b.until)
	}
	return a.address < b.address
}

// ExpiryIndex mantém as suspensões ordenadas por vencimento, para a varredura
// não precisar percorrer todos os endereços.
type ExpiryIndex struct {
	mu     sync.Mutex
	tree   *btree.BTreeG[expiryItem]
	byAddr map[string]time.Time
}

func NewExpiryIndex() *ExpiryIndex {
	return &ExpiryIndex{
		tree:   btree.NewG(2, lessExpiry),
		byAddr: make(map[string]time.Time),
	}
}

// Put registra (ou substitui) o vencimento do endereço.
func (x *ExpiryIndex) Put(address string, until time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.byAddr[address]; ok {
		x.tree.Delete(expiryItem{until: old, address: address})
	}
	x.byAddr[address] = until
	x.tree.ReplaceOrInsert(expiryItem{until: until, address: address})
}

func (x *ExpiryIndex) Remove(address string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	old, ok := x.byAddr[address]
	if !ok {
		return
	}
	delete(x.byAddr, address)
	x.tree.Delete(expiryItem{until: old, address: address})
}

// Due devolve os endereços com vencimento <= now, do mais antigo para o mais novo.
// Não remove nada: quem vence a suspensão chama Remove.
func (x *ExpiryIndex) Due(now time.Time) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	var out []string
	x.tree.Ascend(func(it expiryItem) bool {
		if it.until.After(now) {
			return false
		}
		out = append(out, it.address)
		return true
	})
	return out
}

func (x *ExpiryIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.tree.Len()
}
