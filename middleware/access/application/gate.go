package application

import (
	"context"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewSlotPool cria um semáforo simples baseado em channel com capacidade `max`.
func NewSlotPool(max int) domain.SlotPool {
	if max <= 0 {
		max = 1
	}
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		// liberar duas vezes não pode devolver a vaga de outro
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

// SlotGate adquire uma vaga de um SlotPool com espera limitada.
// A allowlist usa com capacidade 1 como trava de escrita; o gateway usa para
// limitar requisições simultâneas.
type SlotGate struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera até ctx cancelar.
// - Se `AcquireTimeout > 0`, espera no máximo esse tempo.
func (g SlotGate) Acquire(ctx context.Context) (func(), bool) {
	if g.Pool == nil {
		return func() {}, true
	}

	if g.AcquireTimeout <= 0 {
		return g.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, g.AcquireTimeout)
	defer cancel()
	return g.Pool.Acquire(acqCtx)
}
