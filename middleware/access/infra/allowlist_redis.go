package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"access-gateway/middleware/access/domain"

	"github.com/redis/go-redis/v9"
)

// RedisPersister guarda o snapshot dinâmico inteiro em uma única chave.
// SET é atômico, então um leitor nunca vê um conjunto pela metade.
type RedisPersister struct {
	rdb *redis.Client
	key string
}

type RedisPersisterOption func(*RedisPersister)

func WithAllowlistKey(key string) RedisPersisterOption {
	return func(p *RedisPersister) { p.key = key }
}

func NewRedisPersister(rdb *redis.Client, opts ...RedisPersisterOption) *RedisPersister {
	p := &RedisPersister{rdb: rdb, key: "access:allowlist:dynamic"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisPersister) Load(ctx context.Context) (domain.DynamicSnapshot, error) {
	data, err := p.rdb.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DynamicSnapshot{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return domain.DynamicSnapshot{}, err
	}

	var snap domain.DynamicSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.DynamicSnapshot{}, fmt.Errorf("decode %s: %w", p.key, err)
	}
	return snap, nil
}

func (p *RedisPersister) Save(ctx context.Context, snap domain.DynamicSnapshot) error {
	if snap.Addresses == nil {
		snap.Addresses = []domain.AllowlistEntry{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, p.key, data, 0).Err()
}
