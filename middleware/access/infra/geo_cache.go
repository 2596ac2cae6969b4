package infra

import (
	"context"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// GeoSource é a consulta crua, que pode falhar.
type GeoSource interface {
	Lookup(ctx context.Context, address string) (domain.GeoInfo, error)
}

type geoCacheEntry struct {
	info    domain.GeoInfo
	expires time.Time
}

// CachedResolver implementa domain.GeoResolver sobre um GeoSource.
//
// Acertos ficam em cache por ttl; consultas simultâneas do mesmo endereço são
// agrupadas. Falha ou timeout devolvem UnknownGeo e não entram no cache.
type CachedResolver struct {
	src    GeoSource
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	cache sync.Map
	group singleflight.Group
}

type CachedResolverOption func(*CachedResolver)

func WithGeoTTL(d time.Duration) CachedResolverOption {
	return func(r *CachedResolver) { r.ttl = d }
}

func WithGeoClock(now func() time.Time) CachedResolverOption {
	return func(r *CachedResolver) { r.now = now }
}

func WithGeoLogger(l zerolog.Logger) CachedResolverOption {
	return func(r *CachedResolver) { r.logger = l }
}

func NewCachedResolver(src GeoSource, opts ...CachedResolverOption) *CachedResolver {
	r := &CachedResolver{
		src:    src,
		ttl:    24 * time.Hour,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CachedResolver) Resolve(ctx context.Context, address string) domain.GeoInfo {
	now := r.now()
	if v, ok := r.cache.Load(address); ok {
		ent := v.(geoCacheEntry)
		if now.Before(ent.expires) {
			return ent.info
		}
		r.cache.Delete(address)
	}

	ch := r.group.DoChan(address, func() (any, error) {
		info, err := r.src.Lookup(context.WithoutCancel(ctx), address)
		if err != nil {
			return nil, err
		}
		r.cache.Store(address, geoCacheEntry{info: info, expires: r.now().Add(r.ttl)})
		return info, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			r.logger.Debug().Err(res.Err).Str("address", address).Msg("geo lookup failed")
			return domain.UnknownGeo()
		}
		return res.Val.(domain.GeoInfo)
	case <-ctx.Done():
		return domain.UnknownGeo()
	}
}
