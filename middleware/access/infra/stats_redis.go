package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore acumula decisões em hashes do Redis, compartilhados entre
// instâncias do gateway:
//
//	<prefix>:total            allowed|denied
//	<prefix>:tier             <tier>:allowed|denied
//	<prefix>:status           <status>:allowed|denied
//	<prefix>:route            "<METHOD> <path>":allowed|denied
//	<prefix>:minute:<yyyymmddhhmm>  allowed|denied (expira em ttl)
//	<prefix>:addr:<address>   allowed|denied (opcional, expira em ttl)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl vale só para as chaves por minuto e por endereço; os agregados não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackAddresses bool
	readTimeout    time.Duration
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithStatsTrackAddresses liga a chave por endereço. Cuidado com cardinalidade.
func WithStatsTrackAddresses(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackAddresses = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:         rdb,
		prefix:      "access:stats",
		ttl:         24 * time.Hour,
		bucket:      "minute",
		readTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// Record implementa domain.StatsStore num único pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.DecisionEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := outcomeField(ev.Allowed)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), outcome, 1)
	if ev.Tier != "" {
		pipe.HIncrBy(ctx, s.key("tier"), labelField(string(ev.Tier), outcome), 1)
	}
	if ev.Status != "" {
		pipe.HIncrBy(ctx, s.key("status"), labelField(string(ev.Status), outcome), 1)
	}
	if route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); route != "" {
		pipe.HIncrBy(ctx, s.key("route"), labelField(route, outcome), 1)
	}

	expiring := make([]string, 0, 2)
	if s.bucket == "minute" {
		expiring = append(expiring, s.key("minute", at.UTC().Format("200601021504")))
	}
	if a := strings.TrimSpace(ev.Address); s.trackAddresses && a != "" {
		expiring = append(expiring, s.key("addr", a))
	}
	for _, k := range expiring {
		pipe.HIncrBy(ctx, k, outcome, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stats record: %w", err)
	}
	return nil
}

// Snapshot implementa domain.StatsReader com os agregados (sem endereços).
// Redis fora do ar devolve um snapshot vazio.
func (s *RedisStatsStore) Snapshot() domain.StatsSnapshot {
	ctx, cancel := context.WithTimeout(context.Background(), s.readTimeout)
	defer cancel()
	snap, err := s.SnapshotContext(ctx)
	if err != nil {
		return domain.StatsSnapshot{}
	}
	return snap
}

func (s *RedisStatsStore) SnapshotContext(ctx context.Context) (domain.StatsSnapshot, error) {
	pipe := s.rdb.Pipeline()
	total := pipe.HGetAll(ctx, s.key("total"))
	tier := pipe.HGetAll(ctx, s.key("tier"))
	status := pipe.HGetAll(ctx, s.key("status"))
	route := pipe.HGetAll(ctx, s.key("route"))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StatsSnapshot{}, fmt.Errorf("redis stats snapshot: %w", err)
	}

	snap := domain.StatsSnapshot{
		ByTier:   countersByLabel(tier.Val()),
		ByStatus: countersByLabel(status.Val()),
		ByRoute:  countersByLabel(route.Val()),
	}
	for outcome, v := range total.Val() {
		n, _ := strconv.ParseInt(v, 10, 64)
		addOutcome(&snap.Total, outcome, n)
	}
	return snap, nil
}

func outcomeField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func labelField(label, outcome string) string { return label + ":" + outcome }

// countersByLabel desfaz "<label>:<outcome>"; rotas podem conter ':' no meio.
func countersByLabel(h map[string]string) map[string]domain.Counters {
	out := make(map[string]domain.Counters, len(h))
	for field, v := range h {
		i := strings.LastIndexByte(field, ':')
		if i <= 0 {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		c := out[field[:i]]
		addOutcome(&c, field[i+1:], n)
		out[field[:i]] = c
	}
	return out
}

func addOutcome(c *domain.Counters, outcome string, n int64) {
	switch outcome {
	case "allowed":
		c.Allowed += n
	case "denied":
		c.Denied += n
	}
}
