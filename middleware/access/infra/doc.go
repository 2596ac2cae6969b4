// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - FilePersister / RedisPersister / GormPersister: armazenamento da allowlist dinâmica
//   - ExpiryIndex: vencimentos de suspensão ordenados (google/btree)
//   - VolumeStore: token bucket por endereço usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore / AsyncStatsStore: estatísticas de decisão
//   - MaxMindResolver / CachedResolver: geolocalização com cache
//   - JWTValidator: token bearer da API administrativa
package infra
