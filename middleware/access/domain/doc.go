// Package domain define os tipos e contratos do controle de acesso do gateway:
// tiers de confiança, allowlist, reputação por endereço, histórico de status e
// as portas para persistência, estatísticas, geolocalização e autenticação admin.
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain
