package domain

import "context"

// GeoInfo é o payload do colaborador de geolocalização.
type GeoInfo struct {
	Country   string `json:"country"`
	City      string `json:"city"`
	Org       string `json:"org"`
	ASN       uint   `json:"asn,omitempty"`
	IsHosting bool   `json:"isHosting"`
	IsProxy   bool   `json:"isProxy"`
	IsMobile  bool   `json:"isMobile"`
	Unknown   bool   `json:"unknown"`
}

// UnknownGeo é o payload degradado usado quando a consulta falha.
func UnknownGeo() GeoInfo {
	return GeoInfo{Country: "unknown", City: "unknown", Org: "unknown", Unknown: true}
}

// GeoResolver nunca falha: em erro devolve UnknownGeo.
type GeoResolver interface {
	Resolve(ctx context.Context, address string) GeoInfo
}
