package infra

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"access-gateway/middleware/access/domain"

	"github.com/oschwald/geoip2-golang"
)

var (
	datacenterRegex = regexp.MustCompile(`(?i)(amazon|google|microsoft|digitalocean|linode|hetzner|ovh|vultr|ibm|alibaba|tencent|cloudflare|rackspace|hostinger|upcloud|azure|gcp|aws|hosting|datacenter|data center|server)`)
	mobileRegex     = regexp.MustCompile(`(?i)(mobile|wireless|cellular|lte|gsm)`)

	errBadAddress = errors.New("geo: invalid address")
)

// MaxMindResolver consulta bases GeoLite2 locais (City e ASN).
// Qualquer uma das duas pode faltar; o campo correspondente fica vazio.
type MaxMindResolver struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

func OpenMaxMind(cityPath, asnPath string) (*MaxMindResolver, error) {
	r := &MaxMindResolver{}
	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, err
		}
		r.city = db
	}
	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.asn = db
	}
	return r, nil
}

func (r *MaxMindResolver) Lookup(_ context.Context, address string) (domain.GeoInfo, error) {
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return domain.GeoInfo{}, errBadAddress
	}

	info := domain.GeoInfo{}
	if r.city != nil {
		rec, err := r.city.City(ip)
		if err != nil {
			return domain.GeoInfo{}, err
		}
		info.Country = rec.Country.IsoCode
		info.City = rec.City.Names["en"]
		info.IsProxy = rec.Traits.IsAnonymousProxy
	}
	if r.asn != nil {
		rec, err := r.asn.ASN(ip)
		if err != nil {
			return domain.GeoInfo{}, err
		}
		info.ASN = rec.AutonomousSystemNumber
		info.Org = rec.AutonomousSystemOrganization
		info.IsHosting = datacenterRegex.MatchString(info.Org)
		info.IsMobile = mobileRegex.MatchString(info.Org)
	}
	return info, nil
}

func (r *MaxMindResolver) Close() error {
	var errs []error
	if r.city != nil {
		errs = append(errs, r.city.Close())
	}
	if r.asn != nil {
		errs = append(errs, r.asn.Close())
	}
	return errors.Join(errs...)
}
