// Package cidr testa se um endereço pertence a um range.
//
// Entrada malformada nunca casa: uma linha de configuração ruim não pode conceder acesso.
package cidr

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

const (
	errInvalidIPFmt   = "invalid IP address: %q"
	errInvalidCIDRFmt = "invalid CIDR notation: %q"
)

// ParseIPv4 converte "a.b.c.d" no inteiro de 32 bits correspondente.
func ParseIPv4(addr string) (uint32, error) {
	octets := strings.Split(addr, ".")
	if len(octets) != 4 {
		return 0, fmt.Errorf(errInvalidIPFmt, addr)
	}

	var ip uint32
	for _, octet := range octets {
		if len(octet) == 0 || len(octet) > 3 || strings.TrimLeft(octet, "0123456789") != "" {
			return 0, fmt.Errorf(errInvalidIPFmt, addr)
		}
		b, err := strconv.Atoi(octet)
		if err != nil || b > 255 {
			return 0, fmt.Errorf(errInvalidIPFmt, addr)
		}
		ip = ip<<8 | uint32(b)
	}
	return ip, nil
}

// Mask devolve a máscara de 32 bits para o tamanho de prefixo dado.
func Mask(bits int) uint32 {
	if bits <= 0 {
		return 0
	}
	return ^uint32(0) << uint(32-bits)
}

// ParseRange aceita um endereço puro (prefixo /32) ou "base/prefixo".
func ParseRange(cidrText string) (base uint32, mask uint32, err error) {
	addr, bits := cidrText, 32
	if i := strings.IndexByte(cidrText, '/'); i >= 0 {
		addr = cidrText[:i]
		bits, err = strconv.Atoi(cidrText[i+1:])
		if err != nil || bits < 0 || bits > 32 {
			return 0, 0, fmt.Errorf(errInvalidCIDRFmt, cidrText)
		}
	}
	ip, err := ParseIPv4(addr)
	if err != nil {
		return 0, 0, fmt.Errorf(errInvalidCIDRFmt, cidrText)
	}
	mask = Mask(bits)
	return ip & mask, mask, nil
}

// Matches informa se address pertence a rangeSpec.
// Nunca retorna erro: qualquer entrada inválida é "não casa".
func Matches(address, rangeSpec string) bool {
	address = strings.TrimSpace(address)
	rangeSpec = strings.TrimSpace(rangeSpec)
	if address == "" || rangeSpec == "" {
		return false
	}

	if ip, err := ParseIPv4(unmap(address)); err == nil {
		base, mask, err := ParseRange(rangeSpec)
		if err != nil {
			return false
		}
		return ip&mask == base
	}

	// IPv6 não passa pelo caminho inteiro de 32 bits.
	return matchesV6(address, rangeSpec)
}

// Overlaps informa se os dois ranges (ou endereços) têm algum endereço em comum.
// Um contém o outro ou são iguais; famílias diferentes nunca se sobrepõem.
func Overlaps(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}

	baseA, maskA, errA := ParseRange(unmapRange(a))
	baseB, maskB, errB := ParseRange(unmapRange(b))
	if errA == nil && errB == nil {
		m := maskA & maskB
		return baseA&m == baseB&m
	}
	if errA == nil || errB == nil {
		return false
	}

	pa, okA := prefixV6(a)
	pb, okB := prefixV6(b)
	return okA && okB && pa.Overlaps(pb)
}

// Valid informa se cidrText é um endereço ou range aceito por Matches.
func Valid(cidrText string) bool {
	cidrText = strings.TrimSpace(cidrText)
	if _, _, err := ParseRange(cidrText); err == nil {
		return true
	}
	if strings.Contains(cidrText, "/") {
		p, err := netip.ParsePrefix(cidrText)
		return err == nil && p.Addr().Is6()
	}
	a, err := netip.ParseAddr(cidrText)
	return err == nil && a.Is6() && !a.Is4In6()
}

// ValidAddress é Valid restrito a um único endereço (sem prefixo).
func ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	return addr != "" && !strings.Contains(addr, "/") && Valid(addr)
}

// unmap devolve "a.b.c.d" para endereços "::ffff:a.b.c.d".
func unmap(address string) string {
	if !strings.Contains(address, ":") {
		return address
	}
	a, err := netip.ParseAddr(address)
	if err != nil || !a.Is4In6() {
		return address
	}
	return a.Unmap().String()
}

// unmapRange leva "::ffff:a.b.c.d" (sem prefixo) para o caminho IPv4.
func unmapRange(r string) string {
	if strings.Contains(r, "/") {
		return r
	}
	return unmap(r)
}

func prefixV6(r string) (netip.Prefix, bool) {
	if strings.Contains(r, "/") {
		p, err := netip.ParsePrefix(r)
		if err != nil || !p.Addr().Is6() {
			return netip.Prefix{}, false
		}
		return p.Masked(), true
	}
	a, err := netip.ParseAddr(r)
	if err != nil || !a.Is6() || a.Is4In6() {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(a, 128), true
}

func matchesV6(address, rangeSpec string) bool {
	a, err := netip.ParseAddr(address)
	if err != nil || !a.Is6() {
		return false
	}
	if !strings.Contains(rangeSpec, "/") {
		b, err := netip.ParseAddr(rangeSpec)
		return err == nil && b.Is6() && a == b
	}
	p, err := netip.ParsePrefix(rangeSpec)
	if err != nil || !p.Addr().Is6() {
		return false
	}
	return p.Contains(a)
}
