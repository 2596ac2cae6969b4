package infra

import (
	"fmt"
	"os"
	"strings"

	"access-gateway/middleware/access/domain"

	"gopkg.in/yaml.v3"
)

type allowlistFile struct {
	Allowlist struct {
		Configured []domain.AllowlistEntry `yaml:"configured"`
	} `yaml:"allowlist"`
}

// LoadConfigured lê as entradas configuradas do boot.
//
// source pode ser o caminho de um YAML (.yaml/.yml) ou uma lista separada por
// vírgula ("10.0.0.0/8, 192.168.1.10"). Vazio devolve nenhuma entrada.
func LoadConfigured(source string) ([]domain.AllowlistEntry, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	if strings.HasSuffix(source, ".yaml") || strings.HasSuffix(source, ".yml") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, err
		}
		return ParseConfiguredYAML(data)
	}
	return ParseConfiguredList(source), nil
}

func ParseConfiguredYAML(data []byte) ([]domain.AllowlistEntry, error) {
	var f allowlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode configured allowlist: %w", err)
	}
	out := make([]domain.AllowlistEntry, 0, len(f.Allowlist.Configured))
	for _, e := range f.Allowlist.Configured {
		e.Address = strings.TrimSpace(e.Address)
		if e.Address == "" {
			continue
		}
		e.Tier = domain.TierTrusted
		e.Origin = domain.OriginConfigured
		out = append(out, e)
	}
	return out, nil
}

func ParseConfiguredList(list string) []domain.AllowlistEntry {
	var out []domain.AllowlistEntry
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, domain.AllowlistEntry{
			Address: p,
			Tier:    domain.TierTrusted,
			Origin:  domain.OriginConfigured,
			Reason:  "configured",
		})
	}
	return out
}
