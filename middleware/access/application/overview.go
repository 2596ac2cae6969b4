package application

import (
	"sort"
	"strings"
	"time"

	"access-gateway/middleware/access/domain"
)

// StatusItem é uma linha da visão administrativa.
type StatusItem struct {
	Address         string        `json:"address"`
	Status          domain.Status `json:"status"`
	AttemptCount    int           `json:"attemptCount"`
	SuspensionCount int           `json:"suspensionCount"`
	LastSeen        time.Time     `json:"lastSeen"`
	Until           *time.Time    `json:"until,omitempty"`
	Reason          string        `json:"reason,omitempty"`
}

type StatusCounts struct {
	Normal    int `json:"normal"`
	Warning   int `json:"warning"`
	Suspended int `json:"suspended"`
	Blocked   int `json:"blocked"`
}

// Query filtra, busca, ordena e pagina a visão. Limit 0 devolve tudo.
type Query struct {
	Status domain.Status
	Search string
	Sort   string // recent | attempts | address | status
	Order  string // asc | desc
	Offset int
	Limit  int
}

type StatusPage struct {
	Counts StatusCounts `json:"counts"`
	Total  int          `json:"total"`
	Items  []StatusItem `json:"items"`
}

// Overview agrega contagens de status e devolve a página pedida.
// Counts cobre todos os endereços rastreados; Total é o número após filtro/busca.
func (t *Tracker) Overview(q Query) StatusPage {
	now := t.now()

	t.mu.Lock()
	t.expireAllLocked(now)
	items := t.itemsLocked()
	t.mu.Unlock()

	page := StatusPage{Items: []StatusItem{}}
	search := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := items[:0]
	for _, it := range items {
		switch it.Status {
		case domain.StatusNormal:
			page.Counts.Normal++
		case domain.StatusWarning:
			page.Counts.Warning++
		case domain.StatusSuspended:
			page.Counts.Suspended++
		case domain.StatusBlocked:
			page.Counts.Blocked++
		}
		if q.Status != "" && it.Status != q.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(it.Address), search) {
			continue
		}
		filtered = append(filtered, it)
	}

	sortItems(filtered, q.Sort, q.Order)
	page.Total = len(filtered)

	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > len(filtered) {
		start = len(filtered)
	}
	end := len(filtered)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page.Items = append(page.Items, filtered[start:end]...)
	return page
}

func (t *Tracker) itemsLocked() []StatusItem {
	seen := make(map[string]struct{}, len(t.records)+len(t.blocked))
	add := func(addr string) {
		seen[addr] = struct{}{}
	}
	for addr := range t.records {
		add(addr)
	}
	for addr := range t.suspensions {
		add(addr)
	}
	for addr := range t.blocked {
		add(addr)
	}

	items := make([]StatusItem, 0, len(seen))
	for addr := range seen {
		it := StatusItem{Address: addr, Status: t.statusLocked(addr)}
		if rec, ok := t.records[addr]; ok {
			it.AttemptCount = rec.AttemptCount
			it.SuspensionCount = rec.SuspensionCount
			it.LastSeen = rec.LastSeen
			it.Reason = rec.WarnedBy
		}
		if s, ok := t.suspensions[addr]; ok {
			until := s.Until
			it.Until = &until
			it.Reason = s.Reason
			if s.Since.After(it.LastSeen) {
				it.LastSeen = s.Since
			}
		}
		if b, ok := t.blocked[addr]; ok {
			it.Reason = b.Reason
			if b.Since.After(it.LastSeen) {
				it.LastSeen = b.Since
			}
		}
		items = append(items, it)
	}
	return items
}

func sortItems(items []StatusItem, key, order string) {
	desc := strings.EqualFold(order, "desc")
	var less func(a, b StatusItem) bool
	switch strings.ToLower(key) {
	case "attempts":
		less = func(a, b StatusItem) bool {
			if a.AttemptCount != b.AttemptCount {
				return a.AttemptCount < b.AttemptCount
			}
			return a.Address < b.Address
		}
	case "address":
		less = func(a, b StatusItem) bool { return a.Address < b.Address }
	case "status":
		less = func(a, b StatusItem) bool {
			if a.Status.Rank() != b.Status.Rank() {
				return a.Status.Rank() < b.Status.Rank()
			}
			return a.Address < b.Address
		}
	default:
		// recent: mais recente primeiro, salvo order=asc
		desc = !strings.EqualFold(order, "asc")
		less = func(a, b StatusItem) bool {
			if !a.LastSeen.Equal(b.LastSeen) {
				return a.LastSeen.Before(b.LastSeen)
			}
			return a.Address < b.Address
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}
