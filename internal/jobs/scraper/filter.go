package scraper

import (
	"strings"

	"github.com/spadilla89/proxy-universe/internal/domain"
)

// Filter narrows a round's results. Country entries match either the country
// name or its code, case-insensitively. Both criteria must hold.
type Filter struct {
	Countries []string
	Anonymity []domain.AnonymityLevel
}

func (f Filter) countries() []string {
	out := make([]string, 0, len(f.Countries))
	for _, country := range f.Countries {
		if country = strings.TrimSpace(country); country != "" {
			out = append(out, country)
		}
	}
	return out
}

// IsEmpty reports whether the filter lets every record through.
func (f Filter) IsEmpty() bool {
	return len(f.countries()) == 0 && len(f.Anonymity) == 0
}

func (f Filter) Match(proxy domain.Proxy) bool {
	return f.matchCountry(proxy) && f.matchAnonymity(proxy)
}

func (f Filter) matchCountry(proxy domain.Proxy) bool {
	countries := f.countries()
	if len(countries) == 0 {
		return true
	}
	for _, country := range countries {
		if strings.EqualFold(country, proxy.Country) || strings.EqualFold(country, proxy.CountryCode) {
			return true
		}
	}
	return false
}

func (f Filter) matchAnonymity(proxy domain.Proxy) bool {
	if len(f.Anonymity) == 0 {
		return true
	}
	for _, level := range f.Anonymity {
		if proxy.Anonymity == level {
			return true
		}
	}
	return false
}

// ApplyFilter keeps the records that match f, preserving order.
func ApplyFilter(proxies []domain.Proxy, f Filter) []domain.Proxy {
	if f.IsEmpty() {
		return proxies
	}
	kept := make([]domain.Proxy, 0, len(proxies))
	for _, proxy := range proxies {
		if f.Match(proxy) {
			kept = append(kept, proxy)
		}
	}
	return kept
}

// Dedupe drops every record whose Key was already seen; the first one wins.
func Dedupe(proxies []domain.Proxy) []domain.Proxy {
	seen := make(map[string]struct{}, len(proxies))
	unique := make([]domain.Proxy, 0, len(proxies))
	for _, proxy := range proxies {
		key := proxy.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, proxy)
	}
	return unique
}
