package sources

import (
	"context"
	"strings"

	"github.com/spadilla89/proxy-universe/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

type Kind uint8

const (
	KindAPI Kind = iota + 1
	KindScraper
)

func (k Kind) String() string {
	switch k {
	case KindAPI:
		return "API"
	case KindScraper:
		return "Scraper"
	default:
		return "Unknown"
	}
}

// Source is one upstream provider of proxies.
//
// Fetch always returns a usable slice. A non-nil error describes why the
// provider could not be read and never invalidates the other sources of a
// round. A protocol the provider cannot produce yields nil, nil without any
// network traffic.
type Source interface {
	Name() string
	Kind() Kind
	Fetch(ctx context.Context, protocol domain.Protocol) ([]domain.Proxy, error)
}

// Label is the provenance string stored on every record, e.g. "API: GeoNode".
func Label(src Source) string {
	return src.Kind().String() + ": " + src.Name()
}

func cellText(cells *goquery.Selection, index int) string {
	if index < 0 || index >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(index).Text())
}

func anonymityFrom(text string) domain.AnonymityLevel {
	level, _ := domain.ParseAnonymity(text)
	return level
}

// createProxy joins separately scraped ip and port cells into a record.
func createProxy(ip, port string, protocol domain.Protocol, meta domain.Metadata) (domain.Proxy, bool) {
	ip = strings.TrimSpace(ip)
	port = strings.TrimSpace(port)
	if ip == "" || port == "" {
		return domain.Proxy{}, false
	}
	proxy, err := domain.ParseProxy(ip+":"+port, protocol, meta)
	if err != nil {
		return domain.Proxy{}, false
	}
	return proxy, true
}

// countryFields turns a provider country value into (name, code). Two letter
// values are treated as ISO codes.
func countryFields(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 2 && isLetters(raw) {
		code := strings.ToUpper(raw)
		return domain.CountryName(code), code
	}
	return raw, ""
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
