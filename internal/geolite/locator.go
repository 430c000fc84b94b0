package geolite

import (
	"fmt"
	"net"
	"sync"

	"github.com/spadilla89/proxy-universe/internal/domain"

	"github.com/oschwald/geoip2-golang"
)

// Locator resolves proxy IPs to countries from a GeoLite2-Country database.
type Locator struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
}

// Open loads the mmdb file at path.
func Open(path string) (*Locator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geolite database %s: %w", path, err)
	}
	return &Locator{reader: reader}, nil
}

// FromBytes loads an in-memory mmdb image.
func FromBytes(data []byte) (*Locator, error) {
	reader, err := geoip2.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("load geolite database: %w", err)
	}
	return &Locator{reader: reader}, nil
}

// Lookup returns the English country name and ISO code for ip.
func (l *Locator) Lookup(ip string) (name, code string, ok bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", "", false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.reader == nil {
		return "", "", false
	}

	record, err := l.reader.Country(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return "", "", false
	}

	name = record.Country.Names["en"]
	if name == "" {
		name = domain.CountryName(record.Country.IsoCode)
	}
	return name, record.Country.IsoCode, true
}

// Enrich fills country fields for records whose source did not report one.
// Records that already carry a country are returned untouched.
func (l *Locator) Enrich(proxies []domain.Proxy) []domain.Proxy {
	enriched := make([]domain.Proxy, len(proxies))
	for i, proxy := range proxies {
		if proxy.Country == domain.UnknownCountry || proxy.Country == "" {
			if name, code, ok := l.Lookup(proxy.GetIp()); ok {
				proxy.Country = name
				proxy.CountryCode = code
			}
		} else if proxy.CountryCode == "" {
			if _, code, ok := l.Lookup(proxy.GetIp()); ok {
				proxy.CountryCode = code
			}
		}
		enriched[i] = proxy
	}
	return enriched
}

func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}
