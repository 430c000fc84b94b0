package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/fetch"
	"github.com/spadilla89/proxy-universe/internal/support"

	"github.com/PuerkitoBio/goquery"
)

type parseFunc func(doc *goquery.Document, protocol domain.Protocol, source string) []domain.Proxy

// TableScraper reads proxies out of an HTML table on a fixed page.
type TableScraper struct {
	name      string
	url       string
	documents fetch.DocumentFetcher
	supports  func(domain.Protocol) bool
	parse     parseFunc
}

func (s *TableScraper) Name() string { return s.name }
func (s *TableScraper) Kind() Kind   { return KindScraper }
func (s *TableScraper) URL() string  { return s.url }

func (s *TableScraper) Fetch(ctx context.Context, protocol domain.Protocol) ([]domain.Proxy, error) {
	if !s.supports(protocol) {
		return nil, nil
	}

	doc, err := s.documents.FetchDocument(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", s.name, err)
	}
	return s.parse(doc, protocol, Label(s)), nil
}

func onlyProtocols(protocols ...domain.Protocol) func(domain.Protocol) bool {
	return func(p domain.Protocol) bool {
		for _, supported := range protocols {
			if p == supported {
				return true
			}
		}
		return false
	}
}

/* ─────────────────────────────  free-proxy-list.net  ──────────────────── */

func NewFreeProxyList(documents fetch.DocumentFetcher) *TableScraper {
	return &TableScraper{
		name:      "free-proxy-list.net",
		url:       "https://free-proxy-list.net/",
		documents: documents,
		supports:  onlyProtocols(domain.ProtocolHTTP, domain.ProtocolHTTPS),
		parse:     parseFreeProxyList,
	}
}

// parseFreeProxyList maps the "Https" yes/no column onto HTTPS or HTTP.
func parseFreeProxyList(doc *goquery.Document, protocol domain.Protocol, source string) []domain.Proxy {
	var proxies []domain.Proxy

	doc.Find("table#proxylisttable tbody tr, .fpl-list table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}

		rowProtocol := domain.ProtocolHTTP
		if strings.EqualFold(cellText(cells, 6), "yes") {
			rowProtocol = domain.ProtocolHTTPS
		}
		if rowProtocol != protocol {
			return
		}

		if proxy, ok := createProxy(cellText(cells, 0), cellText(cells, 1), protocol, domain.Metadata{
			Country:     cellText(cells, 3),
			CountryCode: cellText(cells, 2),
			Anonymity:   anonymityFrom(cellText(cells, 4)),
			Source:      source,
		}); ok {
			proxies = append(proxies, proxy)
		}
	})

	return proxies
}

/* ─────────────────────────────  sslproxies.org  ───────────────────────── */

func NewSSLProxies(documents fetch.DocumentFetcher) *TableScraper {
	return &TableScraper{
		name:      "sslproxies.org",
		url:       "https://www.sslproxies.org/",
		documents: documents,
		supports:  onlyProtocols(domain.ProtocolHTTPS),
		parse:     parseSSLProxies,
	}
}

func parseSSLProxies(doc *goquery.Document, _ domain.Protocol, source string) []domain.Proxy {
	var proxies []domain.Proxy

	doc.Find("table.table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}

		if proxy, ok := createProxy(cellText(cells, 0), cellText(cells, 1), domain.ProtocolHTTPS, domain.Metadata{
			Country:     cellText(cells, 3),
			CountryCode: cellText(cells, 2),
			Anonymity:   anonymityFrom(cellText(cells, 4)),
			Source:      source,
		}); ok {
			proxies = append(proxies, proxy)
		}
	})

	return proxies
}

/* ─────────────────────────────  socks-proxy.net  ──────────────────────── */

func NewSocksProxy(documents fetch.DocumentFetcher) *TableScraper {
	return &TableScraper{
		name:      "socks-proxy.net",
		url:       "https://www.socks-proxy.net/",
		documents: documents,
		supports:  onlyProtocols(domain.ProtocolSOCKS4, domain.ProtocolSOCKS5),
		parse:     parseSocksProxy,
	}
}

// parseSocksProxy reads the SOCKS version from the "Version" column.
func parseSocksProxy(doc *goquery.Document, protocol domain.Protocol, source string) []domain.Proxy {
	var proxies []domain.Proxy

	doc.Find("table.table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}

		version := cellText(cells, 4)
		var rowProtocol domain.Protocol
		switch {
		case strings.Contains(version, "5"):
			rowProtocol = domain.ProtocolSOCKS5
		case strings.Contains(version, "4"):
			rowProtocol = domain.ProtocolSOCKS4
		default:
			return
		}
		if rowProtocol != protocol {
			return
		}

		if proxy, ok := createProxy(cellText(cells, 0), cellText(cells, 1), protocol, domain.Metadata{
			Country:     cellText(cells, 3),
			CountryCode: cellText(cells, 2),
			Anonymity:   anonymityFrom(cellText(cells, 5)),
			Source:      source,
		}); ok {
			proxies = append(proxies, proxy)
		}
	})

	return proxies
}

/* ─────────────────────────────  hidemy.name  ──────────────────────────── */

func NewHideMyName(documents fetch.DocumentFetcher) *TableScraper {
	return &TableScraper{
		name:      "hidemy.name",
		url:       "https://hidemy.name/en/proxy-list/",
		documents: documents,
		supports:  domain.Protocol.Valid,
		parse:     parseHideMyName,
	}
}

// parseHideMyName lists every protocol in one table; the "Type" column may
// name several, the most specific one wins.
func parseHideMyName(doc *goquery.Document, protocol domain.Protocol, source string) []domain.Proxy {
	var proxies []domain.Proxy

	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}

		if rowProtocol, ok := hideMyNameProtocol(cellText(cells, 4)); !ok || rowProtocol != protocol {
			return
		}

		if proxy, ok := createProxy(cellText(cells, 0), cellText(cells, 1), protocol, domain.Metadata{
			Country:   cellText(cells, 2),
			Anonymity: anonymityFrom(cellText(cells, 5)),
			Source:    source,
		}); ok {
			proxies = append(proxies, proxy)
		}
	})

	return proxies
}

func hideMyNameProtocol(typeText string) (domain.Protocol, bool) {
	upper := strings.ToUpper(typeText)
	switch {
	case strings.Contains(upper, "SOCKS5"):
		return domain.ProtocolSOCKS5, true
	case strings.Contains(upper, "SOCKS4"):
		return domain.ProtocolSOCKS4, true
	case strings.Contains(upper, "HTTPS"):
		return domain.ProtocolHTTPS, true
	case strings.Contains(upper, "HTTP"):
		return domain.ProtocolHTTP, true
	default:
		return 0, false
	}
}

/* ─────────────────────────────  proxynova.com  ────────────────────────── */

func NewProxyNova(documents fetch.DocumentFetcher) *TableScraper {
	return &TableScraper{
		name:      "proxynova.com",
		url:       "https://www.proxynova.com/proxy-server-list/",
		documents: documents,
		supports:  onlyProtocols(domain.ProtocolHTTP, domain.ProtocolHTTPS),
		parse:     parseProxyNova,
	}
}

// parseProxyNova handles the obfuscated address column: the real IP sits in
// an abbr title, otherwise it is pulled out of the cell's script text.
func parseProxyNova(doc *goquery.Document, protocol domain.Protocol, source string) []domain.Proxy {
	var proxies []domain.Proxy

	doc.Find("table#tbl_proxy_list tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}

		ip := ""
		if title, ok := cells.Eq(0).Find("abbr").First().Attr("title"); ok {
			ip = strings.TrimSpace(title)
		}
		if !domain.IsValidIP(ip) {
			ip = support.FindIP(cells.Eq(0).Text())
		}

		if proxy, ok := createProxy(ip, cellText(cells, 1), protocol, domain.Metadata{
			Country:   collapseSpaces(cellText(cells, 5)),
			Anonymity: anonymityFrom(cellText(cells, 6)),
			Source:    source,
		}); ok {
			proxies = append(proxies, proxy)
		}
	})

	return proxies
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
