package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/fetch"
	"github.com/spadilla89/proxy-universe/internal/support"
)

const proxyScrapeEndpoint = "https://api.proxyscrape.com/v2/"

// ProxyScrape serves a plain "ip:port" list. It has no separate HTTPS
// listing, so HTTPS requests are answered from the HTTP one.
type ProxyScrape struct {
	client    *http.Client
	userAgent string
	limit     int
	endpoint  string
}

func NewProxyScrape(client *http.Client, userAgent string, limit int) *ProxyScrape {
	return &ProxyScrape{client: client, userAgent: userAgent, limit: limit, endpoint: proxyScrapeEndpoint}
}

func (s *ProxyScrape) Name() string { return "ProxyScrape" }
func (s *ProxyScrape) Kind() Kind   { return KindAPI }

func (s *ProxyScrape) Fetch(ctx context.Context, protocol domain.Protocol) ([]domain.Proxy, error) {
	param := protocol.Lower()
	if protocol == domain.ProtocolHTTPS {
		param = domain.ProtocolHTTP.Lower()
	}

	query := url.Values{}
	query.Set("request", "displayproxies")
	query.Set("protocol", param)
	query.Set("timeout", "10000")

	body, err := fetch.GetBody(ctx, s.client, s.endpoint+"?"+query.Encode(), s.userAgent)
	if err != nil {
		return nil, fmt.Errorf("proxyscrape: %w", err)
	}

	proxies := support.ParseTextToProxies(string(body), protocol, domain.Metadata{Source: Label(s)})
	if s.limit > 0 && len(proxies) > s.limit {
		proxies = proxies[:s.limit]
	}
	return proxies, nil
}
