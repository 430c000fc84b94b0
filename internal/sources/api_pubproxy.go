package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/fetch"
)

const pubProxyEndpoint = "http://pubproxy.com/api/proxy"

type pubProxyResponse struct {
	Data  []pubProxyData `json:"data"`
	Count int            `json:"count"`
}

type pubProxyData struct {
	IPPort  string     `json:"ipPort"`
	IP      string     `json:"ip"`
	Port    flexString `json:"port"`
	Type    string     `json:"type"`
	Country string     `json:"country"`
	Level   string     `json:"level"`
	Speed   flexString `json:"speed"`
}

// PubProxy hands out a handful of random proxies per call.
type PubProxy struct {
	client    *http.Client
	userAgent string
	limit     int
	endpoint  string
}

func NewPubProxy(client *http.Client, userAgent string, limit int) *PubProxy {
	return &PubProxy{client: client, userAgent: userAgent, limit: limit, endpoint: pubProxyEndpoint}
}

func (s *PubProxy) Name() string { return "PubProxy" }
func (s *PubProxy) Kind() Kind   { return KindAPI }

func (s *PubProxy) Fetch(ctx context.Context, protocol domain.Protocol) ([]domain.Proxy, error) {
	query := url.Values{}
	query.Set("type", protocol.Lower())
	query.Set("limit", strconv.Itoa(s.limit))
	query.Set("format", "json")

	body, err := fetch.GetBody(ctx, s.client, s.endpoint+"?"+query.Encode(), s.userAgent)
	if err != nil {
		return nil, fmt.Errorf("pubproxy: %w", err)
	}

	var response pubProxyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		// Rate limited callers get a plain text notice instead of JSON.
		return nil, fmt.Errorf("pubproxy: decode response %q: %w", truncate(string(body), 80), err)
	}

	source := Label(s)
	proxies := make([]domain.Proxy, 0, len(response.Data))
	for _, entry := range response.Data {
		ipPort := strings.TrimSpace(entry.IPPort)
		if ipPort == "" {
			if entry.IP == "" || entry.Port == "" {
				continue
			}
			ipPort = entry.IP + ":" + string(entry.Port)
		}

		country, code := countryFields(entry.Country)
		proxy, err := domain.ParseProxy(ipPort, protocol, domain.Metadata{
			Country:     country,
			CountryCode: code,
			Anonymity:   anonymityFrom(entry.Level),
			Source:      source,
		})
		if err != nil {
			continue
		}
		proxies = append(proxies, proxy)
	}
	return proxies, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
