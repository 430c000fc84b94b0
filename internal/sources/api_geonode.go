package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/fetch"
)

const geoNodeEndpoint = "https://proxylist.geonode.com/api/proxy-list"

type geoNodeResponse struct {
	Data  []geoNodeProxy `json:"data"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

type geoNodeProxy struct {
	IP             string     `json:"ip"`
	Port           flexString `json:"port"`
	Protocols      []string   `json:"protocols"`
	Country        string     `json:"country"`
	AnonymityLevel string     `json:"anonymityLevel"`
	ResponseTime   *float64   `json:"responseTime"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// GeoNode returns a JSON page of recently checked proxies.
type GeoNode struct {
	client    *http.Client
	userAgent string
	limit     int
	endpoint  string
}

func NewGeoNode(client *http.Client, userAgent string, limit int) *GeoNode {
	return &GeoNode{client: client, userAgent: userAgent, limit: limit, endpoint: geoNodeEndpoint}
}

func (s *GeoNode) Name() string { return "GeoNode" }
func (s *GeoNode) Kind() Kind   { return KindAPI }

func (s *GeoNode) Fetch(ctx context.Context, protocol domain.Protocol) ([]domain.Proxy, error) {
	query := url.Values{}
	query.Set("protocols", protocol.Lower())
	query.Set("limit", strconv.Itoa(s.limit))
	query.Set("page", "1")
	query.Set("sort_by", "lastChecked")
	query.Set("sort_type", "desc")

	body, err := fetch.GetBody(ctx, s.client, s.endpoint+"?"+query.Encode(), s.userAgent)
	if err != nil {
		return nil, fmt.Errorf("geonode: %w", err)
	}

	var response geoNodeResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("geonode: decode response: %w", err)
	}

	source := Label(s)
	proxies := make([]domain.Proxy, 0, len(response.Data))
	for _, entry := range response.Data {
		country, code := countryFields(entry.Country)
		proxy, ok := createProxy(entry.IP, string(entry.Port), protocol, domain.Metadata{
			Country:     country,
			CountryCode: code,
			Anonymity:   anonymityFrom(entry.AnonymityLevel),
			Source:      source,
		})
		if !ok {
			continue
		}
		if entry.ResponseTime != nil {
			speed := int(*entry.ResponseTime)
			proxy.SpeedMs = &speed
		}
		proxies = append(proxies, proxy)
	}
	return proxies, nil
}
