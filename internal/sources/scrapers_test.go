package sources

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/fetch"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDocuments struct {
	html  string
	err   error
	calls int
	urls  []string
}

func (s *staticDocuments) FetchDocument(_ context.Context, url string) (*goquery.Document, error) {
	s.calls++
	s.urls = append(s.urls, url)
	if s.err != nil {
		return nil, s.err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(s.html))
}

const freeProxyListHTML = `<html><body>
<table id="proxylisttable"><tbody>
<tr><td>1.1.1.1</td><td>8080</td><td>US</td><td>United States</td><td>elite proxy</td><td>no</td><td>yes</td><td>1 min ago</td></tr>
<tr><td>2.2.2.2</td><td>3128</td><td>DE</td><td>Germany</td><td>anonymous</td><td>no</td><td>no</td><td>1 min ago</td></tr>
<tr><td>3.3.3.3</td><td>80</td><td>FR</td></tr>
<tr><td>999.2.2.2</td><td>3128</td><td>DE</td><td>Germany</td><td>transparent</td><td>no</td><td>no</td><td>1 min ago</td></tr>
<tr><td>4.4.4.4</td><td>8000</td><td>BR</td><td>Brazil</td><td>transparent</td><td>no</td><td>no</td><td>1 min ago</td></tr>
</tbody></table>
</body></html>`

func TestFreeProxyListSplitsByHTTPSColumn(t *testing.T) {
	docs := &staticDocuments{html: freeProxyListHTML}
	src := NewFreeProxyList(docs)

	https, err := src.Fetch(context.Background(), domain.ProtocolHTTPS)
	require.NoError(t, err)
	require.Len(t, https, 1)
	assert.Equal(t, "1.1.1.1:8080", https[0].GetFullProxy())
	assert.Equal(t, domain.ProtocolHTTPS, https[0].Protocol)
	assert.Equal(t, "United States", https[0].Country)
	assert.Equal(t, "US", https[0].CountryCode)
	assert.Equal(t, domain.AnonymityElite, https[0].Anonymity)
	assert.Equal(t, "Scraper: free-proxy-list.net", https[0].Source)

	plain, err := src.Fetch(context.Background(), domain.ProtocolHTTP)
	require.NoError(t, err)
	require.Len(t, plain, 2, "short and malformed rows are skipped")
	assert.Equal(t, "2.2.2.2:3128", plain[0].GetFullProxy())
	assert.Equal(t, "4.4.4.4:8000", plain[1].GetFullProxy())
	assert.Equal(t, domain.AnonymityTransparent, plain[1].Anonymity)
}

func TestScrapersSkipUnsupportedProtocols(t *testing.T) {
	tests := []struct {
		name        string
		build       func(fetch.DocumentFetcher) *TableScraper
		unsupported []domain.Protocol
	}{
		{"free-proxy-list", NewFreeProxyList, []domain.Protocol{domain.ProtocolSOCKS4, domain.ProtocolSOCKS5}},
		{"sslproxies", NewSSLProxies, []domain.Protocol{domain.ProtocolHTTP, domain.ProtocolSOCKS4, domain.ProtocolSOCKS5}},
		{"socks-proxy", NewSocksProxy, []domain.Protocol{domain.ProtocolHTTP, domain.ProtocolHTTPS}},
		{"proxynova", NewProxyNova, []domain.Protocol{domain.ProtocolSOCKS4, domain.ProtocolSOCKS5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := &staticDocuments{html: freeProxyListHTML}
			src := tt.build(docs)
			for _, protocol := range tt.unsupported {
				proxies, err := src.Fetch(context.Background(), protocol)
				require.NoError(t, err)
				assert.Empty(t, proxies)
			}
			assert.Zero(t, docs.calls, "no page should be requested for an unsupported protocol")
		})
	}
}

func TestScraperReportsFetchErrors(t *testing.T) {
	docs := &staticDocuments{err: errors.New("connection reset")}
	proxies, err := NewSSLProxies(docs).Fetch(context.Background(), domain.ProtocolHTTPS)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sslproxies.org")
	assert.Empty(t, proxies)
	assert.Equal(t, []string{"https://www.sslproxies.org/"}, docs.urls)
}

func TestSSLProxies(t *testing.T) {
	html := `<table class="table"><tbody>
<tr><td>5.5.5.5</td><td>443</td><td>JP</td><td>Japan</td><td>elite proxy</td><td>no</td><td>yes</td></tr>
<tr><td>6.6.6.6</td><td>abc</td><td>JP</td><td>Japan</td><td>elite proxy</td><td>no</td><td>yes</td></tr>
</tbody></table>`

	proxies, err := NewSSLProxies(&staticDocuments{html: html}).Fetch(context.Background(), domain.ProtocolHTTPS)
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	assert.Equal(t, "5.5.5.5:443", proxies[0].GetFullProxy())
	assert.Equal(t, domain.ProtocolHTTPS, proxies[0].Protocol)
	assert.Equal(t, "JP", proxies[0].CountryCode)
}

func TestSocksProxyReadsVersionColumn(t *testing.T) {
	html := `<table class="table"><tbody>
<tr><td>7.7.7.7</td><td>1080</td><td>IN</td><td>India</td><td>Socks5</td><td>Anonymous</td><td>Yes</td></tr>
<tr><td>8.8.4.4</td><td>1080</td><td>IN</td><td>India</td><td>Socks4</td><td>Anonymous</td><td>Yes</td></tr>
<tr><td>9.9.9.9</td><td>1080</td><td>IN</td><td>India</td><td>?</td><td>Anonymous</td><td>Yes</td></tr>
</tbody></table>`
	src := NewSocksProxy(&staticDocuments{html: html})

	socks5, err := src.Fetch(context.Background(), domain.ProtocolSOCKS5)
	require.NoError(t, err)
	require.Len(t, socks5, 1)
	assert.Equal(t, "7.7.7.7:1080", socks5[0].GetFullProxy())
	assert.Equal(t, domain.AnonymityAnonymous, socks5[0].Anonymity)

	socks4, err := src.Fetch(context.Background(), domain.ProtocolSOCKS4)
	require.NoError(t, err)
	require.Len(t, socks4, 1)
	assert.Equal(t, "8.8.4.4:1080", socks4[0].GetFullProxy())
}

func TestHideMyNameTypeColumn(t *testing.T) {
	html := `<table><tbody>
<tr><td>10.1.1.1</td><td>80</td><td>Canada</td><td>500 ms</td><td>HTTP</td><td>High</td></tr>
<tr><td>10.1.1.2</td><td>443</td><td>Canada</td><td>500 ms</td><td>HTTP, HTTPS</td><td>Average</td></tr>
<tr><td>10.1.1.3</td><td>1080</td><td>Canada</td><td>500 ms</td><td>SOCKS4, SOCKS5</td><td>No</td></tr>
<tr><td>10.1.1.4</td><td>1081</td><td>Canada</td><td>500 ms</td><td>SOCKS4</td></tr>
<tr><td>10.1.1.5</td><td>1082</td><td>Canada</td></tr>
</tbody></table>`
	src := NewHideMyName(&staticDocuments{html: html})

	tests := []struct {
		protocol  domain.Protocol
		want      string
		anonymity domain.AnonymityLevel
	}{
		{domain.ProtocolHTTP, "10.1.1.1:80", domain.AnonymityElite},
		{domain.ProtocolHTTPS, "10.1.1.2:443", domain.AnonymityAnonymous},
		{domain.ProtocolSOCKS5, "10.1.1.3:1080", domain.AnonymityTransparent},
		{domain.ProtocolSOCKS4, "10.1.1.4:1081", 0},
	}

	for _, tt := range tests {
		t.Run(tt.protocol.String(), func(t *testing.T) {
			proxies, err := src.Fetch(context.Background(), tt.protocol)
			require.NoError(t, err)
			require.Len(t, proxies, 1)
			assert.Equal(t, tt.want, proxies[0].GetFullProxy())
			assert.Equal(t, tt.anonymity, proxies[0].Anonymity)
			assert.Equal(t, "Canada", proxies[0].Country)
		})
	}
}

func TestProxyNovaResolvesObfuscatedAddresses(t *testing.T) {
	html := `<table id="tbl_proxy_list"><tbody>
<tr><td><abbr title="11.22.33.44">11.22.*.*</abbr></td><td>8080</td><td>100</td><td>10%</td><td>1 min</td><td>Brazil
   Sao Paulo</td><td>Elite</td></tr>
<tr><td><script>document.write("55.66.77.88")</script></td><td> 3128 </td><td>100</td><td>10%</td><td>1 min</td><td>Chile</td><td>Transparent</td></tr>
<tr><td>hidden</td><td>3128</td><td>100</td><td>10%</td><td>1 min</td><td>Chile</td></tr>
<tr><td colspan="7">advertisement</td></tr>
</tbody></table>`

	proxies, err := NewProxyNova(&staticDocuments{html: html}).Fetch(context.Background(), domain.ProtocolHTTP)
	require.NoError(t, err)
	require.Len(t, proxies, 2)

	assert.Equal(t, "11.22.33.44:8080", proxies[0].GetFullProxy())
	assert.Equal(t, "Brazil Sao Paulo", proxies[0].Country)
	assert.Equal(t, domain.AnonymityElite, proxies[0].Anonymity)

	assert.Equal(t, "55.66.77.88:3128", proxies[1].GetFullProxy())
	assert.Equal(t, domain.AnonymityTransparent, proxies[1].Anonymity)
	assert.Equal(t, "Scraper: proxynova.com", proxies[1].Source)
}
