package support

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spadilla89/proxy-universe/internal/domain"
)

var ipv4Regex = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)

// ParseTextToProxies turns a newline separated "ip:port" list into records.
// Blank lines, "#" comments and malformed entries are skipped.
func ParseTextToProxies(text string, protocol domain.Protocol, meta domain.Metadata) []domain.Proxy {
	text = clearProxyString(text)

	lines := strings.Split(text, "\n")
	proxies := make([]domain.Proxy, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		proxy, err := domain.ParseProxy(line, protocol, meta)
		if err != nil {
			continue
		}
		proxies = append(proxies, proxy)
	}

	return proxies
}

func clearProxyString(proxies string) string {
	proxies = strings.ReplaceAll(proxies, "\r", "")
	proxies = strings.ReplaceAll(proxies, "\t", "")
	return proxies
}

// FindIP identifies the first IPv4 address in a given string.
func FindIP(input string) string {
	return ipv4Regex.FindString(input)
}

// FormatProxies renders every proxy through outputFormat, replacing the
// keywords protocol, ip, port, country, code, anonymity, alive, time and source.
func FormatProxies(proxies []domain.Proxy, outputFormat string) string {
	var result strings.Builder

	for _, proxy := range proxies {
		replacer := strings.NewReplacer(
			"protocol", proxy.Protocol.Lower(),
			"ip", proxy.GetIp(),
			"port", fmt.Sprintf("%d", proxy.Port),
			"country", proxy.Country,
			"code", proxy.CountryCode,
			"anonymity", proxy.Anonymity.String(),
			"alive", proxy.Status.String(),
			"time", formatSpeed(proxy.SpeedMs),
			"source", proxy.Source,
		)

		result.WriteString(replacer.Replace(outputFormat))
		result.WriteString("\n")
	}

	return result.String()
}

func formatSpeed(speed *int) string {
	if speed == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *speed)
}
