package config

import (
	"net/url"
	"strings"
	"sync/atomic"
)

// websiteBlocklistSet holds normalized hostnames no source may contact.
var websiteBlocklistSet atomic.Value

func init() {
	websiteBlocklistSet.Store(make(map[string]struct{}))
}

func updateWebsiteBlocklist(entries []string) {
	websiteBlocklistSet.Store(NewWebsiteBlocklistSet(entries))
}

// NewWebsiteBlocklistSet builds a lookup set from the provided entries.
func NewWebsiteBlocklistSet(entries []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, raw := range entries {
		if host := normalizeHostname(raw); host != "" {
			set[host] = struct{}{}
		}
	}
	return set
}

// IsWebsiteBlocked reports whether the given URL or hostname matches the
// configured blocklist, including subdomains of a blocked host.
func IsWebsiteBlocked(rawURL string) bool {
	return isWebsiteBlocked(rawURL, websiteBlocklistSet.Load().(map[string]struct{}))
}

// FindBlockedURLs returns the subset of urls that the active blocklist rejects.
func FindBlockedURLs(urls []string) []string {
	blockedSet := websiteBlocklistSet.Load().(map[string]struct{})
	if len(urls) == 0 || len(blockedSet) == 0 {
		return nil
	}

	var blocked []string
	for _, raw := range urls {
		if isWebsiteBlocked(raw, blockedSet) {
			blocked = append(blocked, raw)
		}
	}
	return blocked
}

func isWebsiteBlocked(rawURL string, blockedSet map[string]struct{}) bool {
	if len(blockedSet) == 0 {
		return false
	}

	host := normalizeHostname(rawURL)
	if host == "" {
		return false
	}

	if _, ok := blockedSet[host]; ok {
		return true
	}
	for blocked := range blockedSet {
		if strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

func normalizeHostname(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	// Allow bare hostnames by prefixing a scheme for URL parsing.
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.Trim(host, ".")
	return strings.TrimPrefix(host, "www.")
}
