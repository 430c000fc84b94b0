package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	UnknownCountry = "Unknown"
	UnknownSource  = "Unknown"
)

// ErrMalformedProxy is returned when an "ip:port" entry cannot become a Proxy.
var ErrMalformedProxy = errors.New("malformed proxy")

// CheckStatus is the tri-state result of the last liveness probe.
type CheckStatus uint8

const (
	StatusUnchecked CheckStatus = iota
	StatusWorking
	StatusFailed
)

func (s CheckStatus) String() string {
	switch s {
	case StatusWorking:
		return "working"
	case StatusFailed:
		return "failed"
	default:
		return "unchecked"
	}
}

func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CheckStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "working":
		*s = StatusWorking
	case "failed":
		*s = StatusFailed
	case "unchecked", "":
		*s = StatusUnchecked
	default:
		return fmt.Errorf("unknown check status %q", text)
	}
	return nil
}

// Proxy is the normalized record every source is translated into.
// Values are never mutated after construction; WithValidation returns a copy.
type Proxy struct {
	IP          string         `json:"ip" yaml:"ip"`
	Port        uint16         `json:"port" yaml:"port"`
	Protocol    Protocol       `json:"protocol" yaml:"protocol"`
	Country     string         `json:"country" yaml:"country"`
	CountryCode string         `json:"country_code,omitempty" yaml:"country_code,omitempty"`
	Anonymity   AnonymityLevel `json:"anonymity,omitempty" yaml:"anonymity,omitempty"`

	SpeedMs       *int        `json:"speed_ms,omitempty" yaml:"speed_ms,omitempty"`
	Status        CheckStatus `json:"status" yaml:"status"`
	LastCheckedAt *time.Time  `json:"last_checked_at,omitempty" yaml:"last_checked_at,omitempty"`

	Source string `json:"source" yaml:"source"`
}

// Metadata carries the optional descriptive fields a source knows about an entry.
type Metadata struct {
	Country     string
	CountryCode string
	Anonymity   AnonymityLevel
	Source      string
}

// ParseProxy builds a Proxy from an "ip:port" string. Entries that do not have
// exactly one colon, a dotted-quad IPv4 address and a port in [1,65535] are
// rejected with ErrMalformedProxy. Zero-padded octets are stored without the
// padding, so "010.001.002.003" becomes "10.1.2.3".
func ParseProxy(ipPort string, protocol Protocol, meta Metadata) (Proxy, error) {
	parts := strings.Split(strings.TrimSpace(ipPort), ":")
	if len(parts) != 2 {
		return Proxy{}, fmt.Errorf("%w: %q is not ip:port", ErrMalformedProxy, ipPort)
	}

	ip, ok := CanonicalIP(parts[0])
	if !ok {
		return Proxy{}, fmt.Errorf("%w: invalid ip %q", ErrMalformedProxy, strings.TrimSpace(parts[0]))
	}

	port, ok := ParsePort(parts[1])
	if !ok {
		return Proxy{}, fmt.Errorf("%w: invalid port %q", ErrMalformedProxy, parts[1])
	}

	country := strings.TrimSpace(meta.Country)
	if country == "" {
		country = UnknownCountry
	}
	source := meta.Source
	if source == "" {
		source = UnknownSource
	}

	return Proxy{
		IP:          ip,
		Port:        port,
		Protocol:    protocol,
		Country:     country,
		CountryCode: strings.TrimSpace(meta.CountryCode),
		Anonymity:   meta.Anonymity,
		Source:      source,
	}, nil
}

// IsValidIP accepts four dot-separated decimal octets in [0,255].
func IsValidIP(ip string) bool {
	_, ok := CanonicalIP(ip)
	return ok
}

// CanonicalIP validates a dotted-quad and rewrites every octet without leading
// zeros. The net package refuses padded octets, so only the canonical form can
// be dialed.
func CanonicalIP(ip string) (string, bool) {
	octets := strings.Split(strings.TrimSpace(ip), ".")
	if len(octets) != 4 {
		return "", false
	}
	for i, octet := range octets {
		if octet == "" || len(octet) > 3 || !isDigits(octet) {
			return "", false
		}
		n, err := strconv.Atoi(octet)
		if err != nil || n > 255 {
			return "", false
		}
		octets[i] = strconv.Itoa(n)
	}
	return strings.Join(octets, "."), true
}

// ParsePort parses a decimal port in [1,65535].
func ParsePort(raw string) (uint16, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !isDigits(raw) {
		return 0, false
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return uint16(port), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Key is the identity used for deduplication and for merging validation results.
func (proxy Proxy) Key() string {
	return strings.ToLower(proxy.IP) + ":" + strconv.Itoa(int(proxy.Port))
}

func (proxy Proxy) GetFullProxy() string {
	return fmt.Sprintf("%s:%d", proxy.GetIp(), proxy.Port)
}

func (proxy Proxy) GetIp() string {
	return proxy.IP
}

// IsWorking reports the tri-state status as (working, known).
func (proxy Proxy) IsWorking() (working bool, known bool) {
	switch proxy.Status {
	case StatusWorking:
		return true, true
	case StatusFailed:
		return false, true
	default:
		return false, false
	}
}

// WithValidation returns a copy carrying the outcome of a probe. A failed probe
// never keeps a speed.
func (proxy Proxy) WithValidation(working bool, responseTimeMs int) Proxy {
	updated := proxy
	checkedAt := time.Now()
	updated.LastCheckedAt = &checkedAt
	if working {
		speed := responseTimeMs
		updated.Status = StatusWorking
		updated.SpeedMs = &speed
	} else {
		updated.Status = StatusFailed
		updated.SpeedMs = nil
	}
	return updated
}
