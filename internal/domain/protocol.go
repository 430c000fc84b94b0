package domain

import (
	"fmt"
	"strings"
)

type Protocol uint8

const (
	ProtocolHTTP Protocol = iota + 1
	ProtocolHTTPS
	ProtocolSOCKS4
	ProtocolSOCKS5
)

var protocolNames = map[Protocol]string{
	ProtocolHTTP:   "HTTP",
	ProtocolHTTPS:  "HTTPS",
	ProtocolSOCKS4: "SOCKS4",
	ProtocolSOCKS5: "SOCKS5",
}

// Protocols lists every supported protocol in display order.
func Protocols() []Protocol {
	return []Protocol{ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5}
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Protocol(%d)", uint8(p))
}

// Lower is the lowercase name most providers expect in query strings.
func (p Protocol) Lower() string {
	return strings.ToLower(p.String())
}

func (p Protocol) IsSocks() bool {
	return p == ProtocolSOCKS4 || p == ProtocolSOCKS5
}

func (p Protocol) Valid() bool {
	_, ok := protocolNames[p]
	return ok
}

// ParseProtocol matches a protocol name case-insensitively.
func ParseProtocol(value string) (Protocol, error) {
	value = strings.TrimSpace(value)
	for protocol, name := range protocolNames {
		if strings.EqualFold(name, value) {
			return protocol, nil
		}
	}
	return 0, fmt.Errorf("unknown protocol %q", value)
}

func (p Protocol) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid protocol %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Protocol) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
