package domain

import (
	"fmt"
	"strings"
)

// AnonymityLevel is ordered from most to least private. The zero value means
// the source did not report a level.
type AnonymityLevel uint8

const (
	AnonymityElite       AnonymityLevel = 1
	AnonymityAnonymous   AnonymityLevel = 2
	AnonymityTransparent AnonymityLevel = 3
)

var anonymitySynonyms = map[string]AnonymityLevel{
	"elite":           AnonymityElite,
	"elite proxy":     AnonymityElite,
	"high anonymity":  AnonymityElite,
	"high":            AnonymityElite,
	"hia":             AnonymityElite,
	"level 1":         AnonymityElite,
	"level1":          AnonymityElite,
	"anonymous":       AnonymityAnonymous,
	"anonymous proxy": AnonymityAnonymous,
	"anm":             AnonymityAnonymous,
	"medium":          AnonymityAnonymous,
	"average":         AnonymityAnonymous,
	"level 2":         AnonymityAnonymous,
	"level2":          AnonymityAnonymous,
	"transparent":     AnonymityTransparent,
	"noa":             AnonymityTransparent,
	"low":             AnonymityTransparent,
	"no":              AnonymityTransparent,
	"none":            AnonymityTransparent,
	"level 3":         AnonymityTransparent,
	"level3":          AnonymityTransparent,
}

// AnonymityLevels lists every known level in rank order.
func AnonymityLevels() []AnonymityLevel {
	return []AnonymityLevel{AnonymityElite, AnonymityAnonymous, AnonymityTransparent}
}

// ParseAnonymity maps the many spellings sources use onto a level.
func ParseAnonymity(value string) (AnonymityLevel, bool) {
	normalized := strings.ToLower(strings.Join(strings.Fields(value), " "))
	level, ok := anonymitySynonyms[normalized]
	return level, ok
}

func (a AnonymityLevel) String() string {
	switch a {
	case AnonymityElite:
		return "Elite"
	case AnonymityAnonymous:
		return "Anonymous"
	case AnonymityTransparent:
		return "Transparent"
	case 0:
		return ""
	default:
		return fmt.Sprintf("AnonymityLevel(%d)", uint8(a))
	}
}

func (a AnonymityLevel) Known() bool {
	return a >= AnonymityElite && a <= AnonymityTransparent
}

func (a AnonymityLevel) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AnonymityLevel) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*a = 0
		return nil
	}
	level, ok := ParseAnonymity(string(text))
	if !ok {
		return fmt.Errorf("unknown anonymity level %q", string(text))
	}
	*a = level
	return nil
}
