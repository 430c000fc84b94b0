package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/export"
	"github.com/spadilla89/proxy-universe/internal/support"

	"gopkg.in/yaml.v3"
)

func checkOutput(output string) error {
	switch output {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output %q, want text, json or yaml", output)
	}
}

// writeProxies prints proxies as "ip:port" lines, through a FormatProxies
// template when format is set, or as a json/yaml document.
func writeProxies(w io.Writer, proxies []domain.Proxy, output, format string) error {
	if output != "text" {
		if proxies == nil {
			proxies = []domain.Proxy{}
		}
		return encode(w, output, proxies)
	}

	if format != "" {
		_, err := io.WriteString(w, support.FormatProxies(proxies, format))
		return err
	}
	if len(proxies) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(w, export.FormatList(proxies))
	return err
}

func encode(w io.Writer, output string, v any) error {
	switch output {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return checkOutput(output)
	}
}
