package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spadilla89/proxy-universe/internal/domain"

	"github.com/charmbracelet/log"
)

const (
	filePrefix     = "universe_proxy_"
	fileTimeLayout = "20060102_150405"
	dateLayout     = "2006-01-02 15:04:05"
)

// FileName is the export file name for a list written at t.
func FileName(t time.Time) string {
	return filePrefix + t.Format(fileTimeLayout) + ".txt"
}

// FormatList joins the "ip:port" form of every record, one per line.
func FormatList(proxies []domain.Proxy) string {
	lines := make([]string, len(proxies))
	for i, proxy := range proxies {
		lines[i] = proxy.GetFullProxy()
	}
	return strings.Join(lines, "\n")
}

// Render builds the export file body: a commented header followed by one
// "ip:port" line per record.
func Render(proxies []domain.Proxy, protocol domain.Protocol, at time.Time) string {
	var b strings.Builder
	b.WriteString("# Universe Proxy Export\n")
	fmt.Fprintf(&b, "# Date: %s\n", at.Format(dateLayout))
	fmt.Fprintf(&b, "# Protocol: %s\n", protocol)
	fmt.Fprintf(&b, "# Total: %d proxies\n", len(proxies))
	b.WriteString("\n")
	for _, proxy := range proxies {
		b.WriteString(proxy.GetFullProxy())
		b.WriteString("\n")
	}
	return b.String()
}

// WriteFile writes the rendered list into dir and returns the file path.
// The file appears atomically.
func WriteFile(dir string, proxies []domain.Proxy, protocol domain.Protocol, at time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(dir, FileName(at))
	tmpFile, err := os.CreateTemp(dir, "universe-export-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.WriteString(Render(proxies, protocol, at)); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), path); err != nil {
		return "", fmt.Errorf("replace file: %w", err)
	}

	log.Info("Proxies exported", "path", path, "count", len(proxies))
	return path, nil
}
