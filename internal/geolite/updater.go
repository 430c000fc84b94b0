package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

const (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"
	countryEdition     = "GeoLite2-Country"
	countryFileName    = "GeoLite2-Country.mmdb"
	userAgent          = "proxy-universe-geolite-updater/1.0"
)

var (
	updateGroup singleflight.Group
	httpClient  = &http.Client{Timeout: 2 * time.Minute}
	downloadURL = maxMindDownloadURL
)

var (
	// ErrNoLicenseKey indicates that the MaxMind license key has not been configured.
	ErrNoLicenseKey = errors.New("geolite: license key is not configured")
)

// UpdateCountryDatabase downloads the GeoLite2-Country archive and replaces
// destPath with the mmdb it contains. Concurrent calls share one download.
func UpdateCountryDatabase(ctx context.Context, licenseKey, destPath string) error {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return ErrNoLicenseKey
	}
	if strings.TrimSpace(destPath) == "" {
		return errors.New("geolite: destination path is empty")
	}

	_, err, _ := updateGroup.Do(destPath, func() (interface{}, error) {
		start := time.Now()
		if err := downloadEdition(ctx, licenseKey, destPath); err != nil {
			return nil, err
		}
		log.Info("GeoLite country database updated", "path", destPath, "elapsed", time.Since(start).Round(time.Millisecond))
		return nil, nil
	})
	return err
}

func downloadEdition(ctx context.Context, licenseKey, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildDownloadURL(licenseKey, countryEdition), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", countryEdition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", countryEdition, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", countryEdition, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", countryEdition, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != countryFileName {
			continue
		}

		if err := writeToFile(destPath, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", countryEdition, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", countryEdition)
}

func writeToFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

func buildDownloadURL(licenseKey, edition string) string {
	return fmt.Sprintf("%s?edition_id=%s&license_key=%s&suffix=tar.gz", downloadURL, url.QueryEscape(edition), url.QueryEscape(licenseKey))
}
