package geolite

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spadilla89/proxy-universe/internal/domain"
)

func buildArchive(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{Name: "GeoLite2-Country_20240101/README.txt", Mode: 0o644, Size: 2, Typeflag: tar.TypeReg}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write([]byte("hi")); err != nil {
		t.Fatalf("write readme: %v", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: "GeoLite2-Country_20240101/" + name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func withDownloadURL(t *testing.T, url string) {
	t.Helper()
	previous := downloadURL
	downloadURL = url
	t.Cleanup(func() { downloadURL = previous })
}

func TestUpdateCountryDatabaseExtractsMMDB(t *testing.T) {
	archive := buildArchive(t, countryFileName, []byte("mmdb-bytes"))

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write(archive)
	}))
	defer srv.Close()
	withDownloadURL(t, srv.URL)

	dest := filepath.Join(t.TempDir(), "data", countryFileName)
	if err := UpdateCountryDatabase(context.Background(), "secret", dest); err != nil {
		t.Fatalf("UpdateCountryDatabase returned error: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(data) != "mmdb-bytes" {
		t.Fatalf("destination content = %q", data)
	}
	if gotQuery != "edition_id=GeoLite2-Country&license_key=secret&suffix=tar.gz" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestUpdateCountryDatabaseErrors(t *testing.T) {
	if err := UpdateCountryDatabase(context.Background(), " ", "x.mmdb"); !errors.Is(err, ErrNoLicenseKey) {
		t.Fatalf("error = %v, want ErrNoLicenseKey", err)
	}

	archive := buildArchive(t, "GeoLite2-ASN.mmdb", []byte("asn"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("license_key") == "bad" {
			http.Error(w, "Invalid license key", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()
	withDownloadURL(t, srv.URL)

	dest := filepath.Join(t.TempDir(), countryFileName)
	if err := UpdateCountryDatabase(context.Background(), "bad", dest); err == nil {
		t.Fatal("expected error for rejected license key")
	}
	if err := UpdateCountryDatabase(context.Background(), "good", dest); err == nil {
		t.Fatal("expected error when the archive has no country database")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("destination should not exist after failed updates, stat err = %v", err)
	}
}

func TestLocatorWithoutDatabase(t *testing.T) {
	locator := &Locator{}

	if _, _, ok := locator.Lookup("8.8.8.8"); ok {
		t.Fatal("Lookup should fail without a database")
	}
	if _, _, ok := locator.Lookup("not-an-ip"); ok {
		t.Fatal("Lookup should fail for invalid ip")
	}

	in := []domain.Proxy{{IP: "8.8.8.8", Port: 53, Country: domain.UnknownCountry}}
	out := locator.Enrich(in)
	if len(out) != 1 || out[0].Country != domain.UnknownCountry {
		t.Fatalf("Enrich changed record without a database: %+v", out)
	}
	if err := locator.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Fatal("expected error for missing database")
	}
}
