package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	oqpdhttp "github.com/lucaslellis/oracle-quarter-patch-downloader/internal/http"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/session"
)

// bundleZip builds an em_catalog.zip whose entries sit under a top-level
// directory, the way the real bundle ships.
func bundleZip(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"em_catalog/aru_platforms.xml": platformsXML,
		"em_catalog/components.xml":    componentsXML,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func bundleServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var downloads atomic.Int32
	archive := bundleZip(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/download/em_catalog.zip", func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		w.Write(archive)
	})
	return httptest.NewServer(mux), &downloads
}

func bundleClient(t *testing.T, baseURL, cacheDir string) *Client {
	t.Helper()
	sess, err := session.New(session.Options{BaseURL: baseURL, Username: "user", Password: "secret"})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	httpClient := oqpdhttp.NewClient(sess, oqpdhttp.Options{
		RetryAttempts:   1,
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: time.Millisecond,
	})
	return New(httpClient, baseURL, cacheDir)
}

func TestEnsureBundleDownloadsAndExtracts(t *testing.T) {
	server, downloads := bundleServer(t)
	defer server.Close()

	cacheDir := t.TempDir()
	c := bundleClient(t, server.URL, cacheDir)

	if err := c.EnsureBundle(context.Background(), false); err != nil {
		t.Fatalf("EnsureBundle: %v", err)
	}
	if downloads.Load() != 1 {
		t.Errorf("expected 1 download, got %d", downloads.Load())
	}

	// Entries are flattened out of the top-level directory.
	data, err := os.ReadFile(filepath.Join(cacheDir, "em_catalog", "aru_platforms.xml"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(data) != platformsXML {
		t.Error("extracted platform list does not match the bundle")
	}

	platforms, err := c.ListPlatforms()
	if err != nil {
		t.Fatalf("ListPlatforms after extract: %v", err)
	}
	if len(platforms) != 3 {
		t.Errorf("expected 3 platforms, got %d", len(platforms))
	}
}

func TestEnsureBundleUsesCache(t *testing.T) {
	server, downloads := bundleServer(t)
	defer server.Close()

	cacheDir := t.TempDir()
	c := bundleClient(t, server.URL, cacheDir)

	if err := c.EnsureBundle(context.Background(), false); err != nil {
		t.Fatalf("first EnsureBundle: %v", err)
	}
	if err := c.EnsureBundle(context.Background(), false); err != nil {
		t.Fatalf("second EnsureBundle: %v", err)
	}

	if downloads.Load() != 1 {
		t.Errorf("expected cached bundle to be reused, got %d downloads", downloads.Load())
	}
}

func TestEnsureBundleRefresh(t *testing.T) {
	server, downloads := bundleServer(t)
	defer server.Close()

	cacheDir := t.TempDir()
	c := bundleClient(t, server.URL, cacheDir)

	if err := c.EnsureBundle(context.Background(), false); err != nil {
		t.Fatalf("first EnsureBundle: %v", err)
	}
	if err := c.EnsureBundle(context.Background(), true); err != nil {
		t.Fatalf("refresh EnsureBundle: %v", err)
	}

	if downloads.Load() != 2 {
		t.Errorf("expected refresh to re-download, got %d downloads", downloads.Load())
	}
}

func TestEnsureBundleServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := bundleClient(t, server.URL, t.TempDir())

	if err := c.EnsureBundle(context.Background(), false); err == nil {
		t.Error("expected error when the bundle download keeps failing")
	}
}
