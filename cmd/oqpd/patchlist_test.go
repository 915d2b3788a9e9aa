package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/catalog"
	oqpdhttp "github.com/lucaslellis/oracle-quarter-patch-downloader/internal/http"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/session"
)

var testPlatforms = []catalog.Platform{
	{Code: "226", Name: "Linux x86-64"},
	{Code: "2000", Name: "Generic Platform"},
}

func TestResolvePlatform(t *testing.T) {
	byName := make(map[string]catalog.Platform)
	byCode := make(map[string]catalog.Platform)
	for _, p := range testPlatforms {
		byName[p.Name] = p
		byCode[p.Code] = p
	}

	cases := []struct {
		field    string
		wantCode string
		wantOK   bool
	}{
		{"226", "226", true},
		{"Linux x86-64", "226", true},
		{"", "2000", true},
		{"999", "999", true},
		{"BeOS", "", false},
	}

	for _, tc := range cases {
		got, ok := resolvePlatform(tc.field, byName, byCode)
		if ok != tc.wantOK {
			t.Errorf("resolvePlatform(%q) ok = %v, want %v", tc.field, ok, tc.wantOK)
			continue
		}
		if ok && got.Code != tc.wantCode {
			t.Errorf("resolvePlatform(%q) = %s, want %s", tc.field, got.Code, tc.wantCode)
		}
	}
}

func TestIsNumeric(t *testing.T) {
	for in, want := range map[string]bool{
		"226":          true,
		"2000":         true,
		"":             false,
		"22a":          false,
		"Linux x86-64": false,
	} {
		if got := isNumeric(in); got != want {
			t.Errorf("isNumeric(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRecordsFromPatchList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Orion/SimpleSearch/process_form", func(w http.ResponseWriter, r *http.Request) {
		number := r.URL.Query().Get("patch_number")
		fmt.Fprintf(w, `<html><body><a href="/download/p%s_190000.zip">p%s_190000.zip</a></body></html>`, number, number)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sess, err := session.New(session.Options{BaseURL: server.URL, Username: "user", Password: "secret"})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	httpClient := oqpdhttp.NewClient(sess, oqpdhttp.Options{
		RetryAttempts:   1,
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: time.Millisecond,
	})
	cat := catalog.New(httpClient, server.URL, t.TempDir())

	listPath := filepath.Join(t.TempDir(), "patches.csv")
	csv := `# patch list for the standby fleet
35000001,OCT2025,Data Pump fix,dpump,226
35000002,OCT2025,Generic fix,misc,
35000003,OCT2025,too few columns,misc
35000004,OCT2025,Unknown platform,misc,BeOS
`
	if err := os.WriteFile(listPath, []byte(csv), 0o644); err != nil {
		t.Fatalf("write patch list: %v", err)
	}

	records, err := recordsFromPatchList(context.Background(), cat, testPlatforms, listPath)
	if err != nil {
		t.Fatalf("recordsFromPatchList: %v", err)
	}

	// Rows 3 (column count) and 4 (unknown platform) are skipped.
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %v", len(records), records)
	}

	if records[0].PatchNumber != "35000001" || records[0].Group != "dpump" {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[0].Platform.Code != "226" {
		t.Errorf("expected platform 226, got %s", records[0].Platform.Code)
	}
	if records[0].Category != catalog.CategoryCustom {
		t.Errorf("unexpected category %s", records[0].Category)
	}

	// Blank platform falls back to the generic code.
	if records[1].Platform.Code != "2000" {
		t.Errorf("expected generic platform, got %s", records[1].Platform.Code)
	}
	if records[1].SizeBytes != 2048 {
		t.Errorf("expected size from HEAD, got %d", records[1].SizeBytes)
	}
}
