package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/session"
)

func fastOptions() Options {
	return Options{
		RetryAttempts:   3,
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: 5 * time.Millisecond,
	}
}

func provider(t *testing.T, baseURL string) *session.Provider {
	t.Helper()
	p, err := session.New(session.Options{BaseURL: baseURL, Username: "user", Password: "secret"})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return p
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "value" {
			t.Errorf("expected query param q=value, got %s", r.URL.RawQuery)
		}
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	client := NewClient(provider(t, server.URL), fastOptions())
	resp, err := client.Get(context.Background(), server.URL, map[string][]string{"q": {"value"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestGetFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(provider(t, server.URL), fastOptions())
	resp, err := client.Get(context.Background(), server.URL+"/start", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "moved" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := NewClient(provider(t, server.URL), fastOptions())
	resp, err := client.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGetGivesUpAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(provider(t, server.URL), fastOptions())
	if _, err := client.Get(context.Background(), server.URL, nil); err == nil {
		t.Error("expected error after exhausting retries")
	}
}

func TestGetNotFoundIsFatal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(provider(t, server.URL), fastOptions())
	_, err := client.Get(context.Background(), server.URL, nil)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls.Load())
	}
}

func TestGetRefreshesExpiredSession(t *testing.T) {
	// First data request 401s; after one re-logon the request succeeds.
	var refreshed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/Orion/Services/download", func(w http.ResponseWriter, r *http.Request) {
		refreshed.Store(true)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		if !refreshed.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("fresh"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(provider(t, server.URL), fastOptions())
	resp, err := client.Get(context.Background(), server.URL+"/data", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "fresh" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestGetPersistentUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Orion/Services/download", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(provider(t, server.URL), fastOptions())
	_, err := client.Get(context.Background(), server.URL+"/data", nil)
	if err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized after one refresh, got %v", err)
	}
}

func TestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Length", "1024")
	}))
	defer server.Close()

	client := NewClient(provider(t, server.URL), fastOptions())
	size, err := client.Head(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if size != 1024 {
		t.Errorf("expected size 1024, got %d", size)
	}
}

func TestBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Backoff(ctx, 1, time.Hour, time.Hour)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
