package wcs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server, timeout time.Duration, retry RetryPolicy) *Client {
	return NewClient(ClientOptions{
		BaseURL: srv.URL,
		Version: "2.0.1",
		APIKey:  "test-key",
		Timeout: timeout,
		Retry:   retry,
	})
}

func TestClient_Fetch_Success(t *testing.T) {
	var gotKey, gotService, gotVersion, gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotService = r.URL.Query().Get("service")
		gotVersion = r.URL.Query().Get("version")
		gotLanguage = r.URL.Query().Get("language")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := newTestClient(srv, time.Second, RetryPolicy{MaxAttempts: 1, Backoff: time.Millisecond})

	body, err := c.Fetch(context.Background(), "/wcs/GetCapabilities", url.Values{"language": {"eng"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}
	if gotKey != "test-key" {
		t.Errorf("apikey header = %q, want %q", gotKey, "test-key")
	}
	if gotService != "WCS" || gotVersion != "2.0.1" {
		t.Errorf("service/version = %q/%q", gotService, gotVersion)
	}
	if gotLanguage != "eng" {
		t.Errorf("language = %q, want eng", gotLanguage)
	}
}

func TestClient_Fetch_NoAPIKeyHeaderWhenUnset(t *testing.T) {
	var headerPresent bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, headerPresent = r.Header["Apikey"]
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Version: "2.0.1"})
	if _, err := c.Fetch(context.Background(), "/", nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if headerPresent {
		t.Errorf("apikey header sent despite empty key")
	}
}

func TestClient_Fetch_NonOKFailsFast(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	// Retry-forever policy: a fast failure proves the status error is not
	// treated as a retryable timeout.
	c := newTestClient(srv, time.Second, RetryPolicy{MaxAttempts: 0, Backoff: time.Millisecond})

	_, err := c.Fetch(context.Background(), "/", nil)
	if err == nil {
		t.Fatalf("expected error for HTTP 403")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if se.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", se.StatusCode)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("requests = %d, want 1 (no retry on status errors)", n)
	}
}

func TestClient_Fetch_ConnectionErrorFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(srv, time.Second, RetryPolicy{MaxAttempts: 0, Backoff: time.Millisecond})

	_, err := c.Fetch(context.Background(), "/", nil)
	if err == nil {
		t.Fatalf("expected error for refused connection")
	}
	if strings.Contains(err.Error(), "timed out after") {
		t.Errorf("connection error reported as timeout: %v", err)
	}
}

func TestClient_Fetch_RetriesTimeoutsThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			time.Sleep(500 * time.Millisecond) // beyond the client deadline
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	c := newTestClient(srv, 50*time.Millisecond, RetryPolicy{MaxAttempts: 0, Backoff: time.Millisecond})

	body, err := c.Fetch(context.Background(), "/", nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "finally" {
		t.Errorf("body = %q", body)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("requests = %d, want 3 (two timeouts then success)", n)
	}
}

func TestClient_Fetch_MaxAttemptsExhausted(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv, 50*time.Millisecond, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond})

	_, err := c.Fetch(context.Background(), "/", nil)
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if !strings.Contains(err.Error(), "timed out after 3 attempt(s)") {
		t.Errorf("error = %v, want attempt count", err)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestClient_Fetch_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(srv, 20*time.Millisecond, RetryPolicy{MaxAttempts: 0, Backoff: time.Hour})

	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, "/", nil)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond) // let the first attempt time out
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Fetch did not return after cancellation")
	}
}
