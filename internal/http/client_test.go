package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestClient_Do(t *testing.T) {
	// Create a test server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected method GET, got %s", r.Method)
		}

		if r.URL.Path != "/test" {
			t.Errorf("Expected path /test, got %s", r.URL.Path)
		}

		if r.Header.Get("X-Test-Header") != "test-value" {
			t.Errorf("Expected header X-Test-Header: test-value, got %s", r.Header.Get("X-Test-Header"))
		}

		if r.Header.Get("User-Agent") != "bombard-test" {
			t.Errorf("Expected User-Agent bombard-test, got %s", r.Header.Get("User-Agent"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"success"}`))
	}))
	defer server.Close()

	client := NewClient(
		WithTimeout(5*time.Second),
		WithHeader("User-Agent", "bombard-test"),
	)

	req := NewRequest("test", "GET", server.URL+"/test")
	req.WithHeader("X-Test-Header", "test-value")

	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Error executing request: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}

	if resp.GetHeader("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type: application/json, got %s", resp.GetHeader("Content-Type"))
	}

	expectedBody := `{"message":"success"}`
	if body := string(resp.Body); body != expectedBody {
		t.Errorf("Expected body %s, got %s", expectedBody, body)
	}
}

func TestClient_Do_ServerErrorIsNotAnError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Do(context.Background(), NewRequest("fail", "GET", server.URL))
	if err != nil {
		t.Fatalf("Expected no error for 500 response, got %v", err)
	}

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"error":"boom"}` {
		t.Errorf("Expected the 500 body to be kept, got %s", resp.Body)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single attempt without retries, got %d", calls.Load())
	}
}

func TestClient_Do_Retries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(
		WithRetryMax(3),
		WithRetryWait(time.Millisecond, 5*time.Millisecond),
		WithLogger(zap.NewNop()),
	)

	resp, err := client.Do(context.Background(), NewRequest("retry", "GET", server.URL))
	if err != nil {
		t.Fatalf("Error executing request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 after retries, got %d", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

func TestClient_Do_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(WithTimeout(time.Second))
	if _, err := client.Do(context.Background(), NewRequest("down", "GET", url)); err == nil {
		t.Fatal("Expected an error for a closed server")
	}
}

func TestClient_Do_InvalidURL(t *testing.T) {
	client := NewClient()
	if _, err := client.Do(context.Background(), NewRequest("bad", "GET", "http://[::1]:namedport")); err == nil {
		t.Fatal("Expected an error for an invalid URL")
	}
}

func TestClient_NewSession_IsolatesCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			w.WriteHeader(http.StatusOK)
			return
		}
		if _, err := r.Cookie("session"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	base := NewClient()

	first, err := base.NewSession()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	second, err := base.NewSession()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	ctx := context.Background()
	if _, err := first.Do(ctx, NewRequest("login", "GET", server.URL+"/login")); err != nil {
		t.Fatalf("login error = %v", err)
	}

	resp, err := first.Do(ctx, NewRequest("me", "GET", server.URL+"/me"))
	if err != nil {
		t.Fatalf("me error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Logged-in session got %d, want 200", resp.StatusCode)
	}

	resp, err = second.Do(ctx, NewRequest("me", "GET", server.URL+"/me"))
	if err != nil {
		t.Fatalf("me error = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Fresh session got %d, want 401", resp.StatusCode)
	}
}

func TestClient_NewSession_SharesTransportAndPolicy(t *testing.T) {
	base := NewClient(WithTimeout(3*time.Second), WithRetryMax(2))

	first, err := base.NewSession()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	second, err := base.NewSession()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	for i, s := range []Doer{first, second} {
		session := s.(*Client)
		if session.retry.HTTPClient.Transport != base.retry.HTTPClient.Transport {
			t.Errorf("session %d does not share the base transport", i)
		}
		if session.retry.HTTPClient.Timeout != 3*time.Second {
			t.Errorf("session %d timeout = %v, want 3s", i, session.retry.HTTPClient.Timeout)
		}
		if session.retry.RetryMax != 2 {
			t.Errorf("session %d RetryMax = %d, want 2", i, session.retry.RetryMax)
		}
		if session.retry.ErrorHandler == nil || session.retry.CheckRetry == nil || session.retry.Backoff == nil {
			t.Errorf("session %d lost the retry policy", i)
		}
		if session.retry.HTTPClient.Jar == nil {
			t.Errorf("session %d has no cookie jar", i)
		}
	}

	if first.(*Client).retry.HTTPClient.Jar == second.(*Client).retry.HTTPClient.Jar {
		t.Error("sessions share a cookie jar")
	}
	if base.retry.HTTPClient.Jar != nil {
		t.Error("base client should not get a cookie jar")
	}
}
