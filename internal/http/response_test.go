package http

import (
	"net/http"
	"testing"
)

func TestResponse_GetHeader(t *testing.T) {
	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")

	resp := &Response{StatusCode: 201, Headers: headers}
	if resp.GetHeader("content-type") != "application/json" {
		t.Errorf("Header lookup should be case-insensitive")
	}
}

func TestResponse_NilHeaders(t *testing.T) {
	resp := &Response{StatusCode: 503}
	if resp.GetHeader("X-Missing") != "" {
		t.Error("Expected empty header value")
	}
}
