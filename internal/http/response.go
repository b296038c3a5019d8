package http

import (
	"net/http"
	"time"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode   int
	Status       string
	Headers      http.Header
	Body         []byte
	ResponseTime time.Duration
}

// GetHeader returns the value of the specified header
func (r *Response) GetHeader(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(key)
}
