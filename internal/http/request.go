package http

import (
	"context"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// Extraction sources understood by ExtractRule.
const (
	SourceBody   = "body"
	SourceHeader = "header"
	SourceStatus = "status"
)

// Request is a request template.
//
// Every string field may carry {{name}} placeholders; the template engine
// renders a copy of the request before it is sent. Templates are shared
// read-only between workers.
type Request struct {
	// Name identifies the request in stats and reports
	Name string `json:"name" yaml:"name"`

	// Method is the HTTP method (GET when empty)
	Method string `json:"method" yaml:"method"`

	// URL is the absolute request URL
	URL string `json:"url" yaml:"url"`

	// Headers are sent with the request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is sent verbatim when not empty
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Extract lists the variables to read back from the response
	Extract []ExtractRule `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// ExtractRule maps a value in a response to a variable name.
type ExtractRule struct {
	// Name of the variable to set
	Name string `json:"name" yaml:"name"`

	// Source is "body", "header" or "status" (body when empty)
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Path is a JSON path for body rules, or the header name for header rules
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Regex optionally narrows the value; the first capture group wins
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty"`

	// Required turns a failed extraction into a reported error
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
}

// NewRequest creates a new request template.
func NewRequest(name, method, url string) *Request {
	return &Request{
		Name:    name,
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// WithBody sets the body of the request
func (r *Request) WithBody(body string) *Request {
	r.Body = body
	return r
}

// WithExtract appends an extraction rule
func (r *Request) WithExtract(rule ExtractRule) *Request {
	r.Extract = append(r.Extract, rule)
	return r
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	out := *r
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	if r.Extract != nil {
		out.Extract = append([]ExtractRule(nil), r.Extract...)
	}
	return &out
}

// Build constructs a retryable request bound to ctx.
func (r *Request) Build(ctx context.Context) (*retryablehttp.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body interface{}
	if r.Body != "" {
		body = []byte(r.Body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, err
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}
