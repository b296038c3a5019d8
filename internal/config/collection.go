package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/wesleyorama2/bombard/internal/http"
)

// collectionFile is the native collection format.
type collectionFile struct {
	Requests []requestEntry `json:"requests"`
}

type requestEntry struct {
	Name    string            `json:"name"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`

	// Body is a string sent verbatim, or any other JSON value sent encoded
	Body json.RawMessage `json:"body"`

	// Extract is a list of rules, or a name to JSON path shorthand map
	Extract json.RawMessage `json:"extract"`
}

// postmanCollection is the subset of a Postman v2 collection export that
// maps onto request templates.
type postmanCollection struct {
	Item []postmanItem `json:"item"`
}

type postmanItem struct {
	Name    string          `json:"name"`
	Item    []postmanItem   `json:"item"`
	Request *postmanRequest `json:"request"`
}

type postmanRequest struct {
	Method string `json:"method"`
	Header []struct {
		Key      string `json:"key"`
		Value    string `json:"value"`
		Disabled bool   `json:"disabled"`
	} `json:"header"`
	URL  json.RawMessage `json:"url"`
	Body *struct {
		Mode string `json:"mode"`
		Raw  string `json:"raw"`
	} `json:"body"`
}

// LoadRequests reads the request collection at path. Both the native format
// (a top-level "requests" list) and Postman v2 collection exports (nested
// "item" folders, flattened depth-first) are accepted. The returned
// templates are validated and keep file order.
func LoadRequests(path string) ([]*http.Request, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection file: %w", err)
	}
	return ParseRequests(data)
}

// ParseRequests decodes a collection from JSON.
func ParseRequests(data []byte) ([]*http.Request, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}

	var (
		requests []*http.Request
		err      error
	)
	if _, ok := probe["item"]; ok {
		requests, err = parsePostman(data)
	} else {
		requests, err = parseNative(data)
	}
	if err != nil {
		return nil, err
	}

	if err := ValidateRequests(requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func parseNative(data []byte) ([]*http.Request, error) {
	var file collectionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}

	requests := make([]*http.Request, 0, len(file.Requests))
	for i, entry := range file.Requests {
		req := http.NewRequest(entry.Name, normalizeMethod(entry.Method), entry.URL)
		for k, v := range entry.Headers {
			req.WithHeader(k, v)
		}

		body, err := decodeBody(entry.Body)
		if err != nil {
			return nil, fmt.Errorf("requests[%d].body: %w", i, err)
		}
		req.WithBody(body)

		rules, err := decodeExtract(entry.Extract)
		if err != nil {
			return nil, fmt.Errorf("requests[%d].extract: %w", i, err)
		}
		req.Extract = rules

		requests = append(requests, req)
	}
	return requests, nil
}

func decodeBody(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func decodeExtract(raw json.RawMessage) ([]http.ExtractRule, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '{' {
		var shorthand map[string]string
		if err := json.Unmarshal(raw, &shorthand); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(shorthand))
		for name := range shorthand {
			names = append(names, name)
		}
		sort.Strings(names)

		rules := make([]http.ExtractRule, 0, len(names))
		for _, name := range names {
			rules = append(rules, http.ExtractRule{Name: name, Source: http.SourceBody, Path: shorthand[name]})
		}
		return rules, nil
	}

	var rules []http.ExtractRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func parsePostman(data []byte) ([]*http.Request, error) {
	var coll postmanCollection
	if err := json.Unmarshal(data, &coll); err != nil {
		return nil, fmt.Errorf("failed to decode Postman collection: %w", err)
	}

	var requests []*http.Request
	var walk func(items []postmanItem) error
	walk = func(items []postmanItem) error {
		for _, item := range items {
			if item.Request == nil {
				if err := walk(item.Item); err != nil {
					return err
				}
				continue
			}

			url, err := postmanURL(item.Request.URL)
			if err != nil {
				return fmt.Errorf("item %q: %w", item.Name, err)
			}

			req := http.NewRequest(item.Name, normalizeMethod(item.Request.Method), url)
			for _, h := range item.Request.Header {
				if !h.Disabled {
					req.WithHeader(h.Key, h.Value)
				}
			}
			if b := item.Request.Body; b != nil && (b.Mode == "" || b.Mode == "raw") {
				req.WithBody(b.Raw)
			}
			requests = append(requests, req)
		}
		return nil
	}

	if err := walk(coll.Item); err != nil {
		return nil, err
	}
	return requests, nil
}

// normalizeMethod upper-cases a literal method and leaves templated ones
// alone so placeholder names keep their case.
func normalizeMethod(m string) string {
	if strings.Contains(m, "{{") {
		return m
	}
	return strings.ToUpper(m)
}

// postmanURL accepts both the string form and the {"raw": ...} object form.
func postmanURL(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var obj struct {
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	return obj.Raw, nil
}

// ValidateRequests checks a set of templates and fills in default names and
// methods. All problems are reported together.
func ValidateRequests(requests []*http.Request) error {
	errs := &ValidationErrors{}

	if len(requests) == 0 {
		errs.Add("requests", "at least one request is required")
	}

	validMethods := map[string]bool{
		"GET": true, "POST": true, "PUT": true, "DELETE": true,
		"PATCH": true, "HEAD": true, "OPTIONS": true,
	}

	for i, req := range requests {
		prefix := fmt.Sprintf("requests[%d]", i)

		if req.Name == "" {
			req.Name = fmt.Sprintf("request_%d", i+1)
		}
		if req.Method == "" {
			req.Method = "GET"
		}
		// Templated methods are checked after rendering.
		if !validMethods[req.Method] && !strings.Contains(req.Method, "{{") {
			errs.Add(prefix+".method", fmt.Sprintf("invalid method: %s", req.Method))
		}
		if req.URL == "" {
			errs.Add(prefix+".url", "url is required")
		}

		for j, rule := range req.Extract {
			rprefix := fmt.Sprintf("%s.extract[%d]", prefix, j)
			if rule.Name == "" {
				errs.Add(rprefix+".name", "variable name is required")
			}
			switch rule.Source {
			case "", http.SourceBody, http.SourceStatus:
			case http.SourceHeader:
				if rule.Path == "" {
					errs.Add(rprefix+".path", "header name is required")
				}
			default:
				errs.Add(rprefix+".source", fmt.Sprintf("unknown source %q (want body, header or status)", rule.Source))
			}
			if rule.Regex != "" {
				if _, err := regexp.Compile(rule.Regex); err != nil {
					errs.Add(rprefix+".regex", err.Error())
				}
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
