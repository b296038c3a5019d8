package template

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/bombard/internal/http"
)

// ExtractionError reports a rule that could not produce a value.
type ExtractionError struct {
	Variable string
	Source   string
	Path     string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q from %s %q: %v", e.Variable, e.Source, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

var (
	errEmptyBody    = errors.New("response body is empty")
	errInvalidJSON  = errors.New("response body is not valid JSON")
	errPathNotFound = errors.New("path not found")
	errNoHeader     = errors.New("header not present")
	errNoMatch      = errors.New("regex did not match")
)

// compiled regexes, keyed by pattern; rules are shared by all workers
var regexCache sync.Map

// Extract applies rules to resp and writes each extracted value into vars,
// overwriting any existing variable of the same name.
//
// A rule that fails is skipped. Failures of required rules are returned
// joined together; failures of optional rules are not reported.
func Extract(resp *http.Response, rules []http.ExtractRule, vars Variables) error {
	var errs []error

	for _, rule := range rules {
		value, err := extractValue(resp, rule)
		if err != nil {
			if rule.Required {
				errs = append(errs, &ExtractionError{
					Variable: rule.Name,
					Source:   sourceOf(rule),
					Path:     rule.Path,
					Err:      err,
				})
			}
			continue
		}
		vars[rule.Name] = value
	}

	return errors.Join(errs...)
}

func sourceOf(rule http.ExtractRule) string {
	if rule.Source == "" {
		return http.SourceBody
	}
	return rule.Source
}

func extractValue(resp *http.Response, rule http.ExtractRule) (string, error) {
	if resp == nil {
		return "", errors.New("no response")
	}

	var value string
	switch sourceOf(rule) {
	case http.SourceStatus:
		value = strconv.Itoa(resp.StatusCode)

	case http.SourceHeader:
		value = resp.GetHeader(rule.Path)
		if value == "" {
			return "", errNoHeader
		}

	case http.SourceBody:
		if rule.Path == "" {
			value = string(resp.Body)
			break
		}
		v, err := JSONValue(resp.Body, rule.Path)
		if err != nil {
			return "", err
		}
		value = v

	default:
		return "", fmt.Errorf("unknown source %q", rule.Source)
	}

	if rule.Regex == "" {
		return value, nil
	}
	return applyRegex(rule.Regex, value)
}

// JSONValue reads the value at path from a JSON document.
//
// path may be a JSONPath expression ($.users[0].name) or a native gjson path
// (users.0.name). JSON null yields "null".
func JSONValue(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", errEmptyBody
	}
	if !gjson.ValidBytes(body) {
		return "", errInvalidJSON
	}

	result := gjson.GetBytes(body, toGjsonPath(path))
	if !result.Exists() {
		return "", errPathNotFound
	}
	if result.Type == gjson.Null {
		return "null", nil
	}

	return result.String(), nil
}

// toGjsonPath converts a JSONPath expression to gjson syntax.
// Paths that do not start with $ are taken as gjson paths already.
func toGjsonPath(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")

	// ['name'] and ["name"] become .name
	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)

	// [n] becomes .n
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)

	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}
	return path
}

func applyRegex(pattern, value string) (string, error) {
	var re *regexp.Regexp
	if cached, ok := regexCache.Load(pattern); ok {
		re = cached.(*regexp.Regexp)
	} else {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return "", fmt.Errorf("invalid regex: %w", err)
		}
		regexCache.Store(pattern, compiled)
		re = compiled
	}

	m := re.FindStringSubmatch(value)
	if m == nil {
		return "", errNoMatch
	}
	if len(m) > 1 {
		return m[1], nil
	}
	return m[0], nil
}
