// Package template renders request templates against a worker's variables
// and reads new variables back out of responses.
//
// Placeholders use the {{name}} syntax; whitespace inside the braces is
// ignored. A placeholder whose name is not in the variable map is left in
// the output unchanged, so rendering never fails.
package template

import (
	"regexp"
	"strings"

	"github.com/wesleyorama2/bombard/internal/http"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Variables maps placeholder names to their values.
//
// A worker owns its Variables exclusively; the map is never shared, so it
// needs no locking.
type Variables map[string]string

// Clone returns an independent copy of v.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for key, value := range v {
		out[key] = value
	}
	return out
}

// Render substitutes every resolvable placeholder in input.
//
// Substitution is a single pass: values are inserted literally and are not
// scanned again.
func Render(input string, vars Variables) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	matches := placeholderRe.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	var sb strings.Builder
	sb.Grow(len(input))

	last := 0
	for _, m := range matches {
		name := input[m[2]:m[3]]
		value, ok := vars[name]
		if !ok {
			continue
		}
		sb.WriteString(input[last:m[0]])
		sb.WriteString(value)
		last = m[1]
	}
	sb.WriteString(input[last:])

	return sb.String()
}

// RenderRequest returns a rendered copy of req. The template is not modified.
func RenderRequest(req *http.Request, vars Variables) *http.Request {
	out := req.Clone()

	out.Name = Render(req.Name, vars)
	out.Method = Render(req.Method, vars)
	out.URL = Render(req.URL, vars)
	out.Body = Render(req.Body, vars)

	if len(req.Headers) > 0 {
		out.Headers = make(map[string]string, len(req.Headers))
		for key, value := range req.Headers {
			out.Headers[Render(key, vars)] = Render(value, vars)
		}
	}

	return out
}
