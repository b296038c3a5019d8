package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Seconds is a duration written as a number of seconds or a Go duration
// string ("90", 90, "1m30s").
type Seconds time.Duration

// Millis is a duration written as a number of milliseconds or a Go duration
// string ("250", 250, "250ms").
type Millis time.Duration

// Duration returns the value as a time.Duration.
func (d Seconds) Duration() time.Duration { return time.Duration(d) }

// Duration returns the value as a time.Duration.
func (d Millis) Duration() time.Duration { return time.Duration(d) }

func (d Seconds) String() string { return time.Duration(d).String() }
func (d Millis) String() string  { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Seconds) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// MarshalJSON implements json.Marshaler.
func (d Millis) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Seconds) UnmarshalJSON(b []byte) error {
	v, err := decodeJSONDuration(b, time.Second)
	if err != nil {
		return err
	}
	*d = Seconds(v)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Millis) UnmarshalJSON(b []byte) error {
	v, err := decodeJSONDuration(b, time.Millisecond)
	if err != nil {
		return err
	}
	*d = Millis(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Seconds) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Millis) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Seconds) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeYAMLDuration(value, time.Second)
	if err != nil {
		return err
	}
	*d = Seconds(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Millis) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeYAMLDuration(value, time.Millisecond)
	if err != nil {
		return err
	}
	*d = Millis(v)
	return nil
}

func decodeJSONDuration(b []byte, unit time.Duration) (time.Duration, error) {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return 0, err
	}
	return durationValue(raw, unit)
}

func decodeYAMLDuration(node *yaml.Node, unit time.Duration) (time.Duration, error) {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return 0, err
	}
	return durationValue(raw, unit)
}

// durationValue converts a decoded scalar: numbers count unit, strings are
// parsed by ParseDurationUnit.
func durationValue(raw interface{}, unit time.Duration) (time.Duration, error) {
	var f float64
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case string:
		return ParseDurationUnit(v, unit)
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	default:
		return 0, fmt.Errorf("invalid duration value %v", raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("duration cannot be negative: %v", raw)
	}
	return time.Duration(f * float64(unit)), nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
//
// Returns the parsed duration or an error.
func ParseDurationString(s string) (time.Duration, error) {
	return ParseDurationUnit(s, time.Second)
}

// ParseDurationUnit is ParseDurationString with a configurable unit for bare
// numbers.
func ParseDurationUnit(s string, unit time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("duration cannot be negative: %s", s)
		}
		return time.Duration(n * float64(unit)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration cannot be negative: %s", s)
	}
	return d, nil
}

// StringMap is a flat name to value map whose scalar values (numbers,
// booleans) are kept as their textual form.
type StringMap map[string]string

// UnmarshalJSON implements json.Unmarshaler.
func (m *StringMap) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out, err := stringify(raw)
	if err != nil {
		return err
	}
	*m = out
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *StringMap) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	out, err := stringify(raw)
	if err != nil {
		return err
	}
	*m = out
	return nil
}

func stringify(raw map[string]interface{}) (StringMap, error) {
	out := make(StringMap, len(raw))
	for k, v := range raw {
		s, err := scalarString(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func scalarString(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	}
	return "", fmt.Errorf("value must be a scalar, got %T", v)
}
