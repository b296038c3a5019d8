package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var configSchema string

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(configSchema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiler.Compile("config.schema.json")
})

// LoadConfig loads an execution configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The document is checked against the embedded JSON Schema, defaults are
// applied, and relative environment/collection paths are resolved against
// the directory of the config file. The result is not yet validated; call
// Validate after applying any overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	cfg.EnvironmentFile = resolve(dir, cfg.EnvironmentFile)
	cfg.CollectionFile = resolve(dir, cfg.CollectionFile)

	return cfg, nil
}

// ParseConfig parses configuration data. The format is taken from the
// extension of path, defaulting to YAML.
func ParseConfig(data []byte, path string) (*Config, error) {
	doc, err := decodeDocument(data, path)
	if err != nil {
		return nil, err
	}

	// Round-trip through JSON so the schema sees JSON types only.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}
	var instance interface{}
	if err := json.Unmarshal(normalized, &instance); err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}

	if err := validateSchema(instance); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// validateSchema checks a decoded document against the embedded schema and
// reports every leaf violation as a ValidationError.
func validateSchema(doc interface{}) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	errs := &ValidationErrors{}
	collectSchemaErrors(verr, errs)
	if !errs.HasErrors() {
		errs.Add("", verr.Message)
	}
	return errs
}

func collectSchemaErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		errs.Add(pointerToField(err.InstanceLocation), err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}

// pointerToField turns a JSON pointer ("/variables/a") into "variables.a".
func pointerToField(p string) string {
	return strings.ReplaceAll(strings.TrimPrefix(p, "/"), "/", ".")
}

// decodeDocument parses JSON or YAML into plain maps, slices and scalars
// that encoding/json can marshal.
func decodeDocument(data []byte, path string) (interface{}, error) {
	var doc interface{}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON %s: %w", filepath.Base(path), err)
		}
		return doc, nil
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML %s: %w", filepath.Base(path), err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s (unknown format %s): %w", filepath.Base(path), ext, err)
		}
	}

	return normalize(doc)
}

// normalize rewrites YAML's map[interface{}]interface{} into string-keyed
// maps, recursively.
func normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, child := range t {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case []interface{}:
		for i, child := range t {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	}
	return v, nil
}

// readDocument loads a JSON or YAML file and re-encodes it as JSON.
func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := decodeDocument(data, path)
	if err != nil {
		return nil, err
	}

	return json.Marshal(doc)
}

// LoadVariables reads an environment file: either a flat name/value map or
// a Postman environment export. Disabled Postman values are skipped.
func LoadVariables(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	data, err := readDocument(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment file: %w", err)
	}

	var postman postmanEnvironment
	if err := json.Unmarshal(data, &postman); err == nil && postman.Values != nil {
		vars := make(map[string]string, len(postman.Values))
		for _, v := range postman.Values {
			if v.Enabled != nil && !*v.Enabled {
				continue
			}
			s, err := scalarString(v.Value)
			if err != nil {
				return nil, fmt.Errorf("environment value %q: %w", v.Key, err)
			}
			vars[v.Key] = s
		}
		return vars, nil
	}

	var flat StringMap
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("failed to decode environment file: %w", err)
	}
	if flat == nil {
		flat = StringMap{}
	}
	return flat, nil
}

type postmanEnvironment struct {
	Values []struct {
		Key     string      `json:"key"`
		Value   interface{} `json:"value"`
		Enabled *bool       `json:"enabled"`
	} `json:"values"`
}

// MergeVariables merges multiple variable maps in order.
// Later maps override earlier ones.
func MergeVariables(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func joinDir(sibling, name string) string {
	return filepath.Join(filepath.Dir(sibling), name)
}
