package params

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a flat parameter map from a YAML or JSON file.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameter file: %w", err)
	}
	return Parse(data)
}

// Parse reads a flat YAML/JSON parameter map or a JSON parameter set envelope
// written by EncodeParameterSet.
func Parse(data []byte) (map[string]any, error) {
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse parameters: %w", err)
	}
	if kind, _ := values["kind"].(string); kind == EnvelopeKind {
		if _, ok := values["payload"]; ok {
			p, err := DecodeParameterSet(data)
			if err != nil {
				return nil, err
			}
			return ToMap(p), nil
		}
	}
	for key, val := range values {
		if _, nested := val.(map[string]any); nested {
			return nil, fmt.Errorf("parameter %q: nested values are not supported", key)
		}
	}
	return values, nil
}

// ApplyOverrides sets key=value pairs on values. Override values are kept as
// strings and coerced by FromMap.
func ApplyOverrides(values map[string]any, overrides []string) (map[string]any, error) {
	out := make(map[string]any, len(values)+len(overrides))
	for k, v := range values {
		out[k] = v
	}
	for _, raw := range overrides {
		key, val, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q: expected key=value", raw)
		}
		out[key] = val
	}
	return out, nil
}
