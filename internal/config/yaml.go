package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Config files may be JSON or YAML, but only one decoder enforces the
// schema: YAML input is rewritten as JSON here, and everything then goes
// through the strict json.Decoder in Manager.Parse.

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// toJSON returns data ready for the strict JSON decoder. Non-YAML input
// passes through untouched.
func toJSON(path string, data []byte) ([]byte, error) {
	if !isYAMLPath(path) {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config %s: %w", filepath.Base(path), err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("config %s: not representable as JSON: %w", filepath.Base(path), err)
	}
	return out, nil
}

// stringifyKeys rewrites every mapping in the document with string keys,
// which json.Marshal requires. yaml/v3 already produces string keys for
// ordinary mappings; this catches the odd non-scalar or numeric key.
func stringifyKeys(doc any) any {
	switch v := doc.(type) {
	case map[string]any:
		for k, elem := range v {
			v[k] = stringifyKeys(elem)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[fmt.Sprint(k)] = stringifyKeys(elem)
		}
		return out
	case []any:
		for i, elem := range v {
			v[i] = stringifyKeys(elem)
		}
		return v
	default:
		return doc
	}
}
