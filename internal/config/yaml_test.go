package config

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestToJSONPassesJSONThrough(t *testing.T) {
	t.Parallel()
	in := []byte(`{"logging":{"level":"info"}}`)
	out, err := toJSON("chored.json", in)
	if err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("JSON input should pass through unchanged, got %s", out)
	}
}

func TestToJSONConvertsYAML(t *testing.T) {
	t.Parallel()
	in := []byte(`
scheduler:
  pause: 100ms
  halt_on_error: true
jobs:
  prune:
    keep: [".efi", ".pdb"]
`)
	out, err := toJSON("chored.yaml", in)
	if err != nil {
		t.Fatalf("toJSON: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	sched, ok := doc["scheduler"].(map[string]any)
	if !ok || sched["pause"] != "100ms" || sched["halt_on_error"] != true {
		t.Fatalf("scheduler section = %v", doc["scheduler"])
	}
	keep, ok := doc["jobs"].(map[string]any)["prune"].(map[string]any)["keep"].([]any)
	if !ok || len(keep) != 2 || keep[0] != ".efi" {
		t.Fatalf("keep list = %v", keep)
	}
}

func TestToJSONRejectsMalformedYAML(t *testing.T) {
	t.Parallel()
	if _, err := toJSON("chored.yml", []byte("jobs: [unclosed")); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestStringifyKeys(t *testing.T) {
	t.Parallel()
	in := map[any]any{
		1:     "one",
		"sub": []any{map[any]any{true: "yes"}},
	}
	got, ok := stringifyKeys(in).(map[string]any)
	if !ok {
		t.Fatalf("stringifyKeys returned %T", stringifyKeys(in))
	}
	if got["1"] != "one" {
		t.Fatalf("numeric key = %v", got)
	}
	inner := got["sub"].([]any)[0].(map[string]any)
	if inner["true"] != "yes" {
		t.Fatalf("nested key = %v", inner)
	}
}
