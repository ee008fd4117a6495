package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// loadRecipeFile reads a raw recipe from path. The format follows the
// extension: .yaml and .yml are YAML, .json and .jsonc are JSON with
// comments and trailing commas allowed. "-" reads YAML from in, which also
// accepts plain JSON.
//
// The result is passed through JSON once so it carries the same value types
// a browser client would send.
func loadRecipeFile(path string, in io.Reader) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read recipe file: %w", err)
	}

	var decoded any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &decoded); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported recipe file type %q", ext)
	}

	if _, ok := decoded.(map[string]any); !ok {
		return nil, fmt.Errorf("%s does not contain a recipe object", path)
	}

	canonical, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("encode recipe: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(canonical, &raw); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	return raw, nil
}

// readText reads the import text from path, or from in when path is "-".
func readText(path string, in io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read import text: %w", err)
	}
	return string(data), nil
}
