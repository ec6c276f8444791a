// Package manifest reads the application version from a project manifest such
// as package.json.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	yaml "gopkg.in/yaml.v3"
)

// VersionKey is the manifest key holding the semantic version string.
const VersionKey = "version"

// Manifest holds the attributes consumed from a manifest document.
type Manifest struct {
	Path    string
	Version string
}

// Error reports a manifest that could not be read, parsed, or lacks a usable
// version. It wraps the underlying cause when there is one.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrMissingVersion is wrapped when the version key is absent or blank.
	ErrMissingVersion = errors.New("missing version")
	// ErrInvalidVersion is wrapped when the version is not a single-line string.
	ErrInvalidVersion = errors.New("invalid version")
)

// Load reads the manifest at path. The format is chosen from the extension:
// .json, .jsonc, .yaml/.yml; anything else is tried as JSON and then YAML.
func Load(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, &Error{Path: path, Err: err}
	}
	doc, err := decode(path, b)
	if err != nil {
		return Manifest{}, &Error{Path: path, Err: err}
	}
	v, err := versionFrom(doc)
	if err != nil {
		return Manifest{}, &Error{Path: path, Err: err}
	}
	return Manifest{Path: path, Version: v}, nil
}

func decode(path string, b []byte) (map[string]any, error) {
	var doc map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(b), &doc); err != nil {
			return nil, fmt.Errorf("parse jsonc: %w", err)
		}
	case ".yaml", ".yml":
		d, err := decodeYAML(b)
		if err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		doc = d
	default:
		if err := json.Unmarshal(b, &doc); err != nil {
			d, yerr := decodeYAML(b)
			if yerr != nil {
				return nil, fmt.Errorf("parse manifest: %v (json) / %v (yaml)", err, yerr)
			}
			doc = d
		}
	}
	if doc == nil {
		return nil, errors.New("empty document")
	}
	return doc, nil
}

// decodeYAML decodes a YAML mapping. Top-level scalars keep their source text,
// so an unquoted "version: 2.10" reads as the string "2.10" rather than a float.
func decodeYAML(b []byte) (map[string]any, error) {
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(b, &nodes); err != nil {
		return nil, err
	}
	if nodes == nil {
		return nil, nil
	}
	doc := make(map[string]any, len(nodes))
	for k, n := range nodes {
		switch {
		case n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null":
			doc[k] = nil
		case n.Kind == yaml.ScalarNode:
			doc[k] = n.Value
		default:
			var v any
			if err := n.Decode(&v); err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			doc[k] = v
		}
	}
	return doc, nil
}

func versionFrom(doc map[string]any) (string, error) {
	raw, ok := doc[VersionKey]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: key %q not found", ErrMissingVersion, VersionKey)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string, got %T", ErrInvalidVersion, VersionKey, raw)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: key %q is blank", ErrMissingVersion, VersionKey)
	}
	// The value is written between double quotes on a single descriptor line.
	if strings.ContainsAny(s, "\"\r\n") {
		return "", fmt.Errorf("%w: %q contains a quote or line break", ErrInvalidVersion, s)
	}
	return s, nil
}
