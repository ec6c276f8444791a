package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_Formats(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"package.json", "package.json", `{"name": "qualitool", "version": "2.3.1", "private": true}`, "2.3.1"},
		{"jsonc with comments", "app.jsonc", "{\n  // release train\n  \"version\": \"1.4.0\",\n}\n", "1.4.0"},
		{"yaml", "pubspec.yaml", "name: qualitool\nversion: 0.9.2-beta.1\n", "0.9.2-beta.1"},
		{"unknown extension falls back to yaml", "VERSION.manifest", "version: 3.0.0\n", "3.0.0"},
		{"surrounding whitespace kept", "package.json", `{"version": " 2.3.1 "}`, " 2.3.1 "},
		{"unquoted yaml two-part version", "pubspec.yml", "version: 2.3\n", "2.3"},
		{"unquoted yaml keeps trailing zero", "pubspec.yaml", "version: 2.10\n", "2.10"},
		{"unquoted yaml integer", "pubspec.yaml", "version: 7\n", "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Load(writeFile(t, tc.file, tc.content))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if m.Version != tc.want {
				t.Fatalf("Version=%q, want %q", m.Version, tc.want)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		target  error
	}{
		{"malformed json", "package.json", `{"version": `, nil},
		{"missing key", "package.json", `{"name": "qualitool"}`, ErrMissingVersion},
		{"blank version", "package.json", `{"version": "  "}`, ErrMissingVersion},
		{"null version", "package.json", `{"version": null}`, ErrMissingVersion},
		{"numeric version", "package.json", `{"version": 2}`, ErrInvalidVersion},
		{"quote in version", "package.json", `{"version": "1.0\"x"}`, ErrInvalidVersion},
		{"array document", "package.json", `["1.0.0"]`, nil},
		{"yaml null version", "pubspec.yaml", "version: ~\n", ErrMissingVersion},
		{"yaml list version", "pubspec.yaml", "version: [1, 2]\n", ErrInvalidVersion},
		{"yaml blank version", "pubspec.yaml", "version: \"  \"\n", ErrMissingVersion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.file, tc.content))
			var merr *Error
			if !errors.As(err, &merr) {
				t.Fatalf("expected *manifest.Error, got %T %v", err, err)
			}
			if tc.target != nil && !errors.Is(err, tc.target) {
				t.Fatalf("expected %v in chain, got %v", tc.target, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var merr *Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected *manifest.Error, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped ErrNotExist, got %v", err)
	}
}
