// Package env loads and merges variables from the process environment, .env files and inline overrides.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Vars is a string-to-string map of variables.
type Vars map[string]string

// FromOS builds a Vars map from the current process environment.
func FromOS() Vars {
	out := make(Vars)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}

// Merge merges several Vars maps into one, later maps overriding earlier keys.
func Merge(sets ...Vars) Vars {
	out := make(Vars)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// Lookup returns the trimmed value for key and whether it is non-empty.
func (v Vars) Lookup(key string) (string, bool) {
	if v == nil {
		return "", false
	}
	val := strings.TrimSpace(v[key])
	return val, val != ""
}

// LoadEnvFile loads a single .env-style file into Vars.
func LoadEnvFile(path string) (Vars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	parsed, err := godotenv.Parse(f)
	if err != nil {
		return nil, err
	}
	return Vars(parsed), nil
}

// LoadEnvFiles loads .env files relative to baseDir and merges them in order.
// Missing files are skipped so that a checked-in config can reference a developer-local .env.
func LoadEnvFiles(baseDir string, files []string) (Vars, error) {
	result := make(Vars)
	for _, name := range files {
		if strings.TrimSpace(name) == "" {
			continue
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}
		vars, err := LoadEnvFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		result = Merge(result, vars)
	}
	return result, nil
}

// ParseInlineVars parses a comma-separated k=v list (e.g. "A=1,B=2") into Vars.
func ParseInlineVars(s string) (Vars, error) {
	out := make(Vars)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid inline var %q, expected key=value", part)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty key in inline var %q", part)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
