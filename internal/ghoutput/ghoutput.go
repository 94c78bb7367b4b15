// Package ghoutput publishes deployed addresses as GitHub Actions step outputs.
package ghoutput

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var invalidKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Write appends outputs to the GITHUB_OUTPUT file when running inside Actions.
func Write(values map[string]string) error {
	return WriteTo(strings.TrimSpace(os.Getenv("GITHUB_OUTPUT")), values)
}

// WriteTo appends outputs to path. An empty path is a no-op.
func WriteTo(path string, values map[string]string) error {
	if path == "" || len(values) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open github output: %w", err)
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, sanitize(values[key])); err != nil {
			return fmt.Errorf("write github output: %w", err)
		}
	}
	return nil
}

// AddressOutputs maps ledger records to "<step>_address" output keys.
func AddressOutputs(records map[string]string) map[string]string {
	out := make(map[string]string, len(records))
	for name, addr := range records {
		key := invalidKeyChars.ReplaceAllString(strings.TrimSpace(name), "_")
		if key == "" || strings.TrimSpace(addr) == "" {
			continue
		}
		out[key+"_address"] = addr
	}
	return out
}

func sanitize(value string) string {
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\r", "%0D")
	value = strings.ReplaceAll(value, "\n", "%0A")
	return value
}
