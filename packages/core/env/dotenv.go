package env

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// DefaultEnvFile is the frontend env file the backend URL is read from
	DefaultEnvFile = "/app/frontend/.env"
	// DefaultURLKey is the key holding the backend's externally reachable URL
	DefaultURLKey = "REACT_APP_BACKEND_URL"
)

// ErrKeyNotFound is returned when the env file has no line for the requested key.
var ErrKeyNotFound = errors.New("key not found")

// LookupKey scans an env file for the first line starting with KEY= and
// returns the rest of that line with surrounding whitespace trimmed.
// Quotes are kept as written.
func LookupKey(path, key string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open env file: %w", err)
	}
	defer file.Close()

	prefix := key + "="
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):]), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading env file: %w", err)
	}

	return "", fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, path)
}

// LoadDotEnv parses a .env file and returns key-value pairs.
// Supports: KEY=value, KEY="quoted value", KEY='single quoted', # comments
// Later lines win over earlier ones, unlike LookupKey.
func LoadDotEnv(path string) (map[string]string, error) {
	result := make(map[string]string)
	err := scanDotEnv(path, func(key, value string) {
		result[key] = value
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Keys returns the keys defined in an env file in the order they first
// appear.
func Keys(path string) ([]string, error) {
	var keys []string
	seen := make(map[string]bool)
	err := scanDotEnv(path, func(key, _ string) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func scanDotEnv(path string, fn func(key, value string)) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		fn(key, value)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading env file: %w", err)
	}
	return nil
}

// BackendURL resolves the API base from an env file: the value of key
// followed by the API prefix.
func BackendURL(path, key, apiPrefix string) (string, error) {
	base, err := LookupKey(path, key)
	if err != nil {
		return "", err
	}
	if base == "" {
		return "", fmt.Errorf("%w: %s is empty in %s", ErrKeyNotFound, key, path)
	}
	return base + apiPrefix, nil
}
