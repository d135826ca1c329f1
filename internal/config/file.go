// Package config reads the optional imgdash TOML configuration file.
//
// Values are flattened into dotted, normalized keys ("max_watches" and
// "Max-Watches" both become "max-watches") and rendered back to the string
// form accepted by the matching command-line flag, so file, environment and
// flag layers share a single parser.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrUnsupportedValue = errors.New("unsupported config value")

// Values is a decoded configuration file.
type Values struct {
	Path string
	flat map[string]any
}

// LoadFile decodes the TOML file at path. A missing file is an error: callers
// only load files the user named explicitly.
func LoadFile(path string) (Values, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Values{}, errors.New("config path is required")
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return Values{}, fmt.Errorf("read config %s: %w", path, err)
	}
	values, err := Decode(payload)
	if err != nil {
		return Values{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	values.Path = path
	return values, nil
}

func Decode(payload []byte) (Values, error) {
	raw := map[string]any{}
	if _, err := toml.Decode(string(payload), &raw); err != nil {
		return Values{}, err
	}
	flat := make(map[string]any)
	flattenMap("", raw, flat)

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	normalized := make(map[string]any, len(flat))
	for _, key := range keys {
		name := NormalizeKey(key)
		if name == "" {
			continue
		}
		if _, exists := normalized[name]; exists {
			continue
		}
		normalized[name] = flat[key]
	}
	return Values{flat: normalized}, nil
}

// Keys returns the normalized keys present in the file, sorted.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v.flat))
	for key := range v.flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Unknown returns the keys not present in known.
func (v Values) Unknown(known []string) []string {
	allowed := make(map[string]struct{}, len(known))
	for _, key := range known {
		allowed[NormalizeKey(key)] = struct{}{}
	}
	var unknown []string
	for _, key := range v.Keys() {
		if _, ok := allowed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

// Lookup returns the flag-syntax rendering of key. Arrays become comma lists.
func (v Values) Lookup(key string) (string, bool, error) {
	value, ok := v.flat[NormalizeKey(key)]
	if !ok {
		return "", false, nil
	}
	rendered, err := renderValue(value)
	if err != nil {
		return "", true, fmt.Errorf("%s: %w", key, err)
	}
	return rendered, true, nil
}

func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	parts := strings.Split(key, ".")
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(part)), "_", "-")
	}
	return strings.Join(parts, ".")
}

func renderValue(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case bool:
		return strconv.FormatBool(typed), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			rendered, err := renderValue(item)
			if err != nil {
				return "", err
			}
			if strings.Contains(rendered, ",") {
				return "", fmt.Errorf("%w: list item %q contains a comma", ErrUnsupportedValue, rendered)
			}
			parts = append(parts, rendered)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}

func flattenMap(prefix string, raw map[string]any, out map[string]any) {
	for key, value := range raw {
		joined := key
		if prefix != "" {
			joined = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flattenMap(joined, nested, out)
			continue
		}
		out[joined] = value
	}
}
