package config

import (
	"fmt"
	"strings"
)

// KeyPath addresses a value in the raw YAML tree, e.g. "dialer.live.baseUrl".
type KeyPath []string

// ParseKeyPath splits a dotted key. Empty segments and prototype-style keys
// are rejected.
func ParseKeyPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	segs := strings.Split(raw, ".")
	for i, s := range segs {
		switch s {
		case "":
			return nil, &ConfigError{Message: fmt.Sprintf("config key %q: empty segment at %d", raw, i)}
		case "__proto__", "prototype", "constructor":
			return nil, &ConfigError{Message: fmt.Sprintf("config key %q: %q is not allowed", raw, s)}
		}
	}
	return KeyPath(segs), nil
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// walk descends to the map holding the last segment. With create set,
// missing or non-map intermediates are replaced by empty maps.
func (k KeyPath) walk(root map[string]any, create bool) (map[string]any, bool) {
	cur := root
	for _, seg := range k[:len(k)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	return cur, true
}

// Get returns the value at k.
func (k KeyPath) Get(root map[string]any) (any, bool) {
	parent, ok := k.walk(root, false)
	if !ok {
		return nil, false
	}
	v, ok := parent[k[len(k)-1]]
	return v, ok
}

// Set stores v at k, creating parents as needed.
func (k KeyPath) Set(root map[string]any, v any) {
	parent, _ := k.walk(root, true)
	parent[k[len(k)-1]] = v
}

// Unset deletes the value at k and reports whether it existed.
func (k KeyPath) Unset(root map[string]any) bool {
	parent, ok := k.walk(root, false)
	if !ok {
		return false
	}
	if _, ok := parent[k[len(k)-1]]; !ok {
		return false
	}
	delete(parent, k[len(k)-1])
	return true
}
