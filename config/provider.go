// Package config resolves named cache groups from a configuration source.
//
// Groups live under "cache.<name>". Fields missing from a group fall back to
// "cache.default":
//
//	cache:
//	  default:
//	    driver: redis
//	    host: 127.0.0.1
//	    lifetime: 1800   # seconds, or "30m"
//	  sessions:
//	    db: 2
//	    namespace: sess
package config

import "strings"

// Provider looks up configuration values by dotted key.
type Provider interface {
	Lookup(key string) (any, bool)
}

// Map is an in-memory Provider over nested maps.
type Map map[string]any

func (m Map) Lookup(key string) (any, bool) {
	var cur any = map[string]any(m)
	for _, part := range strings.Split(key, ".") {
		next, ok := child(cur, part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func child(v any, name string) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		c, ok := m[name]
		return c, ok
	case Map:
		c, ok := m[name]
		return c, ok
	case map[any]any:
		c, ok := m[name]
		return c, ok
	default:
		return nil, false
	}
}
