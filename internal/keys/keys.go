// Package keys derives storage keys. Every route into a driver goes through
// Storage so that separator rewriting and namespacing stay consistent.
package keys

import "strings"

// LockPrefix marks refresh and mutual-exclusion lock keys.
const LockPrefix = "lock:"

var separators = strings.NewReplacer("/", "=", `\`, "=")

// Normalize rewrites path separators to '='. It is idempotent, so keys that
// differ only by separator address the same entry.
func Normalize(key string) string {
	if !strings.ContainsAny(key, `/\`) {
		return key
	}
	return separators.Replace(key)
}

// Storage returns the backend key for key under namespace ns.
func Storage(ns, key string) string {
	key = Normalize(key)
	if ns == "" {
		return key
	}
	return Normalize(ns) + ":" + key
}

// Lock returns the lock key guarding an already-derived storage key.
func Lock(storageKey string) string {
	return LockPrefix + storageKey
}

// StripNamespace removes the "ns:" prefix from a storage key, if present.
func StripNamespace(ns, storageKey string) string {
	if ns == "" {
		return storageKey
	}
	return strings.TrimPrefix(storageKey, Normalize(ns)+":")
}
