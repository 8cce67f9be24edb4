package cachekit

import "time"

const (
	defaultLifetime  = 30 * time.Minute
	defaultLockTTL   = 30 * time.Second
	defaultGrace     = 10 * time.Second
	defaultGCTimeout = 5 * time.Second
)

// NoExpiry stores an entry without a TTL when passed to WithTTL or used as
// Options.Lifetime.
const NoExpiry time.Duration = -1

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
