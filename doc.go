// Package cachekit is a uniform cache client over several backends.
//
// A Client[V] normalizes keys, injects default lifetimes, encodes values with a
// pluggable Codec[V] and dispatches to a driver.Driver. Drivers advertise their
// capabilities; operations a driver lacks fail with a *CapabilityError instead
// of silently doing nothing. Tag operations are the exception and degrade to
// no-ops with a warning.
//
// Components:
//   - driver: backend contract plus redis, memcached, memory and ristretto variants.
//   - codec: JSON (default), msgpack, CBOR, protobuf, raw.
//   - soft expiry: refresh-ahead records where exactly one concurrent reader
//     of a stale entry is told to refresh.
//   - locks: set-if-absent mutual exclusion with owner-checked release.
//   - localcache: process-local memoization behind Client.Memo.
//
// Keys:
//
//	<ns>:<key>        - entries ('/' and '\' in key rewritten to '=')
//	lock:<ns>:<key>   - refresh and mutual-exclusion locks
//
// Soft-expiry pattern:
//
//	res, ok, _ := c.GetWithSoftExpiry(ctx, k)
//	if !ok || res.State == cachekit.StaleOwned {
//		v := load(k)
//		_ = c.SetWithSoftExpiry(ctx, k, v, time.Minute, 0)
//	}
package cachekit
