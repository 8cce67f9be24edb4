// Package driver defines the backend contract used by cachekit.
//
// Every backend implements Driver (scalar key/value with TTL and atomic
// set-if-absent). Richer backends additionally implement one or more of the
// capability interfaces below; the client discovers them by type assertion and
// reports a capability error when an operation is missing.
//
// Drivers are byte stores: values arrive already encoded and must be returned
// byte-for-byte. Keys arrive already normalized and namespaced.
package driver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnsupported is returned when an operation is not available on a driver.
	ErrUnsupported = errors.New("driver: operation not supported by this driver")

	// ErrRejected is returned when the store refused a write (admission/eviction pressure).
	ErrRejected = errors.New("driver: write rejected by store")

	// ErrNilClient is returned by constructors given a nil backend client.
	ErrNilClient = errors.New("driver: nil client")
)

// Driver is the scalar key/value contract every backend implements.
// Implementations must be safe for concurrent use.
type Driver interface {
	Kind() Kind
	Name() string
	Capabilities() Capabilities

	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set overwrites key. ttl <= 0 means no expiry. Tags are ignored by drivers
	// without the Tags capability.
	Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error

	// Add writes key only when it does not exist. It returns false with a nil
	// error when the key is already present.
	Add(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) (bool, error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteAll removes every key in the store.
	DeleteAll(ctx context.Context) error

	// DeleteExpired removes expired entries. Drivers relying on native expiry return nil.
	DeleteExpired(ctx context.Context) error

	Close(ctx context.Context) error
}

// CASer supports optimistic concurrency through opaque tokens.
type CASer interface {
	GetWithToken(ctx context.Context, key string) ([]byte, Token, bool, error)
	// CAS writes value only if the stored value still matches token.
	// A mismatch or a missing key returns false with a nil error.
	CAS(ctx context.Context, token Token, key string, value []byte, tags []string, ttl time.Duration) (bool, error)
}

// Tagger keeps a tag -> keys index.
type Tagger interface {
	Find(ctx context.Context, tag string) ([]string, error)
	DeleteTag(ctx context.Context, tag string) (bool, error)
}

// MultiGetter reads and writes many keys in one round trip.
type MultiGetter interface {
	// GetMulti returns hits only; missing keys are omitted.
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error
}

// Hasher operates on keyed hash structures. Each field value is independently encoded.
type Hasher interface {
	HGet(ctx context.Context, key, field string) ([]byte, bool, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HSetNX(ctx context.Context, key, field string, value []byte, ttl time.Duration) (bool, error)
	// HMGet returns present fields only.
	HMGet(ctx context.Context, key string, fields []string) (map[string][]byte, error)
	HMSet(ctx context.Context, key string, fields map[string][]byte, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
}

// Lister provides FIFO queue operations.
type Lister interface {
	RPush(ctx context.Context, key string, value []byte) (int64, error)
	LPush(ctx context.Context, key string, value []byte) (int64, error)
	LPop(ctx context.Context, key string) ([]byte, bool, error)
}

// SetStore provides unordered string sets.
type SetStore interface {
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SDiff(ctx context.Context, keys ...string) ([]string, error)
}

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSetStore provides scored sets.
type SortedSetStore interface {
	ZAdd(ctx context.Context, key string, members ...ScoredMember) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error)
}

// Transactor applies a buffered batch of operations as one unit. Rollback is
// backend-dependent: the memory driver checks the batch first and applies
// every op or none, Redis runs MULTI/EXEC and keeps the ops that succeeded
// when another one fails at run time. When the batch ran, Exec returns a
// Result per op, with Err set on the failed ones, alongside the error.
type Transactor interface {
	Exec(ctx context.Context, ops []Op) ([]Result, error)
}

// RawCommander is an escape hatch for backend-native commands.
type RawCommander interface {
	Do(ctx context.Context, args ...any) (any, error)
}
