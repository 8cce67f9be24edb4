package cachekit

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/cachekit/driver"
)

var (
	// ErrLockHeld is returned by Acquire when another owner holds the lock.
	ErrLockHeld = errors.New("cachekit: lock held by another owner")

	// ErrNotOwner is returned by LockHandle.Release when the lock expired or
	// was taken over before release.
	ErrNotOwner = errors.New("cachekit: lock not owned")

	// ErrInvalidTTL is returned for soft-expiry writes with a non-positive ttl.
	ErrInvalidTTL = errors.New("cachekit: ttl must be positive")

	// ErrTxDone is returned when a transaction is used after Exec or Discard.
	ErrTxDone = errors.New("cachekit: transaction already finished")

	// ErrScopeClosed is returned when acquiring into a closed Scope.
	ErrScopeClosed = errors.New("cachekit: lock scope closed")
)

// ConfigError reports a configuration group that could not be turned into a client.
type ConfigError struct {
	Group string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cachekit: config group %q: %v", e.Group, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CapabilityError reports an operation the active driver does not provide.
// It matches driver.ErrUnsupported with errors.Is.
type CapabilityError struct {
	Driver string
	Op     string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("cachekit: %s not supported by %s driver", e.Op, e.Driver)
}

func (e *CapabilityError) Unwrap() error { return driver.ErrUnsupported }

// ConnectionError reports a backend that could not be reached, including an
// open circuit breaker.
type ConnectionError struct {
	Driver string
	Addr   string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("cachekit: %s: %v", e.Driver, e.Err)
	}
	return fmt.Sprintf("cachekit: %s at %s: %v", e.Driver, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// EncodingError reports a value that could not be encoded or decoded.
type EncodingError struct {
	Key string
	Op  string // "encode" or "decode"
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cachekit: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
