package cachekit

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The client calls them on hot paths.
type Hooks interface {
	// Tags were passed to a driver without a tag index and dropped.
	TagsUnsupported(driver, op string)

	// An operation was called that the driver does not provide.
	OperationUnsupported(driver, op string)

	// The driver refused a write (admission/eviction pressure).
	WriteRejected(storageKey string)

	// An entry was deleted on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Acquire found the lock held by another owner.
	LockContended(lockKey string)

	// A soft-expiry read found a logically expired entry. owned reports
	// whether this caller won the refresh lock.
	SoftExpiryStale(storageKey string, owned bool)

	// The probabilistic expired-entry sweep finished. err is nil on success.
	GarbageCollected(driver string, err error)

	// The circuit breaker moved between states.
	BreakerStateChange(name, from, to string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) TagsUnsupported(string, string)            {}
func (NopHooks) OperationUnsupported(string, string)       {}
func (NopHooks) WriteRejected(string)                      {}
func (NopHooks) SelfHeal(string, string)                   {}
func (NopHooks) LockContended(string)                      {}
func (NopHooks) SoftExpiryStale(string, bool)              {}
func (NopHooks) GarbageCollected(string, error)            {}
func (NopHooks) BreakerStateChange(string, string, string) {}
