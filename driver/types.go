package driver

import (
	"strings"
	"time"
)

// Kind tags the backend family of a driver.
type Kind uint8

const (
	KindLocal Kind = iota + 1
	KindRedis
	KindMemcached
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRedis:
		return "redis"
	case KindMemcached:
		return "memcached"
	default:
		return "unknown"
	}
}

// Capabilities is a static set of operation groups a driver supports.
type Capabilities uint16

const (
	CapKV Capabilities = 1 << iota
	CapCAS
	CapTags
	CapMulti
	CapHash
	CapList
	CapSet
	CapSortedSet
	CapTx
	CapRaw
)

var capNames = []struct {
	c    Capabilities
	name string
}{
	{CapKV, "kv"},
	{CapCAS, "cas"},
	{CapTags, "tags"},
	{CapMulti, "multi"},
	{CapHash, "hash"},
	{CapList, "list"},
	{CapSet, "set"},
	{CapSortedSet, "zset"},
	{CapTx, "tx"},
	{CapRaw, "raw"},
}

// Has reports whether every capability in want is present.
func (c Capabilities) Has(want Capabilities) bool { return c&want == want }

func (c Capabilities) String() string {
	var parts []string
	for _, n := range capNames {
		if c.Has(n.c) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Token is an opaque CAS token produced by GetWithToken. Only the driver that
// issued a token can interpret it.
type Token struct {
	v any
}

// NewToken wraps a driver-specific token value.
func NewToken(v any) Token { return Token{v: v} }

// Value returns the driver-specific token value.
func (t Token) Value() any { return t.v }

// IsZero reports whether the token carries no value.
func (t Token) IsZero() bool { return t.v == nil }

// OpKind identifies a buffered transaction operation.
type OpKind uint8

const (
	OpSet OpKind = iota + 1
	OpAdd
	OpDelete
	OpHSet
	OpHIncrBy
	OpRPush
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpHSet:
		return "hset"
	case OpHIncrBy:
		return "hincrby"
	case OpRPush:
		return "rpush"
	default:
		return "unknown"
	}
}

// Op is one buffered transaction operation.
type Op struct {
	Kind  OpKind
	Key   string
	Field string
	Value []byte
	Delta int64
	TTL   time.Duration
}

// Result is the outcome of one Op. OK is set for set/add/delete style ops,
// Int for counters and list lengths. Err is set when the backend ran the batch
// but this op failed.
type Result struct {
	OK  bool
	Int int64
	Err error
}
