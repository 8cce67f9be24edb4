package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// ErrUndefinedGroup is returned when neither cache.<name> nor, for the
// "default" name, cache.default exists.
var ErrUndefinedGroup = errors.New("config: undefined cache group")

const (
	prefix       = "cache"
	defaultGroup = "default"
)

// Group is one named cache configuration.
type Group struct {
	Name string `mapstructure:"-"`

	Driver    string   `mapstructure:"driver"`  // redis, memcached, memory, ristretto
	Host      string   `mapstructure:"host"`
	Port      int      `mapstructure:"port"`
	Servers   []string `mapstructure:"servers"` // memcached; "host:port" entries or comma list
	Auth      string   `mapstructure:"auth"`
	DB        int      `mapstructure:"db"`
	Serialize string   `mapstructure:"serialize"` // json, json_object, msgpack, cbor, raw, nil
	Namespace string   `mapstructure:"namespace"`
	Requests  int      `mapstructure:"requests"` // 1-in-N expired-entry sweep
	MaxCost   int64    `mapstructure:"max_cost"` // ristretto cost budget

	// durations accept integer seconds or Go duration strings
	Lifetime        time.Duration `mapstructure:"lifetime"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	Grace           time.Duration `mapstructure:"grace"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

var fields = []string{
	"driver", "host", "port", "servers", "auth", "db", "serialize", "namespace",
	"requests", "max_cost", "lifetime", "lock_ttl", "grace", "timeout", "cleanup_interval",
}

// Addr joins Host and Port, filling in defaults.
func (g Group) Addr(defaultPort int) string {
	host := g.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := g.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// LoadGroup resolves cache.<name>, field by field over cache.default.
func LoadGroup(p Provider, name string) (Group, error) {
	if name == "" {
		name = defaultGroup
	}
	if _, ok := p.Lookup(prefix + "." + name); !ok {
		return Group{}, fmt.Errorf("%w: %q", ErrUndefinedGroup, name)
	}

	raw := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := p.Lookup(prefix + "." + name + "." + f); ok {
			raw[f] = v
			continue
		}
		if name == defaultGroup {
			continue
		}
		if v, ok := p.Lookup(prefix + "." + defaultGroup + "." + f); ok {
			raw[f] = v
		}
	}

	g := Group{Name: name}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsHook,
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &g,
	})
	if err != nil {
		return Group{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Group{}, fmt.Errorf("config: group %q: %w", name, err)
	}
	return g, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsHook reads bare numbers as seconds and strings as Go durations.
func secondsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return time.ParseDuration(v)
	default:
		return data, nil
	}
}
