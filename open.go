package cachekit

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cachekit/config"
	"github.com/unkn0wn-root/cachekit/driver"
	"github.com/unkn0wn-root/cachekit/driver/memcached"
	"github.com/unkn0wn-root/cachekit/driver/memory"
	"github.com/unkn0wn-root/cachekit/driver/redis"
	"github.com/unkn0wn-root/cachekit/driver/ristretto"
)

const (
	defaultRedisPort     = 6379
	defaultMemcachedPort = 11211
)

// OpenDriver builds the driver named by g.Driver and checks connectivity for
// remote backends. Unreachable backends yield a *ConnectionError.
func OpenDriver(ctx context.Context, g config.Group) (driver.Driver, error) {
	switch strings.ToLower(g.Driver) {
	case "redis":
		addr := g.Addr(defaultRedisPort)
		rdb := goredis.NewClient(&goredis.Options{
			Addr:         addr,
			Password:     g.Auth,
			DB:           g.DB,
			DialTimeout:  g.Timeout,
			ReadTimeout:  g.Timeout,
			WriteTimeout: g.Timeout,
		})
		d, err := redis.New(redis.Config{Client: rdb, CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		if err := d.Ping(ctx); err != nil {
			_ = d.Close(ctx)
			return nil, &ConnectionError{Driver: "redis", Addr: addr, Err: err}
		}
		return d, nil

	case "memcached":
		servers := g.Servers
		if len(servers) == 0 {
			servers = []string{g.Addr(defaultMemcachedPort)}
		}
		d, err := memcached.New(memcached.Config{Servers: servers, Timeout: g.Timeout})
		if err != nil {
			return nil, err
		}
		if err := d.Ping(ctx); err != nil {
			return nil, &ConnectionError{Driver: "memcached", Addr: strings.Join(servers, ","), Err: err}
		}
		return d, nil

	case "memory", "":
		return memory.New(memory.Config{CleanupInterval: g.CleanupInterval}), nil

	case "ristretto", "xcache":
		cfg := ristretto.DefaultConfig()
		if g.MaxCost > 0 {
			cfg.MaxCost = g.MaxCost
		}
		return ristretto.New(cfg)

	default:
		return nil, &ConfigError{Group: g.Name, Err: fmt.Errorf("unknown driver %q", g.Driver)}
	}
}
