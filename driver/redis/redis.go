// Package redis is the Redis-backed driver. It supports every capability except
// tags: scalar KV, CAS, multi-get, hashes, lists, sets, sorted sets, MULTI/EXEC
// transactions and raw commands.
//
// Scalar writes made through the driver also write a companion version key
// (<key>#ver) holding a fresh random id with the same TTL. CAS compares that
// version, so a value rewritten back to the same bytes still conflicts. Both
// keys go into one MULTI, so on Redis Cluster scalar keys need a hash tag
// ({...}) to land in one slot.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cachekit/driver"
)

const caps = driver.CapKV | driver.CapCAS | driver.CapMulti | driver.CapHash |
	driver.CapList | driver.CapSet | driver.CapSortedSet | driver.CapTx | driver.CapRaw

const versionSuffix = "#ver"

// addScript is set-if-absent for a value and its version key.
// KEYS: key, version key. ARGV: value, version, ttl in ms (0 = none).
var addScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then return 0 end
local ms = tonumber(ARGV[3])
if ms > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ms)
  redis.call("SET", KEYS[2], ARGV[2], "PX", ms)
else
  redis.call("SET", KEYS[1], ARGV[1])
  redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// casToken pairs the version id with a digest of the value. The digest
// catches writes that bypassed the driver and left the version untouched.
type casToken struct {
	version string
	sum     uint64
}

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var (
	_ driver.Driver         = (*Redis)(nil)
	_ driver.CASer          = (*Redis)(nil)
	_ driver.MultiGetter    = (*Redis)(nil)
	_ driver.Hasher         = (*Redis)(nil)
	_ driver.Lister         = (*Redis)(nil)
	_ driver.SetStore       = (*Redis)(nil)
	_ driver.SortedSetStore = (*Redis)(nil)
	_ driver.Transactor     = (*Redis)(nil)
	_ driver.RawCommander   = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this driver exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, driver.ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Client exposes the underlying client.
func (r *Redis) Client() goredis.UniversalClient { return r.rdb }

func (r *Redis) Kind() driver.Kind                 { return driver.KindRedis }
func (r *Redis) Name() string                      { return "redis" }
func (r *Redis) Capabilities() driver.Capabilities { return caps }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

// Set ignores tags; tag indexes are not kept on this driver.
func (r *Redis) Set(ctx context.Context, key string, value []byte, _ []string, ttl time.Duration) error {
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		setVersioned(ctx, p, key, value, ttl)
		return nil
	})
	return err
}

func (r *Redis) Add(ctx context.Context, key string, value []byte, _ []string, ttl time.Duration) (bool, error) {
	n, err := addScript.Run(ctx, r.rdb, []string{key, versionKey(key)}, addArgs(value, ttl)...).Int64()
	return n == 1, err
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	var del *goredis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		del = p.Del(ctx, key)
		p.Del(ctx, versionKey(key))
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (r *Redis) DeleteAll(ctx context.Context) error {
	return r.rdb.FlushDB(ctx).Err()
}

// DeleteExpired is a no-op: Redis expires keys natively.
func (r *Redis) DeleteExpired(context.Context) error { return nil }

// GetWithToken reads the value and its version in one round trip.
func (r *Redis) GetWithToken(ctx context.Context, key string) ([]byte, driver.Token, bool, error) {
	vals, err := r.rdb.MGet(ctx, key, versionKey(key)).Result()
	if err != nil {
		return nil, driver.Token{}, false, err
	}
	b, ok := asBytes(vals[0])
	if !ok {
		return nil, driver.Token{}, false, nil
	}
	ver, _ := asBytes(vals[1])
	return b, driver.NewToken(casToken{version: string(ver), sum: xxhash.Sum64(b)}), true, nil
}

// CAS watches the key and its version, checks both still match token and
// writes with a new version in MULTI/EXEC. Any write in between, including
// one that restores the old bytes or only changes the TTL, makes it fail.
func (r *Redis) CAS(ctx context.Context, token driver.Token, key string, value []byte, _ []string, ttl time.Duration) (bool, error) {
	want, ok := token.Value().(casToken)
	if !ok {
		return false, nil
	}
	vk := versionKey(key)
	swapped := false
	err := r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		vals, err := tx.MGet(ctx, key, vk).Result()
		if err != nil {
			return err
		}
		cur, ok := asBytes(vals[0])
		if !ok {
			return nil
		}
		ver, _ := asBytes(vals[1])
		if string(ver) != want.version || xxhash.Sum64(cur) != want.sum {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			setVersioned(ctx, p, key, value, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key, vk)
	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (r *Redis) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := asBytes(v); ok {
			out[keys[i]] = b
		}
	}
	return out, nil
}

func (r *Redis) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for k, v := range items {
			setVersioned(ctx, p, k, v, ttl)
		}
		return nil
	})
	return err
}

func (r *Redis) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	b, err := r.rdb.HGet(ctx, key, field).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) HSet(ctx context.Context, key, field string, value []byte) error {
	return r.rdb.HSet(ctx, key, field, value).Err()
}

// HSetNX applies ttl to the whole hash only when the field was written and ttl > 0.
func (r *Redis) HSetNX(ctx context.Context, key, field string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.HSetNX(ctx, key, field, value).Result()
	if err != nil || !ok {
		return false, err
	}
	if ttl > 0 {
		if err := r.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (r *Redis) HMGet(ctx context.Context, key string, fields []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	vals, err := r.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := asBytes(v); ok {
			out[fields[i]] = b
		}
	}
	return out, nil
}

func (r *Redis) HMSet(ctx context.Context, key string, fields map[string][]byte, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for f, v := range fields {
		args = append(args, f, v)
	}
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, key, args...)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	m, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(m))
	for f, v := range m {
		out[f] = []byte(v)
	}
	return out, nil
}

func (r *Redis) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	return r.rdb.HDel(ctx, key, fields...).Result()
}

func (r *Redis) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return r.rdb.HIncrBy(ctx, key, field, delta).Result()
}

func (r *Redis) RPush(ctx context.Context, key string, value []byte) (int64, error) {
	return r.rdb.RPush(ctx, key, value).Result()
}

func (r *Redis) LPush(ctx context.Context, key string, value []byte) (int64, error) {
	return r.rdb.LPush(ctx, key, value).Result()
}

func (r *Redis) LPop(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.LPop(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.rdb.SAdd(ctx, key, args...).Result()
}

func (r *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.rdb.SMembers(ctx, key).Result()
}

func (r *Redis) SDiff(ctx context.Context, keys ...string) ([]string, error) {
	return r.rdb.SDiff(ctx, keys...).Result()
}

func (r *Redis) ZAdd(ctx context.Context, key string, members ...driver.ScoredMember) (int64, error) {
	zs := make([]goredis.Z, len(members))
	for i, m := range members {
		zs[i] = goredis.Z{Score: m.Score, Member: m.Member}
	}
	return r.rdb.ZAdd(ctx, key, zs...).Result()
}

func (r *Redis) ZRange(ctx context.Context, key string, start, stop int64) ([]driver.ScoredMember, error) {
	zs, err := r.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]driver.ScoredMember, len(zs))
	for i, z := range zs {
		out[i] = driver.ScoredMember{Member: fmt.Sprint(z.Member), Score: z.Score}
	}
	return out, nil
}

func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	return r.rdb.ZCard(ctx, key).Result()
}

func (r *Redis) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	return r.rdb.ZRemRangeByScore(ctx, key, min, max).Result()
}

// Exec queues ops in one MULTI/EXEC block, so no other client observes a
// partial batch. Redis does not roll back: when an op fails at run time (e.g.
// HINCRBY on a non-integer field) the other ops still apply. Exec then returns
// every op's Result, with Err set on the failed ones, together with the first
// error.
func (r *Redis) Exec(ctx context.Context, ops []driver.Op) ([]driver.Result, error) {
	for _, op := range ops {
		switch op.Kind {
		case driver.OpSet, driver.OpAdd, driver.OpDelete, driver.OpHSet, driver.OpHIncrBy, driver.OpRPush:
		default:
			return nil, fmt.Errorf("redis: exec %s: %w", op.Kind, driver.ErrUnsupported)
		}
	}

	cmds := make([]goredis.Cmder, len(ops))
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for i, op := range ops {
			switch op.Kind {
			case driver.OpSet:
				cmds[i] = setVersioned(ctx, p, op.Key, op.Value, op.TTL)
			case driver.OpAdd:
				cmds[i] = addScript.Eval(ctx, p, []string{op.Key, versionKey(op.Key)}, addArgs(op.Value, op.TTL)...)
			case driver.OpDelete:
				cmds[i] = p.Del(ctx, op.Key)
				p.Del(ctx, versionKey(op.Key))
			case driver.OpHSet:
				cmds[i] = p.HSet(ctx, op.Key, op.Field, op.Value)
			case driver.OpHIncrBy:
				cmds[i] = p.HIncrBy(ctx, op.Key, op.Field, op.Delta)
			case driver.OpRPush:
				cmds[i] = p.RPush(ctx, op.Key, op.Value)
			}
		}
		return nil
	})
	if errors.Is(err, goredis.Nil) {
		err = nil
	}

	res := make([]driver.Result, len(ops))
	for i, c := range cmds {
		if cerr := c.Err(); cerr != nil && !errors.Is(cerr, goredis.Nil) {
			res[i].Err = cerr
			continue
		}
		switch cmd := c.(type) {
		case *goredis.StatusCmd:
			res[i].OK = true
		case *goredis.Cmd:
			n, _ := cmd.Int64()
			res[i].OK = n == 1
		case *goredis.IntCmd:
			res[i].Int = cmd.Val()
			res[i].OK = ops[i].Kind != driver.OpDelete || cmd.Val() > 0
		}
	}
	if err != nil {
		return res, fmt.Errorf("redis: exec: %w", err)
	}
	return res, nil
}

// Do sends a raw command, e.g. Do(ctx, "OBJECT", "ENCODING", key).
func (r *Redis) Do(ctx context.Context, args ...any) (any, error) {
	v, err := r.rdb.Do(ctx, args...).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	return v, err
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close releases the underlying redis client only when this driver owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func versionKey(key string) string { return key + versionSuffix }

// setVersioned queues SET of the value and a fresh version with the same TTL.
// It returns the value's command.
func setVersioned(ctx context.Context, p goredis.Pipeliner, key string, value []byte, ttl time.Duration) *goredis.StatusCmd {
	cmd := p.Set(ctx, key, value, expiry(ttl))
	p.Set(ctx, versionKey(key), uuid.NewString(), expiry(ttl))
	return cmd
}

func addArgs(value []byte, ttl time.Duration) []any {
	return []any{value, uuid.NewString(), expiry(ttl).Milliseconds()}
}

func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0 // non-positive TTLs mean "no expiry"
	}
	return ttl
}

func asBytes(v any) ([]byte, bool) {
	switch t := v.(type) {
	case string:
		return []byte(t), true
	case []byte:
		return t, true
	default:
		return nil, false
	}
}
