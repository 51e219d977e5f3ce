package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/model"
)

// RedisClient is the subset of *goredis.Client the persister needs.
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Each session is a hash with a version and a JSON payload. The scripts make
// the version check and the expiry refresh atomic with the read or write.
const (
	saveScript = `
local cur = redis.call('HGET', KEYS[1], 'version')
if (cur or '0') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[2], 'payload', ARGV[3])
if tonumber(ARGV[4]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return 1
`

	loadScript = `
local data = redis.call('HGET', KEYS[1], 'payload')
if data and tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return data
`
)

// RedisPersister keeps one hash per session. Keys expire after the idle TTL;
// every save and every load refreshes the expiry.
type RedisPersister struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

func NewRedisPersister(client RedisClient, prefix string, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient connects and pings with a timeout.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (p *RedisPersister) key(id string) string {
	return p.prefix + id
}

func (p *RedisPersister) Save(ctx context.Context, snap *model.Snapshot, expected int64) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	args := []interface{}{
		strconv.FormatInt(expected, 10),
		strconv.FormatInt(snap.Version, 10),
		string(data),
		p.ttl.Milliseconds(),
	}
	ok, err := p.client.Eval(ctx, saveScript, []string{p.key(snap.ID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", common.ErrSessionConflict, snap.ID)
	}
	return nil
}

func (p *RedisPersister) Load(ctx context.Context, id string) (*model.Snapshot, error) {
	data, err := p.client.Eval(ctx, loadScript, []string{p.key(id)}, p.ttl.Milliseconds()).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	return decode([]byte(data))
}

func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	n, err := p.client.Del(ctx, p.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}
	return nil
}
