package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
)

// Registry tracks which broker-held jobs are still live and which were
// revoked. A broker cannot pull a message back, so the consumer consults the
// registry before running a job.
type Registry interface {
	Register(ctx context.Context, job Job, ttl time.Duration) error
	Revoke(ctx context.Context, id string) error
	// Unrevoke marks a revoked job live again. discarded reports that the
	// consumer already dropped its message, so the caller must publish job again.
	Unrevoke(ctx context.Context, id string) (job Job, discarded bool, err error)
	// Discard reports whether the job was revoked and, if so, records that its
	// message has been dropped. The entry stays until its TTL runs out.
	Discard(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

const (
	jobLive      = "live"
	jobRevoked   = "revoked"
	jobDiscarded = "discarded"
)

var (
	revokeScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return 0 end
if state == 'live' then redis.call('HSET', KEYS[1], 'state', 'revoked') end
return 1
`)

	unrevokeScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return false end
redis.call('HSET', KEYS[1], 'state', 'live')
return {state, redis.call('HGET', KEYS[1], 'job')}
`)

	discardScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') == 'revoked' then
  redis.call('HSET', KEYS[1], 'state', 'discarded')
  return 1
end
return 0
`)
)

// RedisRegistry keeps one hash per job holding its state and payload.
type RedisRegistry struct {
	Client *redis.Client
	Prefix string
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{Client: client, Prefix: "mailing:job:"}
}

func (r *RedisRegistry) key(id string) string {
	return r.Prefix + id
}

func (r *RedisRegistry) Register(ctx context.Context, job Job, ttl time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	key := r.key(job.ID)
	_, err = r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "state", jobLive, "job", body)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return errors.Wrapf(err, "register job %s", job.ID)
}

func (r *RedisRegistry) Revoke(ctx context.Context, id string) error {
	found, err := revokeScript.Run(ctx, r.Client, []string{r.key(id)}).Int()
	if err != nil {
		return errors.Wrapf(err, "revoke job %s", id)
	}
	if found == 0 {
		return appErrors.ErrJobNotFound
	}
	return nil
}

func (r *RedisRegistry) Unrevoke(ctx context.Context, id string) (Job, bool, error) {
	var job Job
	res, err := unrevokeScript.Run(ctx, r.Client, []string{r.key(id)}).StringSlice()
	if errors.Is(err, redis.Nil) {
		return job, false, appErrors.ErrJobNotFound
	}
	if err != nil {
		return job, false, errors.Wrapf(err, "unrevoke job %s", id)
	}
	if len(res) != 2 {
		return job, false, errors.Newf("unrevoke job %s: malformed registry entry", id)
	}
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return job, false, errors.Wrapf(err, "decode job %s", id)
	}
	return job, res[0] == jobDiscarded, nil
}

func (r *RedisRegistry) Discard(ctx context.Context, id string) (bool, error) {
	n, err := discardScript.Run(ctx, r.Client, []string{r.key(id)}).Int()
	if err != nil {
		return false, errors.Wrapf(err, "lookup job %s", id)
	}
	return n == 1, nil
}

func (r *RedisRegistry) Forget(ctx context.Context, id string) error {
	return errors.Wrapf(r.Client.Del(ctx, r.key(id)).Err(), "forget job %s", id)
}

var _ Registry = (*RedisRegistry)(nil)
