package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/facetgraph/pkg/store"
)

// LeaseStore implements store.LeaseStore on redis keys with a TTL. The epoch lives in a
// companion key and is bumped whenever the lease changes hands.
type LeaseStore struct {
	client *redis.Client
}

var _ store.LeaseStore = (*LeaseStore)(nil)

func NewLeaseStore(client *redis.Client) *LeaseStore {
	return &LeaseStore{client: client}
}

func (s *LeaseStore) makeKey(name string) string {
	return fmt.Sprintf("facetgraph:lease:%s", name)
}

func (s *LeaseStore) epochKey(name string) string {
	return s.makeKey(name) + ":epoch"
}

// KEYS[1] lease, KEYS[2] epoch; ARGV[1] holder, ARGV[2] ttl in ms
var acquireScript = redis.NewScript(`
	local holder = redis.call("GET", KEYS[1])
	if holder == ARGV[1] then
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
		return 1
	end
	if holder then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	redis.call("INCR", KEYS[2])
	return 1
`)

var renewScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

func (s *LeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	res, err := acquireScript.Run(ctx, s.client,
		[]string{s.makeKey(name), s.epochKey(name)}, holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return res == 1, nil
}

func (s *LeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	res, err := renewScript.Run(ctx, s.client, []string{s.makeKey(name)}, holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to execute renew script: %w", err)
	}
	if res != 1 {
		return store.ErrLeaseLost
	}
	return nil
}

// Release is idempotent: releasing a lease that expired or moved on is not an error.
func (s *LeaseStore) Release(ctx context.Context, name, holderID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.makeKey(name)}, holderID).Err(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}

func (s *LeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := s.makeKey(name)
	holder, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease ttl: %w", err)
	}
	var epoch int64
	raw, err := s.client.Get(ctx, s.epochKey(name)).Result()
	switch {
	case err == nil:
		epoch, _ = strconv.ParseInt(raw, 10, 64)
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("failed to get lease epoch: %w", err)
	}

	return &store.Lease{
		Name:      name,
		HolderID:  holder,
		ExpiresAt: time.Now().Add(ttl),
		Epoch:     epoch,
	}, nil
}
