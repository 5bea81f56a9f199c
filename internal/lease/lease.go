// Package lease provides named, expiring run locks so a background job runs
// in at most one process at a time.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotAcquired is returned when the lease is currently held by someone else.
var ErrNotAcquired = errors.New("lease held elsewhere")

// Release gives a lease back. It is safe to call after the lease expired.
type Release func(ctx context.Context) error

// Locker hands out leases by name.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Release, error)
}

// releaseScript deletes the key only if it still carries our token, so an
// expired lease re-acquired by another process is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client   *redis.Client
	prefix   string
	newToken func() string
}

// NewRedisLocker creates a locker that namespaces its keys under prefix.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		client:   client,
		prefix:   prefix,
		newToken: func() string { return uuid.NewString() },
	}
}

func (l *RedisLocker) key(name string) string {
	return l.prefix + "lease:" + name
}

// Acquire takes the lease for ttl. Returns ErrNotAcquired if another holder
// has it.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Release, error) {
	key := l.key(name)
	token := l.newToken()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("Acquire %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("Release %s: %w", name, err)
		}
		return nil
	}, nil
}

// LocalLocker is the single-process fallback used when Redis is not
// configured. Leases expire after ttl like their Redis counterparts.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localLease
	now  func() time.Time
}

type localLease struct {
	token     string
	expiresAt time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]localLease),
		now:  time.Now,
	}
}

// Acquire takes the lease for ttl. Returns ErrNotAcquired if it is held and
// not yet expired.
func (l *LocalLocker) Acquire(_ context.Context, name string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[name]; ok && now.Before(cur.expiresAt) {
		return nil, ErrNotAcquired
	}
	token := uuid.NewString()
	l.held[name] = localLease{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[name]; ok && cur.token == token {
			delete(l.held, name)
		}
		return nil
	}, nil
}
