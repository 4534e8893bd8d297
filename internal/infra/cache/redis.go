package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

const claimPrefix = "newsbot:claim:"

// releaseScript удаляет ключ, только если он всё ещё хранит наш токен.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaims реализует domain.Claimer через SETNX с TTL. Каждая блокировка
// хранит собственный токен, чтобы Release после истечения TTL не снял
// блокировку, которую уже занял другой прогон.
type RedisClaims struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

var _ domain.Claimer = (*RedisClaims)(nil)

// NewRedis создаёт блокировки поверх клиента Redis.
func NewRedis(client *redis.Client) *RedisClaims {
	return &RedisClaims{client: client, tokens: make(map[string]string)}
}

// Connect открывает клиента Redis и проверяет доступность.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Claim занимает ключ, если он ещё не занят.
func (c *RedisClaims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	start := time.Now()
	ok, err := c.client.SetNX(ctx, claimPrefix+key, token, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "claim", "setnx", start, err)
	if err != nil || !ok {
		return ok, err
	}
	c.mu.Lock()
	c.tokens[key] = token
	c.mu.Unlock()
	return true, nil
}

// Release освобождает ключ, если он всё ещё принадлежит этому экземпляру.
func (c *RedisClaims) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	start := time.Now()
	err := releaseScript.Run(ctx, c.client, []string{claimPrefix + key}, token).Err()
	metrics.ObserveNetworkRequest("redis", "release", "eval", start, err)
	return err
}
