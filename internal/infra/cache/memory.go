package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
)

// MemoryClaims — внутрипроцессная замена RedisClaims, когда REDIS_ADDR не задан.
type MemoryClaims struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

var _ domain.Claimer = (*MemoryClaims)(nil)

// NewMemory создаёт блокировки в памяти.
func NewMemory() *MemoryClaims {
	return &MemoryClaims{held: make(map[string]time.Time), clock: time.Now}
}

// Claim занимает ключ до истечения ttl.
func (m *MemoryClaims) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	if until, ok := m.held[key]; ok && now.Before(until) {
		return false, nil
	}
	m.held[key] = now.Add(ttl)
	return true, nil
}

// Release освобождает ключ.
func (m *MemoryClaims) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
	return nil
}
