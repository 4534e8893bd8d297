package repo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
)

// Memory хранит историю в памяти процесса. Используется, когда PG_DSN не задан
// (локальный прогон poll-once), и теряет данные при перезапуске.
type Memory struct {
	mu    sync.Mutex
	posts map[string]domain.PostedRecord
	users map[int64]domain.UserRecord
}

var (
	_ domain.PostStore = (*Memory)(nil)
	_ domain.UserRepo  = (*Memory)(nil)
)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		posts: make(map[string]domain.PostedRecord),
		users: make(map[int64]domain.UserRecord),
	}
}

func (m *Memory) IsPosted(_ context.Context, link string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.posts[link]
	return ok, nil
}

func (m *Memory) AddPost(_ context.Context, link, title string) (bool, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return false, errors.New("add_post: empty link")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[link]; ok {
		return false, nil
	}
	m.posts[link] = domain.PostedRecord{Link: link, Title: title, PostedAt: time.Now().UTC()}
	return true, nil
}

func (m *Memory) CountPosts(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts), nil
}

func (m *Memory) Reset(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.posts))
	m.posts = make(map[string]domain.PostedRecord)
	return n, nil
}

func (m *Memory) AddUser(_ context.Context, userID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = domain.UserRecord{UserID: userID, DisplayName: name, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (m *Memory) CountUsers(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}
