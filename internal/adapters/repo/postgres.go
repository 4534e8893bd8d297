package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

const (
	postsTable = "posted_news"
	usersTable = "bot_users"
)

// querier — подмножество pgxpool.Pool, которым пользуется репозиторий.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres реализует хранилище опубликованных ссылок и пользователей.
type Postgres struct {
	db  querier
	sql sq.StatementBuilderType
	now func() time.Time
}

var (
	_ domain.PostStore = (*Postgres)(nil)
	_ domain.UserRepo  = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД поверх пула pgx.
func NewPostgres(db querier) *Postgres {
	return &Postgres{
		db:  db,
		sql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS posted_news (
	link TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	posted_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS bot_users (
	user_id BIGINT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	}
	for _, stmt := range stmts {
		start := time.Now()
		_, err := p.db.Exec(ctx, stmt)
		metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
		if err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// IsPosted проверяет, публиковалась ли ссылка.
func (p *Postgres) IsPosted(ctx context.Context, link string) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sql.Select("1").From(postsTable).Where(sq.Eq{"link": link}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build is_posted: %w", err)
	}
	var one int
	start := time.Now()
	err = p.db.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "posted_news_lookup", postsTable, start, nil)
		return false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "posted_news_lookup", postsTable, start, err)
	if err != nil {
		return false, fmt.Errorf("is_posted: %w", err)
	}
	return true, nil
}

// AddPost вставляет отметку о публикации. Повторная ссылка не создаёт дубликат
// и возвращает false без ошибки.
func (p *Postgres) AddPost(ctx context.Context, link, title string) (bool, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return false, errors.New("add_post: empty link")
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sql.Insert(postsTable).
		Columns("link", "title", "posted_at").
		Values(link, title, p.now()).
		Suffix("ON CONFLICT (link) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build add_post: %w", err)
	}
	start := time.Now()
	res, err := p.db.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "posted_news_insert", postsTable, start, err)
	if err != nil {
		return false, fmt.Errorf("add_post: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

// CountPosts возвращает число опубликованных ссылок.
func (p *Postgres) CountPosts(ctx context.Context) (int, error) {
	return p.count(ctx, postsTable)
}

// Reset удаляет историю публикаций. Пользователи сохраняются.
func (p *Postgres) Reset(ctx context.Context) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sql.Delete(postsTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reset: %w", err)
	}
	start := time.Now()
	res, err := p.db.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "posted_news_reset", postsTable, start, err)
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	return res.RowsAffected(), nil
}

// AddUser регистрирует пользователя, если он ещё не известен.
func (p *Postgres) AddUser(ctx context.Context, userID int64, name string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sql.Insert(usersTable).
		Columns("user_id", "display_name", "created_at").
		Values(userID, strings.TrimSpace(name), p.now()).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build add_user: %w", err)
	}
	start := time.Now()
	_, err = p.db.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "bot_users_insert", usersTable, start, err)
	if err != nil {
		return fmt.Errorf("add_user: %w", err)
	}
	return nil
}

// CountUsers возвращает число известных пользователей.
func (p *Postgres) CountUsers(ctx context.Context) (int, error) {
	return p.count(ctx, usersTable)
}

func (p *Postgres) count(ctx context.Context, table string) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.sql.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count %s: %w", table, err)
	}
	var n int
	start := time.Now()
	err = p.db.QueryRow(ctx, query, args...).Scan(&n)
	metrics.ObserveNetworkRequest("postgres", "count", table, start, err)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
