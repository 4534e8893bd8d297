package domain

import (
	"context"
	"time"
)

// PostStore хранит отметки об уже опубликованных ссылках.
type PostStore interface {
	IsPosted(ctx context.Context, link string) (bool, error)
	// AddPost атомарно вставляет запись и возвращает true, если она создана.
	// Повторная вставка той же ссылки не создаёт дубликат и возвращает false без ошибки.
	AddPost(ctx context.Context, link, title string) (bool, error)
	CountPosts(ctx context.Context) (int, error)
	// Reset удаляет все отметки о публикациях и возвращает число удалённых строк.
	Reset(ctx context.Context) (int64, error)
}

// UserRepo ведёт реестр пользователей бота.
type UserRepo interface {
	AddUser(ctx context.Context, userID int64, name string) error
	CountUsers(ctx context.Context) (int, error)
}

// Claimer выдаёт кратковременную блокировку на обработку записи,
// чтобы параллельные прогоны не обрабатывали одну ссылку дважды.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// FeedSource опрашивает ленту и возвращает не более feed.Limit последних записей.
type FeedSource interface {
	Poll(ctx context.Context, feed Feed) ([]FeedEntry, error)
}

// Scraper извлекает текст и главную картинку статьи.
type Scraper interface {
	Scrape(ctx context.Context, link string) (ScrapeResult, error)
}

// CaptionWriter формирует короткую стилизованную подпись. Никогда не падает:
// при недоступности генератора возвращает детерминированный шаблон.
type CaptionWriter interface {
	GenerateCaption(ctx context.Context, title, summary, source string) string
}

// ArticleWriter формирует HTML длинной статьи. Никогда не падает.
type ArticleWriter interface {
	GenerateArticleHTML(ctx context.Context, title, fullText, imageURL string) string
}

// ImageGenerator рисует картинку по текстовому описанию.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ThumbnailComposer собирает брендированное превью в JPEG.
type ThumbnailComposer interface {
	Compose(ctx context.Context, src ImageSource, title string) ([]byte, error)
}

// ImageHost загружает картинку на публичный хостинг.
type ImageHost interface {
	UploadImage(ctx context.Context, data []byte) (string, error)
}

// ArticleHost публикует HTML-статью и возвращает постоянную ссылку.
type ArticleHost interface {
	PublishArticle(ctx context.Context, title, html, author string) (string, error)
}

// Sink доставляет пост в мессенджер.
type Sink interface {
	SendText(ctx context.Context, chat Chat, text string, button *Button) error
	SendPhoto(ctx context.Context, chat Chat, photo ImageSource, caption string, button *Button) error
}
