package domain

import (
	"strconv"
	"strings"
	"time"
)

// Feed описывает одну RSS/Atom-ленту из конфигурации.
type Feed struct {
	URL   string `yaml:"url"`
	Name  string `yaml:"name"`
	Limit int    `yaml:"limit"`
}

// FeedEntry представляет элемент ленты, полученный за один цикл опроса.
// Необязательные поля разрешаются один раз на границе поллера:
// пустая строка означает «нет значения», PublishedAt == nil — дата неизвестна.
type FeedEntry struct {
	Link        string
	Title       string
	RawSummary  string
	PublishedAt *time.Time
	MediaURL    string
	FeedName    string
}

// HasMedia сообщает, приложила ли лента собственную картинку.
func (e FeedEntry) HasMedia() bool {
	return strings.TrimSpace(e.MediaURL) != ""
}

// ScrapeResult — результат извлечения статьи со страницы источника.
type ScrapeResult struct {
	FullText   string
	ImageURL   string
	SourceHost string
	// FromMetadata выставляется, когда тело статьи не найдено и текст взят
	// из meta description. Такой результат нельзя считать полной статьёй.
	FromMetadata bool
}

// ImageSource указывает на картинку: либо готовые байты, либо URL.
type ImageSource struct {
	Data []byte
	URL  string
}

// Empty возвращает true, если источник картинки не задан.
func (s ImageSource) Empty() bool {
	return len(s.Data) == 0 && strings.TrimSpace(s.URL) == ""
}

// Button — единственная кнопка-ссылка под постом.
type Button struct {
	Text string
	URL  string
}

// Chat адресует получателя в Telegram: числовой ID или @username канала.
type Chat struct {
	ID       int64
	Username string
}

// ParseChat разбирает значение вида "-1001234567890" или "@channel".
func ParseChat(raw string) (Chat, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Chat{}, ErrEmptyChat
	}
	if strings.HasPrefix(value, "@") {
		return Chat{Username: value}, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return Chat{Username: "@" + value}, nil
	}
	return Chat{ID: id}, nil
}

// String возвращает человекочитаемое представление для логов.
func (c Chat) String() string {
	if c.Username != "" {
		return c.Username
	}
	return strconv.FormatInt(c.ID, 10)
}

// EnrichedPost собирает все производные артефакты одной записи ленты.
type EnrichedPost struct {
	Entry       FeedEntry
	Scraped     bool
	Scrape      ScrapeResult
	SourceName  string
	Caption     string
	ArticleHTML string
	Thumbnail   []byte
	Photo       ImageSource
	ArticleURL  string
	Message     string
	Button      *Button
}

// PostedRecord фиксирует факт публикации ссылки.
type PostedRecord struct {
	Link     string
	Title    string
	PostedAt time.Time
}

// UserRecord описывает пользователя, писавшего боту.
type UserRecord struct {
	UserID      int64
	DisplayName string
	CreatedAt   time.Time
}
