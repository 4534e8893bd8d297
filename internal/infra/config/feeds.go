package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
)

// DefaultFeeds — ленты, которые опрашиваются без FEEDS_FILE.
var DefaultFeeds = []domain.Feed{
	{URL: "https://www.animenewsnetwork.com/news/rss.xml", Name: "Anime News Network"},
	{URL: "https://www.crunchyroll.com/newsrss?lang=en", Name: "Crunchyroll"},
	{URL: "https://screenrant.com/feed/category/anime/", Name: "Screen Rant"},
}

type feedsFile struct {
	Feeds []domain.Feed `yaml:"feeds"`
}

// LoadFeeds читает список лент из YAML-файла. Пустой путь означает список по умолчанию.
// Лимит записей, не заданный в файле, берётся из defaultLimit.
func LoadFeeds(path string, defaultLimit int) ([]domain.Feed, error) {
	feeds := DefaultFeeds
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение %s: %w", path, err)
		}
		var parsed feedsFile
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("разбор %s: %w", path, err)
		}
		feeds = parsed.Feeds
	}
	out := make([]domain.Feed, 0, len(feeds))
	seen := make(map[string]struct{}, len(feeds))
	for _, f := range feeds {
		f.URL = strings.TrimSpace(f.URL)
		if f.URL == "" {
			continue
		}
		if _, ok := seen[f.URL]; ok {
			continue
		}
		seen[f.URL] = struct{}{}
		if f.Limit <= 0 {
			f.Limit = defaultLimit
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("список лент пуст")
	}
	return out, nil
}
