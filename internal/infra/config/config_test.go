package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("TG_OWNER_IDS", "1,2")
	t.Setenv("POLL_INTERVAL", "2m")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Pipeline.PollInterval != 2*time.Minute {
		t.Fatalf("ожидали 2m, получили %s", cfg.Pipeline.PollInterval)
	}
	if cfg.Pipeline.FeedItemsLimit != 3 {
		t.Fatalf("ожидали лимит 3, получили %d", cfg.Pipeline.FeedItemsLimit)
	}
	if !cfg.Pipeline.RecordOnSendFailure {
		t.Fatal("по умолчанию запись после ошибки отправки должна быть включена")
	}
	if !cfg.IsOwner(2) || cfg.IsOwner(3) {
		t.Fatalf("неверный список операторов: %v", cfg.Telegram.OwnerIDs)
	}
	if len(cfg.Gemini.Models) != 3 {
		t.Fatalf("ожидали три модели Gemini, получили %v", cfg.Gemini.Models)
	}
}

func TestLoadFeedsDefault(t *testing.T) {
	feeds, err := LoadFeeds("", 3)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(feeds) != len(DefaultFeeds) {
		t.Fatalf("ожидали %d лент, получили %d", len(DefaultFeeds), len(feeds))
	}
	for _, f := range feeds {
		if f.Limit != 3 {
			t.Fatalf("ожидали лимит по умолчанию, получили %d", f.Limit)
		}
	}
}

func TestLoadFeedsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	content := `feeds:
  - url: https://a.test/rss
    name: A
  - url: https://b.test/rss
    limit: 5
  - url: https://a.test/rss
  - url: "  "
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	feeds, err := LoadFeeds(path, 3)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []domain.Feed{
		{URL: "https://a.test/rss", Name: "A", Limit: 3},
		{URL: "https://b.test/rss", Limit: 5},
	}
	if diff := cmp.Diff(want, feeds); diff != "" {
		t.Fatalf("ленты отличаются (-want +got):\n%s", diff)
	}
}

func TestLoadFeedsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(path, []byte("feeds: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFeeds(path, 3); err == nil {
		t.Fatal("ожидали ошибку для пустого списка")
	}
}
