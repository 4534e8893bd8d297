package domain

import (
	"errors"
	"testing"
)

func TestParseChat(t *testing.T) {
	cases := map[string]Chat{
		"-1001234567890": {ID: -1001234567890},
		"@anime_news":    {Username: "@anime_news"},
		"anime_news":     {Username: "@anime_news"},
		" 42 ":           {ID: 42},
	}
	for input, want := range cases {
		got, err := ParseChat(input)
		if err != nil {
			t.Fatalf("не ожидали ошибку для %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("для %q ожидали %+v, получили %+v", input, want, got)
		}
	}
	if _, err := ParseChat("  "); !errors.Is(err, ErrEmptyChat) {
		t.Fatalf("ожидали ErrEmptyChat, получили %v", err)
	}
}

func TestImageSourceEmpty(t *testing.T) {
	if !(ImageSource{}).Empty() {
		t.Fatal("пустой источник должен быть Empty")
	}
	if (ImageSource{URL: "https://x.test/a.jpg"}).Empty() {
		t.Fatal("источник с URL не должен быть Empty")
	}
	if (ImageSource{Data: []byte{1}}).Empty() {
		t.Fatal("источник с байтами не должен быть Empty")
	}
}

func TestFeedEntryHasMedia(t *testing.T) {
	if (FeedEntry{MediaURL: "   "}).HasMedia() {
		t.Fatal("пробельный URL не считается картинкой")
	}
	if !(FeedEntry{MediaURL: "https://x.test/a.jpg"}).HasMedia() {
		t.Fatal("ожидали HasMedia для заданного URL")
	}
}
