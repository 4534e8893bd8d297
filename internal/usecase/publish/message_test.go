package publish

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSourceName(t *testing.T) {
	cases := map[string]string{
		"https://x.test/a":                           "X",
		"https://www.animenewsnetwork.com/news/2024": "Anime News Network",
		"https://screenrant.com/anime-news/":         "Screen Rant",
		"https://news.crunchyroll.com/article":       "Crunchyroll",
		"https://otakuusamagazine.com/post":          "Otakuusamagazine",
		"not a url":                                  "Unknown",
	}
	for link, want := range cases {
		if got := SourceName(link); got != want {
			t.Fatalf("для %q ожидали %q, получили %q", link, want, got)
		}
	}
}

func TestBuildMessageKeepsFooter(t *testing.T) {
	footer := Footer("https://x.test/a", "X")
	caption := strings.Repeat("word ", 400)
	msg := BuildMessage(caption, footer, photoCaptionLimit)
	if n := utf8.RuneCountInString(msg); n > photoCaptionLimit {
		t.Fatalf("сообщение длиннее лимита: %d", n)
	}
	if !strings.HasSuffix(msg, footer) {
		t.Fatal("подвал должен сохраниться целиком")
	}
	if !strings.Contains(msg, "…") {
		t.Fatal("обрезанная подпись заканчивается многоточием")
	}
}

func TestBuildMessageShort(t *testing.T) {
	msg := BuildMessage(" caption ", "footer", textMessageLimit)
	if msg != "caption\n\nfooter" {
		t.Fatalf("неожиданное сообщение: %q", msg)
	}
	if BuildMessage("", "footer", textMessageLimit) != "footer" {
		t.Fatal("без подписи остаётся подвал")
	}
}

func TestFooterIsStablePerLink(t *testing.T) {
	if Footer("https://x.test/a", "X") != Footer("https://x.test/a", "X") {
		t.Fatal("оформление подвала должно зависеть только от ссылки")
	}
}
