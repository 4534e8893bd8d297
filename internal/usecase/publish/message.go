package publish

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/textstyle"
)

const (
	photoCaptionLimit = 1024
	textMessageLimit  = 4096
	buttonText        = "Read More"
)

// knownSources переопределяет имя источника для известных хостов.
var knownSources = map[string]string{
	"animenewsnetwork.com": "Anime News Network",
	"crunchyroll.com":      "Crunchyroll",
	"screenrant.com":       "Screen Rant",
	"myanimelist.net":      "MyAnimeList",
	"cbr.com":              "CBR",
	"animecorner.me":       "Anime Corner",
}

// SourceName выводит человекочитаемое имя источника из ссылки:
// известный хост берётся из таблицы, иначе первая метка домена с заглавной буквы.
func SourceName(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Hostname() == "" {
		return "Unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for domain, name := range knownSources {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return name
		}
	}
	label, _, _ := strings.Cut(host, ".")
	r, size := utf8.DecodeRuneInString(label)
	if r == utf8.RuneError {
		return "Unknown"
	}
	return string(unicode.ToUpper(r)) + label[size:]
}

// Footer — разделитель и строка с источником.
func Footer(link, source string) string {
	return textstyle.Separator(link) + "\n" + textstyle.Bullet(link) + " Source: " + source
}

// BuildMessage склеивает подпись и подвал, укладываясь в limit рун.
// Обрезается только подпись, подвал сохраняется целиком.
func BuildMessage(caption, footer string, limit int) string {
	caption = strings.TrimSpace(caption)
	budget := limit - utf8.RuneCountInString(footer) - 2
	if budget < 1 {
		return clipWords(footer, limit)
	}
	caption = clipWords(caption, budget)
	if caption == "" {
		return footer
	}
	return caption + "\n\n" + footer
}

func clipWords(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	runes := []rune(s)[:n-1]
	cut := len(runes)
	for i := len(runes) - 1; i > len(runes)/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "…"
}
