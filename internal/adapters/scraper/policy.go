package scraper

import (
	"net/url"
	"strings"
)

// rule запрещает скрапинг страниц хоста с указанным префиксом пути.
type rule struct {
	host   string
	prefix string
}

// denyList — страницы-плееры и прочие адреса, где нет текста статьи.
var denyList = []rule{
	{host: "crunchyroll.com", prefix: "/watch/"},
	{host: "youtube.com", prefix: "/watch"},
	{host: "youtube.com", prefix: "/shorts/"},
	{host: "youtu.be", prefix: "/"},
	{host: "vimeo.com", prefix: "/"},
}

// Blocked сообщает, что ссылку не стоит скачивать вовсе.
func Blocked(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, r := range denyList {
		if host != r.host && !strings.HasSuffix(host, "."+r.host) {
			continue
		}
		if strings.HasPrefix(path, r.prefix) {
			return true
		}
	}
	return false
}
