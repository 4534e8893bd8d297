// Package feed опрашивает RSS/Atom-ленты через gofeed и приводит элементы
// к domain.FeedEntry с явной семантикой отсутствующих полей.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/rs/zerolog"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/browser"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

const defaultLimit = 3

// Poller реализует domain.FeedSource.
type Poller struct {
	http  *http.Client
	fp    *gofeed.Parser
	log   zerolog.Logger
	limit int

	mu    sync.Mutex
	cache map[string]snapshot
}

// snapshot хранит условные заголовки и разобранные записи последнего
// успешного ответа ленты. На 304 записи отдаются повторно, чтобы решение
// о публикации оставалось за хранилищем.
type snapshot struct {
	etag         string
	lastModified string
	entries      []domain.FeedEntry
}

var _ domain.FeedSource = (*Poller)(nil)

// NewPoller создаёт поллер. limit применяется к лентам без собственного лимита.
func NewPoller(client *http.Client, limit int, logger zerolog.Logger) *Poller {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Poller{
		http:  client,
		fp:    gofeed.NewParser(),
		log:   logger,
		limit: limit,
		cache: make(map[string]snapshot),
	}
}

// Poll скачивает ленту и возвращает не более N записей в порядке ленты.
// Для неизменившейся ленты (304) возвращаются записи предыдущего ответа.
func (p *Poller) Poll(ctx context.Context, fd domain.Feed) ([]domain.FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fd.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: build request: %w", err)
	}
	req.Header.Set("User-Agent", browser.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	p.mu.Lock()
	v := p.cache[fd.URL]
	p.mu.Unlock()
	if v.etag != "" {
		req.Header.Set("If-None-Match", v.etag)
	}
	if v.lastModified != "" {
		req.Header.Set("If-Modified-Since", v.lastModified)
	}

	start := time.Now()
	resp, err := p.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("feed", "fetch", hostOf(fd.URL), start, err)
		return nil, fmt.Errorf("feed: fetch %s: %w", fd.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		metrics.ObserveNetworkRequest("feed", "fetch", hostOf(fd.URL), start, nil)
		p.log.Debug().Str("feed", fd.URL).Int("entries", len(v.entries)).Msg("feed: лента не изменилась")
		return append([]domain.FeedEntry(nil), v.entries...), nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err = fmt.Errorf("feed: want 200, got %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		metrics.ObserveNetworkRequest("feed", "fetch", hostOf(fd.URL), start, err)
		return nil, err
	}

	parsed, err := p.fp.Parse(resp.Body)
	metrics.ObserveNetworkRequest("feed", "fetch", hostOf(fd.URL), start, err)
	if err != nil {
		return nil, fmt.Errorf("feed: parse %s: %w", fd.URL, err)
	}

	limit := fd.Limit
	if limit <= 0 {
		limit = p.limit
	}
	name := fd.Name
	if name == "" {
		name = parsed.Title
	}
	entries := make([]domain.FeedEntry, 0, limit)
	for _, item := range parsed.Items {
		if len(entries) == limit {
			break
		}
		entry, ok := toEntry(item, fd.URL)
		if !ok {
			p.log.Debug().Str("feed", fd.URL).Str("title", item.Title).Msg("feed: элемент без ссылки пропущен")
			continue
		}
		entry.FeedName = name
		entries = append(entries, entry)
	}

	p.mu.Lock()
	p.cache[fd.URL] = snapshot{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		entries:      append([]domain.FeedEntry(nil), entries...),
	}
	p.mu.Unlock()
	return entries, nil
}

// toEntry разрешает необязательные поля элемента один раз.
func toEntry(item *gofeed.Item, feedURL string) (domain.FeedEntry, bool) {
	if item == nil {
		return domain.FeedEntry{}, false
	}
	link := strings.TrimSpace(item.Link)
	if link == "" && isHTTP(item.GUID) {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		return domain.FeedEntry{}, false
	}
	link = resolve(feedURL, link)

	summary := item.Description
	if strings.TrimSpace(summary) == "" {
		summary = item.Content
	}
	entry := domain.FeedEntry{
		Link:       link,
		Title:      strings.TrimSpace(item.Title),
		RawSummary: stripHTML(summary),
		MediaURL:   mediaURL(item),
	}
	if entry.MediaURL != "" {
		entry.MediaURL = resolve(link, entry.MediaURL)
	}
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		entry.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		entry.PublishedAt = &t
	}
	return entry, true
}

// mediaURL ищет картинку в media:thumbnail, media:content, вложениях и Image.
func mediaURL(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"thumbnail", "content"} {
			if u := firstAttr(media[key], "url"); u != "" {
				return u
			}
		}
		for _, group := range media["group"] {
			for _, key := range []string{"thumbnail", "content"} {
				if u := firstAttr(group.Children[key], "url"); u != "" {
					return u
				}
			}
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	return ""
}

func firstAttr(list []ext.Extension, attr string) string {
	for _, e := range list {
		if medium, ok := e.Attrs["medium"]; ok && medium != "" && medium != "image" {
			continue
		}
		if v := strings.TrimSpace(e.Attrs[attr]); v != "" {
			return v
		}
	}
	return ""
}

func stripHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, "<") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func isHTTP(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
