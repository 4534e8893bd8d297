// Package scraper скачивает страницу статьи и извлекает из неё текст,
// главную картинку и хост источника.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

var (
	// ErrBlocked — ссылка попала в список адресов без статей.
	ErrBlocked = errors.New("scraper: url is not scrapable")
	// ErrNoContent — на странице не нашлось ни текста, ни описания.
	ErrNoContent = errors.New("scraper: no extractable content")
)

// StatusError возвращается на любой ответ вне 2xx.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scraper: HTTP %d for %s", e.StatusCode, e.URL)
}

const (
	maxBodyBytes = 5 << 20
	// minTextRunes — меньше этого считаем, что тело статьи не найдено.
	minTextRunes = 200
)

// контейнеры статьи в порядке убывания уверенности.
var containerSelectors = []string{
	"[itemprop=articleBody]",
	"article .entry-content",
	"article .article-content",
	".entry-content",
	".article-content",
	".article-body",
	".post-content",
	".news-content",
	"article",
	"main",
	"#content",
}

var junkSelectors = "script, style, noscript, iframe, form, nav, header, footer, aside, figure figcaption, .share, .social, .related, .advertisement, .ad, .comments"

var (
	mdImage     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis  = regexp.MustCompile(`(\*\*|__)(.*?)(\*\*|__)`)
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	escapedMark = regexp.MustCompile(`\\([\\*_\[\]()#+\-.!>])`)
)

// Scraper реализует domain.Scraper.
type Scraper struct {
	http      *http.Client
	converter *md.Converter
	log       zerolog.Logger
}

var _ domain.Scraper = (*Scraper)(nil)

// New создаёт скрапер. client должен имитировать браузер (см. infra/browser).
func New(client *http.Client, logger zerolog.Logger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Scraper{http: client, converter: md.NewConverter("", true, nil), log: logger}
}

// Scrape скачивает страницу и извлекает статью. Любой сбой сводится к ошибке:
// ErrBlocked, *StatusError, ErrNoContent или сетевой ошибке.
func (s *Scraper) Scrape(ctx context.Context, link string) (domain.ScrapeResult, error) {
	if Blocked(link) {
		return domain.ScrapeResult{}, ErrBlocked
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return domain.ScrapeResult{}, fmt.Errorf("scraper: build request: %w", err)
	}
	host := req.URL.Hostname()

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("scraper", "fetch", host, start, err)
		return domain.ScrapeResult{}, fmt.Errorf("scraper: fetch %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = &StatusError{StatusCode: resp.StatusCode, URL: link}
		metrics.ObserveNetworkRequest("scraper", "fetch", host, start, err)
		return domain.ScrapeResult{}, err
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.ObserveNetworkRequest("scraper", "fetch", host, start, err)
	if err != nil {
		return domain.ScrapeResult{}, fmt.Errorf("scraper: parse html: %w", err)
	}

	base := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	return s.extract(doc, base)
}

func (s *Scraper) extract(doc *goquery.Document, base *url.URL) (domain.ScrapeResult, error) {
	result := domain.ScrapeResult{SourceHost: strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")}

	image := metaContent(doc, "meta[property='og:image']", "meta[name='twitter:image']", "meta[property='og:image:url']")
	if image == "" {
		image, _ = doc.Find("link[rel='image_src']").First().Attr("href")
	}

	doc.Find(junkSelectors).Remove()
	container := s.container(doc)
	if container != nil {
		result.FullText = s.toText(container)
		if image == "" {
			image = firstImage(container)
		}
	}
	if image != "" {
		result.ImageURL = absolute(base, image)
	}

	if utf8.RuneCountInString(result.FullText) >= minTextRunes {
		return result, nil
	}

	desc := metaContent(doc, "meta[property='og:description']", "meta[name='description']", "meta[name='twitter:description']")
	if desc == "" {
		return domain.ScrapeResult{}, ErrNoContent
	}
	s.log.Debug().Str("host", result.SourceHost).Msg("scraper: тело статьи не найдено, берём описание страницы")
	result.FullText = desc
	result.FromMetadata = true
	return result, nil
}

// container выбирает узел с самым длинным текстом среди известных селекторов,
// иначе собирает все абзацы страницы.
func (s *Scraper) container(doc *goquery.Document) *goquery.Selection {
	for _, sel := range containerSelectors {
		found := doc.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		if paragraphRunes(found) >= minTextRunes {
			return found
		}
	}
	paragraphs := doc.Find("body p")
	if paragraphs.Length() == 0 {
		return nil
	}
	return paragraphs
}

func paragraphRunes(sel *goquery.Selection) int {
	n := 0
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		n += utf8.RuneCountInString(strings.TrimSpace(p.Text()))
	})
	return n
}

// toText превращает HTML контейнера в чистый текст с абзацами через пустую строку.
func (s *Scraper) toText(sel *goquery.Selection) string {
	var html strings.Builder
	sel.Each(func(_ int, node *goquery.Selection) {
		if out, err := goquery.OuterHtml(node); err == nil {
			html.WriteString(out)
			html.WriteString("\n")
		}
	})
	markdown, err := s.converter.ConvertString(html.String())
	if err != nil {
		return strings.TrimSpace(sel.Text())
	}
	return cleanMarkdown(markdown)
}

func cleanMarkdown(text string) string {
	text = mdImage.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdEmphasis.ReplaceAllString(text, "$2")
	text = mdHeading.ReplaceAllString(text, "")
	text = escapedMark.ReplaceAllString(text, "$1")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstImage(sel *goquery.Selection) string {
	var src string
	sel.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
			if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
				src = v
				return false
			}
		}
		return true
	})
	return src
}

func absolute(base *url.URL, ref string) string {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return base.ResolveReference(r).String()
}
