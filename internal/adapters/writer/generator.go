// Package writer генерирует подпись и HTML-статью через цепочку генеративных
// бэкендов с детерминированным запасным вариантом.
package writer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/textstyle"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/retry"
)

// ErrExhausted возвращается, когда ни один кандидат не ответил.
var ErrExhausted = errors.New("writer: all backends failed")

// Backend — один кандидат генерации текста (конкретная модель конкретного API).
type Backend interface {
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Options настраивает поведение цепочки.
type Options struct {
	// QuotaRetries — сколько раз повторить того же кандидата при ErrQuotaExceeded.
	QuotaRetries int
	QuotaBackoff time.Duration
	// Timeout ограничивает одну попытку.
	Timeout time.Duration
}

// summaryRunes — длина описания в запасной подписи.
const summaryRunes = 200

// Generator реализует domain.CaptionWriter и domain.ArticleWriter.
type Generator struct {
	backends []Backend
	opts     Options
	log      zerolog.Logger
}

var (
	_ domain.CaptionWriter = (*Generator)(nil)
	_ domain.ArticleWriter = (*Generator)(nil)
)

// NewGenerator создаёт генератор. Пустой список бэкендов означает неактивный режим:
// всегда используется шаблон.
func NewGenerator(backends []Backend, opts Options, logger zerolog.Logger) *Generator {
	if opts.QuotaBackoff <= 0 {
		opts.QuotaBackoff = 5 * time.Second
	}
	return &Generator{backends: backends, opts: opts, log: logger}
}

// Active сообщает, настроен ли хотя бы один бэкенд.
func (g *Generator) Active() bool { return len(g.backends) > 0 }

// Complete обходит кандидатов по порядку и возвращает первый успешный ответ.
func (g *Generator) Complete(ctx context.Context, system, prompt string) (string, error) {
	if !g.Active() {
		return "", domain.ErrInactive
	}
	var lastErr error
	for _, b := range g.backends {
		text, err := g.try(ctx, b, system, prompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		g.log.Warn().Err(err).Str("backend", b.Name()).Msg("writer: кандидат не ответил, переходим к следующему")
	}
	return "", fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// try вызывает кандидата, повторяя его только при исчерпании квоты.
func (g *Generator) try(ctx context.Context, b Backend, system, prompt string) (string, error) {
	policy := retry.Policy{MaxRetries: uint64(max(g.opts.QuotaRetries, 0)), Initial: g.opts.QuotaBackoff, Max: 4 * g.opts.QuotaBackoff}
	return retry.Do(ctx, policy, func() (string, error) {
		callCtx := ctx
		if g.opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
			defer cancel()
		}
		text, err := b.Generate(callCtx, system, prompt)
		if err != nil && !errors.Is(err, domain.ErrQuotaExceeded) {
			return "", retry.Permanent(err)
		}
		if err == nil && strings.TrimSpace(text) == "" {
			return "", retry.Permanent(errors.New("empty response"))
		}
		return text, err
	})
}

// GenerateCaption возвращает стилизованную подпись. Никогда не падает.
func (g *Generator) GenerateCaption(ctx context.Context, title, summary, source string) string {
	raw, err := g.Complete(ctx, captionSystem, captionPrompt(title, summary, source))
	if err != nil {
		if !errors.Is(err, domain.ErrInactive) {
			g.log.Warn().Err(err).Msg("writer: подпись по шаблону")
		}
		metrics.IncFallback("caption")
		return FallbackCaption(title, summary)
	}
	caption := StyleCaption(raw, title)
	if caption == "" {
		metrics.IncFallback("caption")
		return FallbackCaption(title, summary)
	}
	return caption
}

// GenerateArticleHTML возвращает HTML статьи. Никогда не падает.
func (g *Generator) GenerateArticleHTML(ctx context.Context, title, fullText, imageURL string) string {
	raw, err := g.Complete(ctx, articleSystem, articlePrompt(title, fullText, imageURL))
	if err != nil {
		if !errors.Is(err, domain.ErrInactive) {
			g.log.Warn().Err(err).Msg("writer: статья по шаблону")
		}
		metrics.IncFallback("article")
		return FallbackArticleHTML(title, fullText, imageURL)
	}
	body := StripCodeFence(raw)
	if !strings.Contains(body, "<") {
		metrics.IncFallback("article")
		return FallbackArticleHTML(title, body, imageURL)
	}
	if imageURL != "" && !strings.Contains(body, imageURL) {
		body = imageTag(imageURL) + body
	}
	return body
}

// FallbackCaption — жирное название и начало описания.
func FallbackCaption(title, summary string) string {
	head := textstyle.Convert(strings.TrimSpace(title), textstyle.BoldSans)
	summary = Clip(strings.TrimSpace(summary), summaryRunes)
	if summary == "" {
		return head
	}
	return head + "\n\n" + summary
}

// FallbackArticleHTML собирает статью из картинки, заголовка и абзацев текста.
func FallbackArticleHTML(title, text, imageURL string) string {
	var b strings.Builder
	if imageURL != "" {
		b.WriteString(imageTag(imageURL))
	}
	b.WriteString("<h3>")
	b.WriteString(html.EscapeString(strings.TrimSpace(title)))
	b.WriteString("</h3>")
	for _, para := range splitParagraphs(text) {
		lines := strings.Split(para, "\n")
		for i := range lines {
			lines[i] = html.EscapeString(strings.TrimSpace(lines[i]))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

func imageTag(url string) string {
	return `<img src="` + html.EscapeString(url) + `">`
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StripCodeFence убирает обрамляющие ``` (в том числе ```html).
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Clip укладывает строку в n рун вместе с многоточием, по возможности по границе слова.
func Clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	runes := []rune(s)
	cut := string(runes[:n-1])
	if i := strings.LastIndexAny(cut, " \n\t"); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
