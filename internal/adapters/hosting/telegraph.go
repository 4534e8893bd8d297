package hosting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

const (
	telegraphAPI       = "https://api.telegra.ph"
	telegraphShortName = "AnimeNewsBot"
	maxTitleRunes      = 256
)

// Telegraph реализует domain.ArticleHost. Токен создаётся лениво при первой публикации,
// если не задан в конфигурации.
type Telegraph struct {
	http    *http.Client
	baseURL string

	mu    sync.Mutex
	token string
}

var _ domain.ArticleHost = (*Telegraph)(nil)

// NewTelegraph создаёт клиента.
func NewTelegraph(client *http.Client, token string) *Telegraph {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Telegraph{http: client, baseURL: telegraphAPI, token: token}
}

type telegraphResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

// PublishArticle создаёт страницу и возвращает её адрес.
func (t *Telegraph) PublishArticle(ctx context.Context, title, htmlBody, author string) (string, error) {
	token, err := t.accessToken(ctx, author)
	if err != nil {
		return "", err
	}
	nodes, err := HTMLToNodes(htmlBody)
	if err != nil {
		return "", fmt.Errorf("telegraph: convert html: %w", err)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%w: empty article", ErrUpload)
	}
	content, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("telegraph: marshal nodes: %w", err)
	}
	form := url.Values{
		"access_token":   {token},
		"title":          {clipTitle(title)},
		"author_name":    {author},
		"content":        {string(content)},
		"return_content": {"false"},
	}
	var page struct {
		URL string `json:"url"`
	}
	if err := t.call(ctx, "createPage", form, &page); err != nil {
		return "", err
	}
	if page.URL == "" {
		return "", fmt.Errorf("%w: telegraph returned no url", ErrUpload)
	}
	return page.URL, nil
}

func (t *Telegraph) accessToken(ctx context.Context, author string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" {
		return t.token, nil
	}
	var account struct {
		AccessToken string `json:"access_token"`
	}
	form := url.Values{"short_name": {telegraphShortName}, "author_name": {author}}
	if err := t.call(ctx, "createAccount", form, &account); err != nil {
		return "", err
	}
	if account.AccessToken == "" {
		return "", fmt.Errorf("%w: telegraph returned no token", ErrUpload)
	}
	t.token = account.AccessToken
	return t.token, nil
}

func (t *Telegraph) call(ctx context.Context, method string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegraph: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("telegraph", method, "telegra.ph", start, err)
		return fmt.Errorf("telegraph: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var envelope telegraphResponse
	if err == nil {
		err = json.Unmarshal(raw, &envelope)
	}
	if err == nil && !envelope.OK {
		err = fmt.Errorf("%w: telegraph %s: %s", ErrUpload, method, envelope.Error)
	}
	if err == nil {
		err = json.Unmarshal(envelope.Result, out)
	}
	metrics.ObserveNetworkRequest("telegraph", method, "telegra.ph", start, err)
	if err != nil {
		return fmt.Errorf("telegraph: %s: %w", method, err)
	}
	return nil
}

func clipTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "News"
	}
	r := []rune(title)
	if len(r) > maxTitleRunes {
		return string(r[:maxTitleRunes])
	}
	return title
}
