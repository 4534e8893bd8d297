// Package hosting публикует картинки на catbox.moe и статьи на telegra.ph.
package hosting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

// ErrUpload — хостинг не вернул пригодную ссылку.
var ErrUpload = errors.New("hosting: upload failed")

const catboxEndpoint = "https://catbox.moe/user/api.php"

// Catbox реализует domain.ImageHost.
type Catbox struct {
	http     *http.Client
	endpoint string
	userHash string
}

var _ domain.ImageHost = (*Catbox)(nil)

// NewCatbox создаёт загрузчик. userHash необязателен.
func NewCatbox(client *http.Client, userHash string) *Catbox {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Catbox{http: client, endpoint: catboxEndpoint, userHash: userHash}
}

// UploadImage отправляет JPEG одной попыткой и возвращает прямую ссылку.
func (c *Catbox) UploadImage(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrUpload)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("reqtype", "fileupload")
	_ = mw.WriteField("userhash", c.userHash)
	part, err := mw.CreateFormFile("fileToUpload", "image.jpg")
	if err != nil {
		return "", fmt.Errorf("catbox: form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("catbox: write file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("catbox: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("catbox: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("catbox", "upload", "catbox.moe", start, err)
		return "", fmt.Errorf("catbox: do request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%w: catbox status %d: %s", ErrUpload, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	link := strings.TrimSpace(string(raw))
	if err == nil && !strings.HasPrefix(link, "https://") && !strings.HasPrefix(link, "http://") {
		err = fmt.Errorf("%w: catbox answered %q", ErrUpload, link)
	}
	metrics.ObserveNetworkRequest("catbox", "upload", "catbox.moe", start, err)
	if err != nil {
		return "", err
	}
	return link, nil
}
