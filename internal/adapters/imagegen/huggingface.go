// Package imagegen рисует запасную картинку через HuggingFace text-to-image,
// когда у новости нет собственного изображения.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://router.huggingface.co/hf-inference/models/"
	negativePrompt = "blurry, low quality, ugly, text, watermark, bad anatomy, deformed"
	maxImageBytes  = 20 << 20
)

// HuggingFace реализует domain.ImageGenerator.
type HuggingFace struct {
	http    *http.Client
	baseURL string
	token   string
	model   string
}

var _ domain.ImageGenerator = (*HuggingFace)(nil)

// NewHuggingFace создаёт клиента. Без токена возвращает ErrInactive.
func NewHuggingFace(token, model string, timeout time.Duration) (*HuggingFace, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(model) == "" {
		return nil, domain.ErrInactive
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &HuggingFace{http: &http.Client{Timeout: timeout}, baseURL: defaultBaseURL, token: token, model: model}, nil
}

type textToImageRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters textToImageOpt `json:"parameters"`
}

type textToImageOpt struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// AnimePrompt дополняет заголовок стилевыми подсказками.
func AnimePrompt(title string) string {
	return "anime style, key visual, " + strings.TrimSpace(title) + ", masterpiece, vibrant colors, high contrast, 8k, detailed background"
}

// GenerateImage возвращает байты картинки (обычно JPEG или PNG).
func (h *HuggingFace) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(textToImageRequest{
		Inputs:     prompt,
		Parameters: textToImageOpt{NegativePrompt: negativePrompt, Width: 1024, Height: 768},
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+h.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("imagegen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	req.Header.Set("Authorization", "Bearer "+h.token)

	start := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("huggingface", "text_to_image", h.model, start, err)
		return nil, fmt.Errorf("imagegen: do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		err = fmt.Errorf("imagegen: status %s: %s", resp.Status, strings.TrimSpace(string(truncate(data, 300))))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired {
			err = fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
		}
	}
	if err == nil && !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		err = fmt.Errorf("imagegen: unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	metrics.ObserveNetworkRequest("huggingface", "text_to_image", h.model, start, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
