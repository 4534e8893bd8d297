// Package gemini подключает Google Gemini через официальный SDK
// как кандидата генератора текста.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

// Client держит соединение с Gemini API.
type Client struct {
	api *genai.Client
}

// NewClient создаёт клиента по ключу API.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.ErrInactive
	}
	api, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Client{api: api}, nil
}

// Close освобождает соединение.
func (c *Client) Close() error {
	return c.api.Close()
}

// Model возвращает кандидата для указанной модели.
func (c *Client) Model(name string) *Model {
	return &Model{client: c, name: name}
}

// Model — одна модель Gemini.
type Model struct {
	client *Client
	name   string
}

// Name возвращает идентификатор кандидата для логов.
func (m *Model) Name() string { return "gemini/" + m.name }

// Generate выполняет один запрос generateContent.
func (m *Model) Generate(ctx context.Context, system, prompt string) (string, error) {
	model := m.client.api.GenerativeModel(m.name)
	model.SetTemperature(0.7)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	metrics.ObserveNetworkRequest("gemini", "generate_content", m.name, start, err)
	if err != nil {
		return "", classify(err)
	}
	if resp.UsageMetadata != nil {
		metrics.ObserveLLMGeneration(m.name, time.Since(start),
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
			int(resp.UsageMetadata.TotalTokenCount))
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// classify сводит ошибки SDK к доменным ErrQuotaExceeded и ErrModelUnavailable.
// Сначала смотрим коды googleapi и gRPC; по тексту распознаём только квоту,
// потому что числа вроде 404 встречаются в URL и идентификаторах.
func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("gemini: %w: %v", domain.ErrQuotaExceeded, err)
		case http.StatusNotFound:
			return fmt.Errorf("gemini: %w: %v", domain.ErrModelUnavailable, err)
		}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return fmt.Errorf("gemini: %w: %v", domain.ErrQuotaExceeded, err)
		case codes.NotFound:
			return fmt.Errorf("gemini: %w: %v", domain.ErrModelUnavailable, err)
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "resourceexhausted") || strings.Contains(msg, "quota") {
		return fmt.Errorf("gemini: %w: %v", domain.ErrQuotaExceeded, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
