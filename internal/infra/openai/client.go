package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

// chatAPI — часть go-openai, которой пользуется клиент. Нужна для тестов.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Client выполняет Chat Completions запросы к OpenAI-совместимому API.
type Client struct {
	api         chatAPI
	temperature float32
	maxTokens   int
}

// NewClient создаёт клиента OpenAI. Пустой baseURL означает api.openai.com.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout + 5*time.Second}
	return &Client{api: goopenai.NewClientWithConfig(cfg), temperature: 0.7, maxTokens: 2048}
}

// Model возвращает бэкенд генерации для конкретной модели.
func (c *Client) Model(name string) *Model {
	return &Model{client: c, name: name}
}

// Model — одна модель OpenAI как кандидат генератора текста.
type Model struct {
	client *Client
	name   string
}

// Name возвращает идентификатор кандидата для логов.
func (m *Model) Name() string { return "openai/" + m.name }

// Generate отправляет системную инструкцию и запрос, возвращает текст ответа.
func (m *Model) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       m.name,
		Temperature: m.client.temperature,
		MaxTokens:   m.client.maxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
	start := time.Now()
	resp, err := m.client.api.CreateChatCompletion(ctx, req)
	metrics.ObserveNetworkRequest("openai", "chat_completions", m.name, start, err)
	if err != nil {
		return "", classify(err)
	}
	metrics.ObserveLLMGeneration(m.name, time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai: empty content")
	}
	return text, nil
}

// classify сводит ошибки API к доменным ErrQuotaExceeded и ErrModelUnavailable.
func classify(err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("openai: %w: %v", domain.ErrQuotaExceeded, err)
	case http.StatusNotFound:
		return fmt.Errorf("openai: %w: %v", domain.ErrModelUnavailable, err)
	}
	return fmt.Errorf("openai: %w", err)
}
