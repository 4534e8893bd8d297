package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
)

type chatStub struct {
	req  goopenai.ChatCompletionRequest
	resp goopenai.ChatCompletionResponse
	err  error
}

func (s *chatStub) CreateChatCompletion(_ context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	s.req = req
	return s.resp, s.err
}

func TestGenerateSendsSystemAndPrompt(t *testing.T) {
	stub := &chatStub{resp: goopenai.ChatCompletionResponse{Choices: []goopenai.ChatCompletionChoice{{Message: goopenai.ChatCompletionMessage{Content: "  ответ  "}}}}}
	m := (&Client{api: stub}).Model("gpt-test")
	got, err := m.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != "ответ" {
		t.Fatalf("ожидали обрезанный ответ, получили %q", got)
	}
	if stub.req.Model != "gpt-test" || len(stub.req.Messages) != 2 || stub.req.Messages[0].Content != "sys" {
		t.Fatalf("неожиданный запрос: %+v", stub.req)
	}
	if m.Name() != "openai/gpt-test" {
		t.Fatalf("неожиданное имя: %s", m.Name())
	}
}

func TestGenerateClassifiesErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrQuotaExceeded},
		{http.StatusNotFound, domain.ErrModelUnavailable},
	}
	for _, tc := range cases {
		stub := &chatStub{err: &goopenai.APIError{HTTPStatusCode: tc.status, Message: "x"}}
		_, err := (&Client{api: stub}).Model("m").Generate(context.Background(), "s", "p")
		if !errors.Is(err, tc.want) {
			t.Fatalf("для статуса %d ожидали %v, получили %v", tc.status, tc.want, err)
		}
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	stub := &chatStub{}
	if _, err := (&Client{api: stub}).Model("m").Generate(context.Background(), "s", "p"); err == nil {
		t.Fatal("ожидали ошибку на пустой ответ")
	}
}
