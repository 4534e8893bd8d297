package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
)

type senderStub struct {
	sent []tgbotapi.Chattable
	errs []error
}

func (s *senderStub) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.sent = append(s.sent, c)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{MessageID: len(s.sent)}, nil
}

func TestSendPhotoBytesWithButton(t *testing.T) {
	stub := &senderStub{}
	sink := NewSink(stub, zerolog.Nop())

	err := sink.SendPhoto(context.Background(), domain.Chat{Username: "@news"},
		domain.ImageSource{Data: []byte{0xff, 0xd8}}, strings.Repeat("x", 2000),
		&domain.Button{Text: "Read More", URL: "https://telegra.ph/a"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(stub.sent) != 1 {
		t.Fatalf("ожидали одну отправку, получили %d", len(stub.sent))
	}
	cfg, ok := stub.sent[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("ожидали PhotoConfig, получили %T", stub.sent[0])
	}
	if cfg.ChannelUsername != "@news" {
		t.Fatalf("неверный канал: %q", cfg.ChannelUsername)
	}
	if n := len([]rune(cfg.Caption)); n > CaptionLimit {
		t.Fatalf("подпись длиннее лимита: %d", n)
	}
	file, ok := cfg.File.(tgbotapi.FileBytes)
	if !ok || len(file.Bytes) != 2 {
		t.Fatalf("ожидали FileBytes, получили %T", cfg.File)
	}
	markup, ok := cfg.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	if !ok || *markup.InlineKeyboard[0][0].URL != "https://telegra.ph/a" {
		t.Fatalf("кнопка не прикреплена: %#v", cfg.ReplyMarkup)
	}
}

func TestSendPhotoURL(t *testing.T) {
	stub := &senderStub{}
	sink := NewSink(stub, zerolog.Nop())
	err := sink.SendPhoto(context.Background(), domain.Chat{ID: 42}, domain.ImageSource{URL: "https://x.test/a.jpg"}, "hi", nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	cfg := stub.sent[0].(tgbotapi.PhotoConfig)
	if cfg.ChatID != 42 || cfg.File != tgbotapi.FileURL("https://x.test/a.jpg") {
		t.Fatalf("неверный конфиг: %+v", cfg)
	}
	if cfg.ReplyMarkup != nil {
		t.Fatal("без кнопки разметки быть не должно")
	}
}

func TestSendTextSplitsAndAttachesButtonToLastPart(t *testing.T) {
	stub := &senderStub{}
	sink := NewSink(stub, zerolog.Nop())
	text := strings.Repeat("a", 3000) + "\n" + strings.Repeat("b", 3000)
	if err := sink.SendText(context.Background(), domain.Chat{ID: 1}, text, &domain.Button{URL: "https://x.test/a"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(stub.sent) != 2 {
		t.Fatalf("ожидали две части, получили %d", len(stub.sent))
	}
	if stub.sent[0].(tgbotapi.MessageConfig).ReplyMarkup != nil {
		t.Fatal("кнопка должна быть только под последней частью")
	}
	last := stub.sent[1].(tgbotapi.MessageConfig)
	markup := last.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	if markup.InlineKeyboard[0][0].Text != "Read More" {
		t.Fatalf("неверный текст кнопки: %q", markup.InlineKeyboard[0][0].Text)
	}
}

func TestSendRetriesFloodWait(t *testing.T) {
	flood := &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1}}
	stub := &senderStub{errs: []error{flood}}
	sink := NewSink(stub, zerolog.Nop())
	if err := sink.SendText(context.Background(), domain.Chat{ID: 1}, "hello", nil); err != nil {
		t.Fatalf("flood wait должен повторяться: %v", err)
	}
	if len(stub.sent) != 2 {
		t.Fatalf("ожидали повтор, отправок %d", len(stub.sent))
	}
}

func TestSendDoesNotRetryOtherErrors(t *testing.T) {
	stub := &senderStub{errs: []error{&tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}}}
	sink := NewSink(stub, zerolog.Nop())
	err := sink.SendPhoto(context.Background(), domain.Chat{ID: 1}, domain.ImageSource{URL: "https://x.test/a.jpg"}, "c", nil)
	if err == nil {
		t.Fatal("ожидали ошибку")
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		t.Fatalf("ошибка API должна сохраниться в цепочке: %v", err)
	}
	if len(stub.sent) != 1 {
		t.Fatalf("повторов быть не должно, отправок %d", len(stub.sent))
	}
}

func TestSendPhotoEmptySource(t *testing.T) {
	sink := NewSink(&senderStub{}, zerolog.Nop())
	if err := sink.SendPhoto(context.Background(), domain.Chat{ID: 1}, domain.ImageSource{}, "c", nil); err == nil {
		t.Fatal("пустая картинка должна давать ошибку")
	}
}
