package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/retry"
)

// Sender — часть BotAPI, которой достаточно для отправки.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sink доставляет посты в Telegram и реализует domain.Sink.
type Sink struct {
	bot    Sender
	log    zerolog.Logger
	policy retry.Policy
}

var _ domain.Sink = (*Sink)(nil)

// NewSink создаёт отправителя. Повторяются только ответы flood wait.
func NewSink(bot Sender, logger zerolog.Logger) *Sink {
	return &Sink{bot: bot, log: logger, policy: retry.Policy{MaxRetries: 2, Initial: time.Second, Max: 30 * time.Second}}
}

// floodWait — ошибка Telegram 429 с подсказкой ожидания.
type floodWait struct {
	err  error
	wait time.Duration
}

func (f floodWait) Error() string             { return f.err.Error() }
func (f floodWait) Unwrap() error             { return f.err }
func (f floodWait) RetryAfter() time.Duration { return f.wait }

// SendText отправляет текст; длинный текст режется, кнопка идёт под последней частью.
func (s *Sink) SendText(ctx context.Context, chat domain.Chat, text string, button *domain.Button) error {
	parts := SplitMessage(text, MessageLimit)
	if len(parts) == 0 {
		return errors.New("telegram: empty message")
	}
	for i, part := range parts {
		var msg tgbotapi.MessageConfig
		if chat.Username != "" {
			msg = tgbotapi.NewMessageToChannel(chat.Username, part)
		} else {
			msg = tgbotapi.NewMessage(chat.ID, part)
		}
		if i == len(parts)-1 {
			if markup := keyboard(button); markup != nil {
				msg.ReplyMarkup = markup
			}
		}
		if err := s.send(ctx, "send_message", chat, msg); err != nil {
			return err
		}
	}
	return nil
}

// SendPhoto отправляет фото байтами или ссылкой с подписью и кнопкой.
func (s *Sink) SendPhoto(ctx context.Context, chat domain.Chat, photo domain.ImageSource, caption string, button *domain.Button) error {
	var file tgbotapi.RequestFileData
	switch {
	case len(photo.Data) > 0:
		file = tgbotapi.FileBytes{Name: "thumbnail.jpg", Bytes: photo.Data}
	case photo.URL != "":
		file = tgbotapi.FileURL(photo.URL)
	default:
		return errors.New("telegram: empty photo")
	}
	var cfg tgbotapi.PhotoConfig
	if chat.Username != "" {
		cfg = tgbotapi.NewPhotoToChannel(chat.Username, file)
	} else {
		cfg = tgbotapi.NewPhoto(chat.ID, file)
	}
	cfg.Caption = ClipRunes(caption, CaptionLimit)
	if markup := keyboard(button); markup != nil {
		cfg.ReplyMarkup = markup
	}
	return s.send(ctx, "send_photo", chat, cfg)
}

func (s *Sink) send(ctx context.Context, op string, chat domain.Chat, c tgbotapi.Chattable) error {
	_, err := retry.Do(ctx, s.policy, func() (struct{}, error) {
		start := time.Now()
		_, err := s.bot.Send(c)
		metrics.ObserveNetworkRequest("telegram_bot", op, chat.String(), start, err)
		if err == nil {
			return struct{}{}, nil
		}
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			s.log.Warn().Int("retry_after", apiErr.RetryAfter).Str("chat", chat.String()).Msg("telegram: flood wait")
			return struct{}{}, floodWait{err: err, wait: time.Duration(apiErr.RetryAfter) * time.Second}
		}
		return struct{}{}, retry.Permanent(err)
	})
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", op, err)
	}
	return nil
}

func keyboard(button *domain.Button) *tgbotapi.InlineKeyboardMarkup {
	if button == nil || button.URL == "" {
		return nil
	}
	text := button.Text
	if text == "" {
		text = "Read More"
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(text, button.URL)),
	)
	return &markup
}
