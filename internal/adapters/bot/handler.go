package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/telegram"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/usecase/schedule"
)

// API — методы BotAPI, которые использует обработчик.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Trigger ставит внеочередной цикл опроса.
type Trigger interface {
	Trigger() bool
}

// Previewer собирает пост и отправляет его в чат без записи в хранилище.
type Previewer interface {
	Preview(ctx context.Context, entry domain.FeedEntry, chat domain.Chat) error
}

// Deps — зависимости обработчика. Status и Sample могут быть nil.
type Deps struct {
	Bot     API
	Users   domain.UserRepo
	Posts   domain.PostStore
	Trigger Trigger
	Preview Previewer
	IsOwner func(userID int64) bool
	Status  func() schedule.Status
	Sample  func() domain.FeedEntry
}

// Handler обслуживает админские команды бота.
type Handler struct {
	deps    Deps
	log     zerolog.Logger
	started time.Time
	now     func() time.Time
}

// NewHandler создаёт обработчик.
func NewHandler(deps Deps, log zerolog.Logger) *Handler {
	if deps.IsOwner == nil {
		deps.IsOwner = func(int64) bool { return false }
	}
	return &Handler{deps: deps, log: log, started: time.Now(), now: time.Now}
}

// Listen читает апдейты до закрытия канала или отмены ctx.
func (h *Handler) Listen(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	h.register(ctx, msg.From)

	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID
	owner := h.deps.IsOwner(msg.From.ID)
	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(chatID, buildStartMessage(owner), h.mainKeyboard(owner))
	case strings.HasPrefix(text, "/help"):
		h.reply(chatID, buildHelpMessage(owner), nil)
	case !strings.HasPrefix(text, "/"):
		return
	case !owner:
		h.reply(chatID, "⛔ Команда доступна только владельцам бота.", nil)
	case strings.HasPrefix(text, "/ping"):
		h.handlePing(chatID)
	case strings.HasPrefix(text, "/stats"):
		h.handleStats(ctx, chatID)
	case strings.HasPrefix(text, "/force"):
		h.handleForce(chatID)
	case strings.HasPrefix(text, "/testpost"):
		h.handleTestPost(ctx, chatID)
	default:
		h.reply(chatID, "Неизвестная команда. Используйте /help", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := h.deps.Bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		h.log.Warn().Err(err).Msg("bot: не удалось ответить на callback")
	}
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	if !h.deps.IsOwner(cb.From.ID) {
		h.reply(chatID, "⛔ Команда доступна только владельцам бота.", nil)
		return
	}
	switch cb.Data {
	case "stats":
		h.handleStats(ctx, chatID)
	case "force":
		h.handleForce(chatID)
	case "testpost":
		h.handleTestPost(ctx, chatID)
	}
}

func (h *Handler) register(ctx context.Context, from *tgbotapi.User) {
	if h.deps.Users == nil {
		return
	}
	if err := h.deps.Users.AddUser(ctx, from.ID, displayName(from)); err != nil {
		h.log.Error().Err(err).Int64("user_id", from.ID).Msg("bot: не удалось сохранить пользователя")
	}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" && u.UserName != "" {
		name = "@" + u.UserName
	}
	return name
}

func (h *Handler) handlePing(chatID int64) {
	start := h.now()
	sent, err := h.deps.Bot.Send(tgbotapi.NewMessage(chatID, "🏓 Pong!"))
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось отправить сообщение")
		return
	}
	latency := h.now().Sub(start).Milliseconds()
	edit := tgbotapi.NewEditMessageText(chatID, sent.MessageID, fmt.Sprintf("🏓 Pong! %d ms", latency))
	start = h.now()
	_, err = h.deps.Bot.Send(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Warn().Err(err).Msg("bot: не удалось обновить сообщение")
	}
}

func (h *Handler) handleStats(ctx context.Context, chatID int64) {
	lines := []string{"📊 Статистика", "", "⏱ Аптайм: " + formatUptime(h.now().Sub(h.started))}
	if h.deps.Users != nil {
		users, err := h.deps.Users.CountUsers(ctx)
		if err != nil {
			h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
			return
		}
		lines = append(lines, fmt.Sprintf("👥 Пользователей: %d", users))
	}
	if h.deps.Posts != nil {
		posts, err := h.deps.Posts.CountPosts(ctx)
		if err != nil {
			h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
			return
		}
		lines = append(lines, fmt.Sprintf("📰 Опубликовано: %d", posts))
	}
	if h.deps.Status != nil {
		st := h.deps.Status()
		lines = append(lines, fmt.Sprintf("🔁 Циклов: %d", st.Cycles))
		switch {
		case st.Running:
			lines = append(lines, "▶️ Цикл выполняется сейчас")
		case !st.LastStart.IsZero():
			lines = append(lines, fmt.Sprintf("🕒 Последний цикл: %s назад, длился %s",
				formatUptime(h.now().Sub(st.LastStart)), st.LastTook.Round(time.Second)))
		}
	}
	h.reply(chatID, strings.Join(lines, "\n"), nil)
}

func (h *Handler) handleForce(chatID int64) {
	if h.deps.Trigger == nil {
		h.reply(chatID, "Планировщик не запущен.", nil)
		return
	}
	if !h.deps.Trigger.Trigger() {
		h.reply(chatID, "⏳ Внеочередной цикл уже поставлен в очередь.", nil)
		return
	}
	h.reply(chatID, "⚡ Запускаю проверку лент.", nil)
}

func (h *Handler) handleTestPost(ctx context.Context, chatID int64) {
	if h.deps.Preview == nil || h.deps.Sample == nil {
		h.reply(chatID, "Пробная публикация недоступна.", nil)
		return
	}
	h.reply(chatID, "🧪 Собираю пробный пост…", nil)
	if err := h.deps.Preview.Preview(ctx, h.deps.Sample(), domain.Chat{ID: chatID}); err != nil {
		h.log.Error().Err(err).Msg("bot: пробный пост не отправлен")
		h.reply(chatID, fmt.Sprintf("Ошибка пробной публикации: %v", err), nil)
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text, telegram.MessageLimit)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.deps.Bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) mainKeyboard(owner bool) *tgbotapi.InlineKeyboardMarkup {
	if !owner {
		return nil
	}
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", "stats"),
			tgbotapi.NewInlineKeyboardButtonData("⚡ Проверить ленты", "force"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧪 Пробный пост", "testpost"),
		),
	)
	return &buttons
}

func buildStartMessage(owner bool) string {
	lines := []string{
		"👋 Привет! Я публикую свежие аниме-новости в канал.",
		"",
		"Новости собираются из RSS-лент, дополняются картинкой и короткой подписью.",
	}
	if owner {
		lines = append(lines, "", "Вы владелец: кнопки ниже управляют публикацией, полный список команд в /help.")
	}
	return strings.Join(lines, "\n")
}

func buildHelpMessage(owner bool) string {
	lines := []string{
		"📖 Команды:",
		"• /start — приветствие.",
		"• /help — эта справка.",
	}
	if owner {
		lines = append(lines,
			"",
			"Для владельцев:",
			"• /ping — задержка ответа бота.",
			"• /stats — аптайм, пользователи и публикации.",
			"• /force — проверить ленты прямо сейчас.",
			"• /testpost — прислать пробный пост в этот чат.",
		)
	}
	return strings.Join(lines, "\n")
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%dд %s", days, d)
	}
	return d.String()
}
