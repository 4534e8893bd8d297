package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/feed"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/hosting"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/imagegen"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/repo"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/scraper"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/telegram"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/thumbnail"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/writer"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/browser"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/cache"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/config"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/db"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/gemini"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/log"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/openai"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/usecase/publish"
)

// store объединяет хранилище публикаций и реестр пользователей.
type store interface {
	domain.PostStore
	domain.UserRepo
}

// app держит собранные компоненты и закрывает их в Close.
type app struct {
	cfg       config.AppConfig
	log       zerolog.Logger
	pool      *pgxpool.Pool
	redis     *redis.Client
	gemini    *gemini.Client
	store     store
	feeds     []domain.Feed
	bot       *tgbotapi.BotAPI
	publisher *publish.Service
}

// openStore подключает Postgres или, без PG_DSN, хранилище в памяти.
func openStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (store, *pgxpool.Pool, error) {
	if cfg.PGDSN == "" {
		logger.Warn().Msg("PG_DSN не задан: отметки о публикациях хранятся в памяти и пропадут при перезапуске")
		return repo.NewMemory(), nil, nil
	}
	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("подключение к БД: %w", err)
	}
	pg := repo.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("схема БД: %w", err)
	}
	return pg, pool, nil
}

func newApp(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*app, error) {
	if cfg.Telegram.Token == "" {
		return nil, errors.New("TG_BOT_TOKEN не задан")
	}
	channel, err := domain.ParseChat(cfg.Telegram.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("TG_CHANNEL_ID: %w", err)
	}
	feeds, err := config.LoadFeeds(cfg.Pipeline.FeedsFile, cfg.Pipeline.FeedItemsLimit)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: logger, feeds: feeds}
	a.store, a.pool, err = openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var claims domain.Claimer = cache.NewMemory()
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis недоступен, блокировки в памяти")
		} else {
			a.redis = client
			claims = cache.NewRedis(client)
		}
	}

	a.bot, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("создание бота: %w", err)
	}
	logger.Info().Str("bot", a.bot.Self.UserName).Str("channel", channel.String()).Int("feeds", len(feeds)).Msg("бот авторизован")

	backends := a.textBackends(ctx)
	gen := writer.NewGenerator(backends, writer.Options{
		QuotaRetries: cfg.Generator.QuotaRetries,
		QuotaBackoff: cfg.Generator.QuotaBackoff,
		Timeout:      cfg.Generator.Timeout,
	}, log.Component(logger, "writer"))
	if !gen.Active() {
		logger.Warn().Msg("генеративные бэкенды не настроены: подписи и статьи собираются по шаблону")
	}

	browserClient := browser.NewClient(cfg.Pipeline.ScrapeTimeout)
	uploadClient := &http.Client{Timeout: 60 * time.Second}

	composer := thumbnail.New(browserClient, thumbnail.Options{
		AssetsDir: cfg.Thumbnail.AssetsDir,
		Watermark: cfg.Thumbnail.Watermark,
		MaxBytes:  cfg.Thumbnail.MaxBytes,
	}, log.Component(logger, "thumbnail"))

	deps := publish.Deps{
		Store:       a.store,
		Claims:      claims,
		Feeds:       feed.NewPoller(browserClient, cfg.Pipeline.FeedItemsLimit, log.Component(logger, "feed")),
		Scraper:     scraper.New(browserClient, log.Component(logger, "scraper")),
		Captions:    gen,
		Articles:    gen,
		Thumbnails:  composer,
		ImageHost:   hosting.NewCatbox(uploadClient, cfg.Hosting.CatboxUserHash),
		ArticleHost: hosting.NewTelegraph(uploadClient, cfg.Hosting.TelegraphToken),
		Sink:        telegram.NewSink(a.bot, log.Component(logger, "telegram")),
	}
	hf, err := imagegen.NewHuggingFace(cfg.HuggingFace.Token, cfg.HuggingFace.ImageModel, 0)
	switch {
	case err == nil:
		deps.Images = hf
	case !errors.Is(err, domain.ErrInactive):
		logger.Warn().Err(err).Msg("генератор картинок отключён")
	}

	a.publisher = publish.NewService(deps, publish.Options{
		Channel:             channel,
		PostDelay:           cfg.Pipeline.PostDelay,
		RecordOnSendFailure: cfg.Pipeline.RecordOnSendFailure,
		PublishSummaryPages: cfg.Pipeline.PublishSummaryPages,
		ClaimTTL:            cfg.Pipeline.ClaimTTL,
		ArticleAuthor:       cfg.Hosting.ArticleAuthor,
		ImagePrompt:         imagegen.AnimePrompt,
	}, log.Component(logger, "publish"))
	return a, nil
}

// textBackends собирает кандидатов в порядке: модели Gemini, затем OpenAI-совместимые.
func (a *app) textBackends(ctx context.Context) []writer.Backend {
	var backends []writer.Backend
	gc, err := gemini.NewClient(ctx, a.cfg.Gemini.APIKey)
	switch {
	case err == nil:
		a.gemini = gc
		for _, name := range a.cfg.Gemini.Models {
			backends = append(backends, gc.Model(name))
		}
	case !errors.Is(err, domain.ErrInactive):
		a.log.Warn().Err(err).Msg("Gemini недоступен")
	}
	if a.cfg.OpenAI.APIKey != "" {
		oc := openai.NewClient(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.BaseURL, a.cfg.OpenAI.Timeout)
		for _, name := range a.cfg.OpenAI.Models {
			backends = append(backends, oc.Model(name))
		}
	}
	for _, b := range backends {
		a.log.Debug().Str("backend", b.Name()).Msg("генеративный бэкенд подключён")
	}
	return backends
}

// Close освобождает соединения.
func (a *app) Close() {
	if a.gemini != nil {
		_ = a.gemini.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
