// Package publish проводит одну запись ленты через цепочку обогащения
// и публикует результат в канал.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

// Outcome — итог обработки одной записи.
type Outcome string

const (
	// OutcomeSkipped — ссылка уже опубликована.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeBusy — запись обрабатывает параллельный прогон.
	OutcomeBusy Outcome = "busy"
	// OutcomeSent — пост доставлен и записан.
	OutcomeSent Outcome = "sent"
	// OutcomeSendFailed — доставка не удалась.
	OutcomeSendFailed Outcome = "send_failed"
)

// Deps — коллабораторы оркестратора. Необязательные поля могут быть nil.
type Deps struct {
	Store    domain.PostStore
	Claims   domain.Claimer
	Feeds    domain.FeedSource
	Scraper  domain.Scraper
	Captions domain.CaptionWriter
	Articles domain.ArticleWriter
	// Images рисует картинку, если ни статья, ни лента её не дали.
	Images      domain.ImageGenerator
	Thumbnails  domain.ThumbnailComposer
	ImageHost   domain.ImageHost
	ArticleHost domain.ArticleHost
	Sink        domain.Sink
}

// Options настраивает политику публикации.
type Options struct {
	Channel   domain.Chat
	PostDelay time.Duration
	// RecordOnSendFailure записывает ссылку даже при ошибке доставки,
	// чтобы не повторять пост в следующем цикле.
	RecordOnSendFailure bool
	// PublishSummaryPages публикует страницу статьи и без полного текста.
	PublishSummaryPages bool
	ClaimTTL            time.Duration
	ArticleAuthor       string
	ImagePrompt         func(title string) string
}

// CycleStats подытоживает один цикл опроса.
type CycleStats struct {
	Feeds      int
	FeedErrors int
	Entries    int
	Sent       int
	Skipped    int
	Failed     int
}

// Service — оркестратор публикации.
type Service struct {
	deps Deps
	opts Options
	log  zerolog.Logger
}

// NewService создаёт оркестратор.
func NewService(deps Deps, opts Options, logger zerolog.Logger) *Service {
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 10 * time.Minute
	}
	if opts.ImagePrompt == nil {
		opts.ImagePrompt = strings.TrimSpace
	}
	return &Service{deps: deps, opts: opts, log: logger}
}

// RunCycle опрашивает ленты по очереди и обрабатывает записи последовательно.
// Ошибка одной ленты или записи не прерывает цикл.
func (s *Service) RunCycle(ctx context.Context, feeds []domain.Feed) CycleStats {
	start := time.Now()
	defer func() { metrics.CycleSeconds.Observe(time.Since(start).Seconds()) }()

	var stats CycleStats
	for _, fd := range feeds {
		if ctx.Err() != nil {
			return stats
		}
		stats.Feeds++
		log := s.log.With().Str("feed", fd.URL).Logger()
		entries, err := s.deps.Feeds.Poll(ctx, fd)
		if err != nil {
			stats.FeedErrors++
			log.Error().Err(err).Msg("publish: лента пропущена")
			continue
		}
		for _, entry := range entries {
			if ctx.Err() != nil {
				return stats
			}
			stats.Entries++
			outcome, err := s.processSafe(ctx, entry)
			switch {
			case err != nil:
				stats.Failed++
				log.Error().Err(err).Str("link", entry.Link).Msg("publish: запись не обработана")
			case outcome == OutcomeSent:
				stats.Sent++
				s.pause(ctx)
			case outcome == OutcomeSendFailed:
				stats.Failed++
			default:
				stats.Skipped++
			}
		}
	}
	s.log.Info().
		Int("feeds", stats.Feeds).
		Int("entries", stats.Entries).
		Int("sent", stats.Sent).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Dur("took", time.Since(start)).
		Msg("publish: цикл завершён")
	return stats
}

func (s *Service) processSafe(ctx context.Context, entry domain.FeedEntry) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Process(ctx, entry)
}

func (s *Service) pause(ctx context.Context) {
	if s.opts.PostDelay <= 0 {
		return
	}
	t := time.NewTimer(s.opts.PostDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Process проводит запись через все этапы: проверка дубля, обогащение,
// отправка и запись в хранилище. Ошибка возвращается только если
// хранилище недоступно и судьбу записи определить нельзя.
func (s *Service) Process(ctx context.Context, entry domain.FeedEntry) (Outcome, error) {
	link := strings.TrimSpace(entry.Link)
	if link == "" {
		return "", errors.New("publish: пустая ссылка")
	}
	log := s.log.With().Str("link", link).Logger()

	posted, err := s.deps.Store.IsPosted(ctx, link)
	if err != nil {
		return "", fmt.Errorf("проверка публикации: %w", err)
	}
	if posted {
		metrics.IncPost(string(OutcomeSkipped))
		return OutcomeSkipped, nil
	}

	if s.deps.Claims != nil {
		ok, err := s.deps.Claims.Claim(ctx, link, s.opts.ClaimTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("publish: блокировка недоступна, продолжаем без неё")
		case !ok:
			metrics.IncPost(string(OutcomeBusy))
			return OutcomeBusy, nil
		default:
			defer func() {
				if err := s.deps.Claims.Release(context.WithoutCancel(ctx), link); err != nil {
					log.Warn().Err(err).Msg("publish: не удалось снять блокировку")
				}
			}()
			// Другой прогон мог опубликовать ссылку между проверкой и блокировкой.
			posted, err := s.deps.Store.IsPosted(ctx, link)
			if err != nil {
				return "", fmt.Errorf("повторная проверка публикации: %w", err)
			}
			if posted {
				metrics.IncPost(string(OutcomeSkipped))
				return OutcomeSkipped, nil
			}
		}
	}

	post := s.Enrich(ctx, entry)
	sendErr := s.deliver(ctx, s.opts.Channel, post)
	outcome := OutcomeSent
	if sendErr != nil {
		outcome = OutcomeSendFailed
		log.Error().Err(sendErr).Msg("publish: отправка не удалась")
	}

	if sendErr == nil || s.opts.RecordOnSendFailure {
		inserted, err := s.deps.Store.AddPost(ctx, link, entry.Title)
		if err != nil {
			log.Error().Err(err).Msg("publish: не удалось записать публикацию")
		} else if !inserted {
			log.Warn().Msg("publish: ссылка уже записана другим прогоном")
		}
	}
	metrics.IncPost(string(outcome))
	if outcome == OutcomeSent {
		log.Info().Str("title", entry.Title).Bool("scraped", post.Scraped).Bool("photo", !post.Photo.Empty()).Msg("publish: пост опубликован")
	}
	return outcome, nil
}

// Preview собирает пост и отправляет его в указанный чат без записи в хранилище.
func (s *Service) Preview(ctx context.Context, entry domain.FeedEntry, chat domain.Chat) error {
	return s.deliver(ctx, chat, s.Enrich(ctx, entry))
}

// SampleEntry — фиксированная запись для пробной публикации.
func SampleEntry() domain.FeedEntry {
	return domain.FeedEntry{
		Link:       "https://www.animenewsnetwork.com/news/",
		Title:      "Frieren: Beyond Journey's End Season 2 Announced",
		RawSummary: "The staff of the hit fantasy anime revealed a teaser visual and confirmed that the second season is in production.",
		FeedName:   "sample",
	}
}

// Enrich строит все производные артефакты записи. Каждый этап при ошибке
// деградирует к запасному варианту и не прерывает обработку.
func (s *Service) Enrich(ctx context.Context, entry domain.FeedEntry) domain.EnrichedPost {
	log := s.log.With().Str("link", entry.Link).Logger()
	post := domain.EnrichedPost{Entry: entry, SourceName: SourceName(entry.Link)}

	if s.deps.Scraper != nil {
		res, err := s.deps.Scraper.Scrape(ctx, entry.Link)
		if err != nil {
			log.Warn().Err(err).Msg("publish: скрапинг не удался, используем данные ленты")
			metrics.IncFallback("scrape")
		} else {
			post.Scrape = res
			post.Scraped = !res.FromMetadata && strings.TrimSpace(res.FullText) != ""
		}
	}

	summary := strings.TrimSpace(entry.RawSummary)
	if summary == "" {
		summary = strings.TrimSpace(post.Scrape.FullText)
	}
	body := summary
	if post.Scraped {
		body = post.Scrape.FullText
	}
	imageURL := post.Scrape.ImageURL
	if imageURL == "" && entry.HasMedia() {
		imageURL = strings.TrimSpace(entry.MediaURL)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		post.Caption = s.deps.Captions.GenerateCaption(gctx, entry.Title, summary, post.SourceName)
		return nil
	})
	g.Go(func() error {
		post.ArticleHTML = s.deps.Articles.GenerateArticleHTML(gctx, entry.Title, body, imageURL)
		return nil
	})
	_ = g.Wait()

	post.Photo = s.photo(ctx, log, &post, imageURL)

	if s.deps.ArticleHost != nil && (post.Scraped || s.opts.PublishSummaryPages) {
		pageURL, err := s.deps.ArticleHost.PublishArticle(ctx, entry.Title, post.ArticleHTML, s.opts.ArticleAuthor)
		if err != nil {
			log.Warn().Err(err).Msg("publish: страница статьи не создана")
			metrics.IncFallback("article_host")
		} else {
			post.ArticleURL = pageURL
		}
	}

	target := post.ArticleURL
	if target == "" {
		target = entry.Link
	}
	post.Button = &domain.Button{Text: buttonText, URL: target}

	limit := textMessageLimit
	if !post.Photo.Empty() {
		limit = photoCaptionLimit
	}
	post.Message = BuildMessage(post.Caption, Footer(entry.Link, post.SourceName), limit)
	return post
}

// photo выбирает, что отправить картинкой: загруженное превью, его байты
// или исходную картинку.
func (s *Service) photo(ctx context.Context, log zerolog.Logger, post *domain.EnrichedPost, imageURL string) domain.ImageSource {
	src := domain.ImageSource{URL: imageURL}
	if src.Empty() && s.deps.Images != nil {
		data, err := s.deps.Images.GenerateImage(ctx, s.opts.ImagePrompt(post.Entry.Title))
		switch {
		case err == nil:
			src = domain.ImageSource{Data: data}
		case !errors.Is(err, domain.ErrInactive):
			log.Warn().Err(err).Msg("publish: генерация картинки не удалась")
			metrics.IncFallback("image_gen")
		}
	}
	if src.Empty() {
		return src
	}

	if s.deps.Thumbnails != nil {
		data, err := s.deps.Thumbnails.Compose(ctx, src, post.Entry.Title)
		if err != nil {
			log.Warn().Err(err).Msg("publish: превью не собрано, отправим исходную картинку")
			metrics.IncFallback("thumbnail")
		} else {
			post.Thumbnail = data
		}
	}
	if len(post.Thumbnail) == 0 {
		return src
	}

	if s.deps.ImageHost != nil {
		hosted, err := s.deps.ImageHost.UploadImage(ctx, post.Thumbnail)
		if err == nil {
			return domain.ImageSource{URL: hosted}
		}
		log.Warn().Err(err).Msg("publish: загрузка превью не удалась, отправим байты")
		metrics.IncFallback("image_host")
	}
	return domain.ImageSource{Data: post.Thumbnail}
}

// deliver отправляет пост фото с подписью, а если фото не ушло, то текстом.
func (s *Service) deliver(ctx context.Context, chat domain.Chat, post domain.EnrichedPost) error {
	if !post.Photo.Empty() {
		err := s.deps.Sink.SendPhoto(ctx, chat, post.Photo, post.Message, post.Button)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		s.log.Warn().Err(err).Str("link", post.Entry.Link).Msg("publish: фото не отправлено, пробуем текстом")
		metrics.IncFallback("photo_send")
	}
	return s.deps.Sink.SendText(ctx, chat, post.Message, post.Button)
}
