package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/feed"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/textstyle"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/writer"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
)

type storeStub struct {
	mu      sync.Mutex
	posted  map[string]string
	adds    int
	checkEr error
}

func newStore(links ...string) *storeStub {
	s := &storeStub{posted: make(map[string]string)}
	for _, l := range links {
		s.posted[l] = "old"
	}
	return s
}

func (s *storeStub) IsPosted(_ context.Context, link string) (bool, error) {
	if s.checkEr != nil {
		return false, s.checkEr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.posted[link]
	return ok, nil
}

func (s *storeStub) AddPost(_ context.Context, link, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds++
	if _, ok := s.posted[link]; ok {
		return false, nil
	}
	s.posted[link] = title
	return true, nil
}

func (s *storeStub) CountPosts(context.Context) (int, error) { return len(s.posted), nil }
func (s *storeStub) Reset(context.Context) (int64, error)   { return 0, nil }

type feedStub struct {
	entries map[string][]domain.FeedEntry
	errs    map[string]error
}

func (f feedStub) Poll(_ context.Context, fd domain.Feed) ([]domain.FeedEntry, error) {
	if err := f.errs[fd.URL]; err != nil {
		return nil, err
	}
	return f.entries[fd.URL], nil
}

type scraperStub struct {
	calls int
	res   domain.ScrapeResult
	err   error
}

func (s *scraperStub) Scrape(context.Context, string) (domain.ScrapeResult, error) {
	s.calls++
	return s.res, s.err
}

type writerStub struct {
	mu       sync.Mutex
	calls    int
	bodies   []string
	caption  string
	articleH string
}

func (w *writerStub) GenerateCaption(context.Context, string, string, string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return w.caption
}

func (w *writerStub) GenerateArticleHTML(_ context.Context, _, body, _ string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.bodies = append(w.bodies, body)
	return w.articleH
}

type composerStub struct {
	calls int
	err   error
}

func (c *composerStub) Compose(context.Context, domain.ImageSource, string) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []byte{0xff, 0xd8, 0xff}, nil
}

type imageHostStub struct {
	err error
}

func (h imageHostStub) UploadImage(context.Context, []byte) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "https://files.catbox.moe/abc.jpg", nil
}

type articleHostStub struct {
	calls int
}

func (h *articleHostStub) PublishArticle(context.Context, string, string, string) (string, error) {
	h.calls++
	return "https://telegra.ph/page-01-01", nil
}

type sent struct {
	Chat    domain.Chat
	Photo   domain.ImageSource
	Text    string
	Button  *domain.Button
	IsPhoto bool
}

type sinkStub struct {
	sent     []sent
	photoErr error
	textErr  error
}

func (s *sinkStub) SendText(_ context.Context, chat domain.Chat, text string, button *domain.Button) error {
	if s.textErr != nil {
		return s.textErr
	}
	s.sent = append(s.sent, sent{Chat: chat, Text: text, Button: button})
	return nil
}

func (s *sinkStub) SendPhoto(_ context.Context, chat domain.Chat, photo domain.ImageSource, caption string, button *domain.Button) error {
	if s.photoErr != nil {
		return s.photoErr
	}
	s.sent = append(s.sent, sent{Chat: chat, Photo: photo, Text: caption, Button: button, IsPhoto: true})
	return nil
}

var channel = domain.Chat{Username: "@anime_news"}

func TestProcessSkipsPostedWithoutSideEffects(t *testing.T) {
	store := newStore("https://x.test/a")
	scr := &scraperStub{}
	wr := &writerStub{}
	comp := &composerStub{}
	sink := &sinkStub{}
	svc := NewService(Deps{Store: store, Scraper: scr, Captions: wr, Articles: wr, Thumbnails: comp, Sink: sink},
		Options{Channel: channel, RecordOnSendFailure: true}, zerolog.Nop())

	outcome, err := svc.Process(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("ожидали skipped, получили %s", outcome)
	}
	if scr.calls+wr.calls+comp.calls+len(sink.sent)+store.adds != 0 {
		t.Fatalf("для опубликованной ссылки не должно быть вызовов: scrape=%d writer=%d compose=%d send=%d add=%d",
			scr.calls, wr.calls, comp.calls, len(sink.sent), store.adds)
	}
}

func TestProcessEndToEndWithFallbacks(t *testing.T) {
	store := newStore()
	gen := writer.NewGenerator(nil, writer.Options{}, zerolog.Nop())
	sink := &sinkStub{}
	svc := NewService(Deps{
		Store:       store,
		Scraper:     &scraperStub{err: errors.New("status 403")},
		Captions:    gen,
		Articles:    gen,
		Thumbnails:  &composerStub{},
		ArticleHost: &articleHostStub{},
		Sink:        sink,
	}, Options{Channel: channel, RecordOnSendFailure: true}, zerolog.Nop())

	entry := domain.FeedEntry{Link: "https://x.test/a", Title: "Show X Season 2 Confirmed", RawSummary: "Short blurb"}
	outcome, err := svc.Process(context.Background(), entry)
	if err != nil || outcome != OutcomeSent {
		t.Fatalf("ожидали sent без ошибки, получили %s, %v", outcome, err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("ожидали одну отправку, получили %d", len(sink.sent))
	}
	msg := sink.sent[0]
	if msg.IsPhoto {
		t.Fatal("без картинки должен уйти текст")
	}
	for _, want := range []string{textstyle.Convert(entry.Title, textstyle.BoldSans), "Short blurb", "Source: X"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("сообщение не содержит %q:\n%s", want, msg.Text)
		}
	}
	if diff := cmp.Diff(&domain.Button{Text: "Read More", URL: "https://x.test/a"}, msg.Button); diff != "" {
		t.Fatalf("кнопка (-want +got):\n%s", diff)
	}
	if msg.Chat != channel {
		t.Fatalf("неверный чат: %v", msg.Chat)
	}
	if store.adds != 1 || store.posted["https://x.test/a"] != entry.Title {
		t.Fatalf("ожидали ровно одну запись, adds=%d", store.adds)
	}
}

func TestEnrichScrapeFailureUsesFeedSummaryAndMedia(t *testing.T) {
	wr := &writerStub{caption: "cap", articleH: "<p>x</p>"}
	comp := &composerStub{}
	host := &articleHostStub{}
	svc := NewService(Deps{
		Store: newStore(), Scraper: &scraperStub{err: errors.New("no content")},
		Captions: wr, Articles: wr, Thumbnails: comp, ImageHost: imageHostStub{}, ArticleHost: host, Sink: &sinkStub{},
	}, Options{}, zerolog.Nop())

	post := svc.Enrich(context.Background(), domain.FeedEntry{
		Link: "https://x.test/a", Title: "T", RawSummary: "feed summary", MediaURL: "https://x.test/m.jpg",
	})
	if post.Scraped {
		t.Fatal("скрапинг не удался")
	}
	if len(wr.bodies) != 1 || wr.bodies[0] != "feed summary" {
		t.Fatalf("статья должна строиться из описания ленты: %q", wr.bodies)
	}
	if comp.calls != 1 || post.Photo.URL != "https://files.catbox.moe/abc.jpg" {
		t.Fatalf("ожидали загруженное превью, получили %+v", post.Photo)
	}
	if host.calls != 0 || post.Button.URL != "https://x.test/a" {
		t.Fatalf("без полного текста страница не публикуется: calls=%d button=%s", host.calls, post.Button.URL)
	}
	if n := len([]rune(post.Message)); n > photoCaptionLimit {
		t.Fatalf("подпись длиннее лимита: %d", n)
	}
}

func TestEnrichFullScrapePublishesArticle(t *testing.T) {
	wr := &writerStub{caption: "cap", articleH: "<p>x</p>"}
	host := &articleHostStub{}
	svc := NewService(Deps{
		Store: newStore(), Scraper: &scraperStub{res: domain.ScrapeResult{FullText: "full text", ImageURL: "https://x.test/i.jpg"}},
		Captions: wr, Articles: wr, ArticleHost: host, Sink: &sinkStub{},
	}, Options{}, zerolog.Nop())

	post := svc.Enrich(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T"})
	if !post.Scraped || wr.bodies[0] != "full text" {
		t.Fatalf("ожидали полный текст статьи, получили %q", wr.bodies)
	}
	if post.Button.URL != "https://telegra.ph/page-01-01" {
		t.Fatalf("кнопка должна вести на страницу статьи: %s", post.Button.URL)
	}
	if post.Photo.URL != "https://x.test/i.jpg" {
		t.Fatalf("без компоновщика отправляется исходная картинка: %+v", post.Photo)
	}
}

func TestEnrichDegradesImageChain(t *testing.T) {
	wr := &writerStub{caption: "cap"}
	svc := NewService(Deps{
		Store: newStore(), Captions: wr, Articles: wr,
		Thumbnails: &composerStub{}, ImageHost: imageHostStub{err: errors.New("catbox down")}, Sink: &sinkStub{},
	}, Options{}, zerolog.Nop())
	post := svc.Enrich(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T", MediaURL: "https://x.test/m.jpg"})
	if len(post.Photo.Data) == 0 {
		t.Fatalf("при ошибке загрузки отправляются байты превью: %+v", post.Photo)
	}

	svc.deps.Thumbnails = &composerStub{err: errors.New("decode")}
	post = svc.Enrich(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T", MediaURL: "https://x.test/m.jpg"})
	if post.Photo.URL != "https://x.test/m.jpg" {
		t.Fatalf("при ошибке компоновки отправляется исходная картинка: %+v", post.Photo)
	}
}

type imageGenStub struct {
	prompt string
}

func (g *imageGenStub) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	g.prompt = prompt
	return []byte{1, 2, 3}, nil
}

func TestEnrichGeneratesImageWhenNoneFound(t *testing.T) {
	wr := &writerStub{caption: "cap"}
	gen := &imageGenStub{}
	svc := NewService(Deps{Store: newStore(), Captions: wr, Articles: wr, Images: gen, Sink: &sinkStub{}},
		Options{ImagePrompt: func(title string) string { return "anime " + title }}, zerolog.Nop())
	post := svc.Enrich(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T"})
	if gen.prompt != "anime T" {
		t.Fatalf("неверный промпт: %q", gen.prompt)
	}
	if !cmp.Equal(post.Photo.Data, []byte{1, 2, 3}) {
		t.Fatalf("ожидали сгенерированную картинку: %+v", post.Photo)
	}
}

func TestProcessRecordPolicyOnSendFailure(t *testing.T) {
	for _, record := range []bool{true, false} {
		store := newStore()
		wr := &writerStub{caption: "cap"}
		svc := NewService(Deps{Store: store, Captions: wr, Articles: wr, Sink: &sinkStub{textErr: errors.New("chat not found")}},
			Options{Channel: channel, RecordOnSendFailure: record}, zerolog.Nop())
		outcome, err := svc.Process(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T"})
		if err != nil || outcome != OutcomeSendFailed {
			t.Fatalf("ожидали send_failed, получили %s, %v", outcome, err)
		}
		posted, _ := store.IsPosted(context.Background(), "https://x.test/a")
		if posted != record {
			t.Fatalf("record=%v: ссылка записана=%v", record, posted)
		}
	}
}

func TestDeliverFallsBackToTextWhenPhotoFails(t *testing.T) {
	wr := &writerStub{caption: "cap"}
	sink := &sinkStub{photoErr: errors.New("wrong file identifier")}
	svc := NewService(Deps{Store: newStore(), Captions: wr, Articles: wr, Sink: sink}, Options{Channel: channel}, zerolog.Nop())
	outcome, _ := svc.Process(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T", MediaURL: "https://x.test/m.jpg"})
	if outcome != OutcomeSent || len(sink.sent) != 1 || sink.sent[0].IsPhoto {
		t.Fatalf("ожидали отправку текстом, outcome=%s sent=%+v", outcome, sink.sent)
	}
}

type claimStub struct {
	busy     bool
	released []string
}

func (c *claimStub) Claim(context.Context, string, time.Duration) (bool, error) { return !c.busy, nil }
func (c *claimStub) Release(_ context.Context, key string) error {
	c.released = append(c.released, key)
	return nil
}

func TestProcessRespectsClaims(t *testing.T) {
	wr := &writerStub{caption: "cap"}
	claims := &claimStub{busy: true}
	sink := &sinkStub{}
	svc := NewService(Deps{Store: newStore(), Claims: claims, Captions: wr, Articles: wr, Sink: sink}, Options{Channel: channel}, zerolog.Nop())
	outcome, _ := svc.Process(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T"})
	if outcome != OutcomeBusy || len(sink.sent) != 0 {
		t.Fatalf("занятая запись не обрабатывается: %s", outcome)
	}

	claims.busy = false
	outcome, _ = svc.Process(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T"})
	if outcome != OutcomeSent || len(claims.released) != 1 {
		t.Fatalf("ожидали отправку и снятие блокировки: %s %v", outcome, claims.released)
	}
}

// racingClaim имитирует параллельный прогон, который успел опубликовать
// ссылку и снять блокировку до того, как её получил текущий.
type racingClaim struct {
	store *storeStub
}

func (c racingClaim) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.store.mu.Lock()
	c.store.posted[key] = "other run"
	c.store.mu.Unlock()
	return true, nil
}

func (racingClaim) Release(context.Context, string) error { return nil }

func TestProcessRechecksStoreAfterClaim(t *testing.T) {
	store := newStore()
	wr := &writerStub{caption: "cap"}
	sink := &sinkStub{}
	svc := NewService(Deps{Store: store, Claims: racingClaim{store: store}, Captions: wr, Articles: wr, Sink: sink},
		Options{Channel: channel, RecordOnSendFailure: true}, zerolog.Nop())

	outcome, err := svc.Process(context.Background(), domain.FeedEntry{Link: "https://x.test/a", Title: "T"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if outcome != OutcomeSkipped || len(sink.sent) != 0 || wr.calls != 0 {
		t.Fatalf("ссылка уже опубликована другим прогоном: outcome=%s sent=%d writer=%d", outcome, len(sink.sent), wr.calls)
	}
}

const singleItemFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>T</title>
<item><title>Show X</title><link>https://x.test/a</link><description>blurb</description></item>
</channel></rss>`

func TestRunCycleRetriesUnrecordedEntryFromUnchangedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, singleItemFeed)
	}))
	defer srv.Close()

	store := newStore()
	wr := &writerStub{caption: "cap"}
	sink := &sinkStub{textErr: errors.New("flood")}
	svc := NewService(Deps{
		Store:    store,
		Feeds:    feed.NewPoller(srv.Client(), 3, zerolog.Nop()),
		Captions: wr,
		Articles: wr,
		Sink:     sink,
	}, Options{Channel: channel, RecordOnSendFailure: false}, zerolog.Nop())
	feeds := []domain.Feed{{URL: srv.URL}}

	first := svc.RunCycle(context.Background(), feeds)
	if first.Failed != 1 || first.Sent != 0 {
		t.Fatalf("первый цикл должен завершиться ошибкой отправки: %+v", first)
	}

	sink.textErr = nil
	second := svc.RunCycle(context.Background(), feeds)
	if second.Entries != 1 || second.Sent != 1 {
		t.Fatalf("незаписанная ссылка должна обработаться повторно: %+v", second)
	}
	if posted, _ := store.IsPosted(context.Background(), "https://x.test/a"); !posted {
		t.Fatal("после успешной отправки ссылка должна быть записана")
	}
}

func TestRunCycleContinuesAfterFailures(t *testing.T) {
	store := newStore("https://x.test/old")
	wr := &writerStub{caption: "cap"}
	sink := &sinkStub{}
	feeds := feedStub{
		entries: map[string][]domain.FeedEntry{
			"https://b.test/rss": {
				{Link: "https://x.test/old", Title: "old"},
				{Link: "https://x.test/new", Title: "new"},
				{Link: "", Title: "broken"},
			},
		},
		errs: map[string]error{"https://a.test/rss": errors.New("timeout")},
	}
	svc := NewService(Deps{Store: store, Feeds: feeds, Captions: wr, Articles: wr, Sink: sink},
		Options{Channel: channel, RecordOnSendFailure: true}, zerolog.Nop())

	stats := svc.RunCycle(context.Background(), []domain.Feed{{URL: "https://a.test/rss"}, {URL: "https://b.test/rss"}})
	want := CycleStats{Feeds: 2, FeedErrors: 1, Entries: 3, Sent: 1, Skipped: 1, Failed: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("статистика (-want +got):\n%s", diff)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("ожидали одну публикацию, получили %d", len(sink.sent))
	}
}

type panicScraper struct{}

func (panicScraper) Scrape(context.Context, string) (domain.ScrapeResult, error) {
	panic("boom")
}

func TestRunCycleRecoversPanics(t *testing.T) {
	wr := &writerStub{}
	feeds := feedStub{entries: map[string][]domain.FeedEntry{"f": {{Link: "https://x.test/a", Title: "T"}}}}
	svc := NewService(Deps{Store: newStore(), Feeds: feeds, Scraper: panicScraper{}, Captions: wr, Articles: wr, Sink: &sinkStub{}}, Options{}, zerolog.Nop())
	stats := svc.RunCycle(context.Background(), []domain.Feed{{URL: "f"}})
	if stats.Failed != 1 {
		t.Fatalf("паника должна учитываться как ошибка: %+v", stats)
	}
}

func TestProcessStoreErrorStopsEntry(t *testing.T) {
	store := newStore()
	store.checkEr = errors.New("db down")
	sink := &sinkStub{}
	wr := &writerStub{}
	svc := NewService(Deps{Store: store, Captions: wr, Articles: wr, Sink: sink}, Options{}, zerolog.Nop())
	if _, err := svc.Process(context.Background(), domain.FeedEntry{Link: "https://x.test/a"}); err == nil {
		t.Fatal("ожидали ошибку хранилища")
	}
	if len(sink.sent) != 0 {
		t.Fatal("без проверки дубля публиковать нельзя")
	}
}

func TestPreviewDoesNotRecord(t *testing.T) {
	store := newStore()
	wr := &writerStub{caption: "cap"}
	sink := &sinkStub{}
	svc := NewService(Deps{Store: store, Captions: wr, Articles: wr, Sink: sink}, Options{Channel: channel}, zerolog.Nop())
	op := domain.Chat{ID: 7}
	if err := svc.Preview(context.Background(), SampleEntry(), op); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.adds != 0 || len(sink.sent) != 1 || sink.sent[0].Chat != op {
		t.Fatalf("превью уходит оператору без записи: adds=%d sent=%+v", store.adds, sink.sent)
	}
}
