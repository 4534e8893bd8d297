// Package thumbnail собирает брендированное превью 1280x720 в JPEG:
// цветокоррекция, текстура, полоса с заголовком и водяной знак.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/domain"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
)

const (
	Width  = 1280
	Height = 720

	bandHeight    = 150
	bandAlpha     = 220
	bandFade      = 40
	overlayAlpha  = 0.25
	watermarkBox  = 180
	titleMaxRunes = 45
	breakingTag   = "BREAKING NEWS"
	maxDownload   = 15 << 20
)

var (
	// ErrNoImage — источник картинки не задан.
	ErrNoImage = errors.New("thumbnail: no source image")
	// ErrTooLarge — даже при минимальном качестве JPEG не укладывается в лимит.
	ErrTooLarge = errors.New("thumbnail: encoded image exceeds size limit")
)

var jpegQualities = []int{90, 80, 70, 60, 50, 40}

// grade — цветокоррекция кадра.
type grade struct {
	name  string
	apply func(img image.Image) *image.NRGBA
}

var grades = []grade{
	{name: "high-contrast", apply: highContrast},
	{name: "monochrome", apply: monochrome},
	{name: "dramatic", apply: dramatic},
}

// Options настраивает композитор.
type Options struct {
	AssetsDir string
	Watermark string
	MaxBytes  int
	// Pick выбирает индекс из [0, n). По умолчанию math/rand.
	Pick func(n int) int
}

// Composer реализует domain.ThumbnailComposer.
type Composer struct {
	http     *http.Client
	opts     Options
	face     typeface
	overlays []string
	log      zerolog.Logger
}

var _ domain.ThumbnailComposer = (*Composer)(nil)

// New создаёт композитор и один раз загружает шрифт и список текстур.
func New(client *http.Client, opts Options, logger zerolog.Logger) *Composer {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 2_000_000
	}
	return &Composer{
		http:     client,
		opts:     opts,
		face:     loadTypeface(opts.AssetsDir),
		overlays: listOverlays(opts.AssetsDir),
		log:      logger,
	}
}

// Compose возвращает JPEG. Ошибки загрузки и декодирования фатальны,
// остальные шаги при сбое пропускаются.
func (c *Composer) Compose(ctx context.Context, src domain.ImageSource, title string) ([]byte, error) {
	data := src.Data
	if len(data) == 0 {
		if strings.TrimSpace(src.URL) == "" {
			return nil, ErrNoImage
		}
		var err error
		data, err = c.download(ctx, src.URL)
		if err != nil {
			return nil, err
		}
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("thumbnail: decode: %w", err)
	}

	base := imaging.Fill(decoded, Width, Height, imaging.Center, imaging.CatmullRom)

	g := grades[c.opts.Pick(len(grades))]
	c.step(g.name, func() error { base = g.apply(base); return nil })
	c.step("overlay", func() error {
		out, err := c.applyOverlay(base)
		if err == nil {
			base = out
		}
		return err
	})

	canvas := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(canvas, canvas.Bounds(), base, base.Bounds().Min, draw.Src)
	c.step("band", func() error { drawBand(canvas); return nil })
	c.step("watermark", func() error { c.drawWatermark(canvas); return nil })
	c.step("title", func() error { c.drawTitle(canvas, title); return nil })

	return encodeBounded(canvas, c.opts.MaxBytes)
}

// step выполняет необязательный шаг; паника или ошибка только логируются.
func (c *Composer) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Str("step", name).Interface("panic", r).Msg("thumbnail: шаг пропущен")
		}
	}()
	if err := fn(); err != nil {
		c.log.Warn().Err(err).Str("step", name).Msg("thumbnail: шаг пропущен")
	}
}

func (c *Composer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: build request: %w", err)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/jpeg,*/*;q=0.8")
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("thumbnail", "download", req.URL.Hostname(), start, err)
		return nil, fmt.Errorf("thumbnail: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("thumbnail: download: HTTP %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("thumbnail", "download", req.URL.Hostname(), start, err)
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	metrics.ObserveNetworkRequest("thumbnail", "download", req.URL.Hostname(), start, err)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: read body: %w", err)
	}
	return data, nil
}

// applyOverlay растягивает случайную текстуру на весь кадр и смешивает её
// с полупрозрачностью overlayAlpha. Без текстур кадр возвращается как есть.
func (c *Composer) applyOverlay(base *image.NRGBA) (*image.NRGBA, error) {
	if len(c.overlays) == 0 {
		return base, nil
	}
	path := c.overlays[c.opts.Pick(len(c.overlays))]
	tex, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode overlay %s: %w", filepath.Base(path), err)
	}
	layer := imaging.Resize(tex, Width, Height, imaging.Linear)
	return imaging.Overlay(base, layer, image.Point{}, overlayAlpha), nil
}

// drawBand затемняет низ кадра: плавный переход, затем сплошная полоса.
func drawBand(canvas *image.RGBA) {
	top := Height - bandHeight
	for y := top; y < Height; y++ {
		a := bandAlpha
		if d := y - top; d < bandFade {
			a = bandAlpha * d / bandFade
		}
		row := image.Rect(0, y, Width, y+1)
		draw.Draw(canvas, row, image.NewUniform(color.NRGBA{A: uint8(a)}), image.Point{}, draw.Over)
	}
}

func (c *Composer) drawWatermark(canvas *image.RGBA) {
	text := strings.TrimSpace(c.opts.Watermark)
	if text == "" {
		return
	}
	const size, pad, margin = 30, 10, 20
	tw, th := c.face.measure(text, size)
	box := image.Rect(Width-tw-2*pad-margin, margin, Width-margin, margin+th+2*pad)
	draw.Draw(canvas, box, image.NewUniform(color.NRGBA{A: watermarkBox}), image.Point{}, draw.Over)
	c.face.draw(canvas, box.Min.X+pad, box.Min.Y+pad, text, size, color.White)
}

func (c *Composer) drawTitle(canvas *image.RGBA, title string) {
	c.face.draw(canvas, 30, Height-120, breakingTag, 25, color.NRGBA{R: 255, G: 215, A: 255})
	if t := DisplayTitle(title); t != "" {
		c.face.draw(canvas, 30, Height-80, t, 40, color.White)
	}
}

// DisplayTitle обрезает заголовок до 45 рун с многоточием.
func DisplayTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	return string([]rune(title)[:titleMaxRunes]) + "..."
}

// encodeBounded снижает качество, пока файл не уложится в лимит.
func encodeBounded(img image.Image, maxBytes int) ([]byte, error) {
	var buf bytes.Buffer
	for _, q := range jpegQualities {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("thumbnail: encode: %w", err)
		}
		if buf.Len() <= maxBytes {
			return append([]byte(nil), buf.Bytes()...), nil
		}
	}
	return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, buf.Len(), maxBytes)
}

func listOverlays(assetsDir string) []string {
	if assetsDir == "" {
		return nil
	}
	dir := filepath.Join(assetsDir, "overlays")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".webp":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}
