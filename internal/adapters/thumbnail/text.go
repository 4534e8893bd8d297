package thumbnail

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// typeface рисует строки заданного кегля. Если в assets/fonts нет TTF/OTF,
// используется встроенный растровый шрифт, растянутый до нужной высоты.
type typeface struct {
	font *opentype.Font
}

func loadTypeface(assetsDir string) typeface {
	if assetsDir == "" {
		return typeface{}
	}
	entries, err := os.ReadDir(filepath.Join(assetsDir, "fonts"))
	if err != nil {
		return typeface{}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".ttf" || ext == ".otf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(assetsDir, "fonts", name))
		if err != nil {
			continue
		}
		f, err := opentype.Parse(data)
		if err != nil {
			continue
		}
		return typeface{font: f}
	}
	return typeface{}
}

func (t typeface) face(size float64) (font.Face, bool) {
	if t.font == nil {
		return basicfont.Face7x13, false
	}
	face, err := opentype.NewFace(t.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return basicfont.Face7x13, false
	}
	return face, true
}

// measure возвращает ширину и высоту строки в пикселях.
func (t typeface) measure(text string, size float64) (int, int) {
	face, scalable := t.face(size)
	if scalable {
		defer face.Close()
		m := face.Metrics()
		return font.MeasureString(face, text).Ceil(), (m.Ascent + m.Descent).Ceil()
	}
	w := font.MeasureString(face, text).Ceil()
	scale := size / float64(basicfont.Face7x13.Height)
	return int(float64(w) * scale), int(size)
}

// draw выводит строку так, что (x, y) — левый верхний угол.
func (t typeface) draw(dst draw.Image, x, y int, text string, size float64, col color.Color) {
	face, scalable := t.face(size)
	if scalable {
		defer face.Close()
		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
		}
		d.DrawString(text)
		return
	}
	w := font.MeasureString(face, text).Ceil()
	h := basicfont.Face7x13.Height
	if w <= 0 {
		return
	}
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{Dst: small, Src: image.NewUniform(col), Face: face, Dot: fixed.P(0, basicfont.Face7x13.Ascent)}
	d.DrawString(text)
	tw, th := t.measure(text, size)
	draw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+tw, y+th), small, small.Bounds(), draw.Over, nil)
}
