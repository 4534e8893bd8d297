package thumbnail

import (
	"image"

	"github.com/disintegration/imaging"
)

func highContrast(img image.Image) *image.NRGBA {
	return imaging.AdjustContrast(img, 35)
}

func monochrome(img image.Image) *image.NRGBA {
	return imaging.AdjustContrast(imaging.Grayscale(img), 10)
}

// dramatic усиливает насыщенность и слегка притемняет кадр.
func dramatic(img image.Image) *image.NRGBA {
	out := imaging.AdjustSaturation(img, 45)
	out = imaging.AdjustBrightness(out, -8)
	return imaging.AdjustContrast(out, 10)
}
