package pipeline

import (
	"image"

	"golang.org/x/image/draw"
)

// Resampler is an Upscaler that enlarges images by an integer factor with
// Catmull-Rom interpolation.
type Resampler struct {
	Factor int
}

func NewResampler(factor int) *Resampler {
	if factor < 2 {
		factor = 2
	}
	return &Resampler{Factor: factor}
}

func (r *Resampler) Upscale(img image.Image) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil
	}
	factor := r.Factor
	if factor < 2 {
		factor = 2
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
