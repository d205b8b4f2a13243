package imagecodec

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Rotate turns img clockwise by degrees as seen on screen. Negative values turn
// counter-clockwise. Quarter turns are exact pixel permutations; any other
// angle is resampled bilinearly onto a canvas expanded to hold the whole
// rotated image, with the uncovered corners filled black.
func Rotate(img image.Image, degrees float64) image.Image {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}

	switch d {
	case 0:
		return img
	case 90, 180, 270:
		return rotateQuarter(img, int(d))
	}
	return rotateAffine(img, d)
}

func rotateQuarter(img image.Image, d int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	if d == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch d {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

func rotateAffine(img image.Image, d float64) image.Image {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	rad := d * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	dw := int(math.Ceil(math.Abs(w*cos) + math.Abs(h*sin)))
	dh := int(math.Ceil(math.Abs(w*sin) + math.Abs(h*cos)))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	// Rotate about the source centre, then move that centre to the canvas centre.
	// With y pointing down this matrix turns clockwise for positive angles.
	cx, cy := float64(b.Min.X)+w/2, float64(b.Min.Y)+h/2
	dcx, dcy := float64(dw)/2, float64(dh)/2
	s2d := f64.Aff3{
		cos, -sin, dcx - cos*cx + sin*cy,
		sin, cos, dcy - sin*cx - cos*cy,
	}

	draw.BiLinear.Transform(dst, s2d, img, b, draw.Over, nil)
	return dst
}
