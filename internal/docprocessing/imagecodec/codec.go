// Package imagecodec normalizes uploaded document photos into the base64 JPEG
// payload embedded in model requests, and applies the rotate and crop edits a
// reviewer makes before submission.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultQuality matches the encoder default used when no quality is configured.
const DefaultQuality = 75

// DefaultMaxPixels bounds the declared size of a decoded image, about 200MB as RGBA.
const DefaultMaxPixels = 50_000_000

var (
	ErrDecode    = errors.New("image could not be decoded")
	ErrTooLarge  = fmt.Errorf("%w: image exceeds the pixel limit", ErrDecode)
	ErrEmptyCrop = errors.New("crop rectangle does not overlap the image")
)

// Codec encodes images as JPEG at a fixed quality and refuses to decode
// images larger than its pixel limit.
type Codec struct {
	quality   int
	maxPixels int
}

// New creates a codec. Out of range qualities fall back to DefaultQuality.
func New(quality int) *Codec {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Codec{quality: quality, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels returns a copy of c with the given pixel limit. A non-positive
// limit keeps DefaultMaxPixels.
func (c *Codec) WithMaxPixels(n int) *Codec {
	cp := *c
	if n > 0 {
		cp.maxPixels = n
	}
	return &cp
}

// Decode decodes data with the codec's pixel limit.
func (c *Codec) Decode(data []byte) (image.Image, string, error) {
	return DecodeLimited(data, c.maxPixels)
}

// Decode decodes any registered format within DefaultMaxPixels and returns
// the format name.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited decodes any registered format and returns the format name.
// The header is checked first so an image declaring more than maxPixels is
// rejected with ErrTooLarge before its pixels are allocated.
func DecodeLimited(data []byte, maxPixels int) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w (%dx%d, limit %d)", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

// DecodeFile reads and decodes the image at path within the codec's pixel limit.
func (c *Codec) DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, _, err := c.Decode(data)
	return img, err
}

// Flatten converts an image with an alpha channel to opaque RGB by dropping
// alpha. Straight (non-premultiplied) colour values are kept, so a half
// transparent red pixel becomes solid red. Opaque images are returned as is.
func Flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				dst.Pix[di+0] = src.Pix[si+0]
				dst.Pix[di+1] = src.Pix[si+1]
				dst.Pix[di+2] = src.Pix[si+2]
				dst.Pix[di+3] = 0xff
				si += 4
				di += 4
			}
		}
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

// EncodeJPEG flattens img and encodes it as JPEG.
func (c *Codec) EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Flatten(img), &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode returns the standard base64 encoding of the image as JPEG.
func (c *Codec) Encode(img image.Image) (string, error) {
	data, err := c.EncodeJPEG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EncodeFile decodes the image at path and returns its base64 JPEG encoding.
func (c *Codec) EncodeFile(path string) (string, error) {
	img, err := c.DecodeFile(path)
	if err != nil {
		return "", err
	}
	return c.Encode(img)
}

// DataURL wraps a base64 JPEG payload as a data URI.
func DataURL(encoded string) string {
	return "data:image/jpeg;base64," + encoded
}

// Crop returns the part of img inside rect. rect is relative to the image's
// top-left corner and is clipped to the image bounds.
func Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	b := img.Bounds()
	r := rect.Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, ErrEmptyCrop
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, nil
}
