package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Specimen TD3 machine readable zone (ICAO 9303 part 4, appendix).
const (
	SpecimenMRZLine1 = "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<"
	SpecimenMRZLine2 = "L898902C36UTO7408122F1204159ZE184226B<<<<<10"
)

// DocumentImage returns a light grey w×h image with a dark band, roughly the look of a card photo.
func DocumentImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 235, G: 235, B: 230, A: 255}
			if y > h/2 && y < h/2+h/8 {
				c = color.RGBA{R: 20, G: 20, B: 40, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// TransparentImage returns a w×h NRGBA image with the given alpha everywhere.
func TransparentImage(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 120, G: 60, B: 200, A: alpha})
		}
	}
	return img
}

// JPEGBytes encodes img as JPEG.
func JPEGBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// PNGBytes encodes img as PNG.
func PNGBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// PNGDeclaringSize returns a small valid PNG whose header claims w×h pixels.
// Only decoders that trust the header before reading pixel data accept it.
func PNGDeclaringSize(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := PNGBytes(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	// signature (8), IHDR length (4) and type (4), then width and height
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	// the IHDR checksum covers the chunk type and its 13 data bytes
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

// WriteJPEG writes img as JPEG into a test temp dir and returns the path.
func WriteJPEG(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, JPEGBytes(t, img), 0o600))
	return path
}
