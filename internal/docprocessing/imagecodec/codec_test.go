package imagecodec_test

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docverify/docverify-backend/internal/docprocessing/imagecodec"
	"github.com/docverify/docverify-backend/pkg/testutil"
)

func uniform(img interface {
	image.Image
	Set(x, y int, c color.Color)
}, c color.Color) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func decodeBase64JPEG(t *testing.T, encoded string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, []byte{0xff, 0xd8}), "missing JPEG SOI marker")
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestEncode_BitmapModes(t *testing.T) {
	rgb := image.NewRGBA(image.Rect(0, 0, 16, 16))
	uniform(rgb, color.RGBA{R: 200, G: 30, B: 30, A: 255})

	rgba := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	uniform(rgba, color.NRGBA{R: 200, G: 30, B: 30, A: 64})

	// Grey plus alpha PNGs decode as NRGBA with equal channels
	grayAlpha := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	uniform(grayAlpha, color.NRGBA{R: 180, G: 180, B: 180, A: 0})

	gray := image.NewGray(image.Rect(0, 0, 16, 16))
	uniform(gray, color.Gray{Y: 180})

	tests := []struct {
		name  string
		img   image.Image
		wantR uint32
	}{
		{"rgb", rgb, 200},
		{"rgba keeps straight colour", rgba, 200},
		{"grey alpha fully transparent", grayAlpha, 180},
		{"grey", gray, 180},
	}

	codec := imagecodec.New(90)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := codec.Encode(tt.img)
			require.NoError(t, err)

			out := decodeBase64JPEG(t, encoded)
			assert.Equal(t, tt.img.Bounds().Size(), out.Bounds().Size())

			r, _, _, a := out.At(8, 8).RGBA()
			assert.Equal(t, uint32(0xffff), a)
			assert.InDelta(t, tt.wantR, r>>8, 12)
		})
	}
}

func TestFlatten_OpaqueUnchanged(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	uniform(img, color.RGBA{A: 255})

	assert.Same(t, img, imagecodec.Flatten(img))
}

func TestFlatten_DropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	out := imagecodec.Flatten(img)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, color.RGBAModel.Convert(out.At(0, 0)))
}

func TestEncodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "license.png")

	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	uniform(img, color.NRGBA{G: 220, A: 128})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	encoded, err := imagecodec.New(0).EncodeFile(path)
	require.NoError(t, err)
	out := decodeBase64JPEG(t, encoded)
	assert.Equal(t, image.Pt(8, 4), out.Bounds().Size())
}

func TestEncodeFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	_, err := imagecodec.New(75).EncodeFile(path)
	assert.ErrorIs(t, err, imagecodec.ErrDecode)

	_, err = imagecodec.New(75).EncodeFile(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestDecode_Formats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))

	img, format, err := imagecodec.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Pt(3, 3), img.Bounds().Size())
}

func TestDecode_PixelLimit(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		limit   int
		wantErr error
	}{
		{name: "within limit", data: testutil.PNGBytes(t, testutil.DocumentImage(20, 10)), limit: 200},
		{name: "over configured limit", data: testutil.PNGBytes(t, testutil.DocumentImage(20, 10)), limit: 199, wantErr: imagecodec.ErrTooLarge},
		{name: "huge declared size", data: testutil.PNGDeclaringSize(t, 60000, 60000), limit: imagecodec.DefaultMaxPixels, wantErr: imagecodec.ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, _, err := imagecodec.New(75).WithMaxPixels(tt.limit).Decode(tt.data)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, image.Pt(20, 10), img.Bounds().Size())
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, imagecodec.ErrDecode)
			assert.Nil(t, img)
		})
	}

	_, _, err := imagecodec.Decode(testutil.PNGDeclaringSize(t, 60000, 60000))
	assert.ErrorIs(t, err, imagecodec.ErrTooLarge)
}

func TestEncodeFile_PixelLimit(t *testing.T) {
	path := testutil.WriteJPEG(t, "card.jpg", testutil.DocumentImage(40, 20))

	_, err := imagecodec.New(75).WithMaxPixels(100).EncodeFile(path)
	assert.ErrorIs(t, err, imagecodec.ErrTooLarge)

	_, err = imagecodec.New(75).WithMaxPixels(800).EncodeFile(path)
	assert.NoError(t, err)
}

func TestCrop(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 6))
	img.Set(4, 3, color.RGBA{R: 255, A: 255})

	out, err := imagecodec.Crop(img, image.Rect(4, 3, 20, 20))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(6, 3), out.Bounds().Size())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.At(0, 0))

	_, err = imagecodec.Crop(img, image.Rect(11, 0, 15, 4))
	assert.ErrorIs(t, err, imagecodec.ErrEmptyCrop)
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,QUJD", imagecodec.DataURL("QUJD"))
}
