package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/pose-cropper/pkg/types"
)

// createTestImage creates an image whose left half is red and right half blue
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.NRGBA{255, 0, 0, 255})
			} else {
				img.Set(x, y, color.NRGBA{0, 0, 255, 255})
			}
		}
	}
	return img
}

func TestCropSquare(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(400, 300)

	out, err := p.CropSquare(img, types.CropRegion{StartX: 0, StartY: 50, Size: 200}, 192)
	require.NoError(t, err)
	assert.Equal(t, 192, out.Bounds().Dx())
	assert.Equal(t, 192, out.Bounds().Dy())

	// crop lies in the red half
	r, g, b, _ := out.At(96, 96).RGBA()
	assert.Greater(t, r, b)
	assert.Zero(t, g)
}

func TestCropSquare_OffsetBounds(t *testing.T) {
	p := NewProcessor()
	full := createTestImage(400, 300)
	sub := full.SubImage(image.Rect(200, 0, 400, 300))

	// crop is relative to the sub image origin which is all blue
	out, err := p.CropSquare(sub, types.CropRegion{StartX: 0, StartY: 0, Size: 100}, 50)
	require.NoError(t, err)
	r, _, b, _ := out.At(25, 25).RGBA()
	assert.Greater(t, b, r)
}

func TestCropSquare_Errors(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(100, 100)

	_, err := p.CropSquare(img, types.CropRegion{StartX: 0, StartY: 0, Size: 10}, 0)
	assert.Error(t, err)

	_, err = p.CropSquare(img, types.CropRegion{StartX: 200, StartY: 200, Size: 10}, 10)
	assert.Error(t, err)
}

func TestEncodeForModel(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(400, 200)

	b64, ext, err := p.EncodeForModel(img, EncodeOptions{Format: "png", MaxDim: 100})
	require.NoError(t, err)
	assert.Equal(t, types.ImageExtent{Width: 100, Height: 50}, ext)

	data, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())

	_, ext, err = p.EncodeForModel(img, EncodeOptions{Format: "jpg", MaxDim: 0, Quality: 70})
	require.NoError(t, err)
	assert.Equal(t, types.ImageExtent{Width: 400, Height: 200}, ext)
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(64, 48)

	for _, format := range []string{"png", "jpg", "webp"} {
		path := filepath.Join(dir, "out."+format)
		require.NoError(t, p.SaveImage(img, path, format, 90, false), format)

		loaded, err := p.LoadImage(path)
		require.NoError(t, err, format)
		assert.Equal(t, 64, loaded.Bounds().Dx(), format)
		assert.Equal(t, 48, loaded.Bounds().Dy(), format)
	}
}

func TestDecodeImage_Unknown(t *testing.T) {
	_, err := NewProcessor().DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestLoadImageFromURL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(10, 10)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/text" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("hello"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	p := NewProcessor()
	img, err := p.LoadImageSmart(srv.URL + "/img.png")
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	_, err = p.LoadImageFromURL(srv.URL + "/text")
	assert.Error(t, err)

	_, err = p.LoadImageFromURL("ftp://example.com/a.png")
	assert.Error(t, err)
}
