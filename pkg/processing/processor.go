package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/pose-cropper/pkg/geometry"
	"github.com/menta2k/pose-cropper/pkg/types"
)

// EncodeOptions controls how images are encoded before they are sent to a
// vision model
type EncodeOptions struct {
	Format  string // jpg or png
	MaxDim  int    // max long side in pixels, 0 keeps the original size
	Quality int    // JPEG quality 1-100
}

// DefaultEncodeOptions returns jpg, 1536px long side, quality 85
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{Format: "jpg", MaxDim: 1536, Quality: 85}
}

// Processor handles image processing operations
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Pose-Cropper/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	return p.LoadImageFromReader(resp.Body)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w for %s", err, path)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// LoadImageFromReader reads and decodes an image
func (p *Processor) LoadImageFromReader(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return p.DecodeImage(data)
}

// DecodeImage decodes an image from byte data with WebP support. JPEG EXIF
// orientation is applied so the result is upright.
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		if format == "jpeg" {
			img = ApplyOrientation(img, Orientation(data))
		}
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// EncodeForModel downsizes the image to opts.MaxDim and returns it base64
// encoded, along with the extent of the encoded image
func (p *Processor) EncodeForModel(img image.Image, opts EncodeOptions) (string, types.ImageExtent, error) {
	if opts.MaxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > opts.MaxDim || h > opts.MaxDim {
			if w >= h {
				img = imaging.Resize(img, opts.MaxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, opts.MaxDim, imaging.Lanczos)
			}
		}
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	switch strings.ToLower(opts.Format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", types.ImageExtent{}, err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", types.ImageExtent{}, err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), geometry.ExtentOf(img), nil
}

// CropSquare cuts the crop region out of img and resizes it to a size x size
// square suitable as pose model input
func (p *Processor) CropSquare(img image.Image, crop types.CropRegion, size int) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, geometry.ErrInvalidSize
	}

	b := img.Bounds()
	rect := geometry.Rect(crop).Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle")
	}

	cropped := imaging.Crop(img, rect)
	return imaging.Resize(cropped, size, size, imaging.Linear), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// EncodePNG writes img as PNG
func (p *Processor) EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}
