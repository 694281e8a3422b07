// Package imaging decodes uploaded images into request-scoped pixel buffers
// and cuts face crops out of them.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"sync"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const (
	// maxPixels bounds decoded size; larger inputs are rejected before decoding.
	maxPixels = 50_000_000
	// maxCropSide is the longest side a crop is sent downstream with.
	maxCropSide = 512

	jpegQuality = 90
)

var ErrBufferReleased = errors.New("pixel buffer released")

// PixelBuffer is a decoded image owned by a single request.
type PixelBuffer struct {
	Width  int
	Height int
	Format string

	mu       sync.RWMutex
	img      *image.RGBA
	jpeg     []byte
	released bool
}

// Decode parses data as a raster image. Any failure is reported as
// domain.ErrDecode.
func Decode(data []byte) (*PixelBuffer, error) {
	if len(data) == 0 {
		return nil, domain.ErrDecode.WithError(errors.New("empty image"))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrDecode.WithError(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, domain.ErrDecode.WithError(fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height))
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, domain.ErrDecode.WithError(fmt.Errorf("image too large: %dx%d", cfg.Width, cfg.Height))
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrDecode.WithError(err)
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, domain.ErrDecode.WithError(errors.New("image has no pixels"))
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	return &PixelBuffer{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
		img:    rgba,
	}, nil
}

// FromImage wraps an already decoded image.
func FromImage(src image.Image) *PixelBuffer {
	bounds := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	return &PixelBuffer{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: "raw",
		img:    rgba,
	}
}

// JPEG returns the JPEG working copy of the whole image, encoding it once.
func (p *PixelBuffer) JPEG() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil, ErrBufferReleased
	}
	if p.jpeg != nil {
		return p.jpeg, nil
	}

	data, err := encodeJPEG(p.img)
	if err != nil {
		return nil, fmt.Errorf("encode working copy: %w", err)
	}
	p.jpeg = data
	return p.jpeg, nil
}

// Crop returns the JPEG bytes of the box region, clamped to the image.
// Crops whose longest side exceeds maxCropSide are downscaled.
func (p *PixelBuffer) Crop(box domain.DetectionBox) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.released {
		return nil, ErrBufferReleased
	}

	box = box.Clamp(p.Width, p.Height)
	if box.Empty() {
		return nil, fmt.Errorf("crop %v: empty region", box.Coordinates())
	}

	rect := image.Rect(box.X1, box.Y1, box.X2, box.Y2)
	var region image.Image = p.img.SubImage(rect)

	if w, h := rect.Dx(), rect.Dy(); w > maxCropSide || h > maxCropSide {
		nw, nh := maxCropSide, maxCropSide
		if w > h {
			nh = max(1, h*maxCropSide/w)
		} else {
			nw = max(1, w*maxCropSide/h)
		}
		scaled := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), region, rect, draw.Over, nil)
		region = scaled
	}

	data, err := encodeJPEG(region)
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return data, nil
}

// Image exposes the decoded pixels. Callers must not retain it past Release.
func (p *PixelBuffer) Image() (*image.RGBA, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.released {
		return nil, ErrBufferReleased
	}
	return p.img, nil
}

// Release drops the pixel data and working copy. Safe to call repeatedly.
func (p *PixelBuffer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.img = nil
	p.jpeg = nil
	p.released = true
}

func (p *PixelBuffer) Released() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.released
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
