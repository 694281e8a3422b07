package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const (
	// EmbeddingDimension matches Facenet's output size
	EmbeddingDimension = 128

	thumbWidth  = 16
	thumbHeight = EmbeddingDimension / thumbWidth

	minDetectSide = 64
)

var ErrEmptyImage = errors.New("mock: empty image")

// Provider implementa provider.Detector e provider.Embedder para testes e desenvolvimento
type Provider struct{}

var (
	_ provider.Detector = (*Provider)(nil)
	_ provider.Embedder = (*Provider)(nil)
)

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "mock"
}

// Detect devolve uma face centralizada cobrindo 60% da imagem
func (p *Provider) Detect(ctx context.Context, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Released() {
		return nil, imaging.ErrBufferReleased
	}
	if img.Width < minDetectSide || img.Height < minDetectSide {
		return []domain.DetectionBox{}, nil
	}

	return []domain.DetectionBox{
		{
			X1:    img.Width / 5,
			Y1:    img.Height / 5,
			X2:    img.Width - img.Width/5,
			Y2:    img.Height - img.Height/5,
			Score: 0.99,
		},
	}, nil
}

// Embed gera embedding determinístico a partir de uma miniatura em tons de
// cinza; bytes que não decodificam como imagem usam o hash SHA-256
func (p *Provider) Embed(ctx context.Context, faceJPEG []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(faceJPEG) == 0 {
		return nil, ErrEmptyImage
	}

	if src, _, err := image.Decode(bytes.NewReader(faceJPEG)); err == nil {
		return thumbnailEmbedding(src), nil
	}
	return hashEmbedding(faceJPEG), nil
}

// thumbnailEmbedding gives visually similar crops nearby embeddings
func thumbnailEmbedding(src image.Image) []float32 {
	thumb := image.NewGray(image.Rect(0, 0, thumbWidth, thumbHeight))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), src, src.Bounds(), draw.Src, nil)

	values := make([]float64, EmbeddingDimension)
	var mean float64
	for i, v := range thumb.Pix[:EmbeddingDimension] {
		values[i] = float64(v)
		mean += float64(v)
	}
	mean /= EmbeddingDimension

	for i := range values {
		values[i] -= mean
	}

	// flat images would normalize to zero; add a constant bias component
	values[0] += 1

	return normalize(values)
}

// hashEmbedding gera embedding determinístico baseado no hash dos bytes
func hashEmbedding(data []byte) []float32 {
	hash := sha256.Sum256(data)
	values := make([]float64, EmbeddingDimension)

	for i := range values {
		values[i] = (float64(hash[i%len(hash)])/255.0)*2 - 1
	}

	return normalize(values)
}

func normalize(values []float64) []float32 {
	var norm float64
	for _, v := range values {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(values))
	for i, v := range values {
		if norm == 0 {
			out[i] = 0
			continue
		}
		out[i] = float32(v / norm)
	}
	return out
}
