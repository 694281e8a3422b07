package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const jpegDataURIPrefix = "data:image/jpeg;base64,"

// Provider implements provider.Detector and provider.Embedder against the
// inference sidecar
type Provider struct {
	client      *Client
	sharedMedia bool
}

var (
	_ provider.FileDetector = (*Provider)(nil)
	_ provider.Embedder     = (*Provider)(nil)
	_ provider.Checker      = (*Provider)(nil)
)

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client:      NewClient(config),
		sharedMedia: config.SharedMedia,
	}
}

func (p *Provider) Name() string {
	return "deepface"
}

// Detect sends the JPEG working copy inline
func (p *Provider) Detect(ctx context.Context, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error) {
	data, err := img.JPEG()
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	return p.detect(ctx, jpegDataURIPrefix+base64.StdEncoding.EncodeToString(data), model)
}

// DetectFile passes the working copy path when the sidecar shares the media
// volume, and falls back to inline bytes otherwise
func (p *Provider) DetectFile(ctx context.Context, path string, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error) {
	if !p.sharedMedia || path == "" {
		return p.Detect(ctx, img, model)
	}
	return p.detect(ctx, path, model)
}

func (p *Provider) detect(ctx context.Context, img string, model domain.DetectorModel) ([]domain.DetectionBox, error) {
	resp, err := p.client.Detect(ctx, img, model.WeightsFile())
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	boxes := make([]domain.DetectionBox, 0, len(resp.Results))
	for _, result := range resp.Results {
		boxes = append(boxes, domain.DetectionBox{
			X1:    int(math.Round(result.Box[0])),
			Y1:    int(math.Round(result.Box[1])),
			X2:    int(math.Round(result.Box[2])),
			Y2:    int(math.Round(result.Box[3])),
			Score: result.Confidence,
		})
	}

	provider.SortBoxes(boxes)
	return boxes, nil
}

// Embed extracts a unit-length embedding from a face crop
func (p *Provider) Embed(ctx context.Context, faceJPEG []byte) ([]float32, error) {
	imageBase64 := jpegDataURIPrefix + base64.StdEncoding.EncodeToString(faceJPEG)

	resp, err := p.client.Represent(ctx, imageBase64)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return nil, ErrNoFaceInResponse
	}

	return NormalizeEmbedding(resp.Results[0].Embedding), nil
}

// Ping checks the sidecar is reachable
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Health(ctx)
}
