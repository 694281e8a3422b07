package rekognition

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
const maxImageSize = 5 * 1024 * 1024

// Provider implements provider.Detector using AWS Rekognition DetectFaces.
// Rekognition does not expose embeddings, so it only serves detection; the
// model selector is recorded but has no effect.
type Provider struct {
	client      *Client
	auditLogger audit.Logger
}

// ProviderOption defines optional configuration for Provider
type ProviderOption func(*Provider)

// WithAuditLogger sets the audit logger for the provider
func WithAuditLogger(logger audit.Logger) ProviderOption {
	return func(p *Provider) {
		p.auditLogger = logger
	}
}

var (
	_ provider.Detector = (*Provider)(nil)
	_ provider.Checker  = (*Provider)(nil)
)

// NewProvider creates a Rekognition detector using the default credential chain
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return NewProviderWithClient(client, opts...), nil
}

// NewProviderWithClient creates a provider around an existing client
func NewProviderWithClient(client *Client, opts ...ProviderOption) *Provider {
	p := &Provider{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return "rekognition"
}

// Ping verifies credentials resolve
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.CheckCredentials(ctx)
}

// logAudit logs an audit event if an audit logger is configured
// Audit failure does not affect the operation (fire-and-forget)
func (p *Provider) logAudit(ctx context.Context, success bool, err error, metadata map[string]string) {
	if p.auditLogger == nil {
		return
	}

	event := audit.Event{
		EventType: audit.EventFacesDetected,
		Provider:  "rekognition",
		Success:   success,
		Metadata:  metadata,
	}

	if err != nil {
		event.Error = err.Error()
	}

	_ = p.auditLogger.Log(ctx, event)
}

// Detect detects faces using the DetectFaces API
// Returns an empty slice if no faces are detected (not an error)
func (p *Provider) Detect(ctx context.Context, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error) {
	data, err := img.JPEG()
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	metadata := map[string]string{
		"image_size": strconv.Itoa(len(data)),
		"model":      string(model),
	}

	if len(data) > maxImageSize {
		err := fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(data), maxImageSize)
		p.logAudit(ctx, false, err, metadata)
		return nil, err
	}

	output, err := p.client.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image: &types.Image{
			Bytes: data,
		},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		err = mapAPIError(err)
		p.logAudit(ctx, false, err, metadata)
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	boxes := make([]domain.DetectionBox, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		box, ok := toPixelBox(detail, img.Width, img.Height)
		if !ok {
			continue
		}
		if float32(box.Score*100) < p.client.config.MinConfidence {
			continue
		}
		boxes = append(boxes, box)
	}

	provider.SortBoxes(boxes)

	metadata["faces_count"] = strconv.Itoa(len(boxes))
	p.logAudit(ctx, true, nil, metadata)

	return boxes, nil
}

// toPixelBox converts Rekognition's ratio bounding box to pixel coordinates
func toPixelBox(detail types.FaceDetail, width, height int) (domain.DetectionBox, bool) {
	bb := detail.BoundingBox
	if bb == nil || bb.Left == nil || bb.Top == nil || bb.Width == nil || bb.Height == nil {
		return domain.DetectionBox{}, false
	}

	left := float64(aws.ToFloat32(bb.Left))
	top := float64(aws.ToFloat32(bb.Top))
	w := float64(aws.ToFloat32(bb.Width))
	h := float64(aws.ToFloat32(bb.Height))

	box := domain.DetectionBox{
		X1:    int(math.Round(left * float64(width))),
		Y1:    int(math.Round(top * float64(height))),
		X2:    int(math.Round((left + w) * float64(width))),
		Y2:    int(math.Round((top + h) * float64(height))),
		Score: float64(aws.ToFloat32(detail.Confidence)) / 100,
	}

	return box.Clamp(width, height), true
}
