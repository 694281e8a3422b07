package face

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/rekognition"
)

// ProviderType defines supported backend types
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace sidecar (detector and embedder)
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeRekognition is AWS Rekognition (detector only)
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeMock is the in-process deterministic backend
	ProviderTypeMock ProviderType = "mock"
)

// Backends groups the detector and embedder the pipeline runs with.
type Backends struct {
	Detector provider.Detector
	Embedder provider.Embedder
}

// NewBackends creates the configured detector and embedder and checks that
// remote ones are reachable. Any failure is reported as ErrModelUnavailable.
//
// Environment variables:
//   - DETECTOR_BACKEND: "deepface", "rekognition" or "mock" (default: "deepface")
//   - EMBEDDER_BACKEND: "deepface" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5005")
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
func NewBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	var df *deepface.Provider
	deepFace := func() *deepface.Provider {
		if df == nil {
			df = createDeepFaceProvider(cfg)
		}
		return df
	}

	detector, err := newDetector(ctx, cfg, logger, deepFace)
	if err != nil {
		return nil, domain.ErrModelUnavailable.WithError(err)
	}

	embedder, err := newEmbedder(cfg, deepFace)
	if err != nil {
		return nil, domain.ErrModelUnavailable.WithError(err)
	}

	b := &Backends{Detector: detector, Embedder: embedder}
	if err := b.Ping(ctx); err != nil {
		return nil, err
	}

	logger.Info("face backends ready",
		"detector", detector.Name(),
		"embedder", embedder.Name(),
	)

	return b, nil
}

// Ping checks every backend with a remote dependency.
func (b *Backends) Ping(ctx context.Context) error {
	seen := map[provider.Checker]bool{}
	for _, backend := range []any{b.Detector, b.Embedder} {
		checker, ok := backend.(provider.Checker)
		if !ok || seen[checker] {
			continue
		}
		seen[checker] = true

		if err := checker.Ping(ctx); err != nil {
			return domain.ErrModelUnavailable.WithError(err)
		}
	}
	return nil
}

func newDetector(ctx context.Context, cfg *config.Config, logger *slog.Logger, deepFace func() *deepface.Provider) (provider.Detector, error) {
	switch ProviderType(cfg.DetectorBackend) {
	case ProviderTypeDeepFace, "":
		return deepFace(), nil

	case ProviderTypeRekognition:
		return createRekognitionProvider(ctx, cfg, logger)

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown detector type: %s (supported: %s, %s, %s)",
			cfg.DetectorBackend, ProviderTypeDeepFace, ProviderTypeRekognition, ProviderTypeMock)
	}
}

func newEmbedder(cfg *config.Config, deepFace func() *deepface.Provider) (provider.Embedder, error) {
	switch ProviderType(cfg.EmbedderBackend) {
	case ProviderTypeDeepFace, "":
		return deepFace(), nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown embedder type: %s (supported: %s, %s)",
			cfg.EmbedderBackend, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

// createRekognitionProvider creates an AWS Rekognition detector
func createRekognitionProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.Detector, error) {
	rekogConfig := rekognition.DefaultConfig()
	if cfg.AWSRegion != "" {
		rekogConfig.Region = cfg.AWSRegion
	}

	prov, err := rekognition.NewProvider(ctx, rekogConfig,
		rekognition.WithAuditLogger(audit.NewSlogLogger(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("create rekognition provider in %s: %w", rekogConfig.Region, err)
	}

	return prov, nil
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.Config{
		BaseURL:     cfg.DeepFaceURL,
		Timeout:     cfg.DeepFaceTimeout,
		Model:       cfg.EmbeddingModel,
		RetryCount:  cfg.DeepFaceRetries,
		SharedMedia: cfg.DeepFaceShared,
	}

	// NewClient fills zero values with defaults
	return deepface.NewProvider(deepfaceConfig)
}
