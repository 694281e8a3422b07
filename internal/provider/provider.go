package provider

import (
	"context"
	"sort"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/imaging"
)

// Detector locates faces in a decoded image.
//
// Implementations must be safe for concurrent use and deterministic for a
// fixed model and bitmap. An image without faces yields an empty slice.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error)
}

// FileDetector is implemented by detectors that can read the request's
// working copy from shared storage instead of receiving the bytes inline.
type FileDetector interface {
	Detector
	DetectFile(ctx context.Context, path string, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error)
}

// Embedder turns a face crop into a fixed-size embedding.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, faceJPEG []byte) ([]float32, error)
}

// Checker is implemented by backends with a reachable remote dependency.
type Checker interface {
	Ping(ctx context.Context) error
}

// SortBoxes orders boxes top-to-bottom, then left-to-right, so detection
// order does not depend on the backend's internal ordering.
func SortBoxes(boxes []domain.DetectionBox) {
	sort.SliceStable(boxes, func(i, j int) bool {
		a, b := boxes[i], boxes[j]
		if a.Y1 != b.Y1 {
			return a.Y1 < b.Y1
		}
		if a.X1 != b.X1 {
			return a.X1 < b.X1
		}
		if a.X2 != b.X2 {
			return a.X2 < b.X2
		}
		return a.Y2 < b.Y2
	})
}
