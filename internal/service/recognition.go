package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facegate/internal/policy"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const defaultMatchWorkers = 4

type Matcher interface {
	Match(ctx context.Context, crop []byte) (*domain.MatchResult, error)
}

type Recorder interface {
	Record(ctx context.Context, result domain.RecognitionResult) (*domain.VisitRecord, error)
}

// ScratchWriter stores the per-request working copy for file-based detectors.
type ScratchWriter interface {
	Write(data []byte, ext string) (string, func(), error)
}

type RecognitionConfig struct {
	DefaultModel domain.DetectorModel
	Workers      int
}

// RecognitionService runs decode, detect and then match, decide and record
// for every detected box.
type RecognitionService struct {
	detector     provider.Detector
	matcher      Matcher
	recorder     Recorder
	scratch      ScratchWriter
	audit        audit.Logger
	logger       *slog.Logger
	defaultModel domain.DetectorModel
	workers      int
}

func NewRecognitionService(
	detector provider.Detector,
	matcher Matcher,
	recorder Recorder,
	cfg RecognitionConfig,
	logger *slog.Logger,
) *RecognitionService {
	if !cfg.DefaultModel.Valid() {
		cfg.DefaultModel = domain.DefaultDetectorModel
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultMatchWorkers
	}
	return &RecognitionService{
		detector:     detector,
		matcher:      matcher,
		recorder:     recorder,
		audit:        &audit.NoOpLogger{},
		logger:       logger.With("component", "recognition"),
		defaultModel: cfg.DefaultModel,
		workers:      cfg.Workers,
	}
}

// WithScratch enables the on-disk working copy for detectors that read files.
func (s *RecognitionService) WithScratch(scratch ScratchWriter) *RecognitionService {
	s.scratch = scratch
	return s
}

func (s *RecognitionService) WithAuditLogger(logger audit.Logger) *RecognitionService {
	s.audit = logger
	return s
}

type boxOutcome struct {
	match *domain.MatchResult
	err   error
	done  chan struct{}
}

// Recognize processes one uploaded image.
//
// Only decoding (ErrDecode) and detection (ErrModelUnavailable) fail the
// request. Per-box failures are reported in-band. When ctx is cancelled the
// boxes recorded so far are returned with status "partial".
func (s *RecognitionService) Recognize(ctx context.Context, image []byte, modelName string) (*domain.RecognitionResponse, error) {
	start := time.Now()

	img, err := imaging.Decode(image)
	if err != nil {
		return nil, err
	}
	defer img.Release()

	model := domain.ResolveDetectorModel(modelName, s.defaultModel)

	boxes, err := s.detect(ctx, img, model)
	if err != nil {
		return nil, err
	}

	for i := range boxes {
		boxes[i] = boxes[i].Clamp(img.Width, img.Height)
	}

	outcomes := make([]boxOutcome, len(boxes))
	for i := range outcomes {
		outcomes[i].done = make(chan struct{})
	}

	// Matching runs on a bounded pool; deciding and recording below stay in
	// detection order.
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)

		var g errgroup.Group
		g.SetLimit(s.workers)
		for i := range boxes {
			i := i
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				defer close(outcomes[i].done)
				outcomes[i].match, outcomes[i].err = s.matchBox(ctx, img, boxes[i])
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() { <-dispatched }()

	results := make([]domain.RecognitionResult, 0, len(boxes))
	status := domain.StatusSuccess

loop:
	for i, box := range boxes {
		if ctx.Err() != nil {
			status = domain.StatusPartial
			break
		}
		select {
		case <-outcomes[i].done:
		case <-ctx.Done():
			status = domain.StatusPartial
			break loop
		}

		out := outcomes[i]
		if out.err != nil {
			s.logger.Warn("face match failed",
				"box", i,
				"error", out.err,
			)
		}

		result := policy.Apply(box, out.match, out.err)

		if _, err := s.recorder.Record(ctx, result); err != nil {
			result.SetError(err)
		}

		results = append(results, result)
	}

	s.logger.Info("recognition completed",
		"model", model,
		"detector", s.detector.Name(),
		"faces", len(boxes),
		"processed", len(results),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := s.audit.Log(ctx, audit.Event{
		EventType: audit.EventFacesDetected,
		Provider:  s.detector.Name(),
		Success:   true,
		Metadata: map[string]string{
			"model":     string(model),
			"faces":     strconv.Itoa(len(boxes)),
			"processed": strconv.Itoa(len(results)),
			"status":    status,
		},
	}); err != nil {
		s.logger.Warn("failed to log audit event", "error", err)
	}

	return &domain.RecognitionResponse{
		Status:           status,
		PeopleCount:      len(results),
		RecognizedPeople: results,
	}, nil
}

func (s *RecognitionService) detect(ctx context.Context, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error) {
	var (
		boxes []domain.DetectionBox
		err   error
	)

	if fd, ok := s.detector.(provider.FileDetector); ok && s.scratch != nil {
		boxes, err = s.detectFromScratch(ctx, fd, img, model)
	} else {
		boxes, err = s.detector.Detect(ctx, img, model)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("detect faces: %w", ctxErr)
		}
		if errors.Is(err, domain.ErrModelUnavailable) {
			return nil, err
		}
		return nil, domain.ErrModelUnavailable.WithError(fmt.Errorf("detect faces with %s: %w", model, err))
	}

	if boxes == nil {
		boxes = []domain.DetectionBox{}
	}
	return boxes, nil
}

func (s *RecognitionService) detectFromScratch(ctx context.Context, fd provider.FileDetector, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error) {
	data, err := img.JPEG()
	if err != nil {
		return nil, fmt.Errorf("encode working copy: %w", err)
	}

	path, release, err := s.scratch.Write(data, ".jpg")
	if err != nil {
		s.logger.Warn("scratch write failed, sending image inline", "error", err)
		return fd.Detect(ctx, img, model)
	}
	defer release()

	return fd.DetectFile(ctx, path, img, model)
}

func (s *RecognitionService) matchBox(ctx context.Context, img *imaging.PixelBuffer, box domain.DetectionBox) (*domain.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrMatch.WithError(err)
	}

	crop, err := img.Crop(box)
	if err != nil {
		return nil, domain.ErrMatch.WithError(fmt.Errorf("crop face: %w", err))
	}

	return s.matcher.Match(ctx, crop)
}
