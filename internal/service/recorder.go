package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/policy"
)

type VisitStore interface {
	Insert(ctx context.Context, visit *domain.VisitRecord) error
}

// VisitPublisher receives every committed visit, e.g. the live feed hub.
type VisitPublisher interface {
	PublishVisit(visit domain.VisitRecord)
}

// VisitRecorder writes one visit per recognition result.
type VisitRecorder struct {
	visits    VisitStore
	publisher VisitPublisher
	audit     audit.Logger
	logger    *slog.Logger
}

func NewVisitRecorder(visits VisitStore, publisher VisitPublisher, auditLogger audit.Logger, logger *slog.Logger) *VisitRecorder {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &VisitRecorder{
		visits:    visits,
		publisher: publisher,
		audit:     auditLogger,
		logger:    logger.With("component", "visit_recorder"),
	}
}

// Record commits the visit for r before returning. The write is not
// abandoned when ctx is cancelled, so a decided box is always recorded.
func (r *VisitRecorder) Record(ctx context.Context, result domain.RecognitionResult) (*domain.VisitRecord, error) {
	visit := &domain.VisitRecord{
		PersonName:        result.Name,
		ConfidenceDisplay: policy.ConfidenceDisplay(result),
		IsAllowed:         result.IsAllowed,
	}
	if result.Tag.Known() && result.IdentityID != nil {
		id := *result.IdentityID
		visit.FaceID = &id
	}

	if err := r.visits.Insert(context.WithoutCancel(ctx), visit); err != nil {
		r.logger.Error("failed to record visit",
			"person_name", visit.PersonName,
			"error", err,
		)
		return nil, err
	}

	if r.publisher != nil {
		r.publisher.PublishVisit(*visit)
	}

	if err := r.audit.Log(ctx, audit.Event{
		EventType:  audit.EventVisitRecorded,
		IdentityID: visit.FaceID,
		VisitID:    &visit.ID,
		Success:    true,
		Metadata: map[string]string{
			"tag":     string(result.Tag),
			"allowed": strconv.FormatBool(visit.IsAllowed),
		},
	}); err != nil {
		r.logger.Warn("failed to log audit event", "error", err)
	}

	return visit, nil
}
