package service

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

type VisitReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.VisitRecord, error)
	CountUnknown(ctx context.Context) (int, error)
}

type VisitService struct {
	visits VisitReader
}

func NewVisitService(visits VisitReader) *VisitService {
	return &VisitService{visits: visits}
}

// Recent returns the newest visits and the number of unmatched visits
// across the whole log.
func (s *VisitService) Recent(ctx context.Context, limit int) (*domain.VisitSummary, error) {
	visits, err := s.visits.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}

	unknown, err := s.visits.CountUnknown(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unknown visits: %w", err)
	}

	return &domain.VisitSummary{
		Visits:       visits,
		Total:        len(visits),
		UnknownCount: unknown,
	}, nil
}
