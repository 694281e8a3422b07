package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
)

// VisitService reads the visit log
type VisitService interface {
	Recent(ctx context.Context, limit int) (*domain.VisitSummary, error)
}

type VisitHandler struct {
	service VisitService
}

func NewVisitHandler(service VisitService) *VisitHandler {
	return &VisitHandler{service: service}
}

// List GET /api/visits?limit=50 - most recent visits first
func (h *VisitHandler) List(c *fiber.Ctx) error {
	limit := repository.DefaultVisitLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return domain.ErrBadRequest.WithError(fmt.Errorf("invalid limit %q", raw))
		}
		limit = min(v, repository.MaxVisitLimit)
	}

	summary, err := h.service.Recent(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(summary)
}
