package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/database"
)

const version = "0.1.0"

// GallerySizer reports the number of indexed reference embeddings.
type GallerySizer interface {
	Len() int
}

type HealthHandler struct {
	db      database.Pinger
	gallery GallerySizer
}

func NewHealthHandler(db database.Pinger, gallery GallerySizer) *HealthHandler {
	return &HealthHandler{db: db, gallery: gallery}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Gallery *int   `json:"gallery_size,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: version,
	})
}

// Ready reports 503 until the database answers.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db != nil {
		if err := database.HealthCheck(c.UserContext(), h.db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
				Status: "unavailable",
				Error:  "database unreachable",
			})
		}
	}

	resp := HealthResponse{Status: "ready"}
	if h.gallery != nil {
		n := h.gallery.Len()
		resp.Gallery = &n
	}
	return c.JSON(resp)
}
