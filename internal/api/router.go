package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facegate/internal/database"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

// multipart framing on top of the image itself
const bodyOverhead = 1 << 20

type Dependencies struct {
	Recognition  handler.RecognitionService
	Enrollment   handler.EnrollmentService
	Visits       handler.VisitService
	Hub          *ws.Hub
	DB           database.Pinger
	Gallery      handler.GallerySizer
	MediaRoot    string
	MaxImageSize int
	// RecognitionTimeout bounds a detect request; zero means no deadline
	RecognitionTimeout time.Duration
}

type Router struct {
	app    *fiber.App
	logger *slog.Logger
	deps   *Dependencies
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	maxImage := handler.DefaultMaxImageSize
	if deps != nil && deps.MaxImageSize > 0 {
		maxImage = deps.MaxImageSize
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Facegate API",
		BodyLimit:    maxImage + bodyOverhead,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Swagger documentation
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var (
		db      database.Pinger
		gallery handler.GallerySizer
	)
	if r.deps != nil {
		db, gallery = r.deps.DB, r.deps.Gallery
	}

	// Health check endpoints
	healthHandler := handler.NewHealthHandler(db, gallery)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	// Reference images and crop references
	if r.deps.MediaRoot != "" {
		r.app.Static("/media", r.deps.MediaRoot, fiber.Static{Browse: false})
	}

	api := r.app.Group("/api")

	// Face routes
	faceHandler := handler.NewFaceHandler(r.deps.Recognition, r.deps.Enrollment, r.deps.MaxImageSize, r.logger).
		WithRecognitionTimeout(r.deps.RecognitionTimeout)
	api.Post("/faces/detect", faceHandler.Detect)
	api.Get("/faces", faceHandler.List)
	api.Post("/faces", faceHandler.Create)
	api.Get("/faces/:id", faceHandler.Get)
	api.Put("/faces/:id", faceHandler.Update)
	api.Delete("/faces/:id", faceHandler.Delete)

	// Visit routes
	visitHandler := handler.NewVisitHandler(r.deps.Visits)
	api.Get("/visits", visitHandler.List)

	// Live feed
	if r.deps.Hub != nil {
		api.Get("/visits/live", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}
