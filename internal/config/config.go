package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

type Config struct {
	// Server
	Port         int    `envconfig:"PORT" default:"8000"`
	Environment  string `envconfig:"ENV" default:"development"`
	MaxImageSize int    `envconfig:"MAX_IMAGE_SIZE" default:"10485760"`

	// Database
	DatabaseURL  string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseName string `envconfig:"DATABASE_NAME" default:"facegate"`
	AutoMigrate  bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// Storage
	MediaRoot string `envconfig:"MEDIA_ROOT" default:"media"`

	// Backends
	DetectorBackend string        `envconfig:"DETECTOR_BACKEND" default:"deepface"`
	EmbedderBackend string        `envconfig:"EMBEDDER_BACKEND" default:"deepface"`
	DeepFaceURL     string        `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceTimeout time.Duration `envconfig:"DEEPFACE_TIMEOUT" default:"30s"`
	DeepFaceRetries int           `envconfig:"DEEPFACE_RETRIES" default:"2"`
	DeepFaceShared  bool          `envconfig:"DEEPFACE_SHARED_MEDIA" default:"false"`
	EmbeddingModel  string        `envconfig:"EMBEDDING_MODEL" default:"Facenet"`
	AWSRegion       string        `envconfig:"AWS_REGION" default:"us-east-1"`

	// Recognition
	DefaultModel           string        `envconfig:"DEFAULT_MODEL" default:"yolov8n"`
	MatchThreshold         float64       `envconfig:"MATCH_THRESHOLD" default:"0.40"`
	MatchWorkers           int           `envconfig:"MATCH_WORKERS" default:"4"`
	GalleryRefreshInterval time.Duration `envconfig:"GALLERY_REFRESH_INTERVAL" default:"5m"`
	// fasthttp never cancels a request context on client disconnect, so
	// this deadline is what ends a slow detection early. Zero disables it.
	RecognitionTimeout time.Duration `envconfig:"RECOGNITION_TIMEOUT" default:"60s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if _, err := domain.ParseDetectorModel(c.DefaultModel); err != nil {
		return fmt.Errorf("DEFAULT_MODEL: %w", err)
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be in (0,1], got %v", c.MatchThreshold)
	}
	if c.MatchWorkers < 1 {
		return fmt.Errorf("MATCH_WORKERS must be at least 1, got %d", c.MatchWorkers)
	}
	if c.GalleryRefreshInterval < 0 {
		return fmt.Errorf("GALLERY_REFRESH_INTERVAL must not be negative")
	}
	if c.RecognitionTimeout < 0 {
		return fmt.Errorf("RECOGNITION_TIMEOUT must not be negative")
	}
	switch c.DetectorBackend {
	case "deepface", "rekognition", "mock":
	default:
		return fmt.Errorf("DETECTOR_BACKEND unknown: %q", c.DetectorBackend)
	}
	switch c.EmbedderBackend {
	case "deepface", "mock":
	default:
		return fmt.Errorf("EMBEDDER_BACKEND unknown: %q", c.EmbedderBackend)
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("MAX_IMAGE_SIZE must be positive")
	}
	return nil
}

// DetectorModel returns the validated default detector variant.
func (c *Config) DetectorModel() domain.DetectorModel {
	return domain.ResolveDetectorModel(c.DefaultModel, domain.DefaultDetectorModel)
}

func (c *Config) GalleryDir() string {
	return filepath.Join(c.MediaRoot, "faces")
}

func (c *Config) ScratchDir() string {
	return filepath.Join(c.MediaRoot, "tmp")
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
