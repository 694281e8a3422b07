package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*Config) bool
	}{
		{
			name: "loads with all vars",
			envVars: map[string]string{
				"PORT":                     "8080",
				"ENV":                      "production",
				"DATABASE_URL":             "postgres://localhost/test",
				"MEDIA_ROOT":               "/srv/media",
				"DETECTOR_BACKEND":         "rekognition",
				"EMBEDDER_BACKEND":         "mock",
				"DEFAULT_MODEL":            "yolov11m-face",
				"MATCH_THRESHOLD":          "0.3",
				"MATCH_WORKERS":            "8",
				"GALLERY_REFRESH_INTERVAL": "1m",
				"RECOGNITION_TIMEOUT":      "15s",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 8080 &&
					c.Environment == "production" &&
					c.DatabaseURL == "postgres://localhost/test" &&
					c.MediaRoot == "/srv/media" &&
					c.DetectorBackend == "rekognition" &&
					c.EmbedderBackend == "mock" &&
					c.DetectorModel() == domain.ModelYOLOv11mFace &&
					c.MatchThreshold == 0.3 &&
					c.MatchWorkers == 8 &&
					c.GalleryRefreshInterval == time.Minute &&
					c.RecognitionTimeout == 15*time.Second
			},
		},
		{
			name: "uses defaults when optional vars missing",
			envVars: map[string]string{
				"DATABASE_URL": "postgres://localhost/test",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 8000 &&
					c.Environment == "development" &&
					c.DetectorBackend == "deepface" &&
					c.EmbedderBackend == "deepface" &&
					c.EmbeddingModel == "Facenet" &&
					c.DetectorModel() == domain.ModelYOLOv8n &&
					c.MatchThreshold == 0.40 &&
					c.MatchWorkers == 4 &&
					c.AutoMigrate &&
					!c.DeepFaceShared &&
					c.RecognitionTimeout == time.Minute &&
					c.MaxImageSize == 10*1024*1024
			},
		},
		{
			name:    "fails when DATABASE_URL missing",
			envVars: map[string]string{},
			wantErr: true,
		},
		{
			name: "fails on unknown default model",
			envVars: map[string]string{
				"DATABASE_URL":  "postgres://localhost/test",
				"DEFAULT_MODEL": "resnet50",
			},
			wantErr: true,
		},
		{
			name: "fails on threshold above one",
			envVars: map[string]string{
				"DATABASE_URL":    "postgres://localhost/test",
				"MATCH_THRESHOLD": "1.5",
			},
			wantErr: true,
		},
		{
			name: "fails on zero workers",
			envVars: map[string]string{
				"DATABASE_URL":  "postgres://localhost/test",
				"MATCH_WORKERS": "0",
			},
			wantErr: true,
		},
		{
			name: "fails on embedder without embeddings",
			envVars: map[string]string{
				"DATABASE_URL":     "postgres://localhost/test",
				"EMBEDDER_BACKEND": "rekognition",
			},
			wantErr: true,
		},
		{
			name: "fails on negative recognition timeout",
			envVars: map[string]string{
				"DATABASE_URL":        "postgres://localhost/test",
				"RECOGNITION_TIMEOUT": "-1s",
			},
			wantErr: true,
		},
		{
			name: "fails on malformed duration",
			envVars: map[string]string{
				"DATABASE_URL":             "postgres://localhost/test",
				"GALLERY_REFRESH_INTERVAL": "soon",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error: %v", err)
				return
			}

			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Load() config check failed, got: %+v", cfg)
			}
		})
	}
}

func TestConfig_Dirs(t *testing.T) {
	c := &Config{MediaRoot: "media"}

	if got, want := c.GalleryDir(), filepath.Join("media", "faces"); got != want {
		t.Errorf("GalleryDir() = %v, want %v", got, want)
	}
	if got, want := c.ScratchDir(), filepath.Join("media", "tmp"); got != want {
		t.Errorf("ScratchDir() = %v, want %v", got, want)
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsDevelopment(); got != tt.want {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"production", "production", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsProduction(); got != tt.want {
				t.Errorf("IsProduction() = %v, want %v", got, tt.want)
			}
		})
	}
}
