package domain

import (
	"path"
	"time"
)

// GalleryPathPrefix precede o nome do arquivo em todo caminho de imagem
// de referência gravado no cadastro
const GalleryPathPrefix = "faces/"

// EnrolledIdentity representa uma pessoa cadastrada na galeria
type EnrolledIdentity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	GalleryPath string    `json:"image"`
	IsAllowed   bool      `json:"is_allowed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Filename returns the base name of the reference image, the key the
// gallery index uses for this identity.
func (e *EnrolledIdentity) Filename() string {
	if e.GalleryPath == "" {
		return ""
	}
	return path.Base(e.GalleryPath)
}

// VisitRecord representa um registro de visita (audit), append-only
type VisitRecord struct {
	ID                int64     `json:"id"`
	FaceID            *int64    `json:"face_id"`
	PersonName        string    `json:"person_name"`
	ConfidenceDisplay string    `json:"confidence"`
	IsAllowed         bool      `json:"is_allowed"`
	Timestamp         time.Time `json:"timestamp"`
}

// VisitSummary is the listing returned to operators.
type VisitSummary struct {
	Visits       []VisitRecord `json:"visits"`
	Total        int           `json:"total"`
	UnknownCount int           `json:"unknown_count"`
}
