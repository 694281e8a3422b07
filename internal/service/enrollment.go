package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/gallery"
	"github.com/saturnino-fabrica-de-software/facegate/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facegate/internal/storage"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

const maxNameLength = 100

type IdentityStore interface {
	GetByID(ctx context.Context, id int64) (*domain.EnrolledIdentity, error)
	List(ctx context.Context) ([]domain.EnrolledIdentity, error)
	Create(ctx context.Context, identity *domain.EnrolledIdentity) error
	Update(ctx context.Context, identity *domain.EnrolledIdentity) error
	Delete(ctx context.Context, id int64) error
}

type GalleryFiles interface {
	Save(name string, data []byte) error
	Remove(name string) error
}

type GalleryRebuilder interface {
	Rebuild(ctx context.Context) (gallery.RebuildStats, error)
}

// EventPublisher fans registry changes out to live subscribers.
type EventPublisher interface {
	Publish(eventType ws.EventType, data interface{})
}

// EnrollInput is one enrollment request.
type EnrollInput struct {
	Name      string
	IsAllowed bool
	Filename  string
	Image     []byte
}

// UpdateInput carries the fields to change; nil fields are left as they are.
type UpdateInput struct {
	Name      *string
	IsAllowed *bool
	Filename  string
	Image     []byte
}

// IdentityList is the registry listing.
type IdentityList struct {
	Faces []domain.EnrolledIdentity `json:"faces"`
	Total int                       `json:"total"`
}

// EnrollmentService manages the identity registry and its reference images.
type EnrollmentService struct {
	identities IdentityStore
	files      GalleryFiles
	rebuilder  GalleryRebuilder
	events     EventPublisher
	audit      audit.Logger
	logger     *slog.Logger
}

func NewEnrollmentService(
	identities IdentityStore,
	files GalleryFiles,
	rebuilder GalleryRebuilder,
	events EventPublisher,
	logger *slog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		identities: identities,
		files:      files,
		rebuilder:  rebuilder,
		events:     events,
		audit:      &audit.NoOpLogger{},
		logger:     logger.With("component", "enrollment"),
	}
}

func (s *EnrollmentService) WithAuditLogger(logger audit.Logger) *EnrollmentService {
	s.audit = logger
	return s
}

func (s *EnrollmentService) List(ctx context.Context) (*IdentityList, error) {
	faces, err := s.identities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	return &IdentityList{Faces: faces, Total: len(faces)}, nil
}

func (s *EnrollmentService) Get(ctx context.Context, id int64) (*domain.EnrolledIdentity, error) {
	return s.identities.GetByID(ctx, id)
}

// Enroll stores the reference image and creates the registry row. The image
// is removed again when the row cannot be created. storeImage never reuses an
// existing file, so that cleanup only touches the file this call wrote.
func (s *EnrollmentService) Enroll(ctx context.Context, in EnrollInput) (*domain.EnrolledIdentity, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}

	file, err := s.storeImage(name, in.Filename, in.Image)
	if err != nil {
		return nil, err
	}

	identity := &domain.EnrolledIdentity{
		Name:        name,
		GalleryPath: domain.GalleryPathPrefix + file,
		IsAllowed:   in.IsAllowed,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if rmErr := s.files.Remove(file); rmErr != nil {
			s.logger.Warn("failed to remove orphaned upload", "file", file, "error", rmErr)
		}
		return nil, err
	}

	s.logger.Info("face enrolled",
		"identity_id", identity.ID,
		"file", file,
		"is_allowed", identity.IsAllowed,
	)

	s.afterChange(ctx, audit.EventIdentityEnrolled, ws.EventIdentityEnrolled, identity)
	return identity, nil
}

// Update changes name, access flag and optionally the reference image.
func (s *EnrollmentService) Update(ctx context.Context, id int64, in UpdateInput) (*domain.EnrolledIdentity, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name, err := validateName(*in.Name)
		if err != nil {
			return nil, err
		}
		identity.Name = name
	}
	if in.IsAllowed != nil {
		identity.IsAllowed = *in.IsAllowed
	}

	oldFile := identity.Filename()
	var newFile string
	if len(in.Image) > 0 {
		newFile, err = s.storeImage(identity.Name, in.Filename, in.Image)
		if err != nil {
			return nil, err
		}
		identity.GalleryPath = domain.GalleryPathPrefix + newFile
	}

	if err := s.identities.Update(ctx, identity); err != nil {
		if newFile != "" {
			if rmErr := s.files.Remove(newFile); rmErr != nil {
				s.logger.Warn("failed to remove orphaned upload", "file", newFile, "error", rmErr)
			}
		}
		return nil, err
	}

	if newFile != "" && oldFile != "" && newFile != oldFile {
		if err := s.files.Remove(oldFile); err != nil {
			s.logger.Warn("failed to remove replaced image", "file", oldFile, "error", err)
		}
	}

	s.afterChange(ctx, audit.EventIdentityUpdated, ws.EventIdentityUpdated, identity)
	return identity, nil
}

// Delete removes the registry row and then its reference image. Visits
// that point at the identity are kept.
func (s *EnrollmentService) Delete(ctx context.Context, id int64) error {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.identities.Delete(ctx, id); err != nil {
		return err
	}

	if file := identity.Filename(); file != "" {
		if err := s.files.Remove(file); err != nil {
			s.logger.Warn("failed to remove reference image", "file", file, "error", err)
		}
	}

	s.afterChange(ctx, audit.EventIdentityDeleted, ws.EventIdentityDeleted, identity)
	return nil
}

func (s *EnrollmentService) storeImage(name, filename string, data []byte) (string, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return "", err
	}
	img.Release()

	if filename == "" {
		filename = "upload." + formatExt(img.Format)
	}

	file := storage.SanitizeName(name + "_" + path.Base(filename))
	if !storage.IsImageName(file) {
		return "", domain.ErrValidationFailed.WithError(fmt.Errorf("unsupported image file name %q", filename))
	}

	err = s.files.Save(file, data)
	if errors.Is(err, storage.ErrFileExists) {
		// the name belongs to another row or to the one being replaced
		file = uniqueName(file)
		err = s.files.Save(file, data)
	}
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return "", domain.ErrValidationFailed.WithError(err)
		}
		return "", domain.ErrInternal.WithError(fmt.Errorf("store image: %w", err))
	}
	return file, nil
}

// uniqueName inserts a random fragment before the extension.
func uniqueName(file string) string {
	ext := path.Ext(file)
	return strings.TrimSuffix(file, ext) + "-" + uuid.NewString()[:8] + ext
}

func (s *EnrollmentService) afterChange(ctx context.Context, auditType audit.EventType, eventType ws.EventType, identity *domain.EnrolledIdentity) {
	// The gallery lags the registry if the rebuild fails; the refresh
	// worker picks the change up on its next tick.
	if s.rebuilder != nil {
		stats, err := s.rebuilder.Rebuild(context.WithoutCancel(ctx))
		if err != nil {
			s.logger.Error("gallery rebuild failed", "error", err)
		} else if s.events != nil {
			s.events.Publish(ws.EventGalleryRebuilt, map[string]interface{}{
				"indexed": stats.Indexed,
				"skipped": stats.Skipped,
			})
		}
	}

	if s.events != nil {
		s.events.Publish(eventType, identity)
	}

	id := identity.ID
	if err := s.audit.Log(ctx, audit.Event{
		EventType:  auditType,
		IdentityID: &id,
		Success:    true,
		Metadata: map[string]string{
			"file":    identity.Filename(),
			"allowed": strconv.FormatBool(identity.IsAllowed),
		},
	}); err != nil {
		s.logger.Warn("failed to log audit event", "error", err)
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ErrValidationFailed.WithError(errors.New("name is required"))
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", domain.ErrValidationFailed.WithError(fmt.Errorf("name longer than %d characters", maxNameLength))
	}
	return name, nil
}

func formatExt(format string) string {
	switch format {
	case "jpeg", "":
		return "jpg"
	default:
		return format
	}
}
