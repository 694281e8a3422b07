package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
)

// DefaultMaxImageSize is used when the handler is built without a limit.
const DefaultMaxImageSize = 10 * 1024 * 1024 // 10MB

// RecognitionService runs the detection pipeline
type RecognitionService interface {
	Recognize(ctx context.Context, image []byte, modelName string) (*domain.RecognitionResponse, error)
}

// EnrollmentService manages enrolled identities
type EnrollmentService interface {
	List(ctx context.Context) (*service.IdentityList, error)
	Get(ctx context.Context, id int64) (*domain.EnrolledIdentity, error)
	Enroll(ctx context.Context, in service.EnrollInput) (*domain.EnrolledIdentity, error)
	Update(ctx context.Context, id int64, in service.UpdateInput) (*domain.EnrolledIdentity, error)
	Delete(ctx context.Context, id int64) error
}

// FaceHandler handles face-related requests
type FaceHandler struct {
	recognition  RecognitionService
	enrollment   EnrollmentService
	maxImageSize int
	timeout      time.Duration
	logger       *slog.Logger
}

// NewFaceHandler creates a new FaceHandler instance
func NewFaceHandler(recognition RecognitionService, enrollment EnrollmentService, maxImageSize int, logger *slog.Logger) *FaceHandler {
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	return &FaceHandler{
		recognition:  recognition,
		enrollment:   enrollment,
		maxImageSize: maxImageSize,
		logger:       logger,
	}
}

// WithRecognitionTimeout bounds each detect request. fasthttp does not cancel
// the request context when the client goes away, so without a deadline the
// pipeline always runs to completion.
func (h *FaceHandler) WithRecognitionTimeout(d time.Duration) *FaceHandler {
	h.timeout = d
	return h
}

// Detect POST /api/faces/detect - detect and identify every face in an image
func (h *FaceHandler) Detect(c *fiber.Ctx) error {
	// 1. Extract image
	imageBytes, _, err := h.extractImage(c, true)
	if err != nil {
		return fmt.Errorf("detect faces: %w", err)
	}

	// 2. Model selector; unknown values fall back to the default
	model := strings.TrimSpace(c.FormValue("model"))

	// 3. Run pipeline; an expired deadline yields a partial response
	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	resp, err := h.recognition.Recognize(ctx, imageBytes, model)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// List GET /api/faces - list enrolled identities
func (h *FaceHandler) List(c *fiber.Ctx) error {
	list, err := h.enrollment.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// Get GET /api/faces/:id
func (h *FaceHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	identity, err := h.enrollment.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(identity)
}

// Create POST /api/faces - enroll a new identity
func (h *FaceHandler) Create(c *fiber.Ctx) error {
	// 1. Extract name
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return domain.ErrValidationFailed.WithError(errors.New("name is required"))
	}

	// 2. Access flag, defaults to allowed
	isAllowed := true
	if raw := c.FormValue("is_allowed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("is_allowed: %w", err))
		}
		isAllowed = v
	}

	// 3. Extract image
	imageBytes, filename, err := h.extractImage(c, true)
	if err != nil {
		return fmt.Errorf("enroll face: %w", err)
	}

	identity, err := h.enrollment.Enroll(c.UserContext(), service.EnrollInput{
		Name:      name,
		IsAllowed: isAllowed,
		Filename:  filename,
		Image:     imageBytes,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(identity)
}

// Update PUT /api/faces/:id - change name, access flag or reference image
func (h *FaceHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var in service.UpdateInput

	if raw, ok := formValue(c, "name"); ok {
		in.Name = &raw
	}
	if raw, ok := formValue(c, "is_allowed"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("is_allowed: %w", err))
		}
		in.IsAllowed = &v
	}

	imageBytes, filename, err := h.extractImage(c, false)
	if err != nil {
		return fmt.Errorf("update face: %w", err)
	}
	in.Image = imageBytes
	in.Filename = filename

	identity, err := h.enrollment.Update(c.UserContext(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(identity)
}

// Delete DELETE /api/faces/:id
func (h *FaceHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.enrollment.Delete(c.UserContext(), id); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// extractImage reads the "image" form file. When required is false a
// missing file yields nil bytes and no error.
func (h *FaceHandler) extractImage(c *fiber.Ctx, required bool) ([]byte, string, error) {
	file, err := c.FormFile("image")
	if err != nil {
		if !required && (errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm)) {
			return nil, "", nil
		}
		return nil, "", domain.ErrBadRequest.WithError(fmt.Errorf("image is required: %w", err))
	}

	if file.Size == 0 {
		return nil, "", domain.ErrDecode.WithError(errors.New("empty image"))
	}
	if file.Size > int64(h.maxImageSize) {
		return nil, "", domain.ErrDecode.WithError(fmt.Errorf("image larger than %d bytes", h.maxImageSize))
	}

	data, err := readFormFile(file)
	if err != nil {
		return nil, "", domain.ErrDecode.WithError(err)
	}
	return data, file.Filename, nil
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	return io.ReadAll(f)
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrBadRequest.WithError(fmt.Errorf("invalid id %q", c.Params("id")))
	}
	return id, nil
}

// formValue distinguishes an absent form field from an empty one.
func formValue(c *fiber.Ctx, key string) (string, bool) {
	form, err := c.MultipartForm()
	if err == nil {
		if v, ok := form.Value[key]; ok && len(v) > 0 {
			return v[0], true
		}
		return "", false
	}
	if c.Request().PostArgs().Has(key) {
		return c.FormValue(key), true
	}
	return "", false
}
