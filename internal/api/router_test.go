package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/gallery"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
	"github.com/saturnino-fabrica-de-software/facegate/internal/storage"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRegistry stands in for the faces and visits tables.
type memRegistry struct {
	mu     sync.Mutex
	faces  []domain.EnrolledIdentity
	visits []domain.VisitRecord
}

func (r *memRegistry) FindByFilenameFragment(_ context.Context, fragment string) (*domain.EnrolledIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.faces {
		if strings.Contains(f.GalleryPath, fragment) {
			out := f
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memRegistry) GetByID(_ context.Context, id int64) (*domain.EnrolledIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.faces {
		if f.ID == id {
			out := f
			return &out, nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (r *memRegistry) List(context.Context) ([]domain.EnrolledIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EnrolledIdentity{}, r.faces...), nil
}

func (r *memRegistry) Create(_ context.Context, identity *domain.EnrolledIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.faces {
		if f.GalleryPath == identity.GalleryPath {
			return domain.ErrIdentityExists
		}
	}
	identity.ID = int64(len(r.faces) + 1)
	identity.CreatedAt = time.Now()
	identity.UpdatedAt = identity.CreatedAt
	r.faces = append(r.faces, *identity)
	return nil
}

func (r *memRegistry) Update(_ context.Context, identity *domain.EnrolledIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.faces {
		if f.ID == identity.ID {
			r.faces[i] = *identity
			return nil
		}
	}
	return domain.ErrIdentityNotFound
}

func (r *memRegistry) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.faces {
		if f.ID == id {
			r.faces = append(r.faces[:i], r.faces[i+1:]...)
			return nil
		}
	}
	return domain.ErrIdentityNotFound
}

func (r *memRegistry) Insert(_ context.Context, visit *domain.VisitRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	visit.ID = int64(len(r.visits) + 1)
	visit.Timestamp = time.Now()
	r.visits = append(r.visits, *visit)
	return nil
}

func (r *memRegistry) ListRecent(_ context.Context, limit int) ([]domain.VisitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.VisitRecord, 0, limit)
	for i := len(r.visits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.visits[i])
	}
	return out, nil
}

func (r *memRegistry) CountUnknown(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.visits {
		if v.FaceID == nil {
			n++
		}
	}
	return n, nil
}

func portrait(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 160, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			v := uint8(x*int(seed)) ^ uint8(y*3)
			img.Set(x, y, color.RGBA{v, v / 2, 255 - v, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if data != nil {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, _ = part.Write(data)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

type stack struct {
	router   *Router
	registry *memRegistry
	index    *gallery.Index
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := testLogger()
	mediaRoot := t.TempDir()

	files, err := storage.NewGallery(mediaRoot + "/faces")
	require.NoError(t, err)

	backend := mock.New()
	registry := &memRegistry{}
	index := gallery.NewIndex()
	builder := gallery.NewBuilder(index, gallery.BuilderConfig{
		Files:    files,
		Embedder: backend,
		Detector: backend,
		Logger:   logger,
	})
	matcher := gallery.NewMatcher(backend, index, registry, gallery.DefaultThreshold)

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	recorder := service.NewVisitRecorder(registry, hub, nil, logger)
	recognition := service.NewRecognitionService(backend, matcher, recorder, service.RecognitionConfig{Workers: 2}, logger)
	enrollment := service.NewEnrollmentService(registry, files, builder, hub, logger)

	router := NewRouter(logger, &Dependencies{
		Recognition: recognition,
		Enrollment:  enrollment,
		Visits:      service.NewVisitService(registry),
		Hub:         hub,
		Gallery:     index,
		MediaRoot:   mediaRoot,
	})
	router.Setup()

	return &stack{router: router, registry: registry, index: index}
}

func (s *stack) do(t *testing.T, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := s.router.App().Test(req, -1)
	require.NoError(t, err)

	var out map[string]interface{}
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestRouter_EnrollThenRecognize(t *testing.T) {
	s := newStack(t)
	ana := portrait(t, 7)

	// enroll
	body, ct := multipartBody(t, map[string]string{"name": "Ana", "is_allowed": "true"}, "front.png", ana)
	req := httptest.NewRequest("POST", "/api/faces", body)
	req.Header.Set("Content-Type", ct)
	resp, out := s.do(t, req)
	require.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "faces/Ana_front.png", out["image"])
	assert.Equal(t, 1, s.index.Len())

	// the same picture is recognised
	body, ct = multipartBody(t, map[string]string{"model": "yolov8m-face"}, "probe.png", ana)
	req = httptest.NewRequest("POST", "/api/faces/detect", body)
	req.Header.Set("Content-Type", ct)
	resp, out = s.do(t, req)
	require.Equal(t, 200, resp.StatusCode)

	assert.Equal(t, "success", out["status"])
	assert.Equal(t, float64(1), out["people_count"])
	people := out["recognized_people"].([]interface{})
	require.Len(t, people, 1)
	person := people[0].(map[string]interface{})
	assert.Equal(t, "Ana", person["name"])
	assert.Equal(t, true, person["is_allowed"])
	assert.Equal(t, "/media/faces/Ana_front.png", person["filename"])
	assert.Equal(t, []interface{}{float64(32), float64(32), float64(128), float64(128)}, person["box"])
	assert.InDelta(t, 1.0, person["confidence"].(float64), 0.001)

	// a small image has no faces and records nothing
	body, ct = multipartBody(t, nil, "tiny.png", portraitSized(t, 20))
	req = httptest.NewRequest("POST", "/api/faces/detect", body)
	req.Header.Set("Content-Type", ct)
	resp, out = s.do(t, req)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(0), out["people_count"])

	// exactly one visit, attributed to Ana
	resp, out = s.do(t, httptest.NewRequest("GET", "/api/visits", nil))
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(1), out["total"])
	assert.Equal(t, float64(0), out["unknown_count"])
	visit := out["visits"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(1), visit["face_id"])
	assert.Equal(t, "100.0%", visit["confidence"])

	// reference image is served
	resp, _ = s.do(t, httptest.NewRequest("GET", "/media/faces/Ana_front.png", nil))
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRouter_DeleteEmptiesGallery(t *testing.T) {
	s := newStack(t)

	body, ct := multipartBody(t, map[string]string{"name": "Bia"}, "b.png", portrait(t, 3))
	req := httptest.NewRequest("POST", "/api/faces", body)
	req.Header.Set("Content-Type", ct)
	resp, _ := s.do(t, req)
	require.Equal(t, 201, resp.StatusCode)

	resp, _ = s.do(t, httptest.NewRequest("DELETE", "/api/faces/1", nil))
	require.Equal(t, 204, resp.StatusCode)
	assert.Equal(t, 0, s.index.Len())

	// nothing enrolled: the face is unknown and still logged
	body, ct = multipartBody(t, nil, "probe.png", portrait(t, 3))
	req = httptest.NewRequest("POST", "/api/faces/detect", body)
	req.Header.Set("Content-Type", ct)
	resp, out := s.do(t, req)
	require.Equal(t, 200, resp.StatusCode)
	person := out["recognized_people"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Unknown", person["name"])
	assert.Equal(t, float64(1), person["confidence"])
	assert.Nil(t, person["id"])

	count, err := s.registry.CountUnknown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	resp, _ = s.do(t, httptest.NewRequest("GET", "/api/faces/1", nil))
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRouter_DetectRejectsGarbage(t *testing.T) {
	s := newStack(t)

	body, ct := multipartBody(t, nil, "x.png", []byte("definitely not a picture"))
	req := httptest.NewRequest("POST", "/api/faces/detect", body)
	req.Header.Set("Content-Type", ct)
	resp, out := s.do(t, req)

	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "INVALID_IMAGE", out["error"].(map[string]interface{})["code"])
	assert.Empty(t, s.registry.visits)
}

func TestRouter_HealthWithoutDependencies(t *testing.T) {
	router := NewRouter(testLogger(), nil)
	router.Setup()

	resp, err := router.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = router.App().Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = router.App().Test(httptest.NewRequest("GET", "/api/visits/live", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRouter_LiveFeedRequiresUpgrade(t *testing.T) {
	s := newStack(t)
	resp, _ := s.do(t, httptest.NewRequest("GET", "/api/visits/live", nil))
	assert.Equal(t, 426, resp.StatusCode)
}

func portraitSized(t *testing.T, side int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, side, side))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
