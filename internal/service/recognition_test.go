package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facegate/internal/policy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x + y), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// MockDetector is a mock implementation of provider.Detector
type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Name() string { return "mock-detector" }

func (m *MockDetector) Detect(ctx context.Context, img *imaging.PixelBuffer, model domain.DetectorModel) ([]domain.DetectionBox, error) {
	args := m.Called(ctx, img, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DetectionBox), args.Error(1)
}

// fileDetector records the working copy path it was given.
type fileDetector struct {
	MockDetector
	path   string
	exists bool
}

func (f *fileDetector) DetectFile(_ context.Context, path string, _ *imaging.PixelBuffer, _ domain.DetectorModel) ([]domain.DetectionBox, error) {
	f.path = path
	_, err := os.Stat(path)
	f.exists = err == nil
	return []domain.DetectionBox{{X1: 0, Y1: 0, X2: 10, Y2: 10, Score: 0.9}}, nil
}

type matchOutcome struct {
	match *domain.MatchResult
	err   error
	delay time.Duration
}

// widthMatcher answers by crop width, so concurrent calls stay deterministic.
type widthMatcher struct {
	byWidth  map[int]matchOutcome
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *widthMatcher) Match(ctx context.Context, crop []byte) (*domain.MatchResult, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(crop))
	if err != nil {
		return nil, err
	}
	out, ok := m.byWidth[cfg.Width]
	if !ok {
		return &domain.MatchResult{}, nil
	}
	if out.delay > 0 {
		select {
		case <-time.After(out.delay):
		case <-ctx.Done():
		}
	}
	return out.match, out.err
}

type memVisits struct {
	mu      sync.Mutex
	visits  []domain.VisitRecord
	failOn  map[string]bool
	onWrite func()
}

func (m *memVisits) Insert(ctx context.Context, visit *domain.VisitRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[visit.PersonName] {
		return domain.ErrPersistence.WithError(errors.New("disk full"))
	}
	visit.ID = int64(len(m.visits) + 1)
	visit.Timestamp = time.Now()
	m.visits = append(m.visits, *visit)
	if m.onWrite != nil {
		m.onWrite()
	}
	return nil
}

func (m *memVisits) all() []domain.VisitRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.VisitRecord(nil), m.visits...)
}

type memPublisher struct {
	mu     sync.Mutex
	visits []domain.VisitRecord
}

func (p *memPublisher) PublishVisit(v domain.VisitRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visits = append(p.visits, v)
}

func identity(id int64, name string, allowed bool) *domain.EnrolledIdentity {
	return &domain.EnrolledIdentity{ID: id, Name: name, GalleryPath: "faces/" + name + ".jpg", IsAllowed: allowed}
}

func box(x1, w int) domain.DetectionBox {
	return domain.DetectionBox{X1: x1, Y1: 10, X2: x1 + w, Y2: 50, Score: 0.9}
}

func newRecognition(det *MockDetector, m *widthMatcher, visits *memVisits, workers int) (*RecognitionService, *memPublisher) {
	pub := &memPublisher{}
	rec := NewVisitRecorder(visits, pub, nil, testLogger())
	svc := NewRecognitionService(det, m, rec, RecognitionConfig{
		DefaultModel: domain.ModelYOLOv8n,
		Workers:      workers,
	}, testLogger())
	return svc, pub
}

func TestRecognitionService_Recognize(t *testing.T) {
	alice := identity(1, "alice", true)
	bob := identity(2, "bob", false)

	tests := []struct {
		name       string
		boxes      []domain.DetectionBox
		outcomes   map[int]matchOutcome
		failOn     map[string]bool
		wantNames  []string
		wantAllow  []bool
		wantErrors []bool
		wantFaceID []*int64
		wantConf   []string
	}{
		{
			name:       "single registered allowed face",
			boxes:      []domain.DetectionBox{box(10, 20)},
			outcomes:   map[int]matchOutcome{20: {match: &domain.MatchResult{Identity: alice, Filename: "alice.jpg", Distance: 0.1, Found: true}}},
			wantNames:  []string{"alice"},
			wantAllow:  []bool{true},
			wantErrors: []bool{false},
			wantFaceID: []*int64{ptr(int64(1))},
			wantConf:   []string{"90.0%"},
		},
		{
			name:       "no gallery entry within threshold",
			boxes:      []domain.DetectionBox{box(10, 20)},
			outcomes:   map[int]matchOutcome{20: {match: &domain.MatchResult{Filename: "alice.jpg", Distance: 0.7}}},
			wantNames:  []string{policy.NameUnknown},
			wantAllow:  []bool{false},
			wantErrors: []bool{false},
			wantFaceID: []*int64{nil},
			wantConf:   []string{"N/A"},
		},
		{
			name:       "gallery file without registry row",
			boxes:      []domain.DetectionBox{box(10, 20)},
			outcomes:   map[int]matchOutcome{20: {match: &domain.MatchResult{Filename: "ghost.jpg", Distance: 0.2, Found: true}}},
			wantNames:  []string{policy.NameUnregistered},
			wantAllow:  []bool{false},
			wantErrors: []bool{false},
			wantFaceID: []*int64{nil},
			wantConf:   []string{"80.0%"},
		},
		{
			name:  "mixed boxes with one failing match",
			boxes: []domain.DetectionBox{box(10, 20), box(40, 30), box(80, 40)},
			outcomes: map[int]matchOutcome{
				20: {match: &domain.MatchResult{Identity: alice, Filename: "alice.jpg", Distance: 0.25, Found: true}},
				30: {err: domain.ErrMatch.WithError(errors.New("embedder timeout"))},
				40: {match: &domain.MatchResult{Identity: bob, Filename: "bob.jpg", Distance: 0.3, Found: true}},
			},
			wantNames:  []string{"alice", policy.NameError, "bob"},
			wantAllow:  []bool{true, false, false},
			wantErrors: []bool{false, true, false},
			wantFaceID: []*int64{ptr(int64(1)), nil, ptr(int64(2))},
			wantConf:   []string{"75.0%", "N/A", "70.0%"},
		},
		{
			name:  "visit write failure stays on its box",
			boxes: []domain.DetectionBox{box(10, 20), box(40, 30)},
			outcomes: map[int]matchOutcome{
				20: {match: &domain.MatchResult{Identity: alice, Filename: "alice.jpg", Distance: 0.1, Found: true}},
				30: {match: &domain.MatchResult{Identity: bob, Filename: "bob.jpg", Distance: 0.1, Found: true}},
			},
			failOn:     map[string]bool{"alice": true},
			wantNames:  []string{"alice", "bob"},
			wantAllow:  []bool{true, false},
			wantErrors: []bool{true, false},
			wantFaceID: []*int64{ptr(int64(2))},
			wantConf:   []string{"90.0%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := new(MockDetector)
			det.On("Detect", mock.Anything, mock.Anything, domain.ModelYOLOv8n).Return(tt.boxes, nil)

			visits := &memVisits{failOn: tt.failOn}
			svc, pub := newRecognition(det, &widthMatcher{byWidth: tt.outcomes}, visits, 4)

			resp, err := svc.Recognize(context.Background(), testImage(t, 200, 100), "")
			require.NoError(t, err)

			assert.Equal(t, domain.StatusSuccess, resp.Status)
			assert.Equal(t, len(tt.boxes), resp.PeopleCount)
			require.Len(t, resp.RecognizedPeople, len(tt.boxes))

			for i, r := range resp.RecognizedPeople {
				assert.Equal(t, tt.boxes[i], r.Box, "box %d order", i)
				assert.Equal(t, tt.wantNames[i], r.Name, "box %d name", i)
				assert.Equal(t, tt.wantAllow[i], r.IsAllowed, "box %d allowed", i)
				assert.Equal(t, tt.wantErrors[i], r.Error != nil, "box %d error", i)
			}

			recorded := visits.all()
			wantVisits := len(tt.boxes) - len(tt.failOn)
			require.Len(t, recorded, wantVisits)
			for i, v := range recorded {
				assert.Equal(t, tt.wantFaceID[i], v.FaceID, "visit %d face id", i)
				assert.Equal(t, tt.wantConf[i], v.ConfidenceDisplay, "visit %d confidence", i)
			}
			assert.Len(t, pub.visits, wantVisits)
			det.AssertExpectations(t)
		})
	}
}

func TestRecognitionService_OneVisitPerBox(t *testing.T) {
	boxes := make([]domain.DetectionBox, 0, 12)
	outcomes := map[int]matchOutcome{}
	for i := 0; i < 12; i++ {
		w := 5 + i
		boxes = append(boxes, domain.DetectionBox{X1: i * 16, Y1: 0, X2: i*16 + w, Y2: 40, Score: 0.8})
		if i%3 == 0 {
			outcomes[w] = matchOutcome{err: errors.New("flaky"), delay: time.Millisecond}
		} else {
			outcomes[w] = matchOutcome{match: &domain.MatchResult{Filename: "x.jpg", Distance: 0.9}, delay: time.Duration(12-i) * time.Millisecond}
		}
	}

	det := new(MockDetector)
	det.On("Detect", mock.Anything, mock.Anything, mock.Anything).Return(boxes, nil)

	visits := &memVisits{}
	m := &widthMatcher{byWidth: outcomes}
	svc, _ := newRecognition(det, m, visits, 3)

	resp, err := svc.Recognize(context.Background(), testImage(t, 200, 60), "yolov11l-face")
	require.NoError(t, err)

	assert.Equal(t, 12, resp.PeopleCount)
	assert.Len(t, resp.RecognizedPeople, 12)
	assert.Len(t, visits.all(), 12)
	assert.LessOrEqual(t, m.peak.Load(), int32(3))

	for i, r := range resp.RecognizedPeople {
		assert.Equal(t, boxes[i], r.Box)
		if i%3 == 0 {
			assert.Equal(t, policy.NameError, r.Name)
		} else {
			assert.Equal(t, policy.NameUnknown, r.Name)
		}
	}
}

func TestRecognitionService_NoFaces(t *testing.T) {
	det := new(MockDetector)
	det.On("Detect", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	visits := &memVisits{}
	svc, _ := newRecognition(det, &widthMatcher{}, visits, 2)

	resp, err := svc.Recognize(context.Background(), testImage(t, 50, 50), "")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, resp.Status)
	assert.Equal(t, 0, resp.PeopleCount)
	assert.NotNil(t, resp.RecognizedPeople)
	assert.Empty(t, visits.all())
}

func TestRecognitionService_RequestErrors(t *testing.T) {
	t.Run("undecodable upload", func(t *testing.T) {
		det := new(MockDetector)
		svc, _ := newRecognition(det, &widthMatcher{}, &memVisits{}, 2)

		_, err := svc.Recognize(context.Background(), []byte("not an image"), "")
		assert.ErrorIs(t, err, domain.ErrDecode)
		det.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("detector failure", func(t *testing.T) {
		det := new(MockDetector)
		det.On("Detect", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		visits := &memVisits{}
		svc, _ := newRecognition(det, &widthMatcher{}, visits, 2)

		_, err := svc.Recognize(context.Background(), testImage(t, 80, 80), "")
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
		assert.Empty(t, visits.all())
	})

	t.Run("unknown model falls back to default", func(t *testing.T) {
		det := new(MockDetector)
		det.On("Detect", mock.Anything, mock.Anything, domain.ModelYOLOv8n).Return([]domain.DetectionBox{}, nil)

		svc, _ := newRecognition(det, &widthMatcher{}, &memVisits{}, 2)

		_, err := svc.Recognize(context.Background(), testImage(t, 80, 80), "resnet-9000")
		require.NoError(t, err)
		det.AssertExpectations(t)
	})
}

func TestRecognitionService_Cancellation(t *testing.T) {
	boxes := []domain.DetectionBox{box(10, 20), box(40, 30), box(80, 40)}

	det := new(MockDetector)
	det.On("Detect", mock.Anything, mock.Anything, mock.Anything).Return(boxes, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	visits := &memVisits{onWrite: cancel}
	svc, _ := newRecognition(det, &widthMatcher{byWidth: map[int]matchOutcome{
		20: {match: &domain.MatchResult{Filename: "a.jpg", Distance: 0.9}},
	}}, visits, 1)

	resp, err := svc.Recognize(ctx, testImage(t, 200, 100), "")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartial, resp.Status)
	assert.Equal(t, 1, resp.PeopleCount)
	assert.Len(t, resp.RecognizedPeople, 1)
	assert.Len(t, visits.all(), 1)
}

type memScratch struct {
	wrote    string
	released bool
}

func (s *memScratch) Write(data []byte, ext string) (string, func(), error) {
	f, err := os.CreateTemp("", "scratch-*"+ext)
	if err != nil {
		return "", nil, err
	}
	_, _ = f.Write(data)
	_ = f.Close()
	s.wrote = f.Name()
	return f.Name(), func() {
		s.released = true
		_ = os.Remove(f.Name())
	}, nil
}

func TestRecognitionService_ScratchWorkingCopy(t *testing.T) {
	det := &fileDetector{}
	scratch := &memScratch{}

	visits := &memVisits{}
	rec := NewVisitRecorder(visits, nil, nil, testLogger())
	svc := NewRecognitionService(det, &widthMatcher{}, rec, RecognitionConfig{}, testLogger()).
		WithScratch(scratch)

	resp, err := svc.Recognize(context.Background(), testImage(t, 64, 64), "")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.PeopleCount)
	assert.Equal(t, scratch.wrote, det.path)
	assert.True(t, det.exists)
	assert.True(t, scratch.released)
	_, statErr := os.Stat(scratch.wrote)
	assert.True(t, os.IsNotExist(statErr))
	det.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything, mock.Anything)
}

func ptr[T any](v T) *T {
	return &v
}
