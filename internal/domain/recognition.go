package domain

import (
	"encoding/json"
	"math"
)

// DetectionBox is a face location in pixel coordinates, origin top-left.
type DetectionBox struct {
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Score float64 `json:"score"`
}

// Clamp returns the box ordered (x1<=x2, y1<=y2) and clipped to a
// width x height image, with the score clipped to [0,1].
func (b DetectionBox) Clamp(width, height int) DetectionBox {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}

	b.X1 = clampInt(b.X1, 0, width)
	b.X2 = clampInt(b.X2, 0, width)
	b.Y1 = clampInt(b.Y1, 0, height)
	b.Y2 = clampInt(b.Y2, 0, height)
	b.Score = ClampUnit(b.Score)

	return b
}

// Empty reports whether the box covers no pixels.
func (b DetectionBox) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// Coordinates returns [x1, y1, x2, y2].
func (b DetectionBox) Coordinates() [4]int {
	return [4]int{b.X1, b.Y1, b.X2, b.Y2}
}

// MarshalJSON encodes the box as [x1, y1, x2, y2].
func (b DetectionBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Coordinates())
}

// UnmarshalJSON accepts the [x1, y1, x2, y2] form.
func (b *DetectionBox) UnmarshalJSON(data []byte) error {
	var coords [4]int
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	b.X1, b.Y1, b.X2, b.Y2 = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// MatchResult is the nearest gallery neighbour for one face crop.
//
// Found is false when no gallery entry is within the acceptance threshold.
// Found with a nil Identity means the gallery file has no registry row.
type MatchResult struct {
	Identity *EnrolledIdentity
	Filename string
	Distance float64
	Found    bool
}

// ResultTag classifies a recognition outcome.
type ResultTag string

const (
	TagKnownAllowed        ResultTag = "known_allowed"
	TagKnownDenied         ResultTag = "known_denied"
	TagMatchedUnregistered ResultTag = "matched_unregistered"
	TagUnknown             ResultTag = "unknown"
	TagError               ResultTag = "error"
)

// Known reports whether the tag refers to a registered identity.
func (t ResultTag) Known() bool {
	return t == TagKnownAllowed || t == TagKnownDenied
}

// RecognitionResult is the per-box pipeline output.
type RecognitionResult struct {
	IdentityID    *int64       `json:"id"`
	Name          string       `json:"name"`
	CropReference *string      `json:"filename"`
	Confidence    float64      `json:"confidence"`
	Box           DetectionBox `json:"box"`
	IsAllowed     bool         `json:"is_allowed"`
	Error         *string      `json:"error"`

	Tag      ResultTag `json:"-"`
	Distance *float64  `json:"-"`
}

// SetError attaches an in-band error message to the result.
func (r *RecognitionResult) SetError(err error) {
	msg := err.Error()
	r.Error = &msg
}

const (
	StatusSuccess = "success"
	// StatusPartial is reported when the client cancelled before every box
	// was processed.
	StatusPartial = "partial"
)

// RecognitionResponse is the response body of a detection request.
type RecognitionResponse struct {
	Status           string              `json:"status"`
	PeopleCount      int                 `json:"people_count"`
	RecognizedPeople []RecognitionResult `json:"recognized_people"`
}

// ClampUnit clips v to [0,1]; NaN maps to 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
