// Package policy maps match outcomes to access decisions.
package policy

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const (
	NameUnregistered = "Unknown (Match found but not in database)"
	NameUnknown      = "Unknown"
	NameError        = "Error"

	// Sentinel confidences for outcomes without a usable distance.
	ConfidenceNoMatch = 1.0
	ConfidenceError   = 0.0

	noConfidence = "N/A"
)

// Decision is the policy outcome for one detection box.
type Decision struct {
	Name       string
	IsAllowed  bool
	Tag        domain.ResultTag
	Confidence float64
	// Distance is nil for Unknown and Error.
	Distance *float64
}

// Decide applies the access table. A non-nil matchErr always wins.
func Decide(match *domain.MatchResult, matchErr error) Decision {
	if matchErr != nil || match == nil {
		return Decision{Name: NameError, Tag: domain.TagError, Confidence: ConfidenceError}
	}

	if !match.Found {
		return Decision{Name: NameUnknown, Tag: domain.TagUnknown, Confidence: ConfidenceNoMatch}
	}

	distance := match.Distance
	d := Decision{
		Confidence: domain.ClampUnit(1 - distance),
		Distance:   &distance,
	}

	if match.Identity == nil {
		d.Name = NameUnregistered
		d.Tag = domain.TagMatchedUnregistered
		return d
	}

	d.Name = match.Identity.Name
	d.IsAllowed = match.Identity.IsAllowed
	if d.IsAllowed {
		d.Tag = domain.TagKnownAllowed
	} else {
		d.Tag = domain.TagKnownDenied
	}
	return d
}

// ConfidenceDisplay formats the confidence stored on a visit record.
func ConfidenceDisplay(r domain.RecognitionResult) string {
	if r.Distance == nil {
		return noConfidence
	}
	return fmt.Sprintf("%.1f%%", 100*r.Confidence)
}

// Apply builds the per-box result for box from a decision.
func Apply(box domain.DetectionBox, match *domain.MatchResult, matchErr error) domain.RecognitionResult {
	d := Decide(match, matchErr)

	r := domain.RecognitionResult{
		Name:       d.Name,
		Confidence: d.Confidence,
		Box:        box,
		IsAllowed:  d.IsAllowed,
		Tag:        d.Tag,
		Distance:   d.Distance,
	}

	if d.Tag.Known() {
		id := match.Identity.ID
		r.IdentityID = &id
	}
	if match != nil && match.Found && matchErr == nil {
		ref := "/media/faces/" + match.Filename
		r.CropReference = &ref
	}
	if matchErr != nil {
		r.SetError(matchErr)
	}

	return r
}
