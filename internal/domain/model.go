package domain

import (
	"fmt"
	"strings"
)

// DetectorModel is one of the supported detector weight variants.
type DetectorModel string

const (
	ModelYOLOv8n      DetectorModel = "yolov8n"
	ModelYOLOv8m      DetectorModel = "yolov8m"
	ModelYOLOv8nFace  DetectorModel = "yolov8n-face"
	ModelYOLOv8mFace  DetectorModel = "yolov8m-face"
	ModelYOLOv8lFace  DetectorModel = "yolov8l-face"
	ModelYOLOv10sFace DetectorModel = "yolov10s-face"
	ModelYOLOv11mFace DetectorModel = "yolov11m-face"
	ModelYOLOv11lFace DetectorModel = "yolov11l-face"
)

const DefaultDetectorModel = ModelYOLOv8n

var detectorModels = []DetectorModel{
	ModelYOLOv8n,
	ModelYOLOv8m,
	ModelYOLOv8nFace,
	ModelYOLOv8mFace,
	ModelYOLOv8lFace,
	ModelYOLOv10sFace,
	ModelYOLOv11mFace,
	ModelYOLOv11lFace,
}

// DetectorModels returns the supported variants in declaration order.
func DetectorModels() []DetectorModel {
	out := make([]DetectorModel, len(detectorModels))
	copy(out, detectorModels)
	return out
}

// WeightsFile returns the weight artifact name for the variant.
func (m DetectorModel) WeightsFile() string {
	return string(m) + ".pt"
}

func (m DetectorModel) Valid() bool {
	for _, known := range detectorModels {
		if m == known {
			return true
		}
	}
	return false
}

// ParseDetectorModel is the strict lookup used for configuration.
func ParseDetectorModel(name string) (DetectorModel, error) {
	m := DetectorModel(strings.ToLower(strings.TrimSpace(name)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown detector model %q", name)
	}
	return m, nil
}

// ResolveDetectorModel never fails: unknown or empty names resolve to
// fallback, and an invalid fallback resolves to DefaultDetectorModel.
func ResolveDetectorModel(name string, fallback DetectorModel) DetectorModel {
	if m, err := ParseDetectorModel(name); err == nil {
		return m
	}
	if fallback.Valid() {
		return fallback
	}
	return DefaultDetectorModel
}
