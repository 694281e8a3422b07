package deepface

// DetectRequest for POST /detect
type DetectRequest struct {
	Img   string `json:"img"`   // base64 data URI or path on the shared volume
	Model string `json:"model"` // weights file, e.g. "yolov8n-face.pt"
}

// DetectResponse from POST /detect
type DetectResponse struct {
	Results []DetectResult `json:"results"`
}

type DetectResult struct {
	Box        [4]float64 `json:"box"` // x1, y1, x2, y2 in pixels
	Confidence float64    `json:"confidence"`
}

// RepresentRequest for POST /represent
type RepresentRequest struct {
	Img      string `json:"img"`      // base64 encoded image
	Model    string `json:"model"`    // "Facenet", "Facenet512", "VGG-Face", etc
	Detector string `json:"detector"` // "skip" for pre-cropped faces
}

// RepresentResponse from POST /represent
type RepresentResponse struct {
	Results []RepresentResult `json:"results"`
}

type RepresentResult struct {
	Embedding  []float64  `json:"embedding"`
	FacialArea FacialArea `json:"facial_area"`
}

type FacialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// HealthResponse from GET /health
type HealthResponse struct {
	Status string `json:"status"`
}
