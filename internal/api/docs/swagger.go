package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// RecognizedPerson represents one detected face in a detection response
type RecognizedPerson struct {
	ID         *int64  `json:"id" example:"12"`
	Name       string  `json:"name" example:"Ana Souza"`
	Filename   *string `json:"filename" example:"/media/faces/Ana_Souza_portrait.jpg"`
	Confidence float64 `json:"confidence" example:"0.87"`
	Box        []int   `json:"box" example:"120,48,260,210"`
	IsAllowed  bool    `json:"is_allowed" example:"true"`
	Error      *string `json:"error"`
}

// DetectResponse represents the response for face detection
type DetectResponse struct {
	Status           string             `json:"status" example:"success"`
	PeopleCount      int                `json:"people_count" example:"1"`
	RecognizedPeople []RecognizedPerson `json:"recognized_people"`
}

// FaceResponse represents an enrolled identity
type FaceResponse struct {
	ID        int64  `json:"id" example:"12"`
	Name      string `json:"name" example:"Ana Souza"`
	Image     string `json:"image" example:"faces/Ana_Souza_portrait.jpg"`
	IsAllowed bool   `json:"is_allowed" example:"true"`
	CreatedAt string `json:"created_at" example:"2024-01-01T00:00:00Z"`
	UpdatedAt string `json:"updated_at" example:"2024-01-01T00:00:00Z"`
}

// FaceListResponse represents the enrolled identity listing
type FaceListResponse struct {
	Faces []FaceResponse `json:"faces"`
	Total int            `json:"total" example:"1"`
}

// VisitResponse represents one visit log entry
type VisitResponse struct {
	ID         int64  `json:"id" example:"340"`
	FaceID     *int64 `json:"face_id" example:"12"`
	PersonName string `json:"person_name" example:"Ana Souza"`
	Confidence string `json:"confidence" example:"87.0%"`
	IsAllowed  bool   `json:"is_allowed" example:"true"`
	Timestamp  string `json:"timestamp" example:"2024-01-01T00:00:00Z"`
}

// VisitListResponse represents the visit listing
type VisitListResponse struct {
	Visits       []VisitResponse `json:"visits"`
	Total        int             `json:"total" example:"1"`
	UnknownCount int             `json:"unknown_count" example:"4"`
}

// HealthResponse represents the readiness probe body
type HealthResponse struct {
	Status      string `json:"status" example:"ready"`
	GallerySize int    `json:"gallery_size" example:"42"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

var (
	errInvalidImage = response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted file"}, "400", "Bad Request")
	errNotFound     = response.New(ErrorResponse{Code: "IDENTITY_NOT_FOUND", Message: "Face not found"}, "404", "Not Found")
	errValidation   = response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity")
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
)

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Facegate API",
		Version:     "v1.0.0",
		Description: "Face identification for access control: detect faces, match them against the enrolled gallery and log every visit",
		Host:        "localhost:8000",
		Path:        "/api",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /api/faces/detect - Detect and identify faces
		endpoint.New(
			endpoint.POST,
			"/faces/detect",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Detect and identify faces"),
			endpoint.WithDescription("Multipart form with an `image` file and an optional `model` field (yolov8n, yolov8m, yolov8n-face, yolov8m-face, yolov8l-face, yolov10s-face, yolov11m-face, yolov11l-face; unknown values use the default). Every detected face yields one result and one visit log entry."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DetectResponse{}, "200", "Detection completed"),
			}),
			endpoint.WithErrors([]response.Response{
				errInvalidImage,
				errInternal,
				response.New(ErrorResponse{Code: "MODEL_UNAVAILABLE", Message: "Face recognition backend is unavailable"}, "503", "Service Unavailable"),
			}),
		),

		// GET /api/faces - List enrolled faces
		endpoint.New(
			endpoint.GET,
			"/faces",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("List enrolled faces"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FaceListResponse{}, "200", "Faces retrieved"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		// POST /api/faces - Enroll a face
		endpoint.New(
			endpoint.POST,
			"/faces",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Enroll a face"),
			endpoint.WithDescription("Multipart form with `name`, optional `is_allowed` (default true) and an `image` file. The image is stored in the gallery as <name>_<filename>."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FaceResponse{}, "201", "Face enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				errInvalidImage,
				response.New(ErrorResponse{Code: "IDENTITY_ALREADY_EXISTS", Message: "A face with this image is already enrolled"}, "409", "Conflict"),
				errValidation,
				errInternal,
			}),
		),

		// GET /api/faces/{id} - Get a face
		endpoint.New(
			endpoint.GET,
			"/faces/{id}",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Get an enrolled face"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("id", parameter.Path, parameter.WithDescription("Face ID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FaceResponse{}, "200", "Face retrieved"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errInternal}),
		),

		// PUT /api/faces/{id} - Update a face
		endpoint.New(
			endpoint.PUT,
			"/faces/{id}",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Update an enrolled face"),
			endpoint.WithDescription("Multipart form; `name`, `is_allowed` and `image` are all optional. A new image replaces the stored reference."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("id", parameter.Path, parameter.WithDescription("Face ID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FaceResponse{}, "200", "Face updated"),
			}),
			endpoint.WithErrors([]response.Response{errInvalidImage, errNotFound, errValidation, errInternal}),
		),

		// DELETE /api/faces/{id} - Delete a face
		endpoint.New(
			endpoint.DELETE,
			"/faces/{id}",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Delete an enrolled face"),
			endpoint.WithDescription("Removes the registry row and the reference image. Visit log entries are kept."),
			endpoint.WithParams(
				parameter.IntParam("id", parameter.Path, parameter.WithDescription("Face ID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Face deleted"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errInternal}),
		),

		// GET /api/visits - Recent visits
		endpoint.New(
			endpoint.GET,
			"/visits",
			endpoint.WithTags("Visits"),
			endpoint.WithSummary("List recent visits"),
			endpoint.WithDescription("Most recent visits first, with the total number of unmatched visits in the log"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of visits (default: 50, max: 500)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VisitListResponse{}, "200", "Visits retrieved"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				errInternal,
			}),
		),

		// GET /api/visits/live - Live visit feed
		endpoint.New(
			endpoint.GET,
			"/visits/live",
			endpoint.WithTags("Visits"),
			endpoint.WithSummary("Live visit feed (WebSocket)"),
			endpoint.WithDescription("WebSocket upgrade. Streams visit.recorded, face.enrolled, face.updated, face.deleted and gallery.rebuilt events. Use filter=denied to receive only refused visits."),
			endpoint.WithParams(
				parameter.StrParam("filter", parameter.Query, parameter.WithDescription("all (default) or denied")),
			),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
